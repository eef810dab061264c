package verify

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedisct1/go-minisign"
)

// LoadPublicKey accepts a minisign public key file path, the two-line file
// contents, or the bare base64 key line.
func LoadPublicKey(value string) (*minisign.PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("minisign public key is empty")
	}
	if strings.HasPrefix(value, "untrusted comment:") {
		key, err := minisign.DecodePublicKey(value)
		if err != nil {
			return nil, fmt.Errorf("decode minisign pubkey: %w", err)
		}
		return &key, nil
	}
	if key, err := minisign.NewPublicKey(value); err == nil {
		return &key, nil
	}
	key, err := minisign.NewPublicKeyFromFile(value)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("minisign pubkey %s: not a key and no such file", value)
		}
		return nil, fmt.Errorf("read minisign pubkey: %w", err)
	}
	return &key, nil
}

// VerifyMinisignSignature checks sig (the contents of a .minisig file) over
// content.
func VerifyMinisignSignature(content, sig []byte, pubKey *minisign.PublicKey) error {
	signature, err := minisign.DecodeSignature(string(sig))
	if err != nil {
		return fmt.Errorf("read minisign signature: %w", err)
	}

	valid, err := pubKey.Verify(content, signature)
	if err != nil {
		return fmt.Errorf("minisign: verification error: %w", err)
	}
	if !valid {
		return fmt.Errorf("minisign: signature verification failed")
	}
	return nil
}
