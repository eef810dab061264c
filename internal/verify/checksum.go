package verify

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"path"
	"strings"
)

var errChecksumNotListed = errors.New("checksum not listed")

// ExtractChecksum finds the digest for assetName in a per-asset checksum
// file. The file is either a bare digest or "<digest>  <name>" lines as
// written by sha256sum.
func ExtractChecksum(data []byte, algo, assetName string) (string, error) {
	return lookupChecksum(data, algo, assetName, true)
}

// lookupChecksum is ExtractChecksum for either file kind. A bare digest names
// no asset, so it only counts when allowBare is set.
func lookupChecksum(data []byte, algo, assetName string, allowBare bool) (string, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("checksum file is empty")
	}
	digestLen := expectedDigestLength(algo)
	if isHexDigest(text, digestLen) {
		if !allowBare {
			return "", fmt.Errorf("checksum for %s: bare digest in a consolidated file: %w", assetName, errChecksumNotListed)
		}
		return strings.ToLower(text), nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		digest := fields[0]
		if !isHexDigest(digest, digestLen) {
			continue
		}
		// sha256sum marks binary mode with a leading '*'.
		candidate := path.Base(strings.TrimPrefix(fields[len(fields)-1], "*"))
		if candidate == assetName {
			return strings.ToLower(digest), nil
		}
	}

	return "", fmt.Errorf("checksum for %s: %w", assetName, errChecksumNotListed)
}

// Digest returns the lower-case hex digest of data.
func Digest(data []byte, algo string) (string, error) {
	var h hash.Hash
	switch strings.ToLower(algo) {
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return "", fmt.Errorf("unsupported checksum algorithm %q", algo)
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isHexDigest(value string, expectedLen int) bool {
	if expectedLen > 0 && len(value) != expectedLen {
		return false
	}
	if len(value)%2 != 0 {
		return false
	}
	for _, ch := range value {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}
	return true
}

func expectedDigestLength(algo string) int {
	switch strings.ToLower(algo) {
	case "sha256":
		return 64
	case "sha512":
		return 128
	default:
		return 0
	}
}
