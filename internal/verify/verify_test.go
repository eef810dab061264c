package verify

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jedisct1/go-minisign"

	"github.com/3leaps/wheelfetch/internal/model"
)

func TestExtractChecksum(t *testing.T) {
	t.Parallel()

	sha256Digest := strings.Repeat("a", 64)
	sha512Digest := strings.Repeat("b", 128)

	tests := []struct {
		name      string
		data      string
		algo      string
		assetName string
		want      string
		wantErr   string
	}{
		{
			name:    "empty file",
			data:    "\n\n",
			algo:    "sha256",
			wantErr: "empty",
		},
		{
			name: "bare digest",
			data: strings.ToUpper(sha256Digest),
			algo: "sha256",
			want: sha256Digest,
		},
		{
			name:      "consolidated matches by basename",
			data:      sha256Digest + "  ./dist/proj-1.0-py3-none-any.whl\n" + sha256Digest + "  other\n",
			algo:      "sha256",
			assetName: "proj-1.0-py3-none-any.whl",
			want:      sha256Digest,
		},
		{
			name:      "binary mode marker",
			data:      sha256Digest + " *proj-1.0-py3-none-any.whl\n",
			algo:      "sha256",
			assetName: "proj-1.0-py3-none-any.whl",
			want:      sha256Digest,
		},
		{
			name:      "ignores comments and blank lines",
			data:      "# comment\n\n" + sha256Digest + " tool\n",
			algo:      "sha256",
			assetName: "tool",
			want:      sha256Digest,
		},
		{
			name:      "asset not listed",
			data:      sha256Digest + " tool\n",
			algo:      "sha256",
			assetName: "nope",
			wantErr:   "not listed",
		},
		{
			name:      "sha512 digest",
			data:      sha512Digest + " tool\n",
			algo:      "sha512",
			assetName: "tool",
			want:      sha512Digest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractChecksum([]byte(tc.data), tc.algo, tc.assetName)
			if tc.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tc.wantErr)
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("error: got %q want substring %q", err.Error(), tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractChecksum: %v", err)
			}
			if got != tc.want {
				t.Fatalf("checksum: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestChecksumHelpers(t *testing.T) {
	t.Parallel()

	if got := DetectChecksumType("proj.whl.sha256"); got != "per-asset" {
		t.Fatalf("DetectChecksumType: got %q", got)
	}
	if got := DetectChecksumType("SHA256SUMS"); got != "consolidated" {
		t.Fatalf("DetectChecksumType: got %q", got)
	}
	if got := DetectChecksumAlgorithm("SHA512SUMS", "sha256"); got != "sha512" {
		t.Fatalf("DetectChecksumAlgorithm: got %q", got)
	}
	if got := DetectChecksumAlgorithm("checksums.txt", "sha256"); got != "sha256" {
		t.Fatalf("DetectChecksumAlgorithm: got %q", got)
	}
	if got := FormatSize(1536); got != "1.5 KB" {
		t.Fatalf("FormatSize: got %q", got)
	}
	if got := FormatSize(12); got != "12 B" {
		t.Fatalf("FormatSize: got %q", got)
	}
	if _, err := Digest([]byte("x"), "md5"); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}

func TestIsSidecar(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]bool{
		"SHA256SUMS":                        true,
		"SHA256SUMS.minisig":                true,
		"checksums.txt":                     true,
		"proj-1.0-py3-none-any.whl.sha256":  true,
		"proj-1.0-py3-none-any.whl.minisig": true,
		"proj-1.0-py3-none-any.whl":         false,
		"README.md":                         false,
	} {
		if got := IsSidecar(name); got != want {
			t.Errorf("IsSidecar(%q) = %v want %v", name, got, want)
		}
	}
}

type testKey struct {
	priv ed25519.PrivateKey
	id   [8]byte
	line string
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	k := testKey{priv: priv, id: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	bin := append([]byte("Ed"), k.id[:]...)
	bin = append(bin, pub...)
	k.line = base64.StdEncoding.EncodeToString(bin)
	return k
}

func (k testKey) public(t *testing.T) *minisign.PublicKey {
	t.Helper()
	pk, err := LoadPublicKey(k.line)
	if err != nil {
		t.Fatalf("LoadPublicKey: %v", err)
	}
	return pk
}

func (k testKey) sign(content []byte) []byte {
	sig := ed25519.Sign(k.priv, content)
	comment := "wheelfetch test"
	global := ed25519.Sign(k.priv, append(append([]byte{}, sig...), comment...))
	line := append(append([]byte("Ed"), k.id[:]...), sig...)
	return []byte(fmt.Sprintf("untrusted comment: signature\n%s\ntrusted comment: %s\n%s\n",
		base64.StdEncoding.EncodeToString(line), comment, base64.StdEncoding.EncodeToString(global)))
}

func TestLoadPublicKeyForms(t *testing.T) {
	t.Parallel()

	k := newTestKey(t)
	file := "untrusted comment: minisign public key 0102030405060708\n" + k.line + "\n"
	if _, err := LoadPublicKey(file); err != nil {
		t.Fatalf("inline file contents: %v", err)
	}

	path := filepath.Join(t.TempDir(), "key.pub")
	if err := os.WriteFile(path, []byte(file), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if _, err := LoadPublicKey(path); err != nil {
		t.Fatalf("key file: %v", err)
	}

	if _, err := LoadPublicKey(filepath.Join(t.TempDir(), "missing.pub")); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := LoadPublicKey(" "); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestPolicyVerify(t *testing.T) {
	t.Parallel()

	const wheel = "proj-1.0-py3-none-any.whl"
	content := []byte("wheel bytes")
	digest, err := Digest(content, "sha256")
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	sums := []byte(digest + "  " + wheel + "\n")

	k := newTestKey(t)
	other := newTestKey(t)

	tests := []struct {
		name     string
		policy   Policy
		sidecars Sidecars
		want     Result
		wantErr  string
	}{
		{
			name: "nothing to check",
		},
		{
			name:     "consolidated checksum",
			sidecars: Sidecars{"SHA256SUMS": sums},
			want:     Result{Checksum: "SHA256SUMS"},
		},
		{
			name:     "per-wheel checksum",
			sidecars: Sidecars{wheel + ".sha256": []byte(digest)},
			want:     Result{Checksum: wheel + ".sha256"},
		},
		{
			name:     "unlisted in consolidated falls back to per-wheel",
			sidecars: Sidecars{"SHA256SUMS": []byte(digest + "  other.whl\n"), wheel + ".sha256": []byte(digest)},
			want:     Result{Checksum: wheel + ".sha256"},
		},
		{
			name:     "digest mismatch",
			sidecars: Sidecars{"SHA256SUMS": []byte(strings.Repeat("0", 64) + "  " + wheel + "\n")},
			wantErr:  "mismatch",
		},
		{
			name:     "empty consolidated file is skipped",
			sidecars: Sidecars{"SHA256SUMS": []byte("")},
		},
		{
			name:     "unparseable per-wheel file is skipped",
			sidecars: Sidecars{wheel + ".sha256": []byte("not a digest")},
		},
		{
			name:     "bare digest in consolidated file names no wheel",
			sidecars: Sidecars{"SHA256SUMS": []byte(strings.Repeat("0", 64))},
		},
		{
			name:     "bare digest in consolidated file does not shadow per-wheel",
			sidecars: Sidecars{"checksums.txt": []byte(strings.Repeat("0", 64)), wheel + ".sha256": []byte(digest)},
			want:     Result{Checksum: wheel + ".sha256"},
		},
		{
			name:     "unparseable sidecar fails when a key is configured",
			policy:   Policy{PublicKey: k.public(t)},
			sidecars: Sidecars{wheel + ".sha256": []byte("not a digest")},
			wantErr:  "checksum not listed",
		},
		{
			name:     "empty consolidated file fails when signatures are required",
			policy:   Policy{PublicKey: k.public(t), RequireSignature: true},
			sidecars: Sidecars{"SHA256SUMS": []byte(""), wheel + ".minisig": k.sign(content)},
			wantErr:  "empty",
		},
		{
			name:     "signed checksum file",
			policy:   Policy{PublicKey: k.public(t), RequireSignature: true},
			sidecars: Sidecars{"SHA256SUMS": sums, "SHA256SUMS.minisig": k.sign(sums)},
			want:     Result{Checksum: "SHA256SUMS", Signature: "SHA256SUMS.minisig"},
		},
		{
			name:     "signed wheel",
			policy:   Policy{PublicKey: k.public(t), RequireSignature: true},
			sidecars: Sidecars{wheel + ".minisig": k.sign(content)},
			want:     Result{Signature: wheel + ".minisig"},
		},
		{
			name:     "wrong key",
			policy:   Policy{PublicKey: k.public(t)},
			sidecars: Sidecars{wheel + ".minisig": other.sign(content)},
			wantErr:  "minisign",
		},
		{
			name:     "tampered wheel",
			policy:   Policy{PublicKey: k.public(t)},
			sidecars: Sidecars{wheel + ".minisig": k.sign([]byte("other bytes"))},
			wantErr:  "minisign",
		},
		{
			name:     "signature ignored without key",
			sidecars: Sidecars{wheel + ".minisig": []byte("garbage")},
		},
		{
			name:    "required but missing",
			policy:  Policy{PublicKey: k.public(t), RequireSignature: true},
			wantErr: "no minisign signature",
		},
		{
			name:    "required without key",
			policy:  Policy{RequireSignature: true},
			wantErr: "no minisign public key",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.policy.Verify(wheel, content, tc.sidecars)
			if tc.wantErr != "" {
				if !errors.Is(err, model.ErrVerificationFailed) {
					t.Fatalf("expected verification failure, got %v", err)
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("error: got %q want substring %q", err.Error(), tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got != tc.want {
				t.Fatalf("result: got %+v want %+v", got, tc.want)
			}
		})
	}
}
