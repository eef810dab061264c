// Package verify checks wheels against checksum files and minisign
// signatures shipped in the same artifact archive.
package verify

import (
	"errors"
	"strings"

	"github.com/jedisct1/go-minisign"
	"github.com/sirupsen/logrus"

	"github.com/3leaps/wheelfetch/internal/model"
)

// MaxSidecarBytes caps how much of a checksum or signature entry is read.
const MaxSidecarBytes = 1 << 20

const minisigExt = ".minisig"

// checksumFiles are the consolidated checksum names recognised at the
// archive root, in lookup order.
var checksumFiles = []string{
	"SHA256SUMS",
	"SHA256SUMS.txt",
	"SHA512SUMS",
	"SHA512SUMS.txt",
	"checksums.txt",
}

// IsSidecar reports whether an archive entry name carries verification
// material rather than a package.
func IsSidecar(name string) bool {
	base := strings.TrimSuffix(name, minisigExt)
	for _, c := range checksumFiles {
		if base == c {
			return true
		}
	}
	return strings.HasSuffix(name, minisigExt) ||
		strings.HasSuffix(name, ".sha256") ||
		strings.HasSuffix(name, ".sha512")
}

// Sidecars maps archive entry names to their contents.
type Sidecars map[string][]byte

// Policy decides how strictly wheels are verified. The zero value checks
// digests when readable checksum files are present, skips unreadable ones
// with a warning and ignores signatures.
type Policy struct {
	PublicKey        *minisign.PublicKey
	RequireSignature bool
}

// strict reports whether the caller configured verification, in which case
// unreadable sidecars fail instead of being skipped.
func (p Policy) strict() bool {
	return p.PublicKey != nil || p.RequireSignature
}

// Result records which sidecars vouched for a wheel.
type Result struct {
	Checksum  string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`
}

// Verify checks content, the bytes of archive entry name, against sidecars.
// A consolidated checksum file is preferred over a per-wheel one; a
// signature over that checksum file covers every wheel it lists.
func (p Policy) Verify(name string, content []byte, sidecars Sidecars) (Result, error) {
	if p.RequireSignature && p.PublicKey == nil {
		return Result{}, model.Errorf(model.ErrVerificationFailed, "signature required but no minisign public key configured")
	}

	var res Result
	want, algo, source, err := findDigest(name, sidecars, p.strict())
	if err != nil {
		return Result{}, model.Wrap(model.ErrVerificationFailed, err, "%s", name)
	}
	if source != "" {
		got, err := Digest(content, algo)
		if err != nil {
			return Result{}, model.Wrap(model.ErrVerificationFailed, err, "%s", name)
		}
		if got != want {
			return Result{}, model.Errorf(model.ErrVerificationFailed, "%s: %s mismatch (%s lists %s, archive entry is %s)", name, algo, source, want, got)
		}
		res.Checksum = source

		if sig, ok := sidecars[source+minisigExt]; ok && p.PublicKey != nil {
			if err := VerifyMinisignSignature(sidecars[source], sig, p.PublicKey); err != nil {
				return Result{}, model.Wrap(model.ErrVerificationFailed, err, "%s", source+minisigExt)
			}
			res.Signature = source + minisigExt
		}
	}

	if res.Signature == "" {
		if sig, ok := sidecars[name+minisigExt]; ok && p.PublicKey != nil {
			if err := VerifyMinisignSignature(content, sig, p.PublicKey); err != nil {
				return Result{}, model.Wrap(model.ErrVerificationFailed, err, "%s", name+minisigExt)
			}
			res.Signature = name + minisigExt
		}
	}

	if p.RequireSignature && res.Signature == "" {
		return Result{}, model.Errorf(model.ErrVerificationFailed, "no minisign signature covers %s", name)
	}
	return res, nil
}

func findDigest(name string, sidecars Sidecars, strict bool) (digest, algo, source string, err error) {
	log := logrus.WithFields(logrus.Fields{"component": "verify", "wheel": name})
	for _, candidate := range checksumFiles {
		data, ok := sidecars[candidate]
		if !ok {
			continue
		}
		algo = DetectChecksumAlgorithm(candidate, "sha256")
		digest, err = lookupChecksum(data, algo, name, false)
		switch {
		case err == nil:
			return digest, algo, candidate, nil
		case errors.Is(err, errChecksumNotListed):
			continue
		case strict:
			return "", "", "", err
		}
		log.WithError(err).WithField("sidecar", candidate).Warn("ignoring unreadable checksum file")
	}
	for _, ext := range []string{".sha256", ".sha512"} {
		candidate := name + ext
		data, ok := sidecars[candidate]
		if !ok {
			continue
		}
		algo = DetectChecksumAlgorithm(candidate, "sha256")
		digest, err = lookupChecksum(data, algo, name, true)
		if err == nil {
			return digest, algo, candidate, nil
		}
		if strict {
			return "", "", "", err
		}
		log.WithError(err).WithField("sidecar", candidate).Warn("ignoring unreadable checksum file")
	}
	return "", "", "", nil
}
