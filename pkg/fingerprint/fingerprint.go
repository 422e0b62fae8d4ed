package fingerprint

import (
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
)

// namespace seeds every derived fingerprint. Changing it invalidates every
// identifier already planted in the field.
var namespace = uuid.MustParse("f1bfa31d-9c5a-4e72-b0a4-3d4bfb1f0be8")

const (
	width  = 6
	filler = "x"
)

// Fingerprint is a short alphanumeric token derived from a template name.
// Equal names yield equal fingerprints across processes and hosts.
type Fingerprint string

// Derive computes the fingerprint for a template name. The name is hashed
// into a version 5 UUID under the package namespace, the raw UUID bytes are
// Base58 encoded, and the first six characters are kept. Short encodings are
// right padded with a fixed filler so the result is always six characters.
func Derive(templateName string) Fingerprint {
	id := uuid.NewSHA1(namespace, []byte(templateName))
	return Fingerprint(clip(base58.Encode(id[:]), width, filler))
}

func (f Fingerprint) String() string { return string(f) }

// PatchDigit folds the fingerprint into a single decimal digit, suitable as
// the patch component of a version string.
func (f Fingerprint) PatchDigit() int {
	var h uint32
	for _, r := range string(f) {
		h = h*31 + uint32(r)
	}
	return int(h % 10)
}

// HostSuffix returns the three character lowercase hostname marker.
func (f Fingerprint) HostSuffix() string {
	return clip(strings.ToLower(f.alnum()), 3, filler)
}

// KeyTail returns the four character uppercase credential marker.
func (f Fingerprint) KeyTail() string {
	return clip(strings.ToUpper(f.alnum()), 4, "0")
}

func (f Fingerprint) alnum() string {
	var b strings.Builder
	for _, r := range string(f) {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func clip(s string, n int, pad string) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(pad, n-len(s))
}
