package origin

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"maps"
	"slices"
)

// Fingerprint is a stable key derived from a normalized Origin.
//
// Two origins share a fingerprint exactly when they have the same scheme,
// the same address list in the same order, the same credential identity and
// the same option set. Option order is irrelevant; address order is not,
// since it decides which node is tried first.
type Fingerprint string

// Short returns an abbreviated fingerprint for log fields.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}

	return string(f[:12])
}

// String returns the full hex fingerprint.
func (f Fingerprint) String() string {
	return string(f)
}

// Credential identifies who connects to the cluster.
type Credential struct {
	Username string
	Password string
}

// Identity returns a value that distinguishes credentials without exposing the password.
func (c Credential) Identity() string {
	if c.Password == "" {
		return c.Username + ":"
	}
	sum := sha256.Sum256([]byte(c.Password))

	return c.Username + ":" + hex.EncodeToString(sum[:])
}

// computeFingerprint hashes a length-prefixed canonical encoding of the origin.
func computeFingerprint(o *Origin) Fingerprint {
	h := sha256.New()

	writeField(h, o.scheme)

	writeCount(h, len(o.addresses))
	for _, addr := range o.addresses {
		writeField(h, addr)
	}

	writeField(h, o.credential.Identity())

	keys := slices.Sorted(maps.Keys(o.options))
	writeCount(h, len(keys))
	for _, k := range keys {
		writeField(h, k)
		writeField(h, o.options[k])
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

func writeField(h hash.Hash, s string) {
	writeCount(h, len(s))
	h.Write([]byte(s))
}

func writeCount(h hash.Hash, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
}
