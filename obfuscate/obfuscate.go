// Package obfuscate implements the reversible capsule-id obfuscator
// (§6.4): a salted, variable-length, lowercase alphanumeric encoding of a
// single int32, built on the base36 alphabet already pulled in by the
// storage driver stack.
package obfuscate

import (
	"github.com/capsulabs/capsule-pipeline/errors"
	"github.com/multiformats/go-base36"
)

// Obfuscator is an immutable value constructed once at startup from a
// configured salt and passed explicitly to every caller that needs to
// encode or decode a capsule id — never a package-level singleton
// (SPEC_FULL.md's redesign note on the global ID obfuscator).
type Obfuscator struct {
	salt uint32
}

// New builds an Obfuscator from a configured salt string. The salt is
// folded into a uint32 with FNV-1a so any non-empty string is a valid
// salt.
func New(salt string) Obfuscator {
	var h uint32 = 2166136261
	for i := 0; i < len(salt); i++ {
		h ^= uint32(salt[i])
		h *= 16777619
	}
	return Obfuscator{salt: h}
}

// Encode turns a capsule id into the external, salted base36 string.
func (o Obfuscator) Encode(id int64) string {
	if id < 0 || id > int64(^uint32(0)>>1) {
		// Out-of-range ids never occur in practice (ids are Postgres
		// serials); encode the truncated value rather than panic.
		id &= 0x7fffffff
	}
	masked := uint32(id) ^ o.salt
	return base36.EncodeToStringLc(encodeBytes(masked))
}

// Decode reverses Encode. A malformed or out-of-range string surfaces as
// errors.ErrNotFound, per §6.4's "decoding failures surface as NotFound".
func (o Obfuscator) Decode(s string) (int64, error) {
	b, err := base36.DecodeString(s)
	if err != nil || len(b) == 0 || len(b) > 4 {
		return 0, errors.ErrNotFound
	}
	var masked uint32
	for _, c := range b {
		masked = masked<<8 | uint32(c)
	}
	return int64(masked ^ o.salt), nil
}

func encodeBytes(v uint32) []byte {
	switch {
	case v == 0:
		return []byte{0}
	case v < 1<<8:
		return []byte{byte(v)}
	case v < 1<<16:
		return []byte{byte(v >> 8), byte(v)}
	case v < 1<<24:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}
