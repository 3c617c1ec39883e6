// Package rxhash computes the content hashes used as cache keys across
// the pattern, result and deferred tiers. A key must change whenever
// any field that affects compiled behavior changes, and must not
// collide across unrelated patterns in practice.
package rxhash

import (
	"encoding/binary"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// Key is a 64-bit content hash. Two Options with identical fields
// always hash to the same Key; changing any single field changes it.
type Key uint64

// mix folds a secondary hash into an accumulator the way a tuple hash
// combines its members: order-sensitive, and sensitive to every bit of
// both inputs. Based on the FNV-style avalanche mixing used for
// Alertmanager-compatible fingerprints, generalized to 64-bit digests
// instead of raw bytes. The accumulator is rotated before folding so
// mix(a, b) and mix(b, a) diverge: plain XOR is commutative and would
// otherwise make any two-argument combination built on it symmetric.
func mix(acc, v uint64) uint64 {
	acc = bits.RotateLeft64(acc, 31)
	acc ^= v
	acc *= 0x100000001b3
	acc ^= acc >> 33
	return acc
}

// Pattern hashes a pattern string together with its compile options
// into the PatternCache key. text and every option field that affects
// engine.Compile's output must be folded in, or two semantically
// distinct patterns would collide on the same handle.
func Pattern(text string, optionFields ...string) Key {
	acc := xxhash.Sum64String(text)
	for _, f := range optionFields {
		acc = mix(acc, xxhash.Sum64String(f))
	}
	return Key(acc)
}

// PatternAndInput combines an already-computed pattern key with a
// match input string into a ResultCache key. The combination is
// asymmetric: Pattern(a) and PatternAndInput(b, a) never collide with
// PatternAndInput(a, b), because the pattern key is mixed in first and
// the input is never fed back through Pattern itself.
func PatternAndInput(patternKey Key, input string) Key {
	acc := mix(uint64(patternKey), xxhash.Sum64String(input))
	return Key(acc)
}

// Bytes renders a Key as its 8-byte big-endian form, useful for
// callers that want a stable on-disk or wire representation.
func (k Key) Bytes() [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	return b
}
