package key

import (
	"github.com/cespare/xxhash/v2"
)

// Stateless function objects wrapping the key comparisons, for container
// machinery that wants a callable value rather than methods on Key.

// Comparator orders keys; Less is a strict weak ordering suitable for
// sorted containers.
type Comparator struct{}

// Compare returns <0, 0 or >0 as a orders before, equal to or after b.
func (Comparator) Compare(a, b Key) int { return Compare(a, b) }

// Less reports whether a orders strictly before b.
func (Comparator) Less(a, b Key) bool { return LessThan(a, b) }

// EqualityChecker tests keys for bit-for-bit equality.
type EqualityChecker struct{}

// Equal reports whether a and b are identical.
func (EqualityChecker) Equal(a, b Key) bool { return Equals(a, b) }

// Hasher hashes a key's raw bytes. Equal keys always hash identically,
// which is the only contract hash containers need.
type Hasher struct{}

// Hash returns a 64-bit content hash of the key.
func (Hasher) Hash(k Key) uint64 { return xxhash.Sum64(k.data) }
