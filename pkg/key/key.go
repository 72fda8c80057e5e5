// Package key implements the fixed-width composite index keys used by the
// storage engine. Multiple integer columns are packed into one flat byte
// buffer so that a plain byte-wise compare of two buffers orders them the
// same way as comparing the original column values left to right. The
// trick: reinterpret each signed integer as unsigned after flipping its
// most-significant bit, then store it most-significant-byte-first.
//
// The buffer carries no metadata about column widths or offsets; the
// caller owns that mapping and must use the same offset and width when
// packing and unpacking a given column.
package key

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// SlotSize is the granularity the buffer is allocated in. A Key always
// holds a whole number of 8-byte slots.
const SlotSize = 8

// Sign-bit masks at each logical integer width.
const (
	signBit8  = uint8(1) << 7
	signBit16 = uint16(1) << 15
	signBit32 = uint32(1) << 31
	signBit64 = uint64(1) << 63
)

// Key is a fixed-length, order-preserving composite key. The zero-slot
// Key is invalid; construct with New, FromBytes or Parse.
//
// Key wraps a slice, so plain assignment shares the underlying buffer.
// Use Clone when a deep copy is needed.
type Key struct {
	data []byte
}

// New returns an all-zero key of slots * 8 bytes. Panics if slots is not
// positive.
func New(slots int) Key {
	if slots <= 0 {
		panic(fmt.Sprintf("key: slot count must be positive, got %d", slots))
	}
	return Key{data: make([]byte, slots*SlotSize)}
}

// FromBytes wraps raw as a key without copying. The length must be a
// positive multiple of SlotSize; this is the validated entry point for
// byte strings arriving from the wire or from disk.
func FromBytes(raw []byte) (Key, error) {
	if len(raw) == 0 || len(raw)%SlotSize != 0 {
		return Key{}, fmt.Errorf("key: invalid encoded length %d (want positive multiple of %d)", len(raw), SlotSize)
	}
	return Key{data: raw}, nil
}

// Parse decodes a comma-separated list of unsigned 64-bit integers into
// consecutive 8-byte slots of a fresh key. Decoding stops after filling
// the key's capacity or exhausting the input, whichever comes first.
// Malformed tokens surface the strconv error as-is; this is a debugging
// convenience, not a validated input parser.
func Parse(s string, slots int) (Key, error) {
	k := New(slots)
	for i, tok := range strings.Split(s, ",") {
		if i >= slots {
			break
		}
		v, err := strconv.ParseUint(strings.TrimSpace(tok), 10, 64)
		if err != nil {
			return Key{}, err
		}
		k.AddUint64(v, i*SlotSize)
	}
	return k, nil
}

// Size returns the buffer length in bytes.
func (k Key) Size() int { return len(k.data) }

// Slots returns the number of 8-byte slots.
func (k Key) Slots() int { return len(k.data) / SlotSize }

// Raw returns the underlying buffer without copying. Callers must not
// hold it across a mutation of the key.
func (k Key) Raw() []byte { return k.data }

// Clone returns a key with its own copy of the buffer.
func (k Key) Clone() Key {
	return Key{data: append([]byte(nil), k.data...)}
}

// ZeroOut resets every byte to zero.
func (k Key) ZeroOut() {
	for i := range k.data {
		k.data[i] = 0
	}
}

// AddInt8 packs a signed 8-bit value at the given byte offset. Like all
// pack and unpack operations, an offset that would place the value
// outside the buffer panics via the slice bounds check.
func (k Key) AddInt8(v int8, offset int) {
	k.data[offset] = uint8(v) ^ signBit8
}

// AddInt16 packs a signed 16-bit value at the given byte offset.
func (k Key) AddInt16(v int16, offset int) {
	binary.BigEndian.PutUint16(k.data[offset:], uint16(v)^signBit16)
}

// AddInt32 packs a signed 32-bit value at the given byte offset.
func (k Key) AddInt32(v int32, offset int) {
	binary.BigEndian.PutUint32(k.data[offset:], uint32(v)^signBit32)
}

// AddInt64 packs a signed 64-bit value at the given byte offset.
func (k Key) AddInt64(v int64, offset int) {
	binary.BigEndian.PutUint64(k.data[offset:], uint64(v)^signBit64)
}

// AddUint8 packs an unsigned 8-bit value at the given byte offset.
// Unsigned values need no sign flip; big-endian order alone keeps byte
// comparison equal to numeric comparison.
func (k Key) AddUint8(v uint8, offset int) {
	k.data[offset] = v
}

// AddUint16 packs an unsigned 16-bit value at the given byte offset.
func (k Key) AddUint16(v uint16, offset int) {
	binary.BigEndian.PutUint16(k.data[offset:], v)
}

// AddUint32 packs an unsigned 32-bit value at the given byte offset.
func (k Key) AddUint32(v uint32, offset int) {
	binary.BigEndian.PutUint32(k.data[offset:], v)
}

// AddUint64 packs an unsigned 64-bit value at the given byte offset.
func (k Key) AddUint64(v uint64, offset int) {
	binary.BigEndian.PutUint64(k.data[offset:], v)
}

// GetInt8 unpacks the signed 8-bit value at the given byte offset. The
// sign flip is its own inverse, so unpacking re-applies it.
func (k Key) GetInt8(offset int) int8 {
	return int8(k.data[offset] ^ signBit8)
}

// GetInt16 unpacks the signed 16-bit value at the given byte offset.
func (k Key) GetInt16(offset int) int16 {
	return int16(binary.BigEndian.Uint16(k.data[offset:]) ^ signBit16)
}

// GetInt32 unpacks the signed 32-bit value at the given byte offset.
func (k Key) GetInt32(offset int) int32 {
	return int32(binary.BigEndian.Uint32(k.data[offset:]) ^ signBit32)
}

// GetInt64 unpacks the signed 64-bit value at the given byte offset.
func (k Key) GetInt64(offset int) int64 {
	return int64(binary.BigEndian.Uint64(k.data[offset:]) ^ signBit64)
}

// GetUint8 unpacks the unsigned 8-bit value at the given byte offset.
func (k Key) GetUint8(offset int) uint8 {
	return k.data[offset]
}

// GetUint16 unpacks the unsigned 16-bit value at the given byte offset.
func (k Key) GetUint16(offset int) uint16 {
	return binary.BigEndian.Uint16(k.data[offset:])
}

// GetUint32 unpacks the unsigned 32-bit value at the given byte offset.
func (k Key) GetUint32(offset int) uint32 {
	return binary.BigEndian.Uint32(k.data[offset:])
}

// GetUint64 unpacks the unsigned 64-bit value at the given byte offset.
func (k Key) GetUint64(offset int) uint64 {
	return binary.BigEndian.Uint64(k.data[offset:])
}

// Compare orders two keys of identical size by unsigned lexicographic
// byte comparison, returning <0, 0 or >0. This is the single source of
// truth for key ordering; comparing keys of different sizes is a caller
// bug and panics.
func Compare(a, b Key) int {
	if len(a.data) != len(b.data) {
		panic(fmt.Sprintf("key: comparing keys of different sizes (%d vs %d bytes)", len(a.data), len(b.data)))
	}
	return bytes.Compare(a.data, b.data)
}

// LessThan reports whether a orders strictly before b.
func LessThan(a, b Key) bool { return Compare(a, b) < 0 }

// Equals reports whether a and b are bit-for-bit identical.
func Equals(a, b Key) bool { return Compare(a, b) == 0 }

// Less reports whether k orders strictly before other.
func (k Key) Less(other Key) bool { return Compare(k, other) < 0 }

// Greater reports whether k orders strictly after other.
func (k Key) Greater(other Key) bool { return Compare(k, other) > 0 }

// Equal reports whether k and other are bit-for-bit identical.
func (k Key) Equal(other Key) bool { return Compare(k, other) == 0 }

// NotEqual, LessOrEqual and GreaterOrEqual are negations of the three
// primary comparisons, never independent implementations.

func (k Key) NotEqual(other Key) bool { return !k.Equal(other) }

func (k Key) LessOrEqual(other Key) bool { return !k.Greater(other) }

func (k Key) GreaterOrEqual(other Key) bool { return !k.Less(other) }

// String renders the buffer as hex, for logs and debugging.
func (k Key) String() string {
	return fmt.Sprintf("%x", k.data)
}
