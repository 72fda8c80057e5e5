package key

import (
	"math"
	"strings"
	"testing"
)

func TestRoundTripSigned(t *testing.T) {
	k := New(1)

	for _, v := range []int8{math.MinInt8, -1, 0, 1, 42, math.MaxInt8} {
		k.AddInt8(v, 0)
		if got := k.GetInt8(0); got != v {
			t.Errorf("int8 round trip: got %d, want %d", got, v)
		}
	}
	for _, v := range []int16{math.MinInt16, -1, 0, 1, 1000, math.MaxInt16} {
		k.AddInt16(v, 0)
		if got := k.GetInt16(0); got != v {
			t.Errorf("int16 round trip: got %d, want %d", got, v)
		}
	}
	for _, v := range []int32{math.MinInt32, -5, 0, 3, math.MaxInt32} {
		k.AddInt32(v, 0)
		if got := k.GetInt32(0); got != v {
			t.Errorf("int32 round trip: got %d, want %d", got, v)
		}
	}
	for _, v := range []int64{math.MinInt64, -1, 0, 1, math.MaxInt64} {
		k.AddInt64(v, 0)
		if got := k.GetInt64(0); got != v {
			t.Errorf("int64 round trip: got %d, want %d", got, v)
		}
	}
}

func TestRoundTripUnsigned(t *testing.T) {
	k := New(1)

	for _, v := range []uint8{0, 1, 127, 128, math.MaxUint8} {
		k.AddUint8(v, 0)
		if got := k.GetUint8(0); got != v {
			t.Errorf("uint8 round trip: got %d, want %d", got, v)
		}
	}
	for _, v := range []uint16{0, 1, math.MaxUint16} {
		k.AddUint16(v, 0)
		if got := k.GetUint16(0); got != v {
			t.Errorf("uint16 round trip: got %d, want %d", got, v)
		}
	}
	for _, v := range []uint32{0, 100, math.MaxUint32} {
		k.AddUint32(v, 0)
		if got := k.GetUint32(0); got != v {
			t.Errorf("uint32 round trip: got %d, want %d", got, v)
		}
	}
	for _, v := range []uint64{0, 200, math.MaxUint64} {
		k.AddUint64(v, 0)
		if got := k.GetUint64(0); got != v {
			t.Errorf("uint64 round trip: got %d, want %d", got, v)
		}
	}
}

func TestRoundTripAtOffsets(t *testing.T) {
	k := New(2)
	k.AddInt32(-5, 0)
	k.AddUint16(7, 4)
	k.AddInt8(-128, 6)
	k.AddUint8(255, 7)
	k.AddInt64(math.MinInt64, 8)

	if got := k.GetInt32(0); got != -5 {
		t.Errorf("int32 at offset 0: got %d", got)
	}
	if got := k.GetUint16(4); got != 7 {
		t.Errorf("uint16 at offset 4: got %d", got)
	}
	if got := k.GetInt8(6); got != -128 {
		t.Errorf("int8 at offset 6: got %d", got)
	}
	if got := k.GetUint8(7); got != 255 {
		t.Errorf("uint8 at offset 7: got %d", got)
	}
	if got := k.GetInt64(8); got != math.MinInt64 {
		t.Errorf("int64 at offset 8: got %d", got)
	}
}

// Packing a and b at the same offset must order the buffers exactly as
// the integers order, including across the sign crossing and at the
// extremes.
func TestOrderPreservationSigned(t *testing.T) {
	values := []int64{math.MinInt64, math.MinInt64 + 1, -1000, -1, 0, 1, 1000, math.MaxInt64 - 1, math.MaxInt64}
	for i, a := range values {
		for j, b := range values {
			ka, kb := New(1), New(1)
			ka.AddInt64(a, 0)
			kb.AddInt64(b, 0)
			cmp := Compare(ka, kb)
			switch {
			case i < j && cmp >= 0:
				t.Errorf("int64 %d < %d but Compare = %d", a, b, cmp)
			case i == j && cmp != 0:
				t.Errorf("int64 %d == %d but Compare = %d", a, b, cmp)
			case i > j && cmp <= 0:
				t.Errorf("int64 %d > %d but Compare = %d", a, b, cmp)
			}
		}
	}
}

func TestOrderPreservationNarrowWidths(t *testing.T) {
	i8 := []int8{math.MinInt8, -1, 0, 1, math.MaxInt8}
	for i := 0; i < len(i8)-1; i++ {
		ka, kb := New(1), New(1)
		ka.AddInt8(i8[i], 0)
		kb.AddInt8(i8[i+1], 0)
		if Compare(ka, kb) >= 0 {
			t.Errorf("int8 %d vs %d: not ordered", i8[i], i8[i+1])
		}
	}

	i16 := []int16{math.MinInt16, -1, 0, 1, math.MaxInt16}
	for i := 0; i < len(i16)-1; i++ {
		ka, kb := New(1), New(1)
		ka.AddInt16(i16[i], 0)
		kb.AddInt16(i16[i+1], 0)
		if Compare(ka, kb) >= 0 {
			t.Errorf("int16 %d vs %d: not ordered", i16[i], i16[i+1])
		}
	}

	i32 := []int32{math.MinInt32, -1, 0, 1, math.MaxInt32}
	for i := 0; i < len(i32)-1; i++ {
		ka, kb := New(1), New(1)
		ka.AddInt32(i32[i], 0)
		kb.AddInt32(i32[i+1], 0)
		if Compare(ka, kb) >= 0 {
			t.Errorf("int32 %d vs %d: not ordered", i32[i], i32[i+1])
		}
	}

	u64 := []uint64{0, 1, 100, 200, math.MaxUint64}
	for i := 0; i < len(u64)-1; i++ {
		ka, kb := New(1), New(1)
		ka.AddUint64(u64[i], 0)
		kb.AddUint64(u64[i+1], 0)
		if Compare(ka, kb) >= 0 {
			t.Errorf("uint64 %d vs %d: not ordered", u64[i], u64[i+1])
		}
	}
}

// The scenario from the engine's schema layer: a signed int32 column at
// offset 0 and an unsigned uint64 column at offset 8. The first column
// must dominate; equal first columns fall through to the second.
func TestCompositeOrdering(t *testing.T) {
	a, b := New(2), New(2)
	a.AddInt32(-5, 0)
	b.AddInt32(3, 0)
	if Compare(a, b) >= 0 {
		t.Fatalf("key(-5) should order before key(3), Compare = %d", Compare(a, b))
	}

	a, b = New(2), New(2)
	a.AddInt32(7, 0)
	a.AddUint64(100, 8)
	b.AddInt32(7, 0)
	b.AddUint64(200, 8)
	if Compare(a, b) >= 0 {
		t.Fatalf("equal first column: key(..100) should order before key(..200)")
	}

	// First column dominates even when the second column disagrees.
	a, b = New(2), New(2)
	a.AddInt32(-1, 0)
	a.AddUint64(math.MaxUint64, 8)
	b.AddInt32(0, 0)
	b.AddUint64(0, 8)
	if Compare(a, b) >= 0 {
		t.Fatalf("first column must dominate composite ordering")
	}
}

func TestZeroKey(t *testing.T) {
	a, b := New(3), New(3)
	if !Equals(a, b) {
		t.Fatal("two fresh keys of the same size should compare equal")
	}
	for slot := 0; slot < a.Slots(); slot++ {
		if got := a.GetUint64(slot * SlotSize); got != 0 {
			t.Errorf("slot %d: fresh key decodes %d, want 0", slot, got)
		}
		if got := a.GetInt64(slot * SlotSize); got != 0 {
			t.Errorf("slot %d: fresh key decodes signed %d, want 0", slot, got)
		}
	}
}

func TestZeroOut(t *testing.T) {
	k := New(2)
	k.AddInt64(-99, 0)
	k.AddUint64(math.MaxUint64, 8)
	k.ZeroOut()
	if !Equals(k, New(2)) {
		t.Fatal("ZeroOut should restore the fresh-key state")
	}
}

func TestComparisonConsistency(t *testing.T) {
	mk := func(v int64) Key {
		k := New(1)
		k.AddInt64(v, 0)
		return k
	}
	keys := []Key{mk(math.MinInt64), mk(-7), mk(0), mk(0), mk(42), mk(math.MaxInt64)}

	for _, a := range keys {
		for _, b := range keys {
			n := 0
			if a.Less(b) {
				n++
			}
			if a.Equal(b) {
				n++
			}
			if a.Greater(b) {
				n++
			}
			if n != 1 {
				t.Fatalf("exactly one of <, ==, > must hold for %s vs %s, got %d", a, b, n)
			}
			if a.NotEqual(b) == a.Equal(b) {
				t.Fatalf("NotEqual must negate Equal for %s vs %s", a, b)
			}
			if a.LessOrEqual(b) == a.Greater(b) {
				t.Fatalf("LessOrEqual must negate Greater for %s vs %s", a, b)
			}
			if a.GreaterOrEqual(b) == a.Less(b) {
				t.Fatalf("GreaterOrEqual must negate Less for %s vs %s", a, b)
			}
		}
	}
}

func TestCompareSizeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("comparing keys of different sizes should panic")
		}
	}()
	Compare(New(1), New(2))
}

func TestPackOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("packing past the end of the buffer should panic")
		}
	}()
	k := New(1)
	k.AddUint64(1, 4) // needs bytes 4..11, buffer is 8
}

func TestNewInvalidSlotsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("New(0) should panic")
		}
	}()
	New(0)
}

func TestFromBytes(t *testing.T) {
	k := New(2)
	k.AddInt32(-5, 0)

	got, err := FromBytes(k.Raw())
	if err != nil {
		t.Fatalf("FromBytes on a valid buffer: %v", err)
	}
	if !Equals(got, k) {
		t.Fatal("FromBytes should preserve the buffer")
	}

	for _, n := range []int{0, 1, 7, 9, 15} {
		if _, err := FromBytes(make([]byte, n)); err == nil {
			t.Errorf("FromBytes should reject length %d", n)
		}
	}
}

func TestClone(t *testing.T) {
	a := New(1)
	a.AddUint64(10, 0)
	b := a.Clone()
	b.AddUint64(20, 0)
	if a.GetUint64(0) != 10 {
		t.Fatal("mutating a clone must not touch the original")
	}
}

func TestParse(t *testing.T) {
	k, err := Parse("1,2,3", 3)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for slot, want := range []uint64{1, 2, 3} {
		if got := k.GetUint64(slot * SlotSize); got != want {
			t.Errorf("slot %d: got %d, want %d", slot, got, want)
		}
	}
}

func TestParseStopsAtCapacity(t *testing.T) {
	k, err := Parse("1,2,3,4,5", 2)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if k.Slots() != 2 {
		t.Fatalf("expected 2 slots, got %d", k.Slots())
	}
	if k.GetUint64(0) != 1 || k.GetUint64(8) != 2 {
		t.Fatalf("expected slots 1,2 got %d,%d", k.GetUint64(0), k.GetUint64(8))
	}
}

func TestParseShortInput(t *testing.T) {
	k, err := Parse("9", 3)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if k.GetUint64(0) != 9 || k.GetUint64(8) != 0 || k.GetUint64(16) != 0 {
		t.Fatal("unfilled slots should stay zero")
	}
}

func TestParseMalformedToken(t *testing.T) {
	if _, err := Parse("1,banana,3", 3); err == nil {
		t.Fatal("expected a parse error for a non-numeric token")
	} else if !strings.Contains(err.Error(), "banana") {
		t.Errorf("error should carry the offending token, got %v", err)
	}
}

func TestParseOrderingMatchesNumericOrdering(t *testing.T) {
	a, err := Parse("1,500", 2)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := Parse("2,0", 2)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !LessThan(a, b) {
		t.Fatal("(1,500) should order before (2,0)")
	}
}
