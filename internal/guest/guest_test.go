package guest

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestAddSegmentRoundsAndZeroFills(t *testing.T) {
	g := New()
	defer g.Close()

	init := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := g.AddSegment(0x1004, 8, FlagRead|FlagWrite, init); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	// bytes before the unaligned start are zero-filled (BSS-style tail).
	b, err := g.ReadU8(0x1000)
	if err != nil || b != 0 {
		t.Fatalf("ReadU8(0x1000) = %v, %v; want 0, nil", b, err)
	}
	// the initialization data itself round-trips.
	v, err := g.ReadU32(0x1004)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if v != binary.LittleEndian.Uint32(init) {
		t.Fatalf("ReadU32 = %#x, want %#x", v, binary.LittleEndian.Uint32(init))
	}
	// bytes past the filesz but within the requested length are zero.
	b, err = g.ReadU8(0x1009)
	if err != nil || b != 0 {
		t.Fatalf("ReadU8(0x1009) = %v, %v; want 0, nil", b, err)
	}
}

func TestAddSegmentZeroLengthRejected(t *testing.T) {
	g := New()
	defer g.Close()
	err := g.AddSegment(0x1000, 0, FlagRead, nil)
	if !errors.Is(err, ErrInvalidSegment) {
		t.Fatalf("AddSegment zero length = %v, want ErrInvalidSegment", err)
	}
}

func TestAddSegmentOverlapRejected(t *testing.T) {
	g := New()
	defer g.Close()
	if err := g.AddSegment(0x2000, 0x1000, FlagRead, nil); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	err := g.AddSegment(0x2500, 0x100, FlagRead, nil)
	if !errors.Is(err, ErrSegmentOverlap) {
		t.Fatalf("AddSegment overlap = %v, want ErrSegmentOverlap", err)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	g := New()
	defer g.Close()
	if err := g.AddSegment(0x10000, 0x2000, FlagRead|FlagWrite, nil); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := g.WriteU32(0x11000, 0x12345678); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	v, err := g.ReadU32(0x11000)
	if err != nil || v != 0x12345678 {
		t.Fatalf("ReadU32 = %#x, %v", v, err)
	}
	if err := g.WriteU64(0x11004, 0x9abcdef012345678); err != nil {
		t.Fatalf("WriteU64: %v", err)
	}
	v64, err := g.ReadU64(0x11004)
	if err != nil || v64 != 0x9abcdef012345678 {
		t.Fatalf("ReadU64 = %#x, %v", v64, err)
	}
}

func TestAccessOutsideAnySegmentFaults(t *testing.T) {
	g := New()
	defer g.Close()
	if err := g.AddSegment(0x1000, 0x1000, FlagRead, nil); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	_, err := g.ReadU8(0x5000)
	var fault *MemAccessFaultError
	if !errors.As(err, &fault) {
		t.Fatalf("ReadU8 out of bounds = %v, want *MemAccessFaultError", err)
	}
}

func TestPermissionDenied(t *testing.T) {
	g := New()
	defer g.Close()
	if err := g.AddSegment(0x1000, 0x1000, FlagRead, nil); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := g.WriteU8(0x1000, 1); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("WriteU8 to read-only segment = %v, want ErrPermissionDenied", err)
	}
}
