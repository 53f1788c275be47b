// Package guest implements the emulated address space: page-aligned
// segments backed by anonymous host memory, with permission-checked
// little-endian byte/halfword/word/doubleword access and an ELF64
// loader.
package guest

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sys/unix"

	"rvemu/internal/bits"
	"rvemu/internal/elf64"
)

// MemAccess distinguishes the three kinds of memory operation a segment's
// permission flags can allow or deny.
type MemAccess int

const (
	Read MemAccess = iota
	Write
	Execute
)

func (a MemAccess) String() string {
	switch a {
	case Read:
		return "read"
	case Write:
		return "write"
	case Execute:
		return "execute"
	default:
		return "unknown"
	}
}

// MemFlags is a small bitset of segment permissions.
type MemFlags uint8

const (
	FlagNone    MemFlags = 0
	FlagRead    MemFlags = 1 << 0
	FlagWrite   MemFlags = 1 << 1
	FlagExecute MemFlags = 1 << 2
)

// FlagsFromPFlags converts an ELF program header's p_flags into MemFlags.
func FlagsFromPFlags(pFlags uint32) MemFlags {
	var f MemFlags
	if pFlags&elf64.PF_R != 0 {
		f |= FlagRead
	}
	if pFlags&elf64.PF_W != 0 {
		f |= FlagWrite
	}
	if pFlags&elf64.PF_X != 0 {
		f |= FlagExecute
	}
	return f
}

func (f MemFlags) allows(a MemAccess) bool {
	switch a {
	case Read:
		return f&FlagRead != 0
	case Write:
		return f&FlagWrite != 0
	case Execute:
		return f&FlagExecute != 0
	default:
		return false
	}
}

// Sentinel errors, mirroring the original's distinct error kinds.
var (
	ErrInvalidELF       = errors.New("guest: invalid ELF")
	ErrInvalidSegment   = errors.New("guest: invalid segment")
	ErrSegmentOverlap   = errors.New("guest: memory segment overlaps an existing one")
	ErrOutOfBounds      = errors.New("guest: initialization data exceeds segment size")
	ErrPermissionDenied = errors.New("guest: access denied by segment permissions")
)

// MemAccessFaultError reports an access to an address not backed by any
// segment.
type MemAccessFaultError struct {
	Access MemAccess
	Addr   uint64
}

func (e *MemAccessFaultError) Error() string {
	return fmt.Sprintf("guest: memory access fault: %s at %#x", e.Access, e.Addr)
}

// MemSegment is one page-aligned range of the guest address space backed
// by an anonymous host mapping.
type MemSegment struct {
	gaddrStart  uint64
	gaddrEnd    uint64
	mGaddrStart uint64
	mGaddrEnd   uint64
	host        []byte
	flags       MemFlags
}

func (s *MemSegment) contains(gaddr uint64) bool {
	return gaddr >= s.mGaddrStart && gaddr < s.mGaddrEnd
}

// Flags returns the segment's permission bits.
func (s *MemSegment) Flags() MemFlags { return s.flags }

// GuestMem is the full emulated address space: an ordered collection of
// non-overlapping segments plus the program break bookkeeping needed by
// a minimal brk()-style allocator.
type GuestMem struct {
	segments    []*MemSegment // sorted by mGaddrStart
	initBrk     uint64
	curBrk      uint64
	stackBase   uint64
	stackSize   uint64
}

// New returns an empty guest address space.
func New() *GuestMem {
	return &GuestMem{}
}

// Close unmaps every segment's host backing. It must be called exactly
// once when the address space is no longer needed.
func (g *GuestMem) Close() error {
	var firstErr error
	for _, s := range g.segments {
		if s.host == nil {
			continue
		}
		if err := unix.Munmap(s.host); err != nil && firstErr == nil {
			firstErr = err
		}
		s.host = nil
	}
	return firstErr
}

// AddSegment maps a new guest memory range [gaddrStart, gaddrStart+len),
// rounding the mapped range out to page boundaries, and optionally seeds
// it with initData (the rest of the segment is zero, matching a BSS tail).
func (g *GuestMem) AddSegment(gaddrStart, length uint64, flags MemFlags, initData []byte) error {
	if length == 0 {
		return fmt.Errorf("%w: zero-length segment at %#x", ErrInvalidSegment, gaddrStart)
	}
	gaddrEnd := gaddrStart + length
	mStart := bits.RoundDown(gaddrStart, bits.PageSize)
	mEnd := bits.RoundUp(gaddrEnd, bits.PageSize)
	mLen := mEnd - mStart

	for _, s := range g.segments {
		if mStart < s.mGaddrEnd && mEnd > s.mGaddrStart {
			return fmt.Errorf("%w: at base %#x", ErrSegmentOverlap, s.mGaddrStart)
		}
	}

	host, err := unix.Mmap(-1, 0, int(mLen), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("guest: failed to create memory map: %w", err)
	}

	seg := &MemSegment{
		gaddrStart:  gaddrStart,
		gaddrEnd:    gaddrEnd,
		mGaddrStart: mStart,
		mGaddrEnd:   mEnd,
		host:        host,
		flags:       flags,
	}

	if initData != nil {
		if uint64(len(initData)) > length {
			unix.Munmap(host)
			return fmt.Errorf("%w: %d > %d", ErrOutOfBounds, len(initData), length)
		}
		off := gaddrStart - mStart
		copy(seg.host[off:off+uint64(len(initData))], initData)
	}

	g.insertSegment(seg)
	return nil
}

func (g *GuestMem) insertSegment(seg *MemSegment) {
	i := sort.Search(len(g.segments), func(i int) bool {
		return g.segments[i].mGaddrStart >= seg.mGaddrStart
	})
	g.segments = append(g.segments, nil)
	copy(g.segments[i+1:], g.segments[i:])
	g.segments[i] = seg
}

// decompose finds the segment containing gaddr and checks access
// permissions, mirroring the Rust original's BTreeMap predecessor walk
// via a binary search over the sorted segment slice.
func (g *GuestMem) decompose(gaddr uint64, access MemAccess) (*MemSegment, error) {
	i := sort.Search(len(g.segments), func(i int) bool {
		return g.segments[i].mGaddrStart > gaddr
	})
	// i is the first segment starting after gaddr; the candidate
	// predecessor, if any, is at i-1.
	for j := i - 1; j >= 0; j-- {
		s := g.segments[j]
		if s.contains(gaddr) {
			if !s.flags.allows(access) {
				return nil, fmt.Errorf("%w: %s at %#x", ErrPermissionDenied, access, gaddr)
			}
			return s, nil
		}
		break
	}
	return nil, &MemAccessFaultError{Access: access, Addr: gaddr}
}

// ReadU8 reads one byte at gaddr.
func (g *GuestMem) ReadU8(gaddr uint64) (uint8, error) {
	s, err := g.decompose(gaddr, Read)
	if err != nil {
		return 0, err
	}
	return s.host[gaddr-s.mGaddrStart], nil
}

// WriteU8 writes one byte at gaddr.
func (g *GuestMem) WriteU8(gaddr uint64, v uint8) error {
	s, err := g.decompose(gaddr, Write)
	if err != nil {
		return err
	}
	s.host[gaddr-s.mGaddrStart] = v
	return nil
}

// ReadU16 reads a little-endian halfword, byte by byte (the guest address
// is not guaranteed to be aligned).
func (g *GuestMem) ReadU16(gaddr uint64) (uint16, error) {
	lo, err := g.ReadU8(gaddr)
	if err != nil {
		return 0, err
	}
	hi, err := g.ReadU8(gaddr + 1)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// WriteU16 writes a little-endian halfword byte by byte.
func (g *GuestMem) WriteU16(gaddr uint64, v uint16) error {
	if err := g.WriteU8(gaddr, uint8(v)); err != nil {
		return err
	}
	return g.WriteU8(gaddr+1, uint8(v>>8))
}

// ReadU32 reads a little-endian word byte by byte.
func (g *GuestMem) ReadU32(gaddr uint64) (uint32, error) {
	var out uint32
	for i := uint64(0); i < 4; i++ {
		b, err := g.ReadU8(gaddr + i)
		if err != nil {
			return 0, err
		}
		out |= uint32(b) << (8 * i)
	}
	return out, nil
}

// WriteU32 writes a little-endian word byte by byte.
func (g *GuestMem) WriteU32(gaddr uint64, v uint32) error {
	for i := uint64(0); i < 4; i++ {
		if err := g.WriteU8(gaddr+i, uint8(v>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

// FetchInsn reads the 32-bit instruction word at gaddr, checking execute
// permission rather than read permission.
func (g *GuestMem) FetchInsn(gaddr uint64) (uint32, error) {
	var out uint32
	for i := uint64(0); i < 4; i++ {
		s, err := g.decompose(gaddr+i, Execute)
		if err != nil {
			return 0, err
		}
		out |= uint32(s.host[gaddr+i-s.mGaddrStart]) << (8 * i)
	}
	return out, nil
}

// ReadU64 reads a little-endian doubleword byte by byte.
func (g *GuestMem) ReadU64(gaddr uint64) (uint64, error) {
	var out uint64
	for i := uint64(0); i < 8; i++ {
		b, err := g.ReadU8(gaddr + i)
		if err != nil {
			return 0, err
		}
		out |= uint64(b) << (8 * i)
	}
	return out, nil
}

// WriteU64 writes a little-endian doubleword byte by byte.
func (g *GuestMem) WriteU64(gaddr uint64, v uint64) error {
	for i := uint64(0); i < 8; i++ {
		if err := g.WriteU8(gaddr+i, uint8(v>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

// Brk returns the current program break address.
func (g *GuestMem) Brk() uint64 { return g.curBrk }

// LoadELF parses buf as an ELF64 RISC-V executable, maps its PT_LOAD
// segments, and returns the entry point.
func (g *GuestMem) LoadELF(buf []byte) (uint64, error) {
	hdr, err := elf64.ParseHeader(buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidELF, err)
	}
	phdrs, err := elf64.ProgramHeaders(buf, hdr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidELF, err)
	}
	for _, ph := range phdrs {
		if ph.Type != elf64.PT_LOAD {
			continue
		}
		if ph.Offset+ph.Filesz > uint64(len(buf)) {
			return 0, fmt.Errorf("%w: segment data out of file bounds", ErrInvalidELF)
		}
		flags := FlagsFromPFlags(ph.Flags)
		initData := buf[ph.Offset : ph.Offset+ph.Filesz]
		if err := g.AddSegment(ph.Vaddr, ph.Memsz, flags, initData); err != nil {
			return 0, err
		}
	}

	var initBrk uint64
	for _, s := range g.segments {
		if s.mGaddrEnd > initBrk {
			initBrk = s.mGaddrEnd
		}
	}
	g.initBrk = initBrk
	g.curBrk = initBrk

	return hdr.Entry, nil
}

// AddStack maps the guest stack segment of size stackSize ending at
// base (exclusive) and returns the initial stack pointer value (base).
func (g *GuestMem) AddStack(base, stackSize uint64) (uint64, error) {
	if err := g.AddSegment(base-stackSize, stackSize, FlagRead|FlagWrite, nil); err != nil {
		return 0, err
	}
	g.stackBase = base
	g.stackSize = stackSize
	return base, nil
}
