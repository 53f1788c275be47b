package syscalls

import (
	"bytes"
	"errors"
	"testing"

	"rvemu/internal/guest"
	"rvemu/internal/state"
)

func TestMinilibExit(t *testing.T) {
	m := &Minilib{}
	s := state.New()
	s.X[17] = sysExit
	s.X[10] = 42
	err := m.Handle(s, nil)
	var exit *ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("Handle(exit) = %v, want *ExitError", err)
	}
	if exit.Code != 42 {
		t.Errorf("exit code = %d, want 42", exit.Code)
	}
}

func TestMinilibExitAlias93(t *testing.T) {
	m := &Minilib{}
	s := state.New()
	s.X[17] = sysExitAlt
	s.X[10] = 7
	err := m.Handle(s, nil)
	var exit *ExitError
	if !errors.As(err, &exit) || exit.Code != 7 {
		t.Fatalf("Handle(93) = %v, want ExitError{7}", err)
	}
}

func TestMinilibPutsAndPutchar(t *testing.T) {
	var out bytes.Buffer
	m := &Minilib{Stdout: &out}
	g := guest.New()
	defer g.Close()
	if err := g.AddSegment(0x1000, 0x100, guest.FlagRead|guest.FlagWrite, []byte("hi\x00")); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	s := state.New()
	s.X[17] = sysPuts
	s.X[10] = 0x1000
	if err := m.Handle(s, g); err != nil {
		t.Fatalf("Handle(puts): %v", err)
	}
	if out.String() != "hi" {
		t.Errorf("output = %q, want %q", out.String(), "hi")
	}

	out.Reset()
	s.X[17] = sysPutchar
	s.X[10] = 'x'
	if err := m.Handle(s, g); err != nil {
		t.Fatalf("Handle(putchar): %v", err)
	}
	if out.String() != "x" {
		t.Errorf("output = %q, want %q", out.String(), "x")
	}
}

func TestMinilibPutsFaultSetsX0(t *testing.T) {
	m := &Minilib{}
	g := guest.New()
	defer g.Close()
	s := state.New()
	s.X[17] = sysPuts
	s.X[10] = 0xdeadbeef // unmapped address
	if err := m.Handle(s, g); err != nil {
		t.Fatalf("Handle(puts) on fault: %v", err)
	}
	if s.X[0] == 0 {
		t.Errorf("x0 after faulted puts = %d, want MaxUint64", s.X[0])
	}
}

func TestMinilibUnimplemented(t *testing.T) {
	m := &Minilib{}
	s := state.New()
	s.X[17] = 999
	if err := m.Handle(s, nil); !errors.Is(err, ErrUnimplemented) {
		t.Errorf("Handle(999) = %v, want ErrUnimplemented", err)
	}
}

func TestNewlibAndGlibcStubsUnimplemented(t *testing.T) {
	s := state.New()
	if err := (&Newlib{}).Handle(s, nil); !errors.Is(err, ErrUnimplemented) {
		t.Errorf("Newlib.Handle = %v, want ErrUnimplemented", err)
	}
	if err := (&Glibc{}).Handle(s, nil); !errors.Is(err, ErrUnimplemented) {
		t.Errorf("Glibc.Handle = %v, want ErrUnimplemented", err)
	}
}
