// Package emulator wires a hart, a guest address space, and a syscall
// handler together into something runnable: ELF loading, the run loop,
// and — for the debug controller half — breakpoint/watchpoint sets and
// a poll-driven single-step/continue loop.
package emulator

import (
	"errors"
	"fmt"

	"rvemu/internal/guest"
	"rvemu/internal/hart"
	"rvemu/internal/insn"
	"rvemu/internal/state"
	"rvemu/internal/syscalls"
)

// StackSize is the default guest stack size (8 MiB), matching the
// original implementation's config constant.
const StackSize = 0x0080_0000

// StackTop is the fixed guest address the stack grows down from.
const StackTop = 0x8000_0000

// PollInterval is how many instructions RunDebug executes between calls
// to the caller-supplied poller, so an idle debugger connection doesn't
// starve the guest and a busy one doesn't starve the debugger.
const PollInterval = 1024

// ErrSyscallRequired is returned by Builder.Build if no syscall handler
// was configured.
var ErrSyscallRequired = errors.New("emulator: a syscall handler is required")

// Emulator owns one hart, its guest address space, the syscall handler
// ecalls are dispatched to, and the two-level Run/Debug(ExecMode) mode
// (spec.md §3) that only the debug controller may transition.
type Emulator struct {
	hart        *hart.Hart
	guest       *guest.GuestMem
	syscall     syscalls.Handler
	stackSize   uint64
	isa         []insn.Set
	breakpoints map[uint64]struct{}
	watchpoints map[uint64]WatchMode
	mode        Mode
}

// WatchMode describes which accesses a watchpoint should fire for.
type WatchMode int

const (
	WatchRead WatchMode = iota
	WatchWrite
	WatchAccess
)

// Builder assembles an Emulator. Use New, chain the option methods, and
// call Build.
type Builder struct {
	syscall   syscalls.Handler
	decoders  []insn.Set
	stackSize uint64
	debug     bool
}

// New returns a builder with this module's default stack size.
func New() *Builder {
	return &Builder{stackSize: StackSize}
}

// Syscall sets the handler ecall traps are dispatched to.
func (b *Builder) Syscall(h syscalls.Handler) *Builder {
	b.syscall = h
	return b
}

// Decoder registers one instruction-set extension on the hart.
func (b *Builder) Decoder(set insn.Set) *Builder {
	b.decoders = append(b.decoders, set)
	return b
}

// StackSize overrides the default guest stack size, in bytes.
func (b *Builder) StackSize(size uint64) *Builder {
	b.stackSize = size
	return b
}

// Debug starts the emulator in Debug(Step) mode instead of the default
// Run mode, per spec.md §4.6's Builder options table.
func (b *Builder) Debug() *Builder {
	b.debug = true
	return b
}

// Build constructs the Emulator, registering decoders in the order they
// were added.
func (b *Builder) Build() (*Emulator, error) {
	if b.syscall == nil {
		return nil, ErrSyscallRequired
	}
	h := hart.New(0)
	isa := make([]insn.Set, 0, len(b.decoders))
	for _, set := range b.decoders {
		if err := h.AddDecoder(set); err != nil {
			return nil, err
		}
		isa = append(isa, set)
	}
	mode := Mode{Kind: ModeRun}
	if b.debug {
		mode = Mode{Kind: ModeDebug, Exec: ModeStep}
	}
	return &Emulator{
		hart:        h,
		guest:       guest.New(),
		syscall:     b.syscall,
		stackSize:   b.stackSize,
		isa:         isa,
		breakpoints: make(map[uint64]struct{}),
		watchpoints: make(map[uint64]WatchMode),
		mode:        mode,
	}, nil
}

// Close releases the guest address space's host memory mappings.
func (e *Emulator) Close() error {
	return e.guest.Close()
}

// LoadELF loads buf as the guest program: maps its segments, sets the
// entry PC, and allocates the guest stack.
func (e *Emulator) LoadELF(buf []byte) error {
	entry, err := e.guest.LoadELF(buf)
	if err != nil {
		return err
	}
	e.hart.State.PC = entry

	sp, err := e.guest.AddStack(StackTop, e.stackSize)
	if err != nil {
		return err
	}
	e.hart.State.X[2] = sp
	return nil
}

// State exposes the hart's architectural state.
func (e *Emulator) State() *state.State {
	return e.hart.State
}

// Run executes the guest until it exits, returning the exit code.
// Requires Run mode (spec.md §4.6); use RunDebug under Debug mode
// instead.
func (e *Emulator) Run() (int64, error) {
	if e.mode.Kind != ModeRun {
		return 0, fmt.Errorf("%w: Run requires Run mode", ErrWrongMode)
	}
	for {
		if err := e.Step(); err != nil {
			var exit *syscalls.ExitError
			if errors.As(err, &exit) {
				return exit.Code, nil
			}
			return 0, err
		}
	}
}

// Step executes exactly one instruction, dispatching ecall to the
// configured syscall handler. Ebreak is reported as an error — the
// guest must be run under RunDebug to stop cleanly at a breakpoint.
func (e *Emulator) Step() error {
	cause, err := e.hart.Step(e.guest)
	if err != nil {
		return err
	}
	if cause == nil {
		return nil
	}
	switch *cause {
	case state.Ecall:
		return e.syscall.Handle(e.hart.State, e.guest)
	case state.Ebreak:
		return fmt.Errorf("emulator: ebreak outside debug mode at pc %#x", e.hart.State.PC)
	default:
		return nil
	}
}
