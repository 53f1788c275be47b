package emulator

import (
	"errors"
	"fmt"

	"rvemu/internal/state"
	"rvemu/internal/syscalls"
)

// Sentinel errors for breakpoint/watchpoint bookkeeping, mirroring the
// original's distinct "already present"/"not found" error kinds.
var (
	ErrRepeatedBreakpoint = errors.New("emulator: breakpoint already set")
	ErrBreakpointNotFound = errors.New("emulator: breakpoint not found")
	ErrRepeatedWatchpoint = errors.New("emulator: watchpoint already set")
	ErrWatchpointNotFound = errors.New("emulator: watchpoint not found")
)

// SetBreakpoint arms a software breakpoint at gaddr.
func (e *Emulator) SetBreakpoint(gaddr uint64) error {
	if _, ok := e.breakpoints[gaddr]; ok {
		return fmt.Errorf("%w: %#x", ErrRepeatedBreakpoint, gaddr)
	}
	e.breakpoints[gaddr] = struct{}{}
	return nil
}

// RemoveBreakpoint disarms a previously set software breakpoint.
func (e *Emulator) RemoveBreakpoint(gaddr uint64) error {
	if _, ok := e.breakpoints[gaddr]; !ok {
		return fmt.Errorf("%w: %#x", ErrBreakpointNotFound, gaddr)
	}
	delete(e.breakpoints, gaddr)
	return nil
}

// SetWatchpoint arms a watchpoint on gaddr for the given access mode.
func (e *Emulator) SetWatchpoint(gaddr uint64, mode WatchMode) error {
	if _, ok := e.watchpoints[gaddr]; ok {
		return fmt.Errorf("%w: %#x", ErrRepeatedWatchpoint, gaddr)
	}
	e.watchpoints[gaddr] = mode
	return nil
}

// RemoveWatchpoint disarms a previously set watchpoint.
func (e *Emulator) RemoveWatchpoint(gaddr uint64) error {
	if _, ok := e.watchpoints[gaddr]; !ok {
		return fmt.Errorf("%w: %#x", ErrWatchpointNotFound, gaddr)
	}
	delete(e.watchpoints, gaddr)
	return nil
}

// ExecMode selects how RunDebug behaves between poller calls.
type ExecMode int

const (
	// ModeStep executes exactly one instruction then returns DoneStep.
	ModeStep ExecMode = iota
	// ModeContinue runs until a breakpoint, exit, or the poller reports
	// incoming data.
	ModeContinue
)

// ModeKind is the top level of the emulator's two-level execution state
// (spec.md §3): either free-running, or under the debug controller.
type ModeKind int

const (
	// ModeRun is the free-running top level; Run is valid, RunDebug is not.
	ModeRun ModeKind = iota
	// ModeDebug is the debug-controller top level; RunDebug is valid, Run
	// is not. Its ExecMode (Step or Continue) governs RunDebug's behavior.
	ModeDebug
)

func (k ModeKind) String() string {
	switch k {
	case ModeRun:
		return "run"
	case ModeDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// Mode is the emulator's exclusively-owned execution state: top level
// Run or Debug(ExecMode). Transitions happen only through the debug
// controller — Builder.Debug() picks the starting mode, and Resume/
// SingleStep move into Debug(Continue)/Debug(Step) thereafter.
type Mode struct {
	Kind ModeKind
	Exec ExecMode
}

// ErrWrongMode is returned when Run or RunDebug is called while the
// emulator is in the other top-level mode.
var ErrWrongMode = errors.New("emulator: operation not valid in current mode")

// ExitReason explains why RunDebug returned control to its caller.
type ExitReason interface {
	isExitReason()
}

// Exited means the guest called exit(code).
type Exited struct{ Code int64 }

func (Exited) isExitReason() {}

// BreakpointHit means execution stopped at an armed software breakpoint.
type BreakpointHit struct{ Addr uint64 }

func (BreakpointHit) isExitReason() {}

// DoneStep means a ModeStep request completed its single instruction.
type DoneStep struct{}

func (DoneStep) isExitReason() {}

// IncomingData means the poller reported data ready to be serviced
// before the guest reached any other stop condition.
type IncomingData struct{}

func (IncomingData) isExitReason() {}

// RunDebug executes the guest under debugger control, per the emulator's
// current Mode — requires Debug(Continue) or Debug(Step), set by
// Builder.Debug() or by calling Resume/SingleStep first. In Debug(Step),
// poller is ignored and exactly one instruction executes. In
// Debug(Continue), poller is called every PollInterval instructions and
// should return true when the caller has data ready to process — e.g. an
// incoming debugger packet.
//
// A breakpoint armed at the current PC is honored by forcing exactly one
// instruction forward first (ForceStep), matching the expectation that
// "continue" from a stopped breakpoint makes progress rather than
// re-triggering immediately.
func (e *Emulator) RunDebug(poller func() bool) (ExitReason, error) {
	if e.mode.Kind != ModeDebug {
		return nil, fmt.Errorf("%w: RunDebug requires Debug mode", ErrWrongMode)
	}

	if e.mode.Exec == ModeStep {
		reason, err := e.ForceStep()
		if err != nil {
			return nil, err
		}
		if reason != nil {
			return reason, nil
		}
		return DoneStep{}, nil
	}

	if _, atBreak := e.breakpoints[e.hart.State.PC]; atBreak {
		reason, err := e.ForceStep()
		if err != nil {
			return nil, err
		}
		if reason != nil {
			return reason, nil
		}
	}

	count := 1
	for {
		if _, atBreak := e.breakpoints[e.hart.State.PC]; atBreak {
			return BreakpointHit{Addr: e.hart.State.PC}, nil
		}

		reason, err := e.ForceStep()
		if err != nil {
			return nil, err
		}
		if reason != nil {
			return reason, nil
		}

		if count%PollInterval == 0 && poller != nil && poller() {
			return IncomingData{}, nil
		}
		count++
	}
}

// ForceStep executes exactly one instruction regardless of any
// breakpoint armed at the current PC, returning a non-nil ExitReason
// only if the guest exited (Exited) or executed ebreak (BreakpointHit
// at the PC following the ebreak).
func (e *Emulator) ForceStep() (ExitReason, error) {
	cause, err := e.hart.Step(e.guest)
	if err != nil {
		return nil, err
	}
	if cause == nil {
		return nil, nil
	}
	switch *cause {
	case state.Ecall:
		if err := e.syscall.Handle(e.hart.State, e.guest); err != nil {
			var exit *syscalls.ExitError
			if errors.As(err, &exit) {
				return Exited{Code: exit.Code}, nil
			}
			return nil, err
		}
		return nil, nil
	case state.Ebreak:
		return BreakpointHit{Addr: e.hart.State.PC}, nil
	default:
		return nil, nil
	}
}
