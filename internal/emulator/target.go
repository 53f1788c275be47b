package emulator

import "errors"

// ErrNoSuchRegister is returned by ReadRegister/WriteRegister for an
// index outside the 32 GPRs plus the PC.
var ErrNoSuchRegister = errors.New("emulator: no such register")

// DebugTarget is the capability surface a remote-debugger front end
// drives; it deliberately says nothing about the wire protocol used to
// reach it.
type DebugTarget interface {
	ReadRegisters() (pc uint64, x [32]uint64)
	WriteRegisters(pc uint64, x [32]uint64)
	ReadRegister(id int) (uint64, error)
	WriteRegister(id int, v uint64) error
	ReadMemory(addr uint64, buf []byte) (n int, err error)
	WriteMemory(addr uint64, buf []byte) error
	AddBreakpoint(addr uint64) error
	RemoveBreakpoint(addr uint64) error
	Resume() (ExitReason, error)
	SingleStep() (ExitReason, error)
}

// ReadRegisters returns the full register file: PC plus all 32 GPRs.
func (e *Emulator) ReadRegisters() (uint64, [32]uint64) {
	return e.hart.State.PC, e.hart.State.X
}

// WriteRegisters overwrites the full register file.
func (e *Emulator) WriteRegisters(pc uint64, x [32]uint64) {
	e.hart.State.PC = pc
	e.hart.State.X = x
}

// registerID 0..31 addresses a GPR; 32 addresses the PC, matching the
// gdb RISC-V register numbering this mirrors without depending on it.
const pcRegisterID = 32

// ReadRegister reads a single GPR (id 0..31) or the PC (id 32).
func (e *Emulator) ReadRegister(id int) (uint64, error) {
	switch {
	case id == pcRegisterID:
		return e.hart.State.PC, nil
	case id >= 0 && id < 32:
		return e.hart.State.X[id], nil
	default:
		return 0, ErrNoSuchRegister
	}
}

// WriteRegister writes a single GPR (id 0..31) or the PC (id 32).
func (e *Emulator) WriteRegister(id int, v uint64) error {
	switch {
	case id == pcRegisterID:
		e.hart.State.PC = v
		return nil
	case id >= 0 && id < 32:
		e.hart.State.X[id] = v
		return nil
	default:
		return ErrNoSuchRegister
	}
}

// ReadMemory fills buf from guest memory starting at addr. As soon as a
// byte faults, it stops and returns the count read so far instead of an
// error — UNLESS the very first byte faults, in which case the fault is
// returned directly. Only this debug memory-read path reports partial
// progress; the guest's multi-byte accessors also go byte by byte
// without checking the whole range first, but report the first fault
// as an error (a faulting write keeps the bytes stored before it).
func (e *Emulator) ReadMemory(addr uint64, buf []byte) (int, error) {
	for i := range buf {
		b, err := e.guest.ReadU8(addr + uint64(i))
		if err != nil {
			if i > 0 {
				return i, nil
			}
			return 0, err
		}
		buf[i] = b
	}
	return len(buf), nil
}

// WriteMemory writes buf into guest memory starting at addr.
func (e *Emulator) WriteMemory(addr uint64, buf []byte) error {
	for i, b := range buf {
		if err := e.guest.WriteU8(addr+uint64(i), b); err != nil {
			return err
		}
	}
	return nil
}

// AddBreakpoint implements DebugTarget by delegating to SetBreakpoint.
func (e *Emulator) AddBreakpoint(addr uint64) error {
	return e.SetBreakpoint(addr)
}

// Resume transitions the emulator to Debug(Continue) and runs until the
// next stop condition, with no polling interruption (the poller always
// reports "nothing pending").
func (e *Emulator) Resume() (ExitReason, error) {
	e.mode = Mode{Kind: ModeDebug, Exec: ModeContinue}
	return e.RunDebug(func() bool { return false })
}

// SingleStep transitions the emulator to Debug(Step) and executes
// exactly one instruction.
func (e *Emulator) SingleStep() (ExitReason, error) {
	e.mode = Mode{Kind: ModeDebug, Exec: ModeStep}
	return e.RunDebug(nil)
}

var _ DebugTarget = (*Emulator)(nil)
