// Package hart implements a single virtual RISC-V core: a register file
// plus an ordered list of decoders tried in registration order, and the
// fetch-decode-execute step.
package hart

import (
	"fmt"

	"rvemu/internal/guest"
	"rvemu/internal/insn"
	"rvemu/internal/insn/rv64i"
	"rvemu/internal/insn/zicsr"
	"rvemu/internal/insn/zifencei"
	"rvemu/internal/state"
)

// UnknownInsnError reports a raw word that no registered decoder
// recognized.
type UnknownInsnError struct {
	Raw uint32
	PC  uint64
}

func (e *UnknownInsnError) Error() string {
	return fmt.Sprintf("hart: unknown instruction %#08x at pc %#x", e.Raw, e.PC)
}

// MisalignedPCError reports a PC that violates the 2-byte alignment
// required even without compressed-instruction support.
type MisalignedPCError struct {
	PC uint64
}

func (e *MisalignedPCError) Error() string {
	return fmt.Sprintf("hart: pc is not aligned: %#x", e.PC)
}

// Hart is a single virtual core: id, architectural state, and the
// decoders it was built with.
type Hart struct {
	ID       int
	State    *state.State
	decoders []insn.Decoder
}

// New returns a hart with an empty decoder list; use AddDecoder to
// register ISA extensions before stepping it.
func New(id int) *Hart {
	return &Hart{ID: id, State: state.New()}
}

// AddDecoder registers one of this module's supported instruction sets.
func (h *Hart) AddDecoder(set insn.Set) error {
	switch set {
	case insn.SetI:
		h.decoders = append(h.decoders, rv64i.New())
	case insn.SetZifencei:
		h.decoders = append(h.decoders, zifencei.New())
	case insn.SetZicsr:
		h.decoders = append(h.decoders, zicsr.New())
	default:
		return fmt.Errorf("hart: instruction set unimplemented: %v", set)
	}
	return nil
}

// Decode tries each registered decoder in order and returns the first
// match.
func (h *Hart) Decode(raw uint32) (insn.Instruction, insn.Executor, bool, error) {
	for _, d := range h.decoders {
		i, exec, ok, err := d.Decode(raw)
		if err != nil {
			return insn.Instruction{}, nil, false, err
		}
		if ok {
			return i, exec, true, nil
		}
	}
	return insn.Instruction{}, nil, false, nil
}

// Step fetches, decodes, and executes exactly one instruction. It
// returns the trap cause latched by the executor, if any.
func (h *Hart) Step(g *guest.GuestMem) (*state.BreakCause, error) {
	h.State.Reset()

	curPC := h.State.PC
	if curPC%2 != 0 {
		return nil, &MisalignedPCError{PC: curPC}
	}

	raw, err := g.FetchInsn(curPC)
	if err != nil {
		return nil, err
	}

	i, exec, ok, err := h.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &UnknownInsnError{Raw: raw, PC: curPC}
	}

	if err := exec(h.State, g, &i); err != nil {
		return nil, err
	}

	if curPC == h.State.PC {
		// PC unchanged: this was not a branch/jump, advance normally.
		h.State.PC = curPC + i.StepSize()
	}

	return h.State.BreakOn, nil
}
