// Package zifencei recognizes the single fence.i encoding as a no-op,
// matching this emulator's no-self-modifying-code model.
package zifencei

import (
	"rvemu/internal/guest"
	"rvemu/internal/insn"
	"rvemu/internal/state"
)

const fenceIRaw = 0x0000100f

// Decoder recognizes fence.i.
type Decoder struct{}

// New returns a Zifencei decoder.
func New() *Decoder { return &Decoder{} }

// Decode implements insn.Decoder.
func (d *Decoder) Decode(raw uint32) (insn.Instruction, insn.Executor, bool, error) {
	if raw != fenceIRaw {
		return insn.Instruction{}, nil, false, nil
	}
	return insn.Instruction{Form: insn.FormI, Raw: raw, Opcode: uint8(raw & 0x7f)}, execFenceI, true, nil
}

func execFenceI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	return nil
}
