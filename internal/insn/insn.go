// Package insn defines the decoded instruction form shared by every
// decoder/executor pair, independent of which ISA extension produced it.
package insn

import (
	"fmt"

	"rvemu/internal/guest"
	"rvemu/internal/state"
)

// Form identifies which of the RISC-V base instruction encodings an
// Instruction carries.
type Form int

const (
	FormR Form = iota
	FormI
	FormS
	FormB
	FormU
	FormJ
	FormR4
	FormC
)

func (f Form) String() string {
	switch f {
	case FormR:
		return "R"
	case FormI:
		return "I"
	case FormS:
		return "S"
	case FormB:
		return "B"
	case FormU:
		return "U"
	case FormJ:
		return "J"
	case FormR4:
		return "R4"
	case FormC:
		return "C"
	default:
		return "?"
	}
}

// Instruction is a decoded instruction word. The Imm field, when
// present for the form, is NOT sign-extended — extension is the
// executor's job, since different fields (and different instructions)
// extend to different widths.
type Instruction struct {
	Form   Form
	Raw    uint32
	Opcode uint8
	Funct3 uint8
	Funct7 uint8
	Funct2 uint8
	Rd     uint8
	Rs1    uint8
	Rs2    uint8
	Rs3    uint8
	Imm    uint32
}

// StepSize returns how many bytes the PC advances by for this
// instruction: 2 for the (currently unimplemented) compressed form, 4
// otherwise.
func (i *Instruction) StepSize() uint64 {
	if i.Form == FormC {
		return 2
	}
	return 4
}

// ExtractImm computes the unsigned immediate bit pattern for the given
// form directly out of the raw instruction word. Sign-extension is left
// to the caller.
func ExtractImm(raw uint32, form Form) uint32 {
	switch form {
	case FormI:
		return raw >> 20
	case FormS:
		return (((raw >> 25) & 0x7f) << 5) | ((raw >> 7) & 0x1f)
	case FormB:
		return (((raw >> 31) & 0x1) << 12) |
			(((raw >> 25) & 0x3f) << 5) |
			(((raw >> 8) & 0xf) << 1) |
			(((raw >> 7) & 0x1) << 11)
	case FormU:
		return raw & 0xfffff000
	case FormJ:
		return (((raw >> 31) & 0x1) << 20) |
			(((raw >> 21) & 0x3ff) << 1) |
			(((raw >> 20) & 0x1) << 11) |
			(((raw >> 12) & 0xff) << 12)
	default:
		panic(fmt.Sprintf("insn: ExtractImm called with unsupported form %v", form))
	}
}

// Decoder attempts to decode a raw instruction word. ok is false when
// this decoder does not recognize the encoding — the hart then tries
// the next registered decoder. err is only returned for a malformed
// encoding this decoder DOES claim.
type Decoder interface {
	Decode(raw uint32) (instr Instruction, exec Executor, ok bool, err error)
}

// Executor carries out the side effects of one decoded instruction:
// updating registers, touching memory, or latching a trap.
type Executor func(s *state.State, g *guest.GuestMem, i *Instruction) error

// Set identifies which ISA extension a decoder was registered for.
type Set int

const (
	SetI Set = iota
	SetM
	SetF
	SetD
	SetA
	SetC
	SetZicsr
	SetZifencei
)
