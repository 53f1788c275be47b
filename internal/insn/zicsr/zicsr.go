// Package zicsr is a deliberately minimal Zicsr decoder: enough CSR
// read-modify-write support to let an ISA-letter-set test suite probe
// csrrw/csrrs/csrrc (and their immediate forms) and mret, without
// implementing the full privileged architecture. Only mhartid (reads
// zero) and mepc are backed by real state.
package zicsr

import (
	"rvemu/internal/bits"
	"rvemu/internal/guest"
	"rvemu/internal/insn"
	"rvemu/internal/state"
)

const opcode = 0b1110011

const (
	funct3CSRRW  = 0b001
	funct3CSRRS  = 0b010
	funct3CSRRC  = 0b011
	funct3CSRRWI = 0b101
	funct3CSRRSI = 0b110
	funct3CSRRCI = 0b111
)

const (
	csrMhartid = 0xF14
	csrMepc    = 0x341
)

// Decoder recognizes CSR instructions and mret.
type Decoder struct{}

// New returns a Zicsr decoder.
func New() *Decoder { return &Decoder{} }

// Decode implements insn.Decoder.
func (d *Decoder) Decode(raw uint32) (insn.Instruction, insn.Executor, bool, error) {
	op := uint8(raw & 0x7f)
	if op != opcode {
		return insn.Instruction{}, nil, false, nil
	}
	funct3 := uint8((raw >> 12) & 0x7)
	rd := uint8((raw >> 7) & 0x1f)
	rs1 := uint8((raw >> 15) & 0x1f)
	imm := insn.ExtractImm(raw, insn.FormI)

	i := insn.Instruction{Form: insn.FormI, Raw: raw, Opcode: op, Rd: rd, Rs1: rs1, Funct3: funct3, Imm: imm}

	switch funct3 {
	case funct3CSRRW:
		return i, execCSRRW, true, nil
	case funct3CSRRS:
		return i, execCSRRS, true, nil
	case funct3CSRRC:
		return i, execCSRRC, true, nil
	case funct3CSRRWI:
		return i, execCSRRWI, true, nil
	case funct3CSRRSI:
		return i, execCSRRSI, true, nil
	case funct3CSRRCI:
		return i, execCSRRCI, true, nil
	case 0:
		if rs1 == 0 && rd == 0 && imm == 770 { // mret
			return i, execMret, true, nil
		}
		return insn.Instruction{}, nil, false, nil
	default:
		return insn.Instruction{}, nil, false, nil
	}
}

func readCSR(s *state.State, csr uint32) uint64 {
	switch csr {
	case csrMhartid:
		return 0
	case csrMepc:
		return s.MEPC
	default:
		return 0
	}
}

func writeCSR(s *state.State, csr uint32, v uint64) {
	if csr == csrMepc {
		s.MEPC = v
	}
}

func execCSRRW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	csr := i.Imm
	old := readCSR(s, csr)
	writeCSR(s, csr, s.X[i.Rs1])
	s.X[i.Rd] = old
	return nil
}

func execCSRRS(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	csr := i.Imm
	old := readCSR(s, csr)
	writeCSR(s, csr, old|s.X[i.Rs1])
	s.X[i.Rd] = old
	return nil
}

func execCSRRC(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	csr := i.Imm
	old := readCSR(s, csr)
	writeCSR(s, csr, old&^s.X[i.Rs1])
	s.X[i.Rd] = old
	return nil
}

func execCSRRWI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	csr := i.Imm
	uimm := bits.ZeroExtend(uint64(i.Rs1), 5)
	old := readCSR(s, csr)
	writeCSR(s, csr, uimm)
	s.X[i.Rd] = old
	return nil
}

func execCSRRSI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	csr := i.Imm
	uimm := bits.ZeroExtend(uint64(i.Rs1), 5)
	old := readCSR(s, csr)
	writeCSR(s, csr, old|uimm)
	s.X[i.Rd] = old
	return nil
}

func execCSRRCI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	csr := i.Imm
	uimm := bits.ZeroExtend(uint64(i.Rs1), 5)
	old := readCSR(s, csr)
	writeCSR(s, csr, old&^uimm)
	s.X[i.Rd] = old
	return nil
}

func execMret(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.PC = s.MEPC
	return nil
}
