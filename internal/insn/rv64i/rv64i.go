// Package rv64i implements the decoder and executors for the RV64I base
// integer instruction set, including the word-sized (*W) variants and
// the SYSTEM opcode (ecall/ebreak) and FENCE opcode.
package rv64i

import (
	"rvemu/internal/bits"
	"rvemu/internal/guest"
	"rvemu/internal/insn"
	"rvemu/internal/state"
)

// Opcodes, matching the RV64I base ISA encoding.
const (
	opLoad    = 0b0000011
	opStore   = 0b0100011
	opOpImm   = 0b0010011
	opOp      = 0b0110011
	opBranch  = 0b1100011
	opWord    = 0b0111011 // *W opcode (OP-32 style, 64-bit-only encodings)
	opImm32   = 0b0011011 // *IW opcode (addiw/slliw/srliw/sraiw)
	opJal     = 0b1101111
	opJalr    = 0b1100111
	opLui     = 0b0110111
	opAuipc   = 0b0010111
	opFence   = 0b0001111
	opSystem  = 0b1110011
)

// Decoder recognizes every RV64I encoding.
type Decoder struct{}

// New returns an RV64I decoder.
func New() *Decoder { return &Decoder{} }

func fields(raw uint32) (opcode, rd, funct3, rs1, rs2, funct7 uint8) {
	opcode = uint8(raw & 0x7f)
	rd = uint8((raw >> 7) & 0x1f)
	funct3 = uint8((raw >> 12) & 0x07)
	rs1 = uint8((raw >> 15) & 0x1f)
	rs2 = uint8((raw >> 20) & 0x1f)
	funct7 = uint8((raw >> 25) & 0x7f)
	return
}

// Decode implements insn.Decoder.
func (d *Decoder) Decode(raw uint32) (insn.Instruction, insn.Executor, bool, error) {
	opcode, rd, funct3, rs1, rs2, funct7 := fields(raw)

	switch opcode {
	case opLui:
		return insn.Instruction{Form: insn.FormU, Raw: raw, Opcode: opcode, Rd: rd,
			Imm: insn.ExtractImm(raw, insn.FormU)}, execLUI, true, nil
	case opAuipc:
		return insn.Instruction{Form: insn.FormU, Raw: raw, Opcode: opcode, Rd: rd,
			Imm: insn.ExtractImm(raw, insn.FormU)}, execAUIPC, true, nil
	case opLoad:
		i := insn.Instruction{Form: insn.FormI, Raw: raw, Opcode: opcode, Rd: rd, Rs1: rs1, Funct3: funct3,
			Imm: insn.ExtractImm(raw, insn.FormI)}
		switch funct3 {
		case 0b000:
			return i, execLB, true, nil
		case 0b001:
			return i, execLH, true, nil
		case 0b010:
			return i, execLW, true, nil
		case 0b011:
			return i, execLD, true, nil
		case 0b100:
			return i, execLBU, true, nil
		case 0b101:
			return i, execLHU, true, nil
		case 0b110:
			return i, execLWU, true, nil
		default:
			return insn.Instruction{}, nil, false, nil
		}
	case opStore:
		s := insn.Instruction{Form: insn.FormS, Raw: raw, Opcode: opcode, Rs1: rs1, Rs2: rs2, Funct3: funct3,
			Imm: insn.ExtractImm(raw, insn.FormS)}
		switch funct3 {
		case 0b000:
			return s, execSB, true, nil
		case 0b001:
			return s, execSH, true, nil
		case 0b010:
			return s, execSW, true, nil
		case 0b011:
			return s, execSD, true, nil
		default:
			return insn.Instruction{}, nil, false, nil
		}
	case opOpImm:
		i := insn.Instruction{Form: insn.FormI, Raw: raw, Opcode: opcode, Rd: rd, Rs1: rs1, Funct3: funct3,
			Imm: insn.ExtractImm(raw, insn.FormI)}
		switch funct3 {
		case 0b000:
			return i, execADDI, true, nil
		case 0b001:
			return i, execSLLI, true, nil
		case 0b010:
			return i, execSLTI, true, nil
		case 0b011:
			return i, execSLTIU, true, nil
		case 0b100:
			return i, execXORI, true, nil
		case 0b101:
			switch funct7 {
			case 0:
				return i, execSRLI, true, nil
			case 0b0100000:
				return i, execSRAI, true, nil
			default:
				return insn.Instruction{}, nil, false, nil
			}
		case 0b110:
			return i, execORI, true, nil
		case 0b111:
			return i, execANDI, true, nil
		default:
			return insn.Instruction{}, nil, false, nil
		}
	case opImm32:
		i := insn.Instruction{Form: insn.FormI, Raw: raw, Opcode: opcode, Rd: rd, Rs1: rs1, Funct3: funct3,
			Imm: insn.ExtractImm(raw, insn.FormI)}
		switch funct3 {
		case 0b000:
			return i, execADDIW, true, nil
		case 0b001:
			return i, execSLLIW, true, nil
		case 0b101:
			switch funct7 {
			case 0:
				return i, execSRLIW, true, nil
			case 0b0100000:
				return i, execSRAIW, true, nil
			default:
				return insn.Instruction{}, nil, false, nil
			}
		default:
			return insn.Instruction{}, nil, false, nil
		}
	case opBranch:
		b := insn.Instruction{Form: insn.FormB, Raw: raw, Opcode: opcode, Rs1: rs1, Rs2: rs2, Funct3: funct3,
			Imm: insn.ExtractImm(raw, insn.FormB)}
		switch funct3 {
		case 0b000:
			return b, execBEQ, true, nil
		case 0b001:
			return b, execBNE, true, nil
		case 0b100:
			return b, execBLT, true, nil
		case 0b101:
			return b, execBGE, true, nil
		case 0b110:
			return b, execBLTU, true, nil
		case 0b111:
			return b, execBGEU, true, nil
		default:
			return insn.Instruction{}, nil, false, nil
		}
	case opJal:
		return insn.Instruction{Form: insn.FormJ, Raw: raw, Opcode: opcode, Rd: rd,
			Imm: insn.ExtractImm(raw, insn.FormJ)}, execJAL, true, nil
	case opJalr:
		if funct3 != 0 {
			return insn.Instruction{}, nil, false, nil
		}
		return insn.Instruction{Form: insn.FormI, Raw: raw, Opcode: opcode, Rd: rd, Rs1: rs1, Funct3: funct3,
			Imm: insn.ExtractImm(raw, insn.FormI)}, execJALR, true, nil
	case opOp:
		r := insn.Instruction{Form: insn.FormR, Raw: raw, Opcode: opcode, Rd: rd, Rs1: rs1, Rs2: rs2,
			Funct3: funct3, Funct7: funct7}
		switch funct3 {
		case 0b000:
			switch funct7 {
			case 0:
				return r, execADD, true, nil
			case 0b0100000:
				return r, execSUB, true, nil
			default:
				return insn.Instruction{}, nil, false, nil
			}
		case 0b001:
			return r, execSLL, true, nil
		case 0b010:
			return r, execSLT, true, nil
		case 0b011:
			return r, execSLTU, true, nil
		case 0b100:
			return r, execXOR, true, nil
		case 0b101:
			switch funct7 {
			case 0:
				return r, execSRL, true, nil
			case 0b0100000:
				return r, execSRA, true, nil
			default:
				return insn.Instruction{}, nil, false, nil
			}
		case 0b110:
			return r, execOR, true, nil
		case 0b111:
			return r, execAND, true, nil
		default:
			return insn.Instruction{}, nil, false, nil
		}
	case opWord:
		r := insn.Instruction{Form: insn.FormR, Raw: raw, Opcode: opcode, Rd: rd, Rs1: rs1, Rs2: rs2,
			Funct3: funct3, Funct7: funct7}
		switch funct3 {
		case 0b000:
			switch funct7 {
			case 0:
				return r, execADDW, true, nil
			case 0b0100000:
				return r, execSUBW, true, nil
			default:
				return insn.Instruction{}, nil, false, nil
			}
		case 0b001:
			return r, execSLLW, true, nil
		case 0b101:
			switch funct7 {
			case 0:
				return r, execSRLW, true, nil
			case 0b0100000:
				return r, execSRAW, true, nil
			default:
				return insn.Instruction{}, nil, false, nil
			}
		default:
			return insn.Instruction{}, nil, false, nil
		}
	case opFence:
		i := insn.Instruction{Form: insn.FormI, Raw: raw, Opcode: opcode, Rd: rd, Rs1: rs1, Funct3: funct3}
		if funct3 == 0b001 {
			return i, execFenceI, true, nil
		}
		return i, execFence, true, nil
	case opSystem:
		if funct3 != 0 {
			// CSR instructions live here too; leave them for the Zicsr decoder.
			return insn.Instruction{}, nil, false, nil
		}
		imm := insn.ExtractImm(raw, insn.FormI)
		i := insn.Instruction{Form: insn.FormI, Raw: raw, Opcode: opcode, Rd: rd, Rs1: rs1, Funct3: funct3, Imm: imm}
		switch imm {
		case 0:
			return i, execEcall, true, nil
		case 1:
			return i, execEbreak, true, nil
		default:
			// mret and friends are handled by the Zicsr decoder.
			return insn.Instruction{}, nil, false, nil
		}
	default:
		return insn.Instruction{}, nil, false, nil
	}
}

func signExtend12(imm uint32) int64 {
	return int64(bits.SignExtend(uint64(imm), 12))
}

func execLUI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = bits.SignExtend(uint64(i.Imm), 32)
	return nil
}

func execAUIPC(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.PC + bits.SignExtend(uint64(i.Imm), 32)
	return nil
}

func loadAddr(s *state.State, i *insn.Instruction) uint64 {
	return uint64(int64(s.X[i.Rs1]) + signExtend12(i.Imm))
}

func execLB(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v, err := g.ReadU8(loadAddr(s, i))
	if err != nil {
		return err
	}
	s.X[i.Rd] = uint64(bits.SignExtend(uint64(v), 8))
	return nil
}

func execLBU(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v, err := g.ReadU8(loadAddr(s, i))
	if err != nil {
		return err
	}
	s.X[i.Rd] = uint64(v)
	return nil
}

func execLH(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v, err := g.ReadU16(loadAddr(s, i))
	if err != nil {
		return err
	}
	s.X[i.Rd] = bits.SignExtend(uint64(v), 16)
	return nil
}

func execLHU(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v, err := g.ReadU16(loadAddr(s, i))
	if err != nil {
		return err
	}
	s.X[i.Rd] = uint64(v)
	return nil
}

func execLW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v, err := g.ReadU32(loadAddr(s, i))
	if err != nil {
		return err
	}
	s.X[i.Rd] = bits.SignExtend(uint64(v), 32)
	return nil
}

func execLWU(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v, err := g.ReadU32(loadAddr(s, i))
	if err != nil {
		return err
	}
	s.X[i.Rd] = uint64(v)
	return nil
}

func execLD(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v, err := g.ReadU64(loadAddr(s, i))
	if err != nil {
		return err
	}
	s.X[i.Rd] = v
	return nil
}

func storeAddr(s *state.State, i *insn.Instruction) uint64 {
	return uint64(int64(s.X[i.Rs1]) + signExtend12(i.Imm))
}

func execSB(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	return g.WriteU8(storeAddr(s, i), uint8(s.X[i.Rs2]))
}

func execSH(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	return g.WriteU16(storeAddr(s, i), uint16(s.X[i.Rs2]))
}

func execSW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	return g.WriteU32(storeAddr(s, i), uint32(s.X[i.Rs2]))
}

func execSD(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	return g.WriteU64(storeAddr(s, i), s.X[i.Rs2])
}

func execADDI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] + uint64(signExtend12(i.Imm))
	return nil
}

// 64-bit shift amounts mask with 0x3f (6 bits); only the *W variants mask
// with 0x1f.
func execSLLI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] << (i.Imm & 0x3f)
	return nil
}

func execSRLI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] >> (i.Imm & 0x3f)
	return nil
}

func execSRAI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = uint64(int64(s.X[i.Rs1]) >> (i.Imm & 0x3f))
	return nil
}

func execXORI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] ^ uint64(signExtend12(i.Imm))
	return nil
}

func execORI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] | uint64(signExtend12(i.Imm))
	return nil
}

func execANDI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] & uint64(signExtend12(i.Imm))
	return nil
}

func execSLTI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	if int64(s.X[i.Rs1]) < signExtend12(i.Imm) {
		s.X[i.Rd] = 1
	} else {
		s.X[i.Rd] = 0
	}
	return nil
}

func execSLTIU(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	if s.X[i.Rs1] < uint64(signExtend12(i.Imm)) {
		s.X[i.Rd] = 1
	} else {
		s.X[i.Rd] = 0
	}
	return nil
}

func execADD(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] + s.X[i.Rs2]
	return nil
}

func execSUB(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] - s.X[i.Rs2]
	return nil
}

func execSLL(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] << (s.X[i.Rs2] & 0x3f)
	return nil
}

func execSRL(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] >> (s.X[i.Rs2] & 0x3f)
	return nil
}

func execSRA(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = uint64(int64(s.X[i.Rs1]) >> (s.X[i.Rs2] & 0x3f))
	return nil
}

func execXOR(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] ^ s.X[i.Rs2]
	return nil
}

func execOR(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] | s.X[i.Rs2]
	return nil
}

func execAND(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.X[i.Rd] = s.X[i.Rs1] & s.X[i.Rs2]
	return nil
}

func execSLT(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	if int64(s.X[i.Rs1]) < int64(s.X[i.Rs2]) {
		s.X[i.Rd] = 1
	} else {
		s.X[i.Rd] = 0
	}
	return nil
}

func execSLTU(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	if s.X[i.Rs1] < s.X[i.Rs2] {
		s.X[i.Rd] = 1
	} else {
		s.X[i.Rd] = 0
	}
	return nil
}

func branch(s *state.State, i *insn.Instruction, taken bool) {
	if taken {
		s.PC = s.PC + uint64(int64(bits.SignExtend(uint64(i.Imm), 13)))
	}
}

func execBEQ(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	branch(s, i, s.X[i.Rs1] == s.X[i.Rs2])
	return nil
}

func execBNE(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	branch(s, i, s.X[i.Rs1] != s.X[i.Rs2])
	return nil
}

func execBLT(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	branch(s, i, int64(s.X[i.Rs1]) < int64(s.X[i.Rs2]))
	return nil
}

func execBGE(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	branch(s, i, int64(s.X[i.Rs1]) >= int64(s.X[i.Rs2]))
	return nil
}

func execBLTU(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	branch(s, i, s.X[i.Rs1] < s.X[i.Rs2])
	return nil
}

func execBGEU(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	branch(s, i, s.X[i.Rs1] >= s.X[i.Rs2])
	return nil
}

func execJAL(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	target := s.PC + uint64(int64(bits.SignExtend(uint64(i.Imm), 21)))
	s.X[i.Rd] = s.PC + 4
	s.PC = target
	return nil
}

func execJALR(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	target := (uint64(int64(s.X[i.Rs1]) + signExtend12(i.Imm))) &^ 1
	link := s.PC + 4
	s.PC = target
	s.X[i.Rd] = link
	return nil
}

func execADDIW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v := int32(s.X[i.Rs1]) + int32(signExtend12(i.Imm))
	s.X[i.Rd] = uint64(int64(v))
	return nil
}

func execSLLIW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v := int32(uint32(s.X[i.Rs1]) << (i.Imm & 0x1f))
	s.X[i.Rd] = uint64(int64(v))
	return nil
}

func execSRLIW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v := int32(uint32(s.X[i.Rs1]) >> (i.Imm & 0x1f))
	s.X[i.Rd] = uint64(int64(v))
	return nil
}

func execSRAIW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v := int32(s.X[i.Rs1]) >> (i.Imm & 0x1f)
	s.X[i.Rd] = uint64(int64(v))
	return nil
}

func execADDW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v := int32(uint32(s.X[i.Rs1]) + uint32(s.X[i.Rs2]))
	s.X[i.Rd] = uint64(int64(v))
	return nil
}

func execSUBW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v := int32(uint32(s.X[i.Rs1]) - uint32(s.X[i.Rs2]))
	s.X[i.Rd] = uint64(int64(v))
	return nil
}

func execSLLW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v := int32(uint32(s.X[i.Rs1]) << (s.X[i.Rs2] & 0x1f))
	s.X[i.Rd] = uint64(int64(v))
	return nil
}

func execSRLW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v := int32(uint32(s.X[i.Rs1]) >> (s.X[i.Rs2] & 0x1f))
	s.X[i.Rd] = uint64(int64(v))
	return nil
}

func execSRAW(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	v := int32(s.X[i.Rs1]) >> (s.X[i.Rs2] & 0x1f)
	s.X[i.Rd] = uint64(int64(v))
	return nil
}

func execEcall(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.SetBreak(state.Ecall)
	return nil
}

func execEbreak(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	s.SetBreak(state.Ebreak)
	return nil
}

func execFence(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	return nil
}

func execFenceI(s *state.State, g *guest.GuestMem, i *insn.Instruction) error {
	return nil
}
