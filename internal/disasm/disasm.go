// Package disasm renders decoded RV64I instructions as assembly text,
// for the CLI's verbose trace mode.
package disasm

import (
	"fmt"

	"rvemu/internal/insn"
)

const (
	opLoad   = 0b0000011
	opFence  = 0b0001111
	opImm    = 0b0010011
	opAuipc  = 0b0010111
	opImm32  = 0b0011011
	opStore  = 0b0100011
	opOp     = 0b0110011
	opLui    = 0b0110111
	opWord   = 0b0111011
	opBranch = 0b1100011
	opJalr   = 0b1100111
	opJal    = 0b1101111
	opSystem = 0b1110011
)

// Disassemble decodes raw and returns its assembly-text mnemonic. It
// recognizes the base RV64I encoding plus fence.i; every other SYSTEM
// word (CSR instructions, mret) is rendered as a raw <csr: ...> form
// without its operands, and any other opcode as <unknown instruction: ...>.
func Disassemble(raw uint32) string {
	instr := insn.Instruction{Raw: raw, Opcode: uint8(raw & 0x7f)}
	rd := uint8((raw >> 7) & 0x1f)
	funct3 := uint8((raw >> 12) & 0x7)
	rs1 := uint8((raw >> 15) & 0x1f)
	rs2 := uint8((raw >> 20) & 0x1f)
	funct7 := uint8((raw >> 25) & 0x7f)

	switch instr.Opcode {
	case opLoad:
		imm := int32(insn.ExtractImm(raw, insn.FormI) << 20 >> 20)
		return fmt.Sprintf("%s x%d, %d(x%d)", loadMnemonic(funct3), rd, imm, rs1)
	case opStore:
		imm := int32(insn.ExtractImm(raw, insn.FormS) << 20 >> 20)
		return fmt.Sprintf("%s x%d, %d(x%d)", storeMnemonic(funct3), rs2, imm, rs1)
	case opImm:
		return disasmOpImm(funct3, funct7, rd, rs1, raw)
	case opImm32:
		return disasmOpImm32(funct3, funct7, rd, rs1, raw)
	case opOp:
		return fmt.Sprintf("%s x%d, x%d, x%d", opMnemonic(funct3, funct7), rd, rs1, rs2)
	case opWord:
		return fmt.Sprintf("%s x%d, x%d, x%d", wordMnemonic(funct3, funct7), rd, rs1, rs2)
	case opBranch:
		imm := int32(insn.ExtractImm(raw, insn.FormB) << 19 >> 19)
		return fmt.Sprintf("%s x%d, x%d, %d", branchMnemonic(funct3), rs1, rs2, imm)
	case opLui:
		return fmt.Sprintf("lui x%d, %d", rd, insn.ExtractImm(raw, insn.FormU)>>12)
	case opAuipc:
		return fmt.Sprintf("auipc x%d, %d", rd, insn.ExtractImm(raw, insn.FormU)>>12)
	case opJal:
		imm := int32(insn.ExtractImm(raw, insn.FormJ) << 11 >> 11)
		return fmt.Sprintf("jal x%d, %d", rd, imm)
	case opJalr:
		imm := int32(insn.ExtractImm(raw, insn.FormI) << 20 >> 20)
		return fmt.Sprintf("jalr x%d, %d(x%d)", rd, imm, rs1)
	case opFence:
		if funct3 == 1 {
			return "fence.i"
		}
		return "fence"
	case opSystem:
		imm := insn.ExtractImm(raw, insn.FormI)
		switch {
		case funct3 == 0 && imm == 0:
			return "ecall"
		case funct3 == 0 && imm == 1:
			return "ebreak"
		default:
			return fmt.Sprintf("<csr: %#08x>", raw)
		}
	default:
		return fmt.Sprintf("<unknown instruction: %#08x>", raw)
	}
}

func loadMnemonic(funct3 uint8) string {
	switch funct3 {
	case 0b000:
		return "lb"
	case 0b001:
		return "lh"
	case 0b010:
		return "lw"
	case 0b011:
		return "ld"
	case 0b100:
		return "lbu"
	case 0b101:
		return "lhu"
	case 0b110:
		return "lwu"
	default:
		return "l?"
	}
}

func storeMnemonic(funct3 uint8) string {
	switch funct3 {
	case 0b000:
		return "sb"
	case 0b001:
		return "sh"
	case 0b010:
		return "sw"
	case 0b011:
		return "sd"
	default:
		return "s?"
	}
}

func disasmOpImm(funct3, funct7 uint8, rd, rs1 uint8, raw uint32) string {
	imm := int32(insn.ExtractImm(raw, insn.FormI) << 20 >> 20)
	shamt := (raw >> 20) & 0x3f
	switch funct3 {
	case 0b000:
		return fmt.Sprintf("addi x%d, x%d, %d", rd, rs1, imm)
	case 0b010:
		return fmt.Sprintf("slti x%d, x%d, %d", rd, rs1, imm)
	case 0b011:
		return fmt.Sprintf("sltiu x%d, x%d, %d", rd, rs1, imm)
	case 0b100:
		return fmt.Sprintf("xori x%d, x%d, %d", rd, rs1, imm)
	case 0b110:
		return fmt.Sprintf("ori x%d, x%d, %d", rd, rs1, imm)
	case 0b111:
		return fmt.Sprintf("andi x%d, x%d, %d", rd, rs1, imm)
	case 0b001:
		return fmt.Sprintf("slli x%d, x%d, %d", rd, rs1, shamt)
	case 0b101:
		if funct7 == 0b0100000 {
			return fmt.Sprintf("srai x%d, x%d, %d", rd, rs1, shamt)
		}
		return fmt.Sprintf("srli x%d, x%d, %d", rd, rs1, shamt)
	default:
		return fmt.Sprintf("<unknown op-imm: %#08x>", raw)
	}
}

func disasmOpImm32(funct3, funct7 uint8, rd, rs1 uint8, raw uint32) string {
	imm := int32(insn.ExtractImm(raw, insn.FormI) << 20 >> 20)
	shamt := (raw >> 20) & 0x1f
	switch funct3 {
	case 0b000:
		return fmt.Sprintf("addiw x%d, x%d, %d", rd, rs1, imm)
	case 0b001:
		return fmt.Sprintf("slliw x%d, x%d, %d", rd, rs1, shamt)
	case 0b101:
		if funct7 == 0b0100000 {
			return fmt.Sprintf("sraiw x%d, x%d, %d", rd, rs1, shamt)
		}
		return fmt.Sprintf("srliw x%d, x%d, %d", rd, rs1, shamt)
	default:
		return fmt.Sprintf("<unknown op-imm32: %#08x>", raw)
	}
}

func opMnemonic(funct3, funct7 uint8) string {
	switch {
	case funct3 == 0b000 && funct7 == 0b0000000:
		return "add"
	case funct3 == 0b000 && funct7 == 0b0100000:
		return "sub"
	case funct3 == 0b001:
		return "sll"
	case funct3 == 0b010:
		return "slt"
	case funct3 == 0b011:
		return "sltu"
	case funct3 == 0b100:
		return "xor"
	case funct3 == 0b101 && funct7 == 0b0100000:
		return "sra"
	case funct3 == 0b101:
		return "srl"
	case funct3 == 0b110:
		return "or"
	case funct3 == 0b111:
		return "and"
	default:
		return "op?"
	}
}

func wordMnemonic(funct3, funct7 uint8) string {
	switch {
	case funct3 == 0b000 && funct7 == 0b0000000:
		return "addw"
	case funct3 == 0b000 && funct7 == 0b0100000:
		return "subw"
	case funct3 == 0b001:
		return "sllw"
	case funct3 == 0b101 && funct7 == 0b0100000:
		return "sraw"
	case funct3 == 0b101:
		return "srlw"
	default:
		return "word?"
	}
}

func branchMnemonic(funct3 uint8) string {
	switch funct3 {
	case 0b000:
		return "beq"
	case 0b001:
		return "bne"
	case 0b100:
		return "blt"
	case 0b101:
		return "bge"
	case 0b110:
		return "bltu"
	case 0b111:
		return "bgeu"
	default:
		return "b?"
	}
}
