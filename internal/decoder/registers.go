/*
 * x86xlate - Register field decoding.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package decoder

import "strconv"

// decodeRegister assembles a 4-bit register selector from a REX extension
// bit and a 3-bit ModR/M (or opcode-embedded) field, then resolves which
// register file it names.
//
// The alias policy: an 8-bit operand with no REX prefix and a 3-bit index
// of 4 or greater names the high-byte alias of one of AX/CX/DX/BX (AH, CH,
// DH, BH) rather than register 4-7 of the low-GPR file.
func decodeRegister(rexBit bool, field byte, size SizeClass, hasREX bool, reg RegKind) (RegKind, uint8) {
	index := field & 0x7
	if rexBit {
		index |= 0x8
	}

	if reg == RegXMM || reg == RegMM {
		if reg == RegMM {
			// MM register indices above 7 are invalid; REX.R/B never apply to MMX.
			index &= 0x7
		}
		return reg, index
	}

	if size == SizeFixed8 && !hasREX && field >= 4 {
		return RegGPRHighByte, field & 0x3
	}
	return RegGPR, index
}

// gprName / xmmName / mmName render register indices for disassembly.
var gprName64 = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var gprName32 = [16]string{
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d",
}

var gprName16 = [16]string{
	"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
	"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w",
}

var gprName8 = [16]string{
	"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b",
}

var gprName8High = [4]string{"ah", "ch", "dh", "bh"}

// RegisterName renders a GPR index at the given width (8/16/32/64) for
// disassembly, honoring the high-byte alias encoding used when kind is
// RegGPRHighByte.
func RegisterName(kind RegKind, index uint8, widthBits int) string {
	switch kind {
	case RegGPRHighByte:
		return gprName8High[index&0x3]
	case RegXMM:
		return xmmName(index)
	case RegMM:
		return mmName(index)
	default:
		switch widthBits {
		case 8:
			return gprName8[index&0xF]
		case 16:
			return gprName16[index&0xF]
		case 64:
			return gprName64[index&0xF]
		default:
			return gprName32[index&0xF]
		}
	}
}

func xmmName(index uint8) string {
	return "xmm" + strconv.Itoa(int(index&0xF))
}

func mmName(index uint8) string {
	return "mm" + strconv.Itoa(int(index&0x7))
}
