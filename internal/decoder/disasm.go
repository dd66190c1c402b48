/*
 * x86xlate - Disassembly text rendering.
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

import (
	"strings"

	"github.com/rcornwell/x86xlate/util/hex"
)

// Disassemble renders a single decoded instruction as a mnemonic plus
// operand list, for trace logging and the CLI's disasm command. It is
// never consulted by the decode or translation hot path.
func Disassemble(inst DecodedInst) string {
	var b strings.Builder
	b.WriteString(hex.FormatAddr(inst.PC))
	b.WriteString(": ")
	if inst.Entry == nil {
		b.WriteString("(nil entry)")
		return b.String()
	}
	b.WriteString(inst.Entry.Mnemonic)

	var operands []string
	if inst.Dst != nil {
		operands = append(operands, inst.Dst.String())
	}
	for i := 0; i < inst.NumSrc; i++ {
		if inst.Src[i] != nil {
			operands = append(operands, inst.Src[i].String())
		}
	}
	if len(operands) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(operands, ", "))
	}
	return b.String()
}

// DisassembleBlock renders every instruction of a decoded block, one per line.
func DisassembleBlock(block DecodedBlock) string {
	var b strings.Builder
	b.WriteString("; block@")
	b.WriteString(hex.FormatAddr(block.Entry))
	b.WriteByte('\n')
	for _, inst := range block.DecodedInstructions {
		b.WriteString(Disassemble(inst))
		b.WriteByte('\n')
	}
	return b.String()
}
