/*
 * x86xlate - Decoder data model.
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

// Package decoder implements the x86/x86-64 instruction decoding front end:
// prefix handling, ModR/M and SIB addressing resolution, operand size
// resolution, multi-table opcode dispatch, and multi-block region discovery.
package decoder

import "fmt"

// Mode selects the processor mode the static opcode tables were built for.
type Mode int

const (
	Mode32Bit Mode = iota
	Mode64Bit
)

// MaxSrcOperands bounds the fixed-size source operand array on DecodedInst.
const MaxSrcOperands = 3

// MaxInstBytes is the longest encoding the decoder will accept; anything
// past it is a decode-fatal assertion, per the architecture's own limit.
const MaxInstBytes = 15

// RegKind distinguishes which register file a decoded register index names.
type RegKind int

const (
	RegGPR RegKind = iota
	RegGPRHighByte // legacy AH/CH/DH/BH alias, only reachable with no REX
	RegXMM
	RegMM
)

func (k RegKind) String() string {
	switch k {
	case RegGPR:
		return "gpr"
	case RegGPRHighByte:
		return "gpr8h"
	case RegXMM:
		return "xmm"
	case RegMM:
		return "mm"
	default:
		return "reg?"
	}
}

// Operand is the sum type of addressing forms a decoded operand can take.
// Each concrete form is a distinct Go type implementing this interface,
// rather than a hand-rolled tagged union sharing storage.
type Operand interface {
	isOperand()
	String() string
}

// GPROperand is a direct register operand (ModR/M mod==11, or an
// instruction-implied register such as the destination of MOV reg,imm).
type GPROperand struct {
	Kind  RegKind
	Index uint8 // 0-15, already REX-extended
}

func (GPROperand) isOperand() {}
func (o GPROperand) String() string {
	return fmt.Sprintf("%%%s%d", o.Kind, o.Index)
}

// GPRDirectOperand is a register used as an effective address with no
// displacement (e.g. [rax]).
type GPRDirectOperand struct {
	Index uint8
}

func (GPRDirectOperand) isOperand() {}
func (o GPRDirectOperand) String() string {
	return fmt.Sprintf("[%%r%d]", o.Index)
}

// GPRIndirectOperand is register + signed displacement (e.g. [rax+0x10]).
type GPRIndirectOperand struct {
	Index uint8
	Disp  int32
}

func (GPRIndirectOperand) isOperand() {}
func (o GPRIndirectOperand) String() string {
	if o.Disp < 0 {
		return fmt.Sprintf("[%%r%d-0x%x]", o.Index, -int64(o.Disp))
	}
	return fmt.Sprintf("[%%r%d+0x%x]", o.Index, o.Disp)
}

// InvalidReg marks an absent index/base register in a SIBOperand.
const InvalidReg uint8 = 0xFF

// SIBOperand is a scale-index-base effective address.
type SIBOperand struct {
	Scale  uint8 // 1, 2, 4 or 8
	Index  uint8 // InvalidReg if none
	Base   uint8 // InvalidReg if none (RIP-relative disp32 handled separately)
	Offset int32
}

func (SIBOperand) isOperand() {}
func (o SIBOperand) String() string {
	idx := "none"
	if o.Index != InvalidReg {
		idx = fmt.Sprintf("%%r%d", o.Index)
	}
	base := "none"
	if o.Base != InvalidReg {
		base = fmt.Sprintf("%%r%d", o.Base)
	}
	return fmt.Sprintf("[%s+%s*%d+0x%x]", base, idx, o.Scale, o.Offset)
}

// RIPRelativeOperand is a signed 32-bit literal added to PC+InstSize.
type RIPRelativeOperand struct {
	Disp int32
}

func (RIPRelativeOperand) isOperand() {}
func (o RIPRelativeOperand) String() string {
	return fmt.Sprintf("[rip+0x%x]", o.Disp)
}

// LiteralOperand is an immediate value with an explicit byte width.
type LiteralOperand struct {
	Value uint64
	Size  int // bytes
}

func (LiteralOperand) isOperand() {}
func (o LiteralOperand) String() string {
	return fmt.Sprintf("$0x%x", o.Value)
}

// DecodeFlags records the prefix/size state accumulated while decoding a
// single instruction.
type DecodeFlags struct {
	OperandSizeOverride bool // 0x66 seen
	AddressSizeOverride bool // 0x67 seen
	Lock                bool // 0xF0 seen
	RepNE               bool // 0xF2 seen
	Rep                 bool // 0xF3 seen
	SegmentOverride     byte // 0 if none, else the raw prefix byte
	HasREX              bool
	RexW, RexR, RexX, RexB bool
	ModRMPresent        bool
	SIBPresent          bool
	LastEscapePrefix    byte // last of 0x66/0xF2/0xF3 seen, for secondary dispatch
}

// DecodedInst is a single decoded guest instruction.
type DecodedInst struct {
	PC       uint64
	InstSize uint8
	OP       byte
	Entry    *TableEntry
	Flags    DecodeFlags

	ModRM      byte
	ModRMValid bool
	SIB        byte
	SIBValid   bool

	Dst      Operand
	Src      [MaxSrcOperands]Operand
	NumSrc   int
}

// DecodedBlock is a contiguous decoded region starting at a guest entry address.
type DecodedBlock struct {
	Entry            uint64
	NumInstructions  int
	DecodedInstructions []DecodedInst
}
