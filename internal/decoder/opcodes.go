/*
 * x86xlate - Opcode table entry definitions and size/flag vocabulary.
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

// SizeClass is the semantic operand-size category a table entry declares
// for its destination or source; ResolveSize turns it into a concrete
// 8/16/32/64/128-bit width given the current decode flags and mode.
type SizeClass int

const (
	SizeNone SizeClass = iota
	SizeFixed8
	SizeFixed16
	SizeFixed128
	SizeDefault
	SizeDefault64
	SizeFixed64
)

// ImmFlag modifies how the "more bytes" immediate/displacement field of a
// table entry is interpreted.
type ImmFlag int

const (
	ImmNone ImmFlag = 0
	// SrcSext sign-extends the immediate/displacement bytes.
	ImmSrcSext ImmFlag = 1 << (iota - 1)
	// SrcSext64Bit sign-extends only when combined with a 64-bit destination.
	ImmSrcSext64Bit
	// DisplaceSizeMul2 doubles the immediate size when REX.W is set.
	ImmDisplaceSizeMul2
	// DisplaceSizeDiv2 halves the immediate size when the operand-size prefix is present.
	ImmDisplaceSizeDiv2
	// MemOffset halves the immediate size when the address-size prefix is present.
	ImmMemOffset
)

// EntryKind classifies how a TableEntry participates in dispatch.
type EntryKind int

const (
	KindNormal EntryKind = iota
	KindGroup            // "Group 1..11": indexed by ModRM.reg after reading ModR/M.
	KindSecondGroupModRM // "second-group ModRM": indexed by (field<<3 | ModRM.rm).
	KindNoOverlay        // secondary (0F) base-table entry: prefixes ignored.
	KindVEXGroup         // VEX table entry that re-indexes VEXTableGroupOps by ModRM.reg.
	KindUnknown
	KindInvalid
	KindLegacyPrefix
)

// TableEntry describes one decoded opcode: its mnemonic, operand-size
// classes, immediate/displacement behavior, and control-flow role.
type TableEntry struct {
	Mnemonic string
	Kind     EntryKind

	// GroupNumber identifies which opcode-extension group table this entry
	// selects into when Kind == KindGroup (1..11).
	GroupNumber int

	DstSize SizeClass
	SrcSize SizeClass

	// ImmBytes is the base "more bytes" immediate/displacement size, before
	// ImmFlags-driven adjustment.
	ImmBytes int
	ImmFlags ImmFlag

	// RegInOpcode marks an entry whose destination register is encoded in
	// the low 3 bits of the opcode byte itself (extended by REX.B), as in
	// MOV r,imm (0xB8-0xBF) and PUSH/POP r (0x50-0x5F), rather than by a
	// following ModR/M byte.
	RegInOpcode bool

	// BlockTerminating marks an instruction that ends the current block
	// without itself setting RIP (e.g. HLT, UD2, INT3).
	BlockTerminating bool

	// Control-flow classification used by multi-block discovery.
	SetsRIP          bool
	Conditional      bool
	Call             bool
	Return           bool
	Unconditional    bool
}

// Well-known sentinel entries shared by every table that needs to report
// an unrecognized, invalid, or prefix-only byte.
var (
	entryUnknown      = &TableEntry{Mnemonic: "(unknown)", Kind: KindUnknown}
	entryInvalid      = &TableEntry{Mnemonic: "(invalid)", Kind: KindInvalid}
	entryLegacyPrefix = &TableEntry{Mnemonic: "(legacy-prefix)", Kind: KindLegacyPrefix}
)

// IsFatal reports whether decoding this entry is a hard assertion failure
// per spec.md §4.1/§7 (unknown opcode, invalid encoding, or a legacy prefix
// reaching dispatch instead of being consumed as a prefix byte).
func (e *TableEntry) IsFatal() bool {
	return e == nil || e.Kind == KindUnknown || e.Kind == KindInvalid || e.Kind == KindLegacyPrefix
}
