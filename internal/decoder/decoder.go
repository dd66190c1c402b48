/*
 * x86xlate - Instruction decode state machine and multi-block discovery.
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
	"fmt"
	"log/slog"
	"sort"
)

// Config describes the host context the decoder reads: processor mode,
// multiblock policy, and the caps that bound block decoding. Corresponds
// to spec.md §6's "Decoder <-> host context" reads.
type Config struct {
	Mode               Mode
	MultiblockEnabled  bool
	MaxInstPerBlock    int
	MaxTotalInst       int
	SymbolMin          uint64
	SymbolMax          uint64
}

// DefaultConfig returns reasonable bounds for a single translation request.
func DefaultConfig(mode Mode) Config {
	return Config{
		Mode:              mode,
		MultiblockEnabled: true,
		MaxInstPerBlock:   4096,
		MaxTotalInst:      1 << 20,
		SymbolMin:         0,
		SymbolMax:         ^uint64(0),
	}
}

// Decoder holds the per-request DecoderState described in spec.md §3: the
// input byte pointer, the work-list of addresses to decode, the set of
// already-decoded entries, and the emitted blocks.
type Decoder struct {
	tables *Tables
	config Config
	log    *slog.Logger

	bytes []byte
	base  uint64 // guest address that bytes[0] corresponds to

	blocksToDecode []uint64
	hasBlocks      map[uint64]bool
	blocks         []DecodedBlock

	totalInst int

	// minSeen/maxSeen track the extreme conditional-branch targets
	// observed, used only as a diagnostic/heuristic range per spec.md §3.
	minSeen, maxSeen uint64
}

// NewDecoder builds a decoder bound to a fixed set of opcode tables and
// host configuration. Tables are process-wide and shared across requests;
// the returned Decoder carries only per-request state.
func NewDecoder(tables *Tables, config Config, log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.Default()
	}
	return &Decoder{tables: tables, config: config, log: log}
}

// DecodeInstructionsAtEntry decodes every block reachable from PC under
// the configured multiblock policy. It clears any state left over from a
// previous call. A block also ends when the supplied bytes run out on an
// instruction boundary. Returns false only when a single instruction
// failed to decode while processing the work-list it enqueued itself
// (e.g. an instruction cut short by the end of the byte slice, or a block
// entry outside it); blocks emitted before the failure remain valid and
// retrievable via DecodedBlocks.
func (d *Decoder) DecodeInstructionsAtEntry(bytes []byte, pc uint64) bool {
	d.bytes = bytes
	d.base = pc
	d.blocksToDecode = []uint64{pc}
	d.hasBlocks = map[uint64]bool{}
	d.blocks = nil
	d.totalInst = 0
	d.minSeen, d.maxSeen = pc, pc

	ok := true
	for len(d.blocksToDecode) > 0 && d.totalInst < d.config.MaxTotalInst {
		addr := d.blocksToDecode[0]
		d.blocksToDecode = d.blocksToDecode[1:]
		if d.hasBlocks[addr] {
			continue
		}
		d.hasBlocks[addr] = true
		if !d.decodeOneBlock(addr) {
			ok = false
		}
	}

	sort.Slice(d.blocks, func(i, j int) bool { return d.blocks[i].Entry < d.blocks[j].Entry })
	return ok
}

// DecodedBlocks returns the blocks produced by the most recent
// DecodeInstructionsAtEntry call, sorted by ascending entry address.
func (d *Decoder) DecodedBlocks() []DecodedBlock {
	return d.blocks
}

func (d *Decoder) decodeOneBlock(entry uint64) bool {
	block := DecodedBlock{Entry: entry}
	pc := entry
	ok := true

	for {
		if len(block.DecodedInstructions) >= d.config.MaxInstPerBlock || d.totalInst >= d.config.MaxTotalInst {
			break
		}
		// The supplied bytes ending on an instruction boundary ends the block.
		if len(block.DecodedInstructions) > 0 && pc-d.base >= uint64(len(d.bytes)) {
			break
		}
		inst, decOK := d.decodeOne(pc)
		if !decOK {
			ok = false
			break
		}
		block.DecodedInstructions = append(block.DecodedInstructions, inst)
		d.totalInst++
		pc += uint64(inst.InstSize)

		if inst.Entry.SetsRIP {
			d.classifyBranch(inst)
			break
		}
		if inst.Entry.BlockTerminating {
			break
		}
	}

	block.NumInstructions = len(block.DecodedInstructions)
	d.blocks = append(d.blocks, block)
	return ok
}

// classifyBranch applies spec.md §4.1's multi-block discovery rules for an
// instruction that sets RIP.
func (d *Decoder) classifyBranch(inst DecodedInst) {
	if !d.config.MultiblockEnabled {
		return
	}
	e := inst.Entry
	nextPC := inst.PC + uint64(inst.InstSize)

	switch {
	case e.Conditional:
		lit, ok := literalOperand(inst)
		if !ok {
			return
		}
		target := nextPC + uint64(lit)
		d.trackRange(target)
		d.maybeEnqueue(target)
		d.maybeEnqueue(nextPC)

	case e.Unconditional:
		lit, ok := literalOperand(inst)
		if !ok {
			return
		}
		target := nextPC + uint64(lit)
		d.maybeEnqueue(target)

	default:
		// Calls, returns, and any other RIP-setter terminate without
		// enqueueing further work, per spec.md §4.1.
	}
}

func literalOperand(inst DecodedInst) (int64, bool) {
	for i := 0; i < inst.NumSrc; i++ {
		if lit, ok := inst.Src[i].(LiteralOperand); ok {
			return signExtend(lit.Value, lit.Size), true
		}
	}
	return 0, false
}

func signExtend(value uint64, size int) int64 {
	switch size {
	case 1:
		return int64(int8(value))
	case 2:
		return int64(int16(value))
	case 4:
		return int64(int32(value))
	default:
		return int64(value)
	}
}

func (d *Decoder) trackRange(addr uint64) {
	if addr < d.minSeen {
		d.minSeen = addr
	}
	if addr > d.maxSeen {
		d.maxSeen = addr
	}
}

func (d *Decoder) maybeEnqueue(addr uint64) {
	if addr < d.config.SymbolMin || addr >= d.config.SymbolMax {
		return
	}
	if d.hasBlocks[addr] {
		return
	}
	for _, a := range d.blocksToDecode {
		if a == addr {
			return
		}
	}
	d.blocksToDecode = append(d.blocksToDecode, addr)
}

// cursor is the byteReader over the guest instruction bytes for one
// in-progress instruction decode.
type cursor struct {
	bytes []byte
	pos   int // offset from instruction start
}

func (c *cursor) readByte() (byte, bool) {
	if c.pos >= len(c.bytes) || c.pos >= MaxInstBytes {
		return 0, false
	}
	b := c.bytes[c.pos]
	c.pos++
	return b, true
}

func (c *cursor) peekByte() (byte, bool) {
	if c.pos >= len(c.bytes) {
		return 0, false
	}
	return c.bytes[c.pos], true
}

func (c *cursor) readInt32() (int32, bool) {
	if c.pos+4 > len(c.bytes) || c.pos+4 > MaxInstBytes {
		return 0, false
	}
	v := int32(c.bytes[c.pos]) | int32(c.bytes[c.pos+1])<<8 | int32(c.bytes[c.pos+2])<<16 | int32(c.bytes[c.pos+3])<<24
	c.pos += 4
	return v, true
}

func (c *cursor) readN(n int) (uint64, bool) {
	if n == 0 {
		return 0, true
	}
	if c.pos+n > len(c.bytes) || c.pos+n > MaxInstBytes {
		return 0, false
	}
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(c.bytes[c.pos+i]) << (8 * i)
	}
	c.pos += n
	return v, true
}

// decodeOne decodes a single instruction starting at guest address pc,
// implementing the byte-by-byte prefix loop and dispatch described in
// spec.md §4.1.
func (d *Decoder) decodeOne(pc uint64) (DecodedInst, bool) {
	offset := int(pc - d.base)
	if offset < 0 || offset >= len(d.bytes) {
		d.log.Warn("decode: pc outside supplied byte range", "pc", fmt.Sprintf("0x%x", pc))
		return DecodedInst{}, false
	}
	c := &cursor{bytes: d.bytes[offset:]}

	var flags DecodeFlags
	var op byte
	var entry *TableEntry

prefixLoop:
	for {
		b, ok := c.readByte()
		if !ok {
			d.log.Warn("decode: instruction truncated while reading prefixes")
			return DecodedInst{}, false
		}
		switch {
		case b == 0x26 || b == 0x2E || b == 0x36 || b == 0x3E:
			if d.config.Mode == Mode32Bit {
				flags.SegmentOverride = b
			}
		case b == 0x64 || b == 0x65:
			flags.SegmentOverride = b
		case b == 0x66:
			flags.OperandSizeOverride = true
			flags.LastEscapePrefix = b
		case b == 0x67:
			flags.AddressSizeOverride = true
		case b == 0xF0:
			flags.Lock = true
		case b == 0xF2:
			flags.RepNE = true
			flags.LastEscapePrefix = b
		case b == 0xF3:
			flags.Rep = true
			flags.LastEscapePrefix = b
		case d.config.Mode == Mode64Bit && b >= 0x40 && b <= 0x4F:
			flags.HasREX = true
			flags.RexW = b&0x8 != 0
			flags.RexR = b&0x4 != 0
			flags.RexX = b&0x2 != 0
			flags.RexB = b&0x1 != 0
		case b == 0x0F:
			op = b
			var fatal bool
			entry, fatal = d.dispatchSecondary(c, &flags)
			if fatal {
				return DecodedInst{}, false
			}
			break prefixLoop
		case b == 0xC5:
			op = b
			b2, ok := c.readByte()
			if !ok {
				return DecodedInst{}, false
			}
			var fatal bool
			entry, fatal = d.dispatchVEX(c, decodeVEX2(b2), &flags)
			if fatal {
				return DecodedInst{}, false
			}
			break prefixLoop
		case b == 0xC4:
			op = b
			b2, ok := c.readByte()
			if !ok {
				return DecodedInst{}, false
			}
			b3, ok := c.readByte()
			if !ok {
				return DecodedInst{}, false
			}
			var fatal bool
			entry, fatal = d.dispatchVEX(c, decodeVEX3(b2, b3), &flags)
			if fatal {
				return DecodedInst{}, false
			}
			break prefixLoop
		case b == 0x62:
			op = b
			p0, ok := c.readByte()
			if !ok {
				return DecodedInst{}, false
			}
			p1, ok := c.readByte()
			if !ok {
				return DecodedInst{}, false
			}
			p2, ok := c.readByte()
			if !ok {
				return DecodedInst{}, false
			}
			var fatal bool
			entry, fatal = d.dispatchEVEX(c, decodeEVEXPayload(p0, p1, p2), &flags)
			if fatal {
				return DecodedInst{}, false
			}
			break prefixLoop
		default:
			op = b
			entry = d.tables.BaseOps[b]
			if b >= 0xD8 && b <= 0xDF {
				// x87: the table is indexed by ((Op-0xD8)<<8)|ModRM; the
				// ModR/M byte is only peeked here and read as usual below.
				modrm, ok := c.peekByte()
				if !ok {
					return DecodedInst{}, false
				}
				entry = d.tables.X87Ops[(int(b-0xD8)<<8)|int(modrm)]
			}
			break prefixLoop
		}
	}

	if entry == nil {
		entry = entryUnknown
	}

	inst := DecodedInst{PC: pc, OP: op, Entry: entry, Flags: flags}

	if entry.IsFatal() {
		d.log.Error("decode: fatal opcode entry", "pc", fmt.Sprintf("0x%x", pc), "op", fmt.Sprintf("0x%x", op), "kind", entry.Kind)
		return DecodedInst{}, false
	}

	switch entry.Kind {
	case KindGroup:
		resolved, ok := d.resolveGroup(c, &flags, &inst, entry)
		if !ok {
			return DecodedInst{}, false
		}
		entry = resolved
		inst.Entry = entry
	case KindVEXGroup:
		operand, _, sibByte, sibValid, modrmByte, ok := resolveModRM(c, flags)
		if !ok {
			return DecodedInst{}, false
		}
		inst.ModRM = modrmByte
		inst.ModRMValid = true
		inst.SIB = sibByte
		inst.SIBValid = sibValid
		inst.Dst = operand
		m := splitModRM(modrmByte)
		resolved := d.tables.VEXTableGroupOps[m.reg]
		if resolved == nil || resolved.Kind == KindUnknown {
			return DecodedInst{}, false
		}
		entry = resolved
		inst.Entry = entry
	case KindSecondGroupModRM:
		resolved, ok := d.resolveSecondGroupModRM(c, &flags, &inst)
		if !ok {
			return DecodedInst{}, false
		}
		entry = resolved
		inst.Entry = entry
	default:
		if !entry.RegInOpcode && needsModRM(entry) {
			operand, reg, sibByte, sibValid, modrmByte, ok := resolveModRM(c, flags)
			if !ok {
				return DecodedInst{}, false
			}
			inst.ModRM = modrmByte
			inst.ModRMValid = true
			inst.SIB = sibByte
			inst.SIBValid = sibValid
			inst.Dst = operand
			inst.Src[0] = GPROperand{Kind: regKindFor(entry), Index: reg}
			inst.NumSrc = 1
		}
	}

	if entry.RegInOpcode {
		idx := op & 0x7
		if flags.RexB {
			idx |= 0x8
		}
		inst.Dst = GPROperand{Kind: RegGPR, Index: idx}
	}

	if entry.ImmBytes > 0 {
		lit, ok := d.readImmediate(c, entry, flags)
		if !ok {
			return DecodedInst{}, false
		}
		if inst.NumSrc < MaxSrcOperands {
			inst.Src[inst.NumSrc] = lit
			inst.NumSrc++
		}
	}

	size := c.pos
	if size > MaxInstBytes {
		d.log.Error("decode: instruction exceeds max length", "pc", fmt.Sprintf("0x%x", pc), "size", size)
		return DecodedInst{}, false
	}
	inst.InstSize = uint8(size)
	return inst, true
}

// needsModRM reports whether this entry's Kind implies the instruction
// carries a ModR/M byte. Group kinds are handled separately since they
// read ModR/M as part of selecting their final entry.
func needsModRM(e *TableEntry) bool {
	return e.DstSize != SizeNone || e.SrcSize != SizeNone
}

func regKindFor(e *TableEntry) RegKind {
	if e.DstSize == SizeFixed128 {
		return RegXMM
	}
	return RegGPR
}

// dispatchSecondary implements the 0x0F escape described in spec.md §4.1:
// 3DNow!, 0F38, 0F3A, or the plain two-byte base table with REP/REPNE/
// operand-size overlay selection.
func (d *Decoder) dispatchSecondary(c *cursor, flags *DecodeFlags) (entry *TableEntry, fatal bool) {
	next, ok := c.readByte()
	if !ok {
		return entryUnknown, true
	}

	switch next {
	case 0x0F:
		// 3DNow!: ModR/M, SIB and displacement are decoded first, then the
		// trailing opcode byte (after the displacement) is peeked and
		// consumed, per spec.md §4.1.
		_, _, _, _, _, ok := resolveModRM(c, *flags)
		if !ok {
			return entryUnknown, true
		}
		trailing, ok := c.readByte()
		if !ok {
			return entryUnknown, true
		}
		return d.tables.DDDNowOps[trailing], false

	case 0x38:
		nb, ok := c.readByte()
		if !ok {
			return entryUnknown, true
		}
		prefixIndex := 0
		switch {
		case flags.RepNE:
			prefixIndex = 2
		case flags.OperandSizeOverride:
			prefixIndex = 1
		}
		return d.tables.H0F38TableOps[(prefixIndex<<8)|int(nb)], false

	case 0x3A:
		nb, ok := c.readByte()
		if !ok {
			return entryUnknown, true
		}
		prefixFlags := 0
		if flags.OperandSizeOverride {
			prefixFlags |= 1
		}
		if flags.RexW {
			prefixFlags |= 2
		}
		return d.tables.H0F3ATableOps[(prefixFlags<<8)|int(nb)], false

	default:
		base := d.tables.SecondBaseOps[next]
		if base == nil {
			return entryUnknown, false
		}
		if base.Kind == KindNoOverlay {
			return base, false
		}
		switch flags.LastEscapePrefix {
		case 0xF3:
			if e, ok := d.tables.RepModOps[next]; ok {
				flags.Rep = false
				return e, false
			}
		case 0xF2:
			if e, ok := d.tables.RepNEModOps[next]; ok {
				flags.RepNE = false
				return e, false
			}
		case 0x66:
			if e, ok := d.tables.OpSizeModOps[next]; ok {
				flags.OperandSizeOverride = false
				return e, false
			}
		}
		return base, false
	}
}

// dispatchVEX implements the VEX half of spec.md §4.1's "VEX/EVEX" rule:
// having already read the VEX prefix bytes, read the trailing VEXOp byte
// and index the VEX table. map_select outside {1,2,3} is a fatal
// assertion, per spec.md §4.1/§7.
func (d *Decoder) dispatchVEX(c *cursor, vp vexPrefix, flags *DecodeFlags) (entry *TableEntry, fatal bool) {
	validateMapSelect(vp.mapSelect)

	flags.HasREX = true
	flags.RexW = vp.rexW
	flags.RexR = vp.rexR
	flags.RexX = vp.rexX
	flags.RexB = vp.rexB

	vexOp, ok := c.readByte()
	if !ok {
		return entryUnknown, true
	}
	e := d.tables.VEXTableOps[vexTableIndex(vp.mapSelect, vp.pp, vexOp)]
	if e == nil {
		return entryUnknown, false
	}
	return e, false
}

// dispatchEVEX mirrors dispatchVEX for the three-payload-byte EVEX form.
func (d *Decoder) dispatchEVEX(c *cursor, ep evexPayload, flags *DecodeFlags) (entry *TableEntry, fatal bool) {
	validateMapSelect(ep.mapSelect)

	flags.HasREX = true
	flags.RexW = ep.rexW
	flags.RexR = ep.rexR
	flags.RexX = ep.rexX
	flags.RexB = ep.rexB

	evexOp, ok := c.readByte()
	if !ok {
		return entryUnknown, true
	}
	e := d.tables.EVEXTableOps[vexTableIndex(ep.mapSelect, ep.pp, evexOp)]
	if e == nil {
		return entryUnknown, false
	}
	return e, false
}

// resolveGroup reads ModR/M and computes the spec.md §4.1 group-table
// index for a "Group 1..11" entry.
func (d *Decoder) resolveGroup(c *cursor, flags *DecodeFlags, inst *DecodedInst, group *TableEntry) (*TableEntry, bool) {
	operand, reg, sibByte, sibValid, modrmByte, ok := resolveModRM(c, *flags)
	if !ok {
		return nil, false
	}
	inst.ModRM = modrmByte
	inst.ModRMValid = true
	inst.SIB = sibByte
	inst.SIBValid = sibValid
	inst.Dst = operand

	m := splitModRM(modrmByte)
	idx := primaryGroupIndex(group.GroupNumber, 0, int(m.reg))
	_ = reg
	found := d.tables.PrimaryInstGroupOps[idx]
	if found == nil || found.Kind == KindUnknown {
		return entryUnknown, true
	}
	// The group's own opcode byte carries the operand-size/immediate
	// shape (e.g. 0x80 vs 0x81 vs 0x83 for Group 1); the table slot
	// selected by ModRM.reg only carries the mnemonic. Combine them into
	// a fresh entry rather than mutating the shared, process-wide table
	// slot.
	resolved := *found
	resolved.DstSize = group.DstSize
	resolved.SrcSize = group.DstSize
	resolved.ImmBytes = group.ImmBytes
	resolved.ImmFlags = group.ImmFlags
	return &resolved, true
}

// resolveSecondGroupModRM reads ModR/M and computes the spec.md §4.1
// "second-group ModRM" index, panicking per the fatal field-mapping
// assertion when ModRM.reg maps to the invalid marker.
func (d *Decoder) resolveSecondGroupModRM(c *cursor, flags *DecodeFlags, inst *DecodedInst) (*TableEntry, bool) {
	operand, _, sibByte, sibValid, modrmByte, ok := resolveModRM(c, *flags)
	if !ok {
		return nil, false
	}
	inst.ModRM = modrmByte
	inst.ModRMValid = true
	inst.SIB = sibByte
	inst.SIBValid = sibValid
	inst.Dst = operand

	m := splitModRM(modrmByte)
	field := secondGroupField(m.reg)
	idx := (field << 3) | int(m.rm)
	resolved := d.tables.SecondModRMTableOps[idx]
	if resolved == nil {
		return entryUnknown, true
	}
	return resolved, true
}

// readImmediate reads and sign/size-adjusts the "more bytes" field per
// spec.md §4.1's literal/immediate reading rule.
func (d *Decoder) readImmediate(c *cursor, entry *TableEntry, flags DecodeFlags) (LiteralOperand, bool) {
	size := entry.ImmBytes
	if entry.ImmFlags&ImmDisplaceSizeMul2 != 0 && flags.RexW {
		size *= 2
	}
	if entry.ImmFlags&ImmDisplaceSizeDiv2 != 0 && flags.OperandSizeOverride {
		size /= 2
	}
	if entry.ImmFlags&ImmMemOffset != 0 && flags.AddressSizeOverride {
		size /= 2
	}
	if size <= 0 {
		return LiteralOperand{}, true
	}

	raw, ok := c.readN(size)
	if !ok {
		return LiteralOperand{}, false
	}

	value := raw
	if entry.ImmFlags&ImmSrcSext != 0 || (entry.ImmFlags&ImmSrcSext64Bit != 0 && entry.DstSize == SizeDefault64) {
		value = uint64(signExtend(raw, size))
	}
	return LiteralOperand{Value: value, Size: size}, true
}
