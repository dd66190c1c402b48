/*
 * x86xlate - Decoder tests.
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

import "testing"

func newTestDecoder() *Decoder {
	tables := NewTables(Mode64Bit)
	cfg := DefaultConfig(Mode64Bit)
	return NewDecoder(tables, cfg, nil)
}

// Scenario A: REX.W MOV imm64.
func TestDecodeScenarioAREXMovImm64(t *testing.T) {
	d := newTestDecoder()
	bytes := []byte{0x48, 0xB8, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	if !d.DecodeInstructionsAtEntry(bytes, 0x1000) {
		t.Fatal("decode failed")
	}
	blocks := d.DecodedBlocks()
	if len(blocks) != 1 || len(blocks[0].DecodedInstructions) != 1 {
		t.Fatalf("expected exactly one instruction, got %+v", blocks)
	}
	inst := blocks[0].DecodedInstructions[0]
	if inst.InstSize != 10 {
		t.Errorf("InstSize = %d, want 10", inst.InstSize)
	}
	dst, ok := inst.Dst.(GPROperand)
	if !ok || dst.Index != 0 {
		t.Errorf("Dst = %+v, want RAX", inst.Dst)
	}
	if inst.NumSrc != 1 {
		t.Fatalf("NumSrc = %d, want 1", inst.NumSrc)
	}
	lit, ok := inst.Src[0].(LiteralOperand)
	if !ok || lit.Value != 0x0807060504030201 {
		t.Errorf("Src[0] = %+v, want literal 0x0807060504030201", inst.Src[0])
	}
}

// Scenario B: conditional jump short, multi-block discovery. The fall-
// through and branch targets are filled with INT3 so every enqueued block
// decodes to completion within the supplied buffer.
func TestDecodeScenarioBConditionalShortJump(t *testing.T) {
	d := newTestDecoder()
	bytes := []byte{0x74, 0x05, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC}
	if !d.DecodeInstructionsAtEntry(bytes, 0x2000) {
		t.Fatal("decode failed")
	}
	blocks := d.DecodedBlocks()
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks (entry, fallthrough, target), got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Entry != 0x2000 || blocks[1].Entry != 0x2002 || blocks[2].Entry != 0x2007 {
		t.Fatalf("unexpected block entries: 0x%x 0x%x 0x%x", blocks[0].Entry, blocks[1].Entry, blocks[2].Entry)
	}
	if len(blocks[0].DecodedInstructions) != 1 || blocks[0].DecodedInstructions[0].InstSize != 2 {
		t.Fatalf("unexpected first block %+v", blocks[0])
	}
}

// Scenario C: 0x66 prefix narrows MOV imm to 16-bit.
func TestDecodeScenarioCOperandSizeOverride(t *testing.T) {
	d := newTestDecoder()
	bytes := []byte{0x66, 0xB8, 0x34, 0x12}
	if !d.DecodeInstructionsAtEntry(bytes, 0) {
		t.Fatal("decode failed")
	}
	inst := d.DecodedBlocks()[0].DecodedInstructions[0]
	if inst.InstSize != 4 {
		t.Errorf("InstSize = %d, want 4", inst.InstSize)
	}
	if !inst.Flags.OperandSizeOverride {
		t.Error("expected OperandSizeOverride set")
	}
	lit, ok := inst.Src[0].(LiteralOperand)
	if !ok || lit.Value != 0x1234 || lit.Size != 2 {
		t.Errorf("Src[0] = %+v, want literal 0x1234 size 2", inst.Src[0])
	}
}

// Scenario F: VEX dispatch of VZEROUPPER.
func TestDecodeScenarioFVEXDispatch(t *testing.T) {
	d := newTestDecoder()
	bytes := []byte{0xC5, 0xF8, 0x77}
	if !d.DecodeInstructionsAtEntry(bytes, 0) {
		t.Fatal("decode failed")
	}
	inst := d.DecodedBlocks()[0].DecodedInstructions[0]
	if inst.Entry.Mnemonic != "vzeroupper" {
		t.Errorf("Mnemonic = %q, want vzeroupper", inst.Entry.Mnemonic)
	}
	if inst.InstSize != 3 {
		t.Errorf("InstSize = %d, want 3", inst.InstSize)
	}
}

// Property: an unknown opcode byte fails the current block but does not
// panic or corrupt prior results.
func TestDecodeUnknownOpcodeFailsCleanly(t *testing.T) {
	d := newTestDecoder()
	bytes := []byte{0x0F, 0xFF, 0xFF}
	ok := d.DecodeInstructionsAtEntry(bytes, 0)
	if ok {
		t.Error("expected decode to report failure for an unknown two-byte opcode")
	}
}

// Property: register-indirect ModR/M with SIB resolves index/base per the
// documented omission rules.
func TestDecodeModRMSIBAddressing(t *testing.T) {
	d := newTestDecoder()
	// 48 8B 04 25 78 56 34 12 -> REX.W MOV RAX, [0x12345678] (SIB, mod=00, rm=100, base=101=none, index=100=none).
	bytes := []byte{0x48, 0x8B, 0x04, 0x25, 0x78, 0x56, 0x34, 0x12}
	if !d.DecodeInstructionsAtEntry(bytes, 0) {
		t.Fatal("decode failed")
	}
	inst := d.DecodedBlocks()[0].DecodedInstructions[0]
	sib, ok := inst.Dst.(SIBOperand)
	if !ok {
		t.Fatalf("Dst = %+v, want SIBOperand", inst.Dst)
	}
	if sib.Base != InvalidReg || sib.Index != InvalidReg {
		t.Errorf("expected no base/index, got %+v", sib)
	}
	if sib.Offset != 0x12345678 {
		t.Errorf("Offset = 0x%x, want 0x12345678", sib.Offset)
	}
}

func TestConditionNameCoversAllCodes(t *testing.T) {
	seen := map[string]bool{}
	for cc := 0; cc < 16; cc++ {
		name := conditionName(cc)
		if name == "" {
			t.Errorf("conditionName(%d) is empty", cc)
		}
		seen[name] = true
	}
	if len(seen) != 16 {
		t.Errorf("expected 16 distinct condition mnemonics, got %d", len(seen))
	}
}
