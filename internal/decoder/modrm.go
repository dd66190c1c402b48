/*
 * x86xlate - ModR/M and SIB effective-address resolution.
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

// modRM splits a raw ModR/M byte into its three fields.
type modRM struct {
	mod byte // bits 7:6
	reg byte // bits 5:3
	rm  byte // bits 2:0
}

func splitModRM(b byte) modRM {
	return modRM{mod: (b >> 6) & 0x3, reg: (b >> 3) & 0x7, rm: b & 0x7}
}

// sib splits a raw SIB byte into its three fields.
type sib struct {
	scale byte // bits 7:6
	index byte // bits 5:3
	base  byte // bits 2:0
}

func splitSIB(b byte) sib {
	return sib{scale: (b >> 6) & 0x3, index: (b >> 3) & 0x7, base: b & 0x7}
}

// dispSize returns the displacement byte count implied by mod/rm alone,
// before the SIB byte (if any) is consulted. Returns 0 for "none yet
// known" which resolveModRM then refines using the SIB base field.
func dispSize(m modRM) int {
	switch {
	case m.mod == 1:
		return 1
	case m.mod == 2:
		return 4
	case m.mod == 0 && m.rm == 5:
		return 4
	default:
		return 0
	}
}

// hasSIB reports whether a SIB byte follows the ModR/M byte.
func hasSIB(m modRM) bool {
	return m.mod != 3 && m.rm == 4
}

// byteReader is the minimal cursor the ModR/M/SIB resolver needs over the
// guest instruction bytes; decoder.go's instruction cursor implements it.
type byteReader interface {
	readByte() (byte, bool)
	peekByte() (byte, bool)
	readInt32() (int32, bool)
}

// resolveModRM reads the ModR/M byte (and SIB and displacement, if any)
// from r, applies REX extension, and returns the resulting operand plus
// bookkeeping needed by DecodedInst. rm and reg are both REX-extended
// register indices on return; reg is the "middle" field used either as a
// second register operand or as a group-table selector by the caller.
func resolveModRM(r byteReader, flags DecodeFlags) (operand Operand, reg uint8, sibByte byte, sibValid bool, modrmByte byte, ok bool) {
	raw, ok := r.readByte()
	if !ok {
		return nil, 0, 0, false, 0, false
	}
	m := splitModRM(raw)
	reg = m.reg
	if flags.RexR {
		reg |= 0x8
	}

	if m.mod == 3 {
		idx := m.rm
		if flags.RexB {
			idx |= 0x8
		}
		return GPROperand{Kind: RegGPR, Index: idx}, reg, 0, false, raw, true
	}

	var sb sib
	var haveSIB bool
	if hasSIB(m) {
		sByte, ok := r.readByte()
		if !ok {
			return nil, 0, 0, false, raw, false
		}
		sb = splitSIB(sByte)
		haveSIB = true
		sibByte = sByte
		sibValid = true
	}

	size := dispSize(m)
	if haveSIB && m.mod == 0 && sb.base == 5 {
		size = 4
	}

	var disp int32
	if size == 1 {
		b, ok := r.readByte()
		if !ok {
			return nil, 0, 0, false, raw, false
		}
		disp = int32(int8(b))
	} else if size == 4 {
		v, ok := r.readInt32()
		if !ok {
			return nil, 0, 0, false, raw, false
		}
		disp = v
	}

	switch {
	case !haveSIB && m.mod == 0 && m.rm == 5:
		return RIPRelativeOperand{Disp: disp}, reg, sibByte, sibValid, raw, true

	case haveSIB && m.mod == 0 && m.rm == 4:
		index := sb.index
		if flags.RexX {
			index |= 0x8
		}
		idxReg := uint8(InvalidReg)
		if index != 4 {
			idxReg = index
		}

		baseReg := uint8(InvalidReg)
		if !(m.mod == 0 && sb.base == 5) {
			b := sb.base
			if flags.RexB {
				b |= 0x8
			}
			baseReg = b
		}

		scale := uint8(1) << sb.scale
		return SIBOperand{Scale: scale, Index: idxReg, Base: baseReg, Offset: disp}, reg, sibByte, sibValid, raw, true

	default:
		idx := m.rm
		if flags.RexB {
			idx |= 0x8
		}
		if disp == 0 {
			return GPRDirectOperand{Index: idx}, reg, sibByte, sibValid, raw, true
		}
		return GPRIndirectOperand{Index: idx, Disp: disp}, reg, sibByte, sibValid, raw, true
	}
}
