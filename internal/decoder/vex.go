/*
 * x86xlate - VEX/EVEX/3DNow!/secondary-escape dispatch.
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

import "fmt"

// vexPrefix holds the fields extracted from a two- or three-byte VEX
// prefix, before the trailing opcode byte is read.
type vexPrefix struct {
	mapSelect int // 1, 2 or 3
	pp        int // 0..3
	vvvv      uint8
	rexW      bool
	rexR      bool
	rexX      bool
	rexB      bool
}

// decodeVEX2 extracts fields from the two-byte VEX form (0xC5 byte2):
// bit7=R, bits6:3=vvvv, bit2=L, bits1:0=pp. map_select is always 1.
func decodeVEX2(b2 byte) vexPrefix {
	return vexPrefix{
		mapSelect: 1,
		pp:        int(b2 & 0x3),
		vvvv:      (b2 >> 3) & 0xF,
		rexR:      b2&0x80 == 0,
	}
}

// decodeVEX3 extracts fields from the three-byte VEX form (0xC4 bytes 2,3):
// byte2: bit7=R, bit6=X, bit5=B, bits4:0=map_select.
// byte3: bit7=W, bits6:3=vvvv, bit2=L, bits1:0=pp.
func decodeVEX3(b2, b3 byte) vexPrefix {
	return vexPrefix{
		mapSelect: int(b2 & 0x1F),
		pp:        int(b3 & 0x3),
		vvvv:      (b3 >> 3) & 0xF,
		rexW:      b3&0x80 != 0,
		rexR:      b2&0x80 == 0,
		rexX:      b2&0x40 == 0,
		rexB:      b2&0x20 == 0,
	}
}

// vexTableIndex computes the spec.md §4.1 VEX/EVEX table index:
// ((map_select-1)<<10) | (pp<<8) | opcode.
func vexTableIndex(mapSelect, pp int, opcode byte) int {
	return ((mapSelect - 1) << 10) | (pp << 8) | int(opcode)
}

// validateMapSelect panics if map_select falls outside {1,2,3}, per the
// fatal VEX assertion named in spec.md §4.1/§7.
func validateMapSelect(mapSelect int) {
	if mapSelect < 1 || mapSelect > 3 {
		panic(fmt.Sprintf("decoder: VEX map_select %d outside {1,2,3}", mapSelect))
	}
}

// secondGroupField maps ModRM.reg to the 3-bit "field" consulted by
// SecondModRMTableOps, panicking on the {0,4,5,6} holes per the fatal
// "second-group ModRM" assertion named in spec.md §4.1/§7.
func secondGroupField(reg byte) int {
	f := fieldFromReg(reg)
	if f == 255 {
		panic(fmt.Sprintf("decoder: second-group ModRM field for reg=%d is invalid marker 255", reg))
	}
	return f
}

// evexPayload holds the three EVEX payload bytes' decoded fields. spec.md
// §4.1 specifies the read shape (three payload bytes, one opcode byte,
// consult the EVEX table) but not the bit layout; this follows the
// standard Intel SDM EVEX.P0/P1/P2 field positions, reusing the VEX
// table-index formula for a single consistent dispatch mechanism.
type evexPayload struct {
	mapSelect int
	pp        int
	rexW      bool
	rexR      bool
	rexX      bool
	rexB      bool
}

func decodeEVEXPayload(p0, p1, p2 byte) evexPayload {
	return evexPayload{
		mapSelect: int(p0 & 0x7),
		pp:        int(p1 & 0x3),
		rexW:      p1&0x80 != 0,
		rexR:      p0&0x80 == 0,
		rexX:      p0&0x40 == 0,
		rexB:      p0&0x20 == 0,
	}
}
