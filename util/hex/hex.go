/*
 * x86xlate - Convert binary values to hex strings.
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

package hex

import "strings"

var hexMap = "0123456789ABCDEF"

// FormatByte appends the two hex digits of data to str.
func FormatByte(str *strings.Builder, data byte) {
	str.WriteByte(hexMap[(data>>4)&0xf])
	str.WriteByte(hexMap[data&0xf])
}

// FormatBytes appends the hex digits of data to str, space separated when space is set.
func FormatBytes(str *strings.Builder, space bool, data []byte) {
	for i, by := range data {
		if space && i != 0 {
			str.WriteByte(' ')
		}
		FormatByte(str, by)
	}
}

// FormatQWord appends a 64-bit value as 16 hex digits, most significant first.
func FormatQWord(str *strings.Builder, value uint64) {
	shift := 60
	for range 16 {
		str.WriteByte(hexMap[(value>>shift)&0xf])
		shift -= 4
	}
}

// FormatAddr renders a guest address as a 0x-prefixed fixed-width hex string.
func FormatAddr(addr uint64) string {
	var b strings.Builder
	b.WriteString("0x")
	FormatQWord(&b, addr)
	return b.String()
}
