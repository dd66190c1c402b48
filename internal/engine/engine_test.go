/*
 * x86xlate - Engine tests.
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

package engine

import (
	"testing"

	"github.com/rcornwell/x86xlate/internal/blockcache"
	"github.com/rcornwell/x86xlate/internal/decoder"
)

func newTestEngine() *Engine {
	tables := decoder.NewTables(decoder.Mode64Bit)
	cfg := Config{
		Decoder: decoder.DefaultConfig(decoder.Mode64Bit),
		Cache: blockcache.Config{
			VirtualMemSize: 1 << 24,
			L1Bits:         10,
			ArenaPages:     16,
		},
		InlineConstants: true,
	}
	return New(tables, cfg, nil, nil)
}

func TestTranslateThenLookupHitsCache(t *testing.T) {
	e := newTestEngine()
	bytes := []byte{0x48, 0xB8, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	host1, err := e.Translate(0x1000, bytes)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if host1 == 0 {
		t.Fatal("Translate returned a zero host pointer")
	}

	if got := e.Cache().FindBlock(0x1000); got != host1 {
		t.Fatalf("FindBlock after Translate = %d, want %d", got, host1)
	}

	host2, err := e.Lookup(0x1000, bytes)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if host2 != host1 {
		t.Errorf("Lookup on a cached entry returned %d, want %d (no retranslation)", host2, host1)
	}
}

func TestLookupMissTranslates(t *testing.T) {
	e := newTestEngine()
	bytes := []byte{0x66, 0xB8, 0x34, 0x12}

	host, err := e.Lookup(0x2000, bytes)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if host == 0 {
		t.Fatal("Lookup returned a zero host pointer on a fresh entry")
	}
}

func TestTranslateFailsCleanlyOnUnknownOpcode(t *testing.T) {
	e := newTestEngine()
	bytes := []byte{0x0F, 0xFF, 0xFF}

	if _, err := e.Translate(0x3000, bytes); err == nil {
		t.Fatal("expected Translate to report a decode error for an unknown opcode")
	}
	if got := e.Cache().FindBlock(0x3000); got != 0 {
		t.Errorf("a failed translation must not be cached, got %d", got)
	}
}
