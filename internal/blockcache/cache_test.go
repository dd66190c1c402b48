/*
 * x86xlate - BlockCache tests.
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

package blockcache

import "testing"

func smallConfig(l1Bits, arenaPages int) Config {
	return Config{
		VirtualMemSize: 1 << 24,
		L1Bits:         l1Bits,
		ArenaPages:     arenaPages,
	}
}

// Scenario D: L1 conflict between two addresses sharing an L1 index is
// absorbed by the page-level fallback.
func TestScenarioDCacheConflict(t *testing.T) {
	c := New(smallConfig(20, 64))

	if got := c.AddBlockMapping(0x0, 0x1000); got != 0x1000 {
		t.Fatalf("insert(0x0) = %d, want 0x1000", got)
	}
	if got := c.AddBlockMapping(0x100000, 0x2000); got != 0x2000 {
		t.Fatalf("insert(0x100000) = %d, want 0x2000", got)
	}

	// Promote 0x100000 into L1; it shares the same L1 index as 0x0 since
	// L1_MASK = 2^20-1 and 0x100000 = 2^20.
	if got := c.FindBlock(0x100000); got != 0x2000 {
		t.Fatalf("FindBlock(0x100000) = %d, want 0x2000", got)
	}

	// 0x0's mapping survives via the page level despite the L1 conflict.
	if got := c.FindBlock(0x0); got != 0x1000 {
		t.Fatalf("FindBlock(0x0) = %d, want 0x1000 (page-level fallback)", got)
	}
	if got := c.FindBlock(0x100000); got != 0x2000 {
		t.Fatalf("FindBlock(0x100000) = %d, want 0x2000", got)
	}
}

// Scenario E: arena exhaustion returns 0, and ClearCache makes room again.
func TestScenarioECacheExhaustion(t *testing.T) {
	const n = 4
	c := New(smallConfig(8, n))

	for i := 0; i < n; i++ {
		pc := uint64(i) << 12 // one distinct page per insertion
		if got := c.AddBlockMapping(pc, pc+1); got != pc+1 {
			t.Fatalf("insert %d: got %d, want %d", i, got, pc+1)
		}
	}

	exhaustedPC := uint64(n) << 12
	if got := c.AddBlockMapping(exhaustedPC, 0xdead); got != 0 {
		t.Fatalf("insert past capacity: got %d, want 0 (exhausted)", got)
	}

	c.ClearCache()

	if got := c.AddBlockMapping(exhaustedPC, 0xbeef); got != 0xbeef {
		t.Fatalf("insert after ClearCache: got %d, want 0xbeef", got)
	}
}

// Property 2/7: two addresses aliasing the same L1 index both keep their
// mappings across interleaved insertions and lookups.
func TestL1AliasingIsTransparent(t *testing.T) {
	c := New(smallConfig(4, 16)) // L1 has 16 slots; 0x10 and 0x20 both hash to index 0.
	p1, p2 := uint64(0x10), uint64(0x20)

	c.AddBlockMapping(p1, 0x111)
	c.AddBlockMapping(p2, 0x222)

	if got := c.FindBlock(p1); got != 0x111 {
		t.Errorf("FindBlock(p1) = %d, want 0x111", got)
	}
	if got := c.FindBlock(p2); got != 0x222 {
		t.Errorf("FindBlock(p2) = %d, want 0x222", got)
	}
	// Re-check p1 after p2 was promoted into the shared L1 slot.
	if got := c.FindBlock(p1); got != 0x111 {
		t.Errorf("FindBlock(p1) after p2 promotion = %d, want 0x111", got)
	}
}

// Property 3: erasing one address does not disturb another.
func TestEraseLocality(t *testing.T) {
	c := New(smallConfig(10, 16))
	c.AddBlockMapping(0x1000, 0xaaa)
	c.AddBlockMapping(0x2000, 0xbbb)
	c.FindBlock(0x1000)
	c.FindBlock(0x2000)

	c.Erase(0x1000)

	if got := c.FindBlock(0x1000); got != 0 {
		t.Errorf("FindBlock(erased) = %d, want 0", got)
	}
	if got := c.FindBlock(0x2000); got != 0xbbb {
		t.Errorf("FindBlock(untouched) = %d, want 0xbbb", got)
	}
}

// Property 4: bulk clear forgets everything.
func TestBulkClearTotality(t *testing.T) {
	c := New(smallConfig(10, 16))
	inserted := []uint64{0x1000, 0x2000, 0x3000, 0x4000}
	for i, pc := range inserted {
		c.AddBlockMapping(pc, uint64(i)+1)
		c.FindBlock(pc)
	}

	c.ClearCache()

	for _, pc := range inserted {
		if got := c.FindBlock(pc); got != 0 {
			t.Errorf("FindBlock(%d) after ClearCache = %d, want 0", pc, got)
		}
	}
	stats := c.Stats()
	if stats.L1Occupancy != 0 || stats.PagesMapped != 0 || stats.ArenaUsed != 0 {
		t.Errorf("Stats() after ClearCache = %+v, want all zero", stats)
	}
}

// Guest PC 0 is a valid, distinctly-trackable address, not indistinguishable
// from an empty slot.
func TestGuestAddressZeroIsNotConfusedWithEmpty(t *testing.T) {
	c := New(smallConfig(10, 16))
	if got := c.FindBlock(0); got != 0 {
		t.Fatalf("FindBlock(0) on empty cache = %d, want 0", got)
	}
	c.AddBlockMapping(0, 0x777)
	if got := c.FindBlock(0); got != 0x777 {
		t.Errorf("FindBlock(0) after insert = %d, want 0x777", got)
	}
}

func TestHintUsedRangeIsNoOp(t *testing.T) {
	c := New(smallConfig(10, 16))
	c.AddBlockMapping(0x500, 0x999)
	before := c.Stats()

	c.HintUsedRange(0x500, 0x1000)

	after := c.Stats()
	if before != after {
		t.Errorf("HintUsedRange mutated cache state: before=%+v after=%+v", before, after)
	}
	if got := c.FindBlock(0x500); got != 0x999 {
		t.Errorf("FindBlock(0x500) after HintUsedRange = %d, want 0x999", got)
	}
}
