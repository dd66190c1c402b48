/*
 * x86xlate - Two-level guest-PC to host-code translation cache.
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

// Package blockcache maps guest instruction-pointer values to translated
// host code pointers with O(1) lookup, O(1) single-address invalidation,
// and bounded memory consumption via a bump-allocated arena of page blocks.
package blockcache

import "sync/atomic"

const (
	// pageSize is the number of BlockCacheEntry slots per page block,
	// indexed by PC & 0xFFF.
	pageSize = 4096

	// defaultL1Bits sizes L1 at 2^20 direct-mapped slots.
	defaultL1Bits = 20
)

// entry is one {GuestCode, HostCode} slot. The two words are updated with
// an explicit ordering discipline per spec.md §5: writers publish HostCode
// before GuestCode; readers check GuestCode before consuming HostCode. A
// reader racing a writer therefore either sees the old GuestCode (a clean
// miss) or the new GuestCode paired with the new HostCode — never a new
// GuestCode paired with a stale HostCode.
type entry struct {
	hostCode  atomic.Uint64
	guestCode atomic.Uint64
}

func (e *entry) load() (guest, host uint64) {
	guest = e.guestCode.Load()
	host = e.hostCode.Load()
	return guest, host
}

func (e *entry) store(guest, host uint64) {
	e.hostCode.Store(host)
	e.guestCode.Store(guest)
}

func (e *entry) clear() {
	e.guestCode.Store(0)
	e.hostCode.Store(0)
}

// pageBlock is one arena-allocated page of translation-cache entries.
type pageBlock struct {
	slots [pageSize]entry
}

// Config bounds the cache's address space and backing arena.
type Config struct {
	// VirtualMemSize is the guest address space size; must be a power of two.
	VirtualMemSize uint64
	// L1Bits sizes the direct-mapped L1 table to 2^L1Bits entries.
	L1Bits int
	// ArenaPages bounds the number of page blocks the arena can hand out
	// before AddBlockMapping starts reporting exhaustion (CODE_SIZE).
	ArenaPages int
}

// DefaultConfig returns the spec's named defaults: a 2^32 guest address
// space, a 2^20-entry L1, and an arena sized for 128 MiB worth of entries.
func DefaultConfig() Config {
	const entrySize = 16 // two uint64 words
	return Config{
		VirtualMemSize: 1 << 32,
		L1Bits:         defaultL1Bits,
		ArenaPages:     (128 * 1024 * 1024) / (entrySize * pageSize),
	}
}

// Cache is the two-level translation-block cache: a direct-mapped L1 for
// the hot lookup path, and an authoritative page-pointer table backed by
// a bounded, monotone-increasing arena.
type Cache struct {
	config Config
	l1Mask uint64
	vmMask uint64

	l1 []entry

	pageTable []atomic.Pointer[pageBlock]

	arena     []pageBlock
	arenaNext atomic.Int64 // next free index into arena; only grows until ClearCache resets it to 0

	l1Occupancy atomic.Int64
}

// New builds a Cache sized per config. The arena is allocated up front
// (capacity ArenaPages) and handed out one page block at a time via bump
// allocation, matching spec.md §4.2's "bounded arena" design.
func New(config Config) *Cache {
	c := &Cache{
		config:    config,
		l1Mask:    (uint64(1) << config.L1Bits) - 1,
		vmMask:    config.VirtualMemSize - 1,
		l1:        make([]entry, uint64(1)<<config.L1Bits),
		pageTable: make([]atomic.Pointer[pageBlock], (config.VirtualMemSize)>>12),
		arena:     make([]pageBlock, config.ArenaPages),
	}
	return c
}

// FindBlock returns the host code pointer mapped to PC, or 0 on a miss.
//
// A slot is "occupied" when HostCode != 0 (host code pointer 0 is never a
// valid translation, per the same convention AddBlockMapping/FindBlock use
// to signal exhaustion and miss) rather than when GuestCode != 0: guest PC
// 0 is itself a perfectly valid address to translate, and a zero-valued
// GuestCode word is indistinguishable from an untouched slot.
func (c *Cache) FindBlock(pc uint64) uint64 {
	l1Slot := &c.l1[pc&c.l1Mask]
	if guest, host := l1Slot.load(); guest == pc && host != 0 {
		return host
	}

	a := pc & c.vmMask
	page := a >> 12
	offset := a & 0xFFF

	pb := c.pageTable[page].Load()
	if pb == nil {
		return 0
	}
	slot := &pb.slots[offset]
	guest, host := slot.load()
	if guest != pc || host == 0 {
		return 0
	}
	c.promoteL1(l1Slot, guest, host)
	return host
}

// promoteL1 writes guest/host into an L1 slot, adjusting the occupancy
// counter by whether the slot held a live mapping beforehand.
func (c *Cache) promoteL1(l1Slot *entry, guest, host uint64) {
	_, prevHost := l1Slot.load()
	l1Slot.store(guest, host)
	if prevHost == 0 {
		c.l1Occupancy.Add(1)
	}
}

// invalidateL1 zeroes an L1 slot, adjusting the occupancy counter if it
// held a live mapping.
func (c *Cache) invalidateL1(l1Slot *entry) {
	_, prevHost := l1Slot.load()
	l1Slot.clear()
	if prevHost != 0 {
		c.l1Occupancy.Add(-1)
	}
}

// AddBlockMapping records PC -> hostPtr. Returns hostPtr on success, or 0
// if the arena is exhausted (the caller must flush via ClearCache and
// retry). The new entry is not pre-loaded into L1; it is promoted on the
// next FindBlock per spec.md §4.2.
func (c *Cache) AddBlockMapping(pc, hostPtr uint64) uint64 {
	l1Slot := &c.l1[pc&c.l1Mask]
	if guest, _ := l1Slot.load(); guest == pc {
		c.invalidateL1(l1Slot)
	}

	a := pc & c.vmMask
	page := a >> 12
	offset := a & 0xFFF

	pb := c.pageTable[page].Load()
	if pb == nil {
		newPB, ok := c.allocPage()
		if !ok {
			return 0
		}
		if !c.pageTable[page].CompareAndSwap(nil, newPB) {
			newPB = c.pageTable[page].Load()
		}
		pb = newPB
	}

	pb.slots[offset].store(pc, hostPtr)
	return hostPtr
}

// allocPage bump-allocates one page block from the arena, or reports
// exhaustion.
func (c *Cache) allocPage() (*pageBlock, bool) {
	idx := c.arenaNext.Add(1) - 1
	if idx >= int64(len(c.arena)) {
		return nil, false
	}
	return &c.arena[idx], true
}

// Erase invalidates the single mapping for PC, in both L1 and the
// authoritative page block, reclaiming no arena memory.
func (c *Cache) Erase(pc uint64) {
	l1Slot := &c.l1[pc&c.l1Mask]
	if guest, _ := l1Slot.load(); guest == pc {
		c.invalidateL1(l1Slot)
	}

	a := pc & c.vmMask
	page := a >> 12
	offset := a & 0xFFF
	if pb := c.pageTable[page].Load(); pb != nil {
		pb.slots[offset].clear()
	}
}

// ClearCache zeroes the L1 table and the page-pointer table and resets the
// arena bump pointer. Backing arena memory is retained. Callers must
// quiesce guest execution threads before calling this, per spec.md §5.
func (c *Cache) ClearCache() {
	for i := range c.l1 {
		c.l1[i].clear()
	}
	for i := range c.pageTable {
		c.pageTable[i].Store(nil)
	}
	c.arenaNext.Store(0)
	c.l1Occupancy.Store(0)
}

// HintUsedRange is a documented no-op observable signal used by callers to
// warm or pre-touch memory ahead of translation; it is not required for
// correctness and never mutates cache state.
func (c *Cache) HintUsedRange(addr, size uint64) {
}

// Stats is a read-only introspection snapshot, used by the CLI stats
// command and by tests asserting bulk-clear totality.
type Stats struct {
	L1Occupancy   int
	PagesMapped   int
	ArenaUsed     int
	ArenaCapacity int
}

// Stats returns a point-in-time snapshot of L1, arena and page-table
// occupancy. It never blocks and never mutates cache state: L1Occupancy is
// a running atomic counter maintained by FindBlock/Erase/ClearCache rather
// than a scan, and PagesMapped is a lock-free scan of page-table pointers.
func (c *Cache) Stats() Stats {
	pagesMapped := 0
	for i := range c.pageTable {
		if c.pageTable[i].Load() != nil {
			pagesMapped++
		}
	}
	used := int(c.arenaNext.Load())
	if used > len(c.arena) {
		used = len(c.arena)
	}
	return Stats{
		L1Occupancy:   int(c.l1Occupancy.Load()),
		PagesMapped:   pagesMapped,
		ArenaUsed:     used,
		ArenaCapacity: len(c.arena),
	}
}
