/*
 * x86xlate - Translation engine: lookup/decode/optimize/insert orchestration.
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

// Package engine wires the decoder, the two-level block cache and the
// optimization pass manager into the lookup -> miss -> decode -> IR ->
// optimize -> backend -> insert pipeline named in spec.md §2. The host
// code generator itself stays an external collaborator: callers supply a
// Backend, and a StubBackend is provided for the CLI's dry-run mode and
// for tests that want to exercise the pipeline end to end.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rcornwell/x86xlate/internal/blockcache"
	"github.com/rcornwell/x86xlate/internal/decoder"
	"github.com/rcornwell/x86xlate/internal/ir"
	"github.com/rcornwell/x86xlate/internal/passmanager"
)

// Backend turns an optimized IR function plus its originating decoded
// blocks into a host code pointer. The real JIT backend is out of scope
// per spec.md §1; this interface is the seam a downstream code generator
// would implement.
type Backend interface {
	Emit(fn *ir.Function, blocks []decoder.DecodedBlock) (uint64, error)
}

// StubBackend is not a code generator: it hands back a distinct,
// monotonically increasing fake host pointer per call so the rest of the
// pipeline (cache insertion, CLI stats, dry-run disassembly) has
// something to exercise without a real JIT.
type StubBackend struct {
	next uint64
	mu   sync.Mutex
}

// Emit returns the next fake host pointer, starting at 0x1000 so 0 stays
// reserved as blockcache's miss/exhaustion sentinel.
func (s *StubBackend) Emit(fn *ir.Function, blocks []decoder.DecodedBlock) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == 0 {
		s.next = 0x1000
	}
	ptr := s.next
	s.next += 0x100
	return ptr, nil
}

// Config bundles the per-engine settings the decoder, cache and pass
// manager each need, per config/engineconfig's parsed directives.
type Config struct {
	Decoder    decoder.Config
	Cache      blockcache.Config
	Assertions bool

	InlineConstants bool
	StaticRA        bool
	DynamicRA       bool
}

// Engine is the synchronous, single-threaded-cooperative orchestrator
// described in spec.md §5: decode, IR build, optimize and cache-insert
// all run inline on the calling (translating) goroutine. Concurrent
// translation requests for the same PC are serialized by translateMu;
// BlockCache.FindBlock itself remains lock-free for guest-execution
// threads racing a translation in progress.
type Engine struct {
	tables  *decoder.Tables
	config  Config
	cache   *blockcache.Cache
	passes  *passmanager.Manager
	backend Backend
	log     *slog.Logger

	translateMu sync.Mutex
}

// New builds an Engine. backend may be nil, in which case a StubBackend
// is installed.
func New(tables *decoder.Tables, config Config, backend Backend, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if backend == nil {
		backend = &StubBackend{}
	}
	passes := passmanager.NewManager(config.Assertions, log.With("module", "passmanager"))
	passes.AddDefaultPasses(config.InlineConstants, config.StaticRA, config.DynamicRA)
	passes.AddDefaultValidationPasses()

	return &Engine{
		tables:  tables,
		config:  config,
		cache:   blockcache.New(config.Cache),
		passes:  passes,
		backend: backend,
		log:     log,
	}
}

// Cache exposes the underlying BlockCache for the CLI's lookup/stats/
// flush commands and for the SMC checker's Erase calls.
func (e *Engine) Cache() *blockcache.Cache {
	return e.cache
}

// Translate runs the full pipeline for entry pc against guestBytes
// (guestBytes[0] must correspond to guest address pc) and returns the
// host code pointer, inserting it into the cache. After taking the
// translation lock it checks the cache once, so a mapping already present
// for pc is returned without decoding guestBytes again. Callers on the hot
// path should still call FindBlock (or Lookup) first and only fall to
// Translate on a miss, per spec.md §2's lookup -> miss -> ... flow.
func (e *Engine) Translate(pc uint64, guestBytes []byte) (uint64, error) {
	e.translateMu.Lock()
	defer e.translateMu.Unlock()

	// Another goroutine may have completed this translation while we
	// waited for the lock.
	if host := e.cache.FindBlock(pc); host != 0 {
		return host, nil
	}

	d := decoder.NewDecoder(e.tables, e.config.Decoder, e.log.With("module", "decoder"))
	if !d.DecodeInstructionsAtEntry(guestBytes, pc) {
		return 0, fmt.Errorf("engine: decode failed at entry 0x%x", pc)
	}
	blocks := d.DecodedBlocks()

	fn := buildIR(blocks)
	e.passes.Run(ir.NewEmitter(fn))

	host, err := e.backend.Emit(fn, blocks)
	if err != nil {
		return 0, fmt.Errorf("engine: backend failed at entry 0x%x: %w", pc, err)
	}

	if e.cache.AddBlockMapping(pc, host) == 0 {
		e.log.Warn("block cache exhausted, flushing", "pc", pc)
		e.cache.ClearCache()
		if e.cache.AddBlockMapping(pc, host) == 0 {
			return 0, fmt.Errorf("engine: block cache exhausted immediately after flush")
		}
	}

	return host, nil
}

// Lookup is the hot-path entry point: FindBlock on a hit, Translate on a
// miss.
func (e *Engine) Lookup(pc uint64, guestBytes []byte) (uint64, error) {
	if host := e.cache.FindBlock(pc); host != 0 {
		return host, nil
	}
	return e.Translate(pc, guestBytes)
}

// buildIR lowers decoded blocks into the minimal IR: for each register
// destination, an opaque per-instruction definition node (whose operand is
// a constant node when the first source is a literal) followed by a
// context-store of that definition. This is a
// loose, instruction-shape-preserving lowering for PassManager to
// operate against; it is not a specification of real x86 semantics.
func buildIR(blocks []decoder.DecodedBlock) *ir.Function {
	fn := &ir.Function{Blocks: make([]ir.Block, len(blocks))}
	for bi, db := range blocks {
		blk := &fn.Blocks[bi]
		blk.Entry = db.Entry
		for _, inst := range db.DecodedInstructions {
			srcIdx := -1
			if inst.NumSrc > 0 {
				if lit, ok := inst.Src[0].(decoder.LiteralOperand); ok {
					srcIdx = blk.AddConst(lit.Value)
				}
			}
			dstReg, isReg := inst.Dst.(decoder.GPROperand)
			if !isReg {
				continue
			}
			defOp := ir.OpGPRDef
			ctx := int(dstReg.Index)
			if dstReg.Kind == decoder.RegXMM {
				defOp = ir.OpFPRDef
				ctx = passmanager.FPRCtxBase + int(dstReg.Index)%passmanager.FPRCtxCount
			}
			blk.Nodes = append(blk.Nodes, ir.Node{Op: defOp, Operands: [2]int{srcIdx, -1}})
			defIdx := len(blk.Nodes) - 1
			blk.Nodes = append(blk.Nodes, ir.Node{
				Op:       ir.OpStoreCtx,
				Ctx:      ctx,
				Operands: [2]int{defIdx, -1},
			})
		}
	}
	return fn
}
