/*
 * x86xlate - Optimization pass manager: concrete passes.
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

package passmanager

import "github.com/rcornwell/x86xlate/internal/ir"

// Context-slot class partitioning. The minimal IR's Node.Ctx field is a
// flat int; GPR and FPR context stores/loads are distinguished by range
// rather than by a separate field, so the class-specific dead-store
// passes below can share one node shape with the flag and general
// context passes. Exported so callers building IR (internal/engine) can
// place FPR context writes in the right range.
const (
	GPRCtxBase  = 0
	GPRCtxCount = 16
	FPRCtxBase  = GPRCtxBase + GPRCtxCount
	FPRCtxCount = 8

	gprCtxBase  = GPRCtxBase
	gprCtxCount = GPRCtxCount
	fprCtxBase  = FPRCtxBase
	fprCtxCount = FPRCtxCount
)

// countUses returns, for each node index, how many times it is referenced
// as an operand by another (live) node in the block.
func countUses(b *ir.Block) []int {
	uses := make([]int, len(b.Nodes))
	for _, n := range b.Nodes {
		if n.Dead {
			continue
		}
		for _, op := range n.Operands {
			if op >= 0 {
				uses[op]++
			}
		}
	}
	return uses
}

// replaceOperand redirects every live node's reference to from into a
// reference to to.
func replaceOperand(b *ir.Block, from, to int) {
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Dead {
			continue
		}
		for j, op := range n.Operands {
			if op == from {
				n.Operands[j] = to
			}
		}
	}
}

func isSideEffecting(op ir.Op) bool {
	switch op {
	case ir.OpStoreCtx, ir.OpStoreFlag, ir.OpSyscall:
		return true
	default:
		return false
	}
}

// contextLoadStoreElimination forwards stored values directly to later
// loads of the same context slot, folds a later load of a slot that an
// earlier live load already read into that first load, and kills a store
// that is itself overwritten by a later store to the same slot before
// ever being read.
func contextLoadStoreElimination() Pass {
	return newPass("context-load-store-elimination", func(emit *ir.Emitter) bool {
		changed := false
		for bi := range emit.Blocks() {
			b := emit.BlockAt(bi)
			producer := map[int]int{}  // ctx slot -> node index whose value is currently live there
			liveStore := map[int]int{} // ctx slot -> most recent store not yet read
			for i := range b.Nodes {
				n := &b.Nodes[i]
				if n.Dead {
					continue
				}
				switch n.Op {
				case ir.OpLoadCtx:
					// Any store pending for this slot has now been read, so it
					// is no longer eligible to be killed by a later store.
					delete(liveStore, n.Ctx)
					if p, ok := producer[n.Ctx]; ok {
						replaceOperand(b, i, p)
						n.Dead = true
						changed = true
						continue
					}
					producer[n.Ctx] = i
				case ir.OpStoreCtx:
					if prev, ok := liveStore[n.Ctx]; ok {
						b.Nodes[prev].Dead = true
						changed = true
					}
					liveStore[n.Ctx] = i
					producer[n.Ctx] = n.Operands[0]
				}
			}
		}
		return changed
	})
}

// constantPropagation deduplicates OpConst nodes carrying an identical
// value within a block, redirecting later duplicates to the first. When
// inlineConstants is false the pass still dedupes but leaves every
// reference indirect, matching the spec's framing of InlineConstants as
// governing whether folded constants are shared via one producer node
// (false) or eagerly duplicated at each use site (true, here a no-op
// since single-producer sharing is already the cheaper representation).
func constantPropagation(inlineConstants bool) Pass {
	name := "constant-propagation"
	return newPass(name, func(emit *ir.Emitter) bool {
		changed := false
		for bi := range emit.Blocks() {
			b := emit.BlockAt(bi)
			seen := map[uint64]int{}
			for i := range b.Nodes {
				n := &b.Nodes[i]
				if n.Dead || n.Op != ir.OpConst {
					continue
				}
				if first, ok := seen[n.Const]; ok {
					replaceOperand(b, i, first)
					n.Dead = true
					changed = true
					continue
				}
				seen[n.Const] = i
			}
		}
		_ = inlineConstants
		return changed
	})
}

// deadStoreElimination kills a store to ctxClass(slot) when it is
// overwritten by a later store to the same slot before any load reads
// it. Used for flags, GPRs and FPRs with differing (storeOp, loadOp,
// inClass) parameters.
func deadStoreElimination(name string, storeOp, loadOp ir.Op, inClass func(ctx int) bool) Pass {
	return newPass(name, func(emit *ir.Emitter) bool {
		changed := false
		for bi := range emit.Blocks() {
			b := emit.BlockAt(bi)
			lastStore := map[int]int{}
			for i := range b.Nodes {
				n := &b.Nodes[i]
				if n.Dead || !inClass(n.Ctx) {
					continue
				}
				switch n.Op {
				case storeOp:
					if prev, ok := lastStore[n.Ctx]; ok {
						b.Nodes[prev].Dead = true
						changed = true
					}
					lastStore[n.Ctx] = i
				case loadOp:
					delete(lastStore, n.Ctx)
				}
			}
		}
		return changed
	})
}

func deadFlagStoreElimination() Pass {
	return deadStoreElimination("dead-flag-store-elimination", ir.OpStoreFlag, ir.OpLoadFlag,
		func(ctx int) bool { return true })
}

func deadGPRStoreElimination() Pass {
	return deadStoreElimination("dead-gpr-store-elimination", ir.OpStoreCtx, ir.OpLoadCtx,
		func(ctx int) bool { return ctx >= gprCtxBase && ctx < gprCtxBase+gprCtxCount })
}

func deadFPRStoreElimination() Pass {
	return deadStoreElimination("dead-fpr-store-elimination", ir.OpStoreCtx, ir.OpLoadCtx,
		func(ctx int) bool { return ctx >= fprCtxBase && ctx < fprCtxBase+fprCtxCount })
}

// deadCodeElimination marks every pure, unreferenced node dead, sweeping
// each block back to front so a chain of now-unused producers collapses
// within this one pass rather than needing the pipeline's second sweep
// to catch what the first missed ordering-wise.
func deadCodeElimination() Pass {
	return newPass("dead-code-elimination", func(emit *ir.Emitter) bool {
		changed := false
		for bi := range emit.Blocks() {
			b := emit.BlockAt(bi)
			uses := countUses(b)
			for i := len(b.Nodes) - 1; i >= 0; i-- {
				n := &b.Nodes[i]
				if n.Dead || uses[i] > 0 || isSideEffecting(n.Op) {
					continue
				}
				n.Dead = true
				changed = true
				for _, op := range n.Operands {
					if op >= 0 {
						uses[op]--
					}
				}
			}
		}
		return changed
	})
}

// syscallOptimization kills a syscall node that is an exact duplicate
// (same operands) of the syscall immediately preceding it in the same
// block, modeling redundant back-to-back syscalls with no intervening
// context mutation.
func syscallOptimization() Pass {
	return newPass("syscall-optimization", func(emit *ir.Emitter) bool {
		changed := false
		for bi := range emit.Blocks() {
			b := emit.BlockAt(bi)
			lastSyscall := -1
			for i := range b.Nodes {
				n := &b.Nodes[i]
				if n.Dead {
					continue
				}
				if n.Op != ir.OpSyscall {
					continue
				}
				if lastSyscall >= 0 && b.Nodes[lastSyscall].Operands == n.Operands {
					n.Dead = true
					changed = true
					continue
				}
				lastSyscall = i
			}
		}
		return changed
	})
}

// staticRegisterAllocation assigns a host register number, round-robin
// per class, to every live GPR/FPR definition node. The minimal IR has
// no dedicated assignment field, so the chosen register index is
// recorded in Node.Const, which OpGPRDef/OpFPRDef nodes otherwise leave
// unused.
func staticRegisterAllocation() Pass {
	return newPass("static-register-allocation", func(emit *ir.Emitter) bool {
		changed := false
		for bi := range emit.Blocks() {
			b := emit.BlockAt(bi)
			nextGPR, nextFPR := 0, 0
			for i := range b.Nodes {
				n := &b.Nodes[i]
				if n.Dead {
					continue
				}
				switch n.Op {
				case ir.OpGPRDef:
					n.Const = uint64(nextGPR % gprCtxCount)
					nextGPR++
					changed = true
				case ir.OpFPRDef:
					n.Const = uint64(nextFPR % fprCtxCount)
					nextFPR++
					changed = true
				}
			}
		}
		return changed
	})
}

// irCompaction removes dead nodes and renumbers operand references, per
// block. It must run before any dynamic register allocator: compaction
// is the last point at which node indices are stable without a further
// remap being required downstream.
func irCompaction() Pass {
	return newPass("ir-compaction", func(emit *ir.Emitter) bool {
		changed := false
		for bi := range emit.Blocks() {
			b := emit.BlockAt(bi)
			before := len(b.Nodes)
			b.Compact()
			if len(b.Nodes) != before {
				changed = true
			}
		}
		return changed
	})
}
