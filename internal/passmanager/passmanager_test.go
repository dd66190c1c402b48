/*
 * x86xlate - Pass manager tests.
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

import (
	"reflect"
	"testing"

	"github.com/rcornwell/x86xlate/internal/ir"
)

func TestContextLoadStoreEliminationForwardsAndKillsRedundantStore(t *testing.T) {
	fn := &ir.Function{Blocks: []ir.Block{{Entry: 0x1000}}}
	b := &fn.Blocks[0]
	b.AddConst(5)                                                         // 0
	b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreCtx, Ctx: 0, Operands: [2]int{0, -1}})  // 1
	b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpLoadCtx, Ctx: 0, Operands: [2]int{-1, -1}})  // 2
	b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreCtx, Ctx: 1, Operands: [2]int{2, -1}})  // 3 consumes the load
	b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreCtx, Ctx: 0, Operands: [2]int{0, -1}})  // 4 overwrites ctx 0 again
	b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreCtx, Ctx: 0, Operands: [2]int{0, -1}})  // 5 overwrites 4 before ctx 0 is read

	emit := ir.NewEmitter(fn)
	changed := contextLoadStoreElimination().Run(emit)
	if !changed {
		t.Fatal("expected a change")
	}
	if !b.Nodes[2].Dead {
		t.Error("redundant load of node 2 should be dead (forwarded from store's source)")
	}
	if b.Nodes[3].Operands[0] != 0 {
		t.Errorf("consumer of forwarded load should now reference producer 0, got %d", b.Nodes[3].Operands[0])
	}
	if b.Nodes[1].Dead {
		t.Error("store 1 was read by load 2 and must survive")
	}
	if !b.Nodes[4].Dead {
		t.Error("store 4 is overwritten by store 5 before any read and should be dead")
	}
}

func TestDeadGPRStoreEliminationOnlyTouchesGPRRange(t *testing.T) {
	fn := &ir.Function{Blocks: []ir.Block{{}}}
	b := &fn.Blocks[0]
	b.Nodes = append(b.Nodes,
		ir.Node{Op: ir.OpStoreCtx, Ctx: 0, Operands: [2]int{-1, -1}},           // 0: GPR 0, overwritten below -> dead
		ir.Node{Op: ir.OpStoreCtx, Ctx: 0, Operands: [2]int{-1, -1}},           // 1: GPR 0, survives
		ir.Node{Op: ir.OpStoreCtx, Ctx: fprCtxBase, Operands: [2]int{-1, -1}},  // 2: FPR 0, overwritten below but out of GPR range -> untouched by this pass
		ir.Node{Op: ir.OpStoreCtx, Ctx: fprCtxBase, Operands: [2]int{-1, -1}},  // 3: FPR 0
	)
	emit := ir.NewEmitter(fn)
	deadGPRStoreElimination().Run(emit)

	if !b.Nodes[0].Dead {
		t.Error("first GPR store should be dead")
	}
	if b.Nodes[1].Dead {
		t.Error("second GPR store should survive")
	}
	if b.Nodes[2].Dead {
		t.Error("FPR store must not be touched by the GPR-scoped pass")
	}
}

func TestDeadCodeEliminationKeepsStoresAndSyscalls(t *testing.T) {
	fn := &ir.Function{Blocks: []ir.Block{{}}}
	b := &fn.Blocks[0]
	b.AddConst(1)                                                                // 0: unused pure value -> dead
	b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreCtx, Ctx: 0, Operands: [2]int{-1, -1}}) // 1: unused but side-effecting -> kept
	b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpSyscall, Operands: [2]int{-1, -1}})          // 2: side-effecting -> kept

	emit := ir.NewEmitter(fn)
	if !deadCodeElimination().Run(emit) {
		t.Fatal("expected a change")
	}
	if !b.Nodes[0].Dead {
		t.Error("unused const should be dead")
	}
	if b.Nodes[1].Dead {
		t.Error("store must survive DCE even if unused as a value")
	}
	if b.Nodes[2].Dead {
		t.Error("syscall must survive DCE")
	}
}

func TestIRCompactionRenumbersOperands(t *testing.T) {
	fn := &ir.Function{Blocks: []ir.Block{{}}}
	b := &fn.Blocks[0]
	b.AddConst(1) // 0, will be dead
	b.AddConst(2) // 1, survives
	b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreCtx, Ctx: 0, Operands: [2]int{1, -1}}) // 2, survives, refs 1
	b.MarkDead(0)

	emit := ir.NewEmitter(fn)
	if !irCompaction().Run(emit) {
		t.Fatal("expected a change")
	}
	if len(b.Nodes) != 2 {
		t.Fatalf("len(Nodes) = %d, want 2", len(b.Nodes))
	}
	if b.Nodes[1].Operands[0] != 0 {
		t.Errorf("store operand not renumbered: %+v", b.Nodes[1])
	}
}

// Property 5: running the default pipeline twice on the same input
// produces the same IR as running it once, for the second run reporting
// changed == false.
func TestPassOrderIdempotence(t *testing.T) {
	buildFn := func() *ir.Function {
		fn := &ir.Function{Blocks: []ir.Block{{Entry: 0x4000}}}
		b := &fn.Blocks[0]
		b.AddConst(10)                                                                  // 0
		b.AddConst(10)                                                                  // 1 duplicate const
		b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreCtx, Ctx: 0, Operands: [2]int{0, -1}}) // 2
		b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpLoadCtx, Ctx: 0, Operands: [2]int{-1, -1}})  // 3
		b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreCtx, Ctx: 1, Operands: [2]int{3, -1}})  // 4
		b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreFlag, Ctx: 0, Operands: [2]int{1, -1}}) // 5
		b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreFlag, Ctx: 0, Operands: [2]int{0, -1}}) // 6 overwrites 5 unread
		b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpSyscall, Operands: [2]int{-1, -1}})          // 7
		return fn
	}

	fn := buildFn()
	m1 := NewManager(false, nil)
	m1.AddDefaultPasses(true, false, false)
	if !m1.Run(ir.NewEmitter(fn)) {
		t.Fatal("expected first run to report changed")
	}
	snapshot := make([]ir.Block, len(fn.Blocks))
	for i, blk := range fn.Blocks {
		nodes := make([]ir.Node, len(blk.Nodes))
		copy(nodes, blk.Nodes)
		snapshot[i] = ir.Block{Entry: blk.Entry, Nodes: nodes}
	}

	m2 := NewManager(false, nil)
	m2.AddDefaultPasses(true, false, false)
	changed := m2.Run(ir.NewEmitter(fn))
	if changed {
		t.Fatal("expected second run to report changed == false")
	}
	if !reflect.DeepEqual(snapshot, fn.Blocks) {
		t.Fatalf("IR mutated by idempotent second run:\nbefore=%+v\nafter=%+v", snapshot, fn.Blocks)
	}
}

func TestValidationPassesAreObservationalOnly(t *testing.T) {
	fn := &ir.Function{Blocks: []ir.Block{{}}}
	b := &fn.Blocks[0]
	b.AddConst(1)
	b.Nodes = append(b.Nodes, ir.Node{Op: ir.OpStoreCtx, Ctx: 0, Operands: [2]int{0, -1}})

	m := NewManager(true, nil)
	m.AddDefaultValidationPasses()
	before := make([]ir.Node, len(b.Nodes))
	copy(before, b.Nodes)

	m.Run(ir.NewEmitter(fn))

	if !reflect.DeepEqual(before, b.Nodes) {
		t.Fatalf("validation pipeline mutated IR: before=%+v after=%+v", before, b.Nodes)
	}
}

func TestStructuralValidationPanicsOnOutOfRangeOperand(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected structural-validation to panic on an out-of-range operand")
		}
	}()
	fn := &ir.Function{Blocks: []ir.Block{{Nodes: []ir.Node{
		{Op: ir.OpStoreCtx, Operands: [2]int{99, -1}},
	}}}}
	structuralValidation().Run(ir.NewEmitter(fn))
}
