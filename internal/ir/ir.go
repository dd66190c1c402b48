/*
 * x86xlate - Minimal intermediate-representation emitter.
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

// Package ir provides a small concrete intermediate representation for the
// optimization pass manager to operate against. It is not a specification
// of the real IR a downstream JIT backend would execute; it exists so
// passes have block iteration, node mutation, and constant introduction to
// call, per the narrow upward capability named in spec.md §6.
package ir

// Op tags the operation a Node performs. The real instruction set is out
// of scope; these cover enough ground for the pass manager's default
// pipeline to have something real to eliminate, propagate, and compact.
type Op int

const (
	OpNop Op = iota
	OpConst
	OpLoadCtx  // load a value out of guest-register context
	OpStoreCtx // store a value into guest-register context
	OpLoadFlag
	OpStoreFlag
	OpSyscall
	OpGPRDef // defines a value later consumed as a GPR
	OpFPRDef
)

// Node is one IR instruction: an operation, a small fixed set of operand
// node-indices, and (for OpConst) a literal payload.
type Node struct {
	Op       Op
	Operands [2]int // indices into the owning Block's Nodes, -1 if absent
	Const    uint64
	Ctx      int  // guest-context slot this node reads/writes, for *Ctx/*Flag ops
	Dead     bool // marked by DCE passes; compaction removes dead nodes
}

// Block is one straight-line sequence of Nodes, corresponding to a decoded
// translation block.
type Block struct {
	Entry uint64
	Nodes []Node
}

// Function is the unit a PassManager run operates over: every block
// produced for one translation request.
type Function struct {
	Blocks []Block
}

// Emitter is the capability PassManager passes are given: block
// iteration, node mutation, and constant introduction, per spec.md §6.
type Emitter struct {
	fn *Function
}

// NewEmitter wraps fn for passes to mutate in place.
func NewEmitter(fn *Function) *Emitter {
	return &Emitter{fn: fn}
}

// Blocks returns the function's blocks for iteration. Passes may mutate
// node contents through Block.Nodes directly; Emitter's helper methods
// exist for the common mutations so passes don't have to special-case
// index bookkeeping themselves.
func (e *Emitter) Blocks() []Block {
	return e.fn.Blocks
}

// BlockAt returns a pointer to the block at index i so passes can mutate it.
func (e *Emitter) BlockAt(i int) *Block {
	return &e.fn.Blocks[i]
}

// MarkDead flags a node as dead without removing it; Compact performs the
// actual removal and index renumbering.
func (b *Block) MarkDead(nodeIdx int) {
	b.Nodes[nodeIdx].Dead = true
}

// AddConst appends a new OpConst node to the block and returns its index.
func (b *Block) AddConst(value uint64) int {
	b.Nodes = append(b.Nodes, Node{Op: OpConst, Const: value, Operands: [2]int{-1, -1}})
	return len(b.Nodes) - 1
}

// Compact removes every node marked Dead, renumbering Operands references
// to the surviving nodes. Per spec.md §4.3, this must run before any
// dynamic register allocator, since it is the last point at which node
// indices are stable without further remapping being required downstream.
func (b *Block) Compact() {
	remap := make([]int, len(b.Nodes))
	kept := make([]Node, 0, len(b.Nodes))
	for i, n := range b.Nodes {
		if n.Dead {
			remap[i] = -1
			continue
		}
		remap[i] = len(kept)
		kept = append(kept, n)
	}
	for i := range kept {
		for j, operand := range kept[i].Operands {
			if operand >= 0 {
				kept[i].Operands[j] = remap[operand]
			}
		}
	}
	b.Nodes = kept
}
