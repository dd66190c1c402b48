/*
 * x86xlate - Optimization pass manager: validation pipeline.
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
	"fmt"

	"github.com/rcornwell/x86xlate/internal/ir"
)

// Validation passes are observational only: they must never set a
// node's Dead flag, append nodes, or otherwise mutate the IR they walk.
// A violation is a fatal assertion, consistent with spec.md §7 treating
// pass-internal invariant violations as an unconditional abort; they
// are not expected to fire outside an assertions-enabled build.

// phiValidation checks that no live node holds an operand reference to
// a dead node. The minimal IR has no explicit control-flow-join (phi)
// construct, so this validator covers the nearest analog: a merge of
// values must never resolve through an operand that compaction would
// have already dropped.
func phiValidation() Pass {
	return newPass("phi-validation", func(emit *ir.Emitter) bool {
		for bi, b := range emit.Blocks() {
			for i, n := range b.Nodes {
				if n.Dead {
					continue
				}
				for _, op := range n.Operands {
					if op < 0 {
						continue
					}
					if op >= len(b.Nodes) || b.Nodes[op].Dead {
						panic(fmt.Sprintf("phi-validation: block %d node %d references dead or out-of-range operand %d", bi, i, op))
					}
				}
			}
		}
		return false
	})
}

// structuralValidation checks every operand index is either -1 (absent)
// or a valid in-bounds index into the same block, and that no node
// references itself.
func structuralValidation() Pass {
	return newPass("structural-validation", func(emit *ir.Emitter) bool {
		for bi, b := range emit.Blocks() {
			for i, n := range b.Nodes {
				for _, op := range n.Operands {
					if op == -1 {
						continue
					}
					if op < -1 || op >= len(b.Nodes) {
						panic(fmt.Sprintf("structural-validation: block %d node %d has out-of-range operand %d", bi, i, op))
					}
					if op == i {
						panic(fmt.Sprintf("structural-validation: block %d node %d references itself", bi, i))
					}
				}
			}
		}
		return false
	})
}

// valueDominanceValidation checks that every live node's operand refers
// to a node earlier in the same block's flat order: the minimal IR has
// no basic-block graph, so "dominance" collapses to definition-before-use
// within the block's linear node order.
func valueDominanceValidation() Pass {
	return newPass("value-dominance-validation", func(emit *ir.Emitter) bool {
		for bi, b := range emit.Blocks() {
			for i, n := range b.Nodes {
				if n.Dead {
					continue
				}
				for _, op := range n.Operands {
					if op < 0 {
						continue
					}
					if op >= i {
						panic(fmt.Sprintf("value-dominance-validation: block %d node %d uses operand %d not dominating it", bi, i, op))
					}
				}
			}
		}
		return false
	})
}
