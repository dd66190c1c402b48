/*
 * x86xlate - Optimization pass manager: pass interface.
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

// Package passmanager composes an ordered pipeline of IR transformation
// passes and runs them once, in order, over an IR-emitter handle.
package passmanager

import "github.com/rcornwell/x86xlate/internal/ir"

// Pass is a single optimization or validation step: it inspects and may
// mutate the IR reachable from emit, and reports whether it changed
// anything. Construction takes all configuration as plain values, so the
// pipeline dispatches to a vector of Pass objects sharing this one narrow
// capability rather than switching on a pass-kind enum.
type Pass interface {
	Name() string
	Run(emit *ir.Emitter) bool
}

// funcPass adapts a plain name+function pair to the Pass interface, so
// the concrete passes in passes.go and validate.go don't each need their
// own named type.
type funcPass struct {
	name string
	run  func(emit *ir.Emitter) bool
}

func (p *funcPass) Name() string              { return p.name }
func (p *funcPass) Run(emit *ir.Emitter) bool { return p.run(emit) }

func newPass(name string, run func(emit *ir.Emitter) bool) Pass {
	return &funcPass{name: name, run: run}
}
