/*
 * x86xlate - Optimization pass manager: pipeline composition and Run.
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
	"log/slog"

	"github.com/rcornwell/x86xlate/internal/ir"
)

// Manager holds an ordered optimization pipeline and, when assertions
// are enabled, a parallel validation pipeline run after it.
type Manager struct {
	log              *slog.Logger
	assertionsOn     bool
	passes           []Pass
	validationPasses []Pass
}

// NewManager builds an empty Manager. assertionsOn gates whether
// AddDefaultValidationPasses installs anything and whether Run executes
// the validation pipeline at all.
func NewManager(assertionsOn bool, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{log: log, assertionsOn: assertionsOn}
}

// InsertPass appends p to the optimization pipeline. Exposed so a host
// can insert a dynamic register allocator after AddDefaultPasses, per
// spec.md §4.3 item 11.
func (m *Manager) InsertPass(p Pass) {
	m.passes = append(m.passes, p)
}

// InsertValidationPass appends p to the validation pipeline regardless
// of the assertions gate; Run still only executes it when assertions
// are enabled.
func (m *Manager) InsertValidationPass(p Pass) {
	m.validationPasses = append(m.validationPasses, p)
}

// AddDefaultPasses installs the fixed-order default pipeline. inlineConstants
// and staticRA together gate static register allocation, matching the
// single parametrized entry point spec.md §9's Open Question calls for in
// place of two duplicated pipeline variants. dynamicRA only controls
// whether IR compaction's ordering guarantee (it must precede any dynamic
// allocator) is documented as load-bearing for this build; the actual
// dynamic allocator pass, if any, is inserted by the host via InsertPass
// after this call returns.
func (m *Manager) AddDefaultPasses(inlineConstants, staticRA, dynamicRA bool) {
	m.InsertPass(contextLoadStoreElimination())
	m.InsertPass(constantPropagation(inlineConstants))
	m.InsertPass(deadFlagStoreElimination())
	m.InsertPass(deadGPRStoreElimination())
	m.InsertPass(deadFPRStoreElimination())
	m.InsertPass(deadCodeElimination())
	m.InsertPass(syscallOptimization())
	m.InsertPass(deadCodeElimination())

	if inlineConstants && staticRA {
		m.InsertPass(staticRegisterAllocation())
	}

	// Compaction must precede a dynamic allocator (dynamicRA == true): once
	// compacted, node indices shift, and an allocator inserted before this
	// point would be working against indices a later compaction silently
	// invalidates.
	m.InsertPass(irCompaction())
	_ = dynamicRA
}

// AddDefaultValidationPasses installs the three structural validators,
// only when the Manager was built with assertions enabled.
func (m *Manager) AddDefaultValidationPasses() {
	if !m.assertionsOn {
		return
	}
	m.InsertValidationPass(phiValidation())
	m.InsertValidationPass(structuralValidation())
	m.InsertValidationPass(valueDominanceValidation())
}

// Run invokes every optimization pass in order, OR-ing their mutation
// flags, then — only under the assertions gate — every validation pass.
// Validation passes are purely observational: they must never mutate
// the IR, and a violation aborts the process rather than returning an
// error, per spec.md §7.
func (m *Manager) Run(emit *ir.Emitter) bool {
	changed := false
	for _, p := range m.passes {
		if p.Run(emit) {
			m.log.Debug("pass changed IR", "pass", p.Name())
			changed = true
		}
	}

	if m.assertionsOn {
		for _, p := range m.validationPasses {
			if p.Run(emit) {
				changed = true
			}
		}
	}

	return changed
}
