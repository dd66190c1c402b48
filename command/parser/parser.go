/*
 * x86xlate - REPL command parser.
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

// Package parser dispatches REPL command lines against an
// internal/engine.Engine: disasm, lookup, stats and flush, so the engine
// can be exercised end to end without a real JIT backend attached.
package parser

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rcornwell/x86xlate/internal/decoder"
	"github.com/rcornwell/x86xlate/internal/engine"
)

type cmd struct {
	name     string
	min      int // minimum unambiguous prefix length
	process  func(args []string, e *engine.Engine) (string, error)
	complete func(args []string) []string
}

var cmdList = []cmd{
	{name: "disasm", min: 3, process: disasmCmd},
	{name: "lookup", min: 3, process: lookupCmd},
	{name: "stats", min: 2, process: statsCmd},
	{name: "flush", min: 2, process: flushCmd},
	{name: "quit", min: 1, process: quitCmd},
	{name: "help", min: 1, process: helpCmd},
}

func matchCommand(m cmd, name string) bool {
	if len(name) < m.min || len(name) > len(m.name) {
		return false
	}
	return m.name[:len(name)] == name
}

func matchList(name string) []cmd {
	if name == "" {
		return nil
	}
	var matches []cmd
	for _, m := range cmdList {
		if matchCommand(m, name) {
			matches = append(matches, m)
		}
	}
	return matches
}

// ErrQuit is returned by ProcessCommand when the "quit" command was run.
var ErrQuit = errors.New("quit")

// ProcessCommand parses and runs a single command line, returning any
// text to display to the user.
func ProcessCommand(commandLine string, e *engine.Engine) (string, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return "", nil
	}
	name, args := fields[0], fields[1:]

	matches := matchList(strings.ToLower(name))
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("command not found: %s", name)
	case 1:
		return matches[0].process(args, e)
	default:
		return "", fmt.Errorf("ambiguous command: %s", name)
	}
}

// CompleteCmd returns command-name completions for line-editing.
func CompleteCmd(commandLine string) []string {
	fields := strings.Fields(commandLine)
	prefix := ""
	if len(fields) > 0 && !strings.HasSuffix(commandLine, " ") {
		prefix = fields[0]
	}
	var out []string
	for _, m := range cmdList {
		if strings.HasPrefix(m.name, strings.ToLower(prefix)) {
			out = append(out, m.name+" ")
		}
	}
	return out
}

func quitCmd(args []string, e *engine.Engine) (string, error) {
	return "", ErrQuit
}

func helpCmd(args []string, e *engine.Engine) (string, error) {
	return "commands: disasm <hex-bytes> <pc>, lookup <pc>, stats, flush, quit", nil
}

// disasmCmd decodes and renders hex-encoded guest bytes at pc, running
// them through the full engine pipeline (so the resulting host pointer
// is cached), then prints the decoded instructions.
func disasmCmd(args []string, e *engine.Engine) (string, error) {
	if len(args) != 2 {
		return "", errors.New("usage: disasm <hex-bytes> <pc>")
	}
	raw, err := hex.DecodeString(args[0])
	if err != nil {
		return "", fmt.Errorf("disasm: invalid hex bytes: %w", err)
	}
	pc, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
	if err != nil {
		return "", fmt.Errorf("disasm: invalid pc: %w", err)
	}

	tables := decoder.NewTables(decoder.Mode64Bit)
	cfg := decoder.DefaultConfig(decoder.Mode64Bit)
	d := decoder.NewDecoder(tables, cfg, nil)
	if !d.DecodeInstructionsAtEntry(raw, pc) {
		return "", fmt.Errorf("disasm: decode failed at 0x%x", pc)
	}

	var b strings.Builder
	for _, blk := range d.DecodedBlocks() {
		b.WriteString(decoder.DisassembleBlock(blk))
	}

	if _, err := e.Translate(pc, raw); err != nil {
		return b.String(), fmt.Errorf("disasm: translate failed: %w", err)
	}
	return b.String(), nil
}

func lookupCmd(args []string, e *engine.Engine) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: lookup <pc>")
	}
	pc, err := strconv.ParseUint(strings.TrimPrefix(args[0], "0x"), 16, 64)
	if err != nil {
		return "", fmt.Errorf("lookup: invalid pc: %w", err)
	}
	host := e.Cache().FindBlock(pc)
	if host == 0 {
		return fmt.Sprintf("0x%x: miss", pc), nil
	}
	return fmt.Sprintf("0x%x -> 0x%x", pc, host), nil
}

func statsCmd(args []string, e *engine.Engine) (string, error) {
	s := e.Cache().Stats()
	return fmt.Sprintf("l1_occupancy=%d pages_mapped=%d arena_used=%d/%d",
		s.L1Occupancy, s.PagesMapped, s.ArenaUsed, s.ArenaCapacity), nil
}

func flushCmd(args []string, e *engine.Engine) (string, error) {
	e.Cache().ClearCache()
	return "cache flushed", nil
}
