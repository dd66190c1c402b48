/*
 * x86xlate - REPL command parser tests.
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

package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/rcornwell/x86xlate/config/engineconfig"
	"github.com/rcornwell/x86xlate/internal/decoder"
	"github.com/rcornwell/x86xlate/internal/engine"
	"github.com/rcornwell/x86xlate/util/hex"
)

func newTestEngine() *engine.Engine {
	cfg := engineconfig.Default()
	tables := decoder.NewTables(cfg.Decoder.Mode)
	return engine.New(tables, cfg, nil, nil)
}

func TestDisasmThenLookupAndStats(t *testing.T) {
	e := newTestEngine()
	out, err := ProcessCommand("disasm 48b80102030405060708 0x1000", e)
	if err != nil {
		t.Fatalf("disasm failed: %v", err)
	}
	if !strings.Contains(out, hex.FormatAddr(0x1000)) {
		t.Errorf("disasm output missing entry address: %q", out)
	}

	out, err = ProcessCommand("lookup 0x1000", e)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if strings.Contains(out, "miss") {
		t.Errorf("lookup reported a miss after translate: %q", out)
	}

	out, err = ProcessCommand("stats", e)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out, "arena_used") {
		t.Errorf("stats output malformed: %q", out)
	}
}

func TestLookupMiss(t *testing.T) {
	e := newTestEngine()
	out, err := ProcessCommand("lookup 0xdead", e)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !strings.Contains(out, "miss") {
		t.Errorf("expected a miss report, got %q", out)
	}
}

func TestFlushClearsCache(t *testing.T) {
	e := newTestEngine()
	if _, err := ProcessCommand("disasm 48b80102030405060708 0x1000", e); err != nil {
		t.Fatalf("disasm failed: %v", err)
	}
	if _, err := ProcessCommand("flush", e); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	out, err := ProcessCommand("lookup 0x1000", e)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !strings.Contains(out, "miss") {
		t.Errorf("expected a miss after flush, got %q", out)
	}
}

func TestQuitCommandReturnsErrQuit(t *testing.T) {
	e := newTestEngine()
	_, err := ProcessCommand("quit", e)
	if !errors.Is(err, ErrQuit) {
		t.Errorf("expected ErrQuit, got %v", err)
	}
}

func TestUnknownCommandErrors(t *testing.T) {
	e := newTestEngine()
	if _, err := ProcessCommand("bogus", e); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

func TestCompleteCmdMatchesPrefix(t *testing.T) {
	matches := CompleteCmd("s")
	if len(matches) != 1 || matches[0] != "stats " {
		t.Errorf("CompleteCmd(%q) = %v, want [\"stats \"]", "s", matches)
	}
}

func TestAbbreviatedCommandMatches(t *testing.T) {
	e := newTestEngine()
	// "sta" is stats' min unambiguous prefix length (2) and more.
	if _, err := ProcessCommand("sta", e); err != nil {
		t.Errorf("abbreviated command 'sta' should match stats: %v", err)
	}
}
