/*
 * x86xlate - Engine configuration parser tests.
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

package engineconfig

import (
	"strings"
	"testing"

	"github.com/rcornwell/x86xlate/internal/decoder"
)

func TestLoadAppliesDirectivesOverDefaults(t *testing.T) {
	cfg := Default()
	src := `
		# sample directive file
		MODE=32 MULTIBLOCK=on MAXINST=50
		SYMBOLMIN=0x1000 SYMBOLMAX=0x2000 # trailing comment
		CODE_SIZE=1M L1BITS=12
		INLINE_CONSTANTS=off STATIC_RA=on DYNAMIC_RA=off ASSERTIONS=on
	`
	if err := Load(strings.NewReader(src), &cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Decoder.Mode != decoder.Mode32Bit {
		t.Errorf("Mode = %v, want Mode32Bit", cfg.Decoder.Mode)
	}
	if !cfg.Decoder.MultiblockEnabled {
		t.Error("MultiblockEnabled = false, want true")
	}
	if cfg.Decoder.MaxInstPerBlock != 50 {
		t.Errorf("MaxInstPerBlock = %d, want 50", cfg.Decoder.MaxInstPerBlock)
	}
	if cfg.Decoder.SymbolMin != 0x1000 || cfg.Decoder.SymbolMax != 0x2000 {
		t.Errorf("SymbolMin/Max = 0x%x/0x%x, want 0x1000/0x2000", cfg.Decoder.SymbolMin, cfg.Decoder.SymbolMax)
	}
	wantArenaPages := int((1024 * 1024) / (16 * 4096))
	if cfg.Cache.ArenaPages != wantArenaPages {
		t.Errorf("ArenaPages = %d, want %d", cfg.Cache.ArenaPages, wantArenaPages)
	}
	if cfg.Cache.L1Bits != 12 {
		t.Errorf("L1Bits = %d, want 12", cfg.Cache.L1Bits)
	}
	if cfg.InlineConstants || !cfg.StaticRA || cfg.DynamicRA || !cfg.Assertions {
		t.Errorf("flags = %+v, want InlineConstants=false StaticRA=true DynamicRA=false Assertions=true",
			cfg)
	}
}

func TestLoadRejectsUnknownDirective(t *testing.T) {
	cfg := Default()
	if err := Load(strings.NewReader("BOGUS=1"), &cfg); err == nil {
		t.Fatal("expected an error for an unknown directive")
	}
}

func TestLoadRejectsMalformedDirective(t *testing.T) {
	cfg := Default()
	if err := Load(strings.NewReader("MODE"), &cfg); err == nil {
		t.Fatal("expected an error for a directive missing '='")
	}
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	if _, err := LoadFile("/nonexistent/path/to/x86xlate.cfg"); err == nil {
		t.Fatal("expected an error opening a missing config file")
	}
}
