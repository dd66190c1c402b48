/*
 * x86xlate - Engine configuration file parser.
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

// Package engineconfig loads the directive file that configures an
// internal/engine.Engine: decoder mode and caps, multi-block discovery
// range, block cache arena size, and pass manager flags. Grounded on
// config/configparser (teacher): a line-oriented parser with a
// registration-callback model, simplified here since every directive
// targets one fixed Config struct rather than creating typed devices.
//
// File format:
//
//	# comment
//	KEY=VALUE [KEY=VALUE ...]
//
// One or more whitespace-separated KEY=VALUE directives per line; '#'
// starts a line or trailing comment.
package engineconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rcornwell/x86xlate/internal/blockcache"
	"github.com/rcornwell/x86xlate/internal/decoder"
	"github.com/rcornwell/x86xlate/internal/engine"
)

type setter func(cfg *engine.Config, value string) error

var directives = map[string]setter{}

// RegisterDirective adds a KEY handler. Called from this package's own
// init; exposed so a front-end could extend the directive set without
// forking the parser.
func RegisterDirective(key string, fn setter) {
	directives[strings.ToUpper(key)] = fn
}

func init() {
	RegisterDirective("MODE", func(cfg *engine.Config, v string) error {
		switch strings.ToUpper(v) {
		case "32", "MODE_32BIT", "32BIT":
			cfg.Decoder.Mode = decoder.Mode32Bit
		case "64", "MODE_64BIT", "64BIT":
			cfg.Decoder.Mode = decoder.Mode64Bit
		default:
			return fmt.Errorf("MODE: unknown value %q", v)
		}
		return nil
	})
	RegisterDirective("MULTIBLOCK", func(cfg *engine.Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("MULTIBLOCK: %w", err)
		}
		cfg.Decoder.MultiblockEnabled = b
		return nil
	})
	RegisterDirective("MAXINST", func(cfg *engine.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAXINST: %w", err)
		}
		cfg.Decoder.MaxInstPerBlock = n
		return nil
	})
	RegisterDirective("MAXTOTALINST", func(cfg *engine.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAXTOTALINST: %w", err)
		}
		cfg.Decoder.MaxTotalInst = n
		return nil
	})
	RegisterDirective("SYMBOLMIN", func(cfg *engine.Config, v string) error {
		n, err := parseUint(v)
		if err != nil {
			return fmt.Errorf("SYMBOLMIN: %w", err)
		}
		cfg.Decoder.SymbolMin = n
		return nil
	})
	RegisterDirective("SYMBOLMAX", func(cfg *engine.Config, v string) error {
		n, err := parseUint(v)
		if err != nil {
			return fmt.Errorf("SYMBOLMAX: %w", err)
		}
		cfg.Decoder.SymbolMax = n
		return nil
	})
	RegisterDirective("CODE_SIZE", func(cfg *engine.Config, v string) error {
		bytes, err := parseSize(v)
		if err != nil {
			return fmt.Errorf("CODE_SIZE: %w", err)
		}
		const entrySize = 16
		const pageEntries = 4096
		cfg.Cache.ArenaPages = int(bytes / (entrySize * pageEntries))
		return nil
	})
	RegisterDirective("L1BITS", func(cfg *engine.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("L1BITS: %w", err)
		}
		cfg.Cache.L1Bits = n
		return nil
	})
	RegisterDirective("VMSIZE", func(cfg *engine.Config, v string) error {
		n, err := parseUint(v)
		if err != nil {
			return fmt.Errorf("VMSIZE: %w", err)
		}
		cfg.Cache.VirtualMemSize = n
		return nil
	})
	RegisterDirective("ASSERTIONS", func(cfg *engine.Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("ASSERTIONS: %w", err)
		}
		cfg.Assertions = b
		return nil
	})
	RegisterDirective("INLINE_CONSTANTS", func(cfg *engine.Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("INLINE_CONSTANTS: %w", err)
		}
		cfg.InlineConstants = b
		return nil
	})
	RegisterDirective("STATIC_RA", func(cfg *engine.Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("STATIC_RA: %w", err)
		}
		cfg.StaticRA = b
		return nil
	})
	RegisterDirective("DYNAMIC_RA", func(cfg *engine.Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("DYNAMIC_RA: %w", err)
		}
		cfg.DynamicRA = b
		return nil
	})
}

func parseBool(v string) (bool, error) {
	switch strings.ToUpper(v) {
	case "ON", "TRUE", "1", "YES":
		return true, nil
	case "OFF", "FALSE", "0", "NO":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", v)
	}
}

func parseUint(v string) (uint64, error) {
	v = strings.TrimPrefix(strings.ToLower(v), "0x")
	return strconv.ParseUint(v, 16, 64)
}

// parseSize parses a byte count with an optional K/M suffix (e.g. "128M").
func parseSize(v string) (uint64, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	mult := uint64(1)
	switch {
	case strings.HasSuffix(v, "M"):
		mult = 1024 * 1024
		v = strings.TrimSuffix(v, "M")
	case strings.HasSuffix(v, "K"):
		mult = 1024
		v = strings.TrimSuffix(v, "K")
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

// Default returns the engine.Config a front-end should start from before
// applying any loaded directives.
func Default() engine.Config {
	mode := decoder.Mode64Bit
	return engine.Config{
		Decoder:         decoder.DefaultConfig(mode),
		Cache:           blockcache.DefaultConfig(),
		InlineConstants: true,
	}
}

// Load parses directives from r into cfg, applying them on top of
// whatever cfg already holds (normally Default()).
func Load(r io.Reader, cfg *engine.Config) error {
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		for _, tok := range strings.Fields(line) {
			key, value, ok := strings.Cut(tok, "=")
			if !ok {
				return fmt.Errorf("engineconfig: line %d: malformed directive %q, want KEY=VALUE", lineNumber, tok)
			}
			fn, ok := directives[strings.ToUpper(key)]
			if !ok {
				return fmt.Errorf("engineconfig: line %d: unknown directive %q", lineNumber, key)
			}
			if err := fn(cfg, value); err != nil {
				return fmt.Errorf("engineconfig: line %d: %w", lineNumber, err)
			}
		}
	}
	return scanner.Err()
}

// LoadFile opens name and applies its directives on top of Default().
func LoadFile(name string) (engine.Config, error) {
	cfg := Default()
	file, err := os.Open(name)
	if err != nil {
		return cfg, err
	}
	defer file.Close()

	if err := Load(file, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
