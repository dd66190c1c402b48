/*
 * x86xlate - Main process.
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

package main

import (
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/x86xlate/command/reader"
	"github.com/rcornwell/x86xlate/config/engineconfig"
	"github.com/rcornwell/x86xlate/internal/decoder"
	"github.com/rcornwell/x86xlate/internal/engine"
	logger "github.com/rcornwell/x86xlate/util/logger"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Directive file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optVerbose := getopt.BoolLong("verbose", 'v', "Verbose logging to stderr")
	optDryRun := getopt.BoolLong("dry-run", 0, "Use the stub backend (also the default: no other backend is built in)")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			slog.Error("could not create log file", "path", *optLogFile, "error", err)
			os.Exit(1)
		}
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optVerbose))
	slog.SetDefault(Logger)

	Logger.Info("x86xlate started")

	var cfg engine.Config
	if *optConfig != "" {
		var err error
		cfg, err = engineconfig.LoadFile(*optConfig)
		if err != nil {
			Logger.Error("loading configuration failed", "path", *optConfig, "error", err)
			os.Exit(1)
		}
	} else {
		cfg = engineconfig.Default()
	}

	tables := decoder.NewTables(cfg.Decoder.Mode)

	var backend engine.Backend
	if *optDryRun {
		backend = &engine.StubBackend{}
	}

	e := engine.New(tables, cfg, backend, Logger.With("module", "engine"))

	reader.ConsoleReader(e)

	Logger.Info("x86xlate exiting")
}
