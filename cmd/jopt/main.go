// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// jopt: the whole-program bytecode optimizer. It assembles the given .jasm
// files into one compilation, runs inlining and closure elimination over it,
// and prints the optimized disassembly.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eerok/scala/analysis"
	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/config"
	"github.com/eerok/scala/internal/formatutil"
)

var (
	configPath = flag.String("config", "", "Config file path for the optimizer")
	quiet      = flag.Bool("quiet", false, "Do not print the optimized disassembly")
)

const usage = ` Optimize assembled bytecode classes.
Usage:
    jopt [options] <file.jasm ...>
Examples:
% jopt -config config.yaml classes.jasm
`

func main() {
	if err := doMain(); err != nil {
		fmt.Fprintf(os.Stderr, "jopt: %s\n", err)
		os.Exit(1)
	}
}

func doMain() error {
	flag.Parse()

	if flag.NArg() == 0 {
		_, _ = fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.NewDefault()
	if *configPath != "" {
		config.SetGlobalConfig(*configPath)
		loaded, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("could not load config %s: %w", *configPath, err)
		}
		cfg = loaded
	}

	fmt.Fprintln(os.Stderr, formatutil.Faint("Assembling sources"))

	var classes []*bytecode.Class
	for _, filename := range flag.Args() {
		b, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", filename, err)
		}
		cs, err := bytecode.Assemble(string(b))
		if err != nil {
			return fmt.Errorf("could not assemble %s: %w", filename, err)
		}
		classes = append(classes, cs...)
	}

	fmt.Fprintln(os.Stderr, formatutil.Faint("Optimizing"))

	state := analysis.NewAnalyzerState(cfg, classes, nil)
	start := time.Now()
	err := analysis.RunWholeProgram(state, classes)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Optimization took %3.4f s\n", duration.Seconds())

	if cfg.ReportDisassembly || !*quiet {
		for _, c := range classes {
			if c.Elided {
				fmt.Printf("%s %s\n", formatutil.Yellow("elided"), c.Name)
				continue
			}
			fmt.Println(formatutil.Bold(c.Name))
			fmt.Println(bytecode.DisassembleClass(c))
		}
	}
	fmt.Fprintln(os.Stderr, formatutil.Green(state.Stats.String()))
	return nil
}
