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

// Package analysistest provides helpers for tests that need a synthetic
// class universe: assemble a textual source, wrap it in a session, and look
// up the classes and methods under test.
package analysistest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eerok/scala/analysis"
	"github.com/eerok/scala/analysis/bytecode"
	"github.com/eerok/scala/analysis/config"
)

// LoadUniverse assembles the source into a class universe and returns a
// session over it with default settings. Warnings are silenced to keep test
// output readable.
func LoadUniverse(t *testing.T, src string) (*analysis.AnalyzerState, []*bytecode.Class) {
	t.Helper()
	classes, err := bytecode.Assemble(src)
	if err != nil {
		t.Fatalf("error assembling test universe: %v", err)
	}
	cfg := config.NewDefault()
	cfg.SilenceWarn = true
	return analysis.NewAnalyzerState(cfg, classes, nil), classes
}

// LoadUniverseFile assembles testdata/<name> relative to the test's working
// directory.
func LoadUniverseFile(t *testing.T, name string) (*analysis.AnalyzerState, []*bytecode.Class) {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("error reading test universe: %v", err)
	}
	return LoadUniverse(t, string(b))
}

// FindClass returns the named class or fails the test.
func FindClass(t *testing.T, classes []*bytecode.Class, name string) *bytecode.Class {
	t.Helper()
	for _, c := range classes {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("class %s not found in test universe", name)
	return nil
}

// FindMethod returns the named method of the named class or fails the test.
func FindMethod(t *testing.T, classes []*bytecode.Class, class, name string) *bytecode.Method {
	t.Helper()
	c := FindClass(t, classes, class)
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("method %s.%s not found in test universe", class, name)
	return nil
}

// CountOp returns how many instructions of the method have the given opcode.
func CountOp(m *bytecode.Method, op bytecode.Opcode) int {
	n := 0
	for _, ins := range m.Instrs {
		if ins.Op == op {
			n++
		}
	}
	return n
}

// BodyString renders a method body for byte-for-byte comparisons in
// all-or-nothing tests.
func BodyString(m *bytecode.Method) string {
	return bytecode.Disassemble(m)
}
