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

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var (
	// The global config file
	configFile string
)

// SetGlobalConfig sets the global config filename
func SetGlobalConfig(filename string) {
	configFile = filename
}

// LoadGlobal loads the config file that has been set by SetGlobalConfig
func LoadGlobal() (*Config, error) {
	return Load(configFile)
}

// Config collects every user-facing knob of the optimizer.
// If some field is not defined in the config file, it will be empty/zero in the struct.
// private fields are not populated from a yaml file, but computed after initialization
type Config struct {
	Options `yaml:",inline"`

	sourceFile string

	// if the ClassFilter is specified
	classFilterRegex *regexp.Regexp
}

// Options are the top-level optimizer settings.
type Options struct {
	// LogLevel controls the verbosity of the optimizer's logging
	LogLevel int `yaml:"log-level"`

	// ClassFilter restricts optimization to classes whose internal name matches the regex. Empty
	// means every class of the compilation is eligible.
	ClassFilter string `yaml:"class-filter"`

	// MaxRounds bounds how many inline-then-simplify rounds are run per call-graph node before the
	// optimizer gives up on reaching a fixpoint for that method.
	MaxRounds int `yaml:"max-rounds"`

	// MaxCalleeSize is the instruction-count cap above which a callee is never inlined
	MaxCalleeSize int `yaml:"max-callee-size"`

	// InlineClosures enables the closure stack-allocation rewrite. On by default.
	InlineClosures bool `yaml:"inline-closures"`

	// ReportDisassembly makes the driver print the disassembly of every rewritten method
	ReportDisassembly bool `yaml:"report-disassembly"`

	// SilenceWarn silences warnings
	SilenceWarn bool `yaml:"silence-warnings"`

	// Parallelism bounds the number of goroutines used for the per-method pre-analysis phase;
	// 0 or less means one per available CPU
	Parallelism int `yaml:"parallelism"`
}

// NewDefault returns a config with the default settings
func NewDefault() *Config {
	return &Config{
		sourceFile: "",
		Options: Options{
			LogLevel:       int(InfoLevel),
			ClassFilter:    "",
			MaxRounds:      DefaultMaxRounds,
			MaxCalleeSize:  DefaultMaxCalleeSize,
			InlineClosures: true,
			SilenceWarn:    false,
			Parallelism:    0,
		},
	}
}

// Load reads a configuration from a file
func Load(filename string) (*Config, error) {
	cfg := NewDefault()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}

	cfg.sourceFile = filename

	// If logLevel has not been specified (i.e. it is 0) set the default to Info
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}

	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}

	if cfg.MaxCalleeSize <= 0 {
		cfg.MaxCalleeSize = DefaultMaxCalleeSize
	}

	if cfg.ClassFilter != "" {
		r, err := regexp.Compile(cfg.ClassFilter)
		if err != nil {
			return nil, fmt.Errorf("could not compile class filter %q: %w", cfg.ClassFilter, err)
		}
		cfg.classFilterRegex = r
	}

	return cfg, nil
}

// SourceFile returns the file this config was loaded from, empty for defaults
func (c Config) SourceFile() string {
	return c.sourceFile
}

// MatchClassFilter returns true when the class name matches the class filter, or no filter is set
func (c Config) MatchClassFilter(classname string) bool {
	if c.classFilterRegex == nil {
		return true
	}
	return c.classFilterRegex.MatchString(classname)
}

// Verbose returns true when the configured log level is Debug or more verbose
func (c Config) Verbose() bool {
	return c.LogLevel >= int(DebugLevel)
}

// ExceedsMaxCalleeSize returns true when a callee of n instructions is too large to inline
func (c Config) ExceedsMaxCalleeSize(n int) bool {
	return n > c.MaxCalleeSize
}
