package cli

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orizon-lang/ancl/internal/emit"
	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/opt"
	"github.com/orizon-lang/ancl/internal/regalloc"
)

// Targets lists the supported target names.
var Targets = []string{"amd64"}

// Config is the compiler configuration read from YAML.
type Config struct {
	Target        string   `yaml:"target"`
	Optimize      bool     `yaml:"optimize"`
	OptIterations int      `yaml:"opt_iterations"`
	Passes        []string `yaml:"passes"`
	Allocator     string   `yaml:"allocator"`
	Syntax        string   `yaml:"syntax"`
	// DumpIR and DumpMIR name files that receive the optimized IR and the
	// final MIR of every compile.
	DumpIR    string `yaml:"dump_ir,omitempty"`
	DumpMIR   string `yaml:"dump_mir,omitempty"`
	LogTopics string `yaml:"log_topics,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Target:        "amd64",
		Optimize:      true,
		OptIterations: 1,
		Passes:        append([]string(nil), opt.DefaultPasses...),
		Allocator:     string(regalloc.LinearScanStrategy),
		Syntax:        "gas",
	}
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return config, nil
		}
		return nil, errors.IO(path, err)
	}
	if err := ParseConfig(data, config); err != nil {
		return nil, errors.Annotate(err, "file", path)
	}
	return config, nil
}

// ParseConfig decodes YAML into config and validates the result. Keys absent
// from data keep their current values.
func ParseConfig(data []byte, config *Config) error {
	if err := yaml.Unmarshal(data, config); err != nil {
		return errors.Config("BAD_CONFIG", fmt.Sprintf("failed to parse config: %v", err), nil)
	}
	return config.Validate()
}

// Validate rejects unknown target, syntax, allocator and pass names.
func (c *Config) Validate() error {
	if !contains(Targets, c.Target) {
		return errors.Config("UNKNOWN_TARGET", fmt.Sprintf("unknown target %q", c.Target),
			map[string]interface{}{"target": c.Target})
	}
	if !contains(emit.Syntaxes(), c.Syntax) {
		return errors.Config("UNKNOWN_SYNTAX", fmt.Sprintf("unknown assembly syntax %q", c.Syntax),
			map[string]interface{}{"syntax": c.Syntax})
	}
	known := false
	for _, s := range regalloc.Strategies() {
		if string(s) == c.Allocator {
			known = true
		}
	}
	if !known {
		return errors.Config("UNKNOWN_ALLOCATOR", fmt.Sprintf("unknown register allocator %q", c.Allocator),
			map[string]interface{}{"allocator": c.Allocator})
	}
	if c.OptIterations < 1 {
		return errors.Config("BAD_ITERATIONS", "opt_iterations must be at least 1",
			map[string]interface{}{"opt_iterations": c.OptIterations})
	}
	return opt.ValidatePasses(c.Passes)
}

// SaveConfig writes c as YAML.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IO(path, err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
