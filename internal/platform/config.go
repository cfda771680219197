// Package platform knows which repository branches and architectures exist.
//
// The registry validates the branch and architecture names of incoming requests,
// resolves branch aliases (e.g. "unstable" for "sisyphus") and supplies the default
// architecture set of a branch. Built-in defaults cover the public ALT branches; an
// optional YAML file extends or replaces them.
package platform

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/depgraph-io/depgraph/internal/config"
)

// DefaultConfigPath is the default location of the platform configuration file.
const DefaultConfigPath = ".depgraph.yaml"

// ConfigPathEnvVar is the environment variable naming a custom config path.
const ConfigPathEnvVar = "DEPGRAPH_CONFIG_PATH"

// Config is the platform section of .depgraph.yaml.
//
// Example:
//
//	branches: [sisyphus, p11, p10]
//	archs: [noarch, x86_64, aarch64]
//	branch_aliases:
//	  unstable: sisyphus
//	default_archs: [x86_64, noarch]
//	branch_default_archs:
//	  sisyphus_riscv64: [riscv64, noarch]
//
//nolint:tagliatelle // snake_case is intentional for YAML config files
type Config struct {
	// Branches replaces the built-in branch list when non-empty.
	Branches []string `yaml:"branches"`
	// ExtraBranches is appended to the branch list.
	ExtraBranches []string `yaml:"extra_branches"`
	// Archs replaces the built-in architecture list when non-empty.
	Archs []string `yaml:"archs"`
	// BranchAliases maps an alias to a canonical branch name.
	BranchAliases map[string]string `yaml:"branch_aliases"`
	// DefaultArchs is used for requests naming no architectures.
	DefaultArchs []string `yaml:"default_archs"`
	// BranchDefaultArchs overrides DefaultArchs per branch.
	BranchDefaultArchs map[string][]string `yaml:"branch_default_archs"`
}

// LoadConfig loads the platform configuration at path.
//
// A missing, unreadable or invalid file is not an error: the registry then runs on
// built-in defaults and a warning is logged.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Platform config not found, using built-in defaults",
				slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("Failed to read platform config, using built-in defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse platform config, using built-in defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &Config{}, nil
	}

	return cfg, nil
}

// LoadConfigFromEnv loads the config named by DEPGRAPH_CONFIG_PATH, falling back to
// .depgraph.yaml in the working directory.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig(config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))
}
