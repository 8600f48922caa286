// Package config provides a reusable loader for kernel configuration files.
// It is versioned so that applications can depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"newton-kernel/core"
	"newton-kernel/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// fileConfig mirrors core.KernelConfig's yaml tags; it is unmarshalled
// separately so that a config file naming only some fields leaves the rest
// at their zero value, which KernelConfig.Merge treats as "inherit the
// default" (core/config.go).
type fileConfig struct {
	MaxIterations     int     `yaml:"max_iterations"`
	MaxRecursionDepth int     `yaml:"max_recursion_depth"`
	MaxOperations     int     `yaml:"max_operations"`
	TimeoutSeconds    float64 `yaml:"timeout_seconds"`
	RatioEpsilon      float64 `yaml:"ratio_epsilon"`
	HashPrefixLength  int     `yaml:"hash_prefix_length"`
}

// Load reads a kernel config YAML file at path and merges it over
// core.DefaultKernelConfig(). A missing file is not an error: the kernel
// runs with the documented defaults.
func Load(path string) (core.KernelConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return core.DefaultKernelConfig(), nil
	}
	if err != nil {
		return core.KernelConfig{}, fmt.Errorf("read kernel config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return core.KernelConfig{}, fmt.Errorf("parse kernel config: %w", err)
	}

	override := core.KernelConfig{
		MaxIterations:     fc.MaxIterations,
		MaxRecursionDepth: fc.MaxRecursionDepth,
		MaxOperations:     fc.MaxOperations,
		TimeoutSeconds:    fc.TimeoutSeconds,
		RatioEpsilon:      fc.RatioEpsilon,
		HashPrefixLength:  fc.HashPrefixLength,
	}
	return core.DefaultKernelConfig().Merge(override), nil
}

// LoadFromEnv loads the kernel config file named by NEWTON_CONFIG (or
// config/newton.yaml if unset), then applies per-tunable NEWTON_* overrides
// on top, so a deployment can tighten a single bound without editing the
// config file.
func LoadFromEnv() (core.KernelConfig, error) {
	cfg, err := Load(utils.EnvOrDefault("NEWTON_CONFIG", "config/newton.yaml"))
	if err != nil {
		return core.KernelConfig{}, err
	}
	cfg.MaxIterations = utils.EnvOrDefaultInt("NEWTON_MAX_ITERATIONS", cfg.MaxIterations)
	cfg.MaxRecursionDepth = utils.EnvOrDefaultInt("NEWTON_MAX_RECURSION_DEPTH", cfg.MaxRecursionDepth)
	cfg.MaxOperations = utils.EnvOrDefaultInt("NEWTON_MAX_OPERATIONS", cfg.MaxOperations)
	cfg.TimeoutSeconds = utils.EnvOrDefaultFloat64("NEWTON_TIMEOUT_SECONDS", cfg.TimeoutSeconds)
	cfg.RatioEpsilon = utils.EnvOrDefaultFloat64("NEWTON_RATIO_EPSILON", cfg.RatioEpsilon)
	cfg.HashPrefixLength = utils.EnvOrDefaultInt("NEWTON_HASH_PREFIX_LENGTH", cfg.HashPrefixLength)
	return cfg, nil
}
