package core

// KernelConfig holds the six bounded-execution and presentation options a
// caller may tune at load time. A zero-value KernelConfig is invalid for
// execution, so LoadAll (registry.go) merges caller overrides over
// DefaultKernelConfig; ReplayLedger uses the config it is given as is.
type KernelConfig struct {
	MaxIterations     int     `yaml:"max_iterations"`
	MaxRecursionDepth int     `yaml:"max_recursion_depth"`
	MaxOperations     int     `yaml:"max_operations"`
	TimeoutSeconds    float64 `yaml:"timeout_seconds"`
	RatioEpsilon      float64 `yaml:"ratio_epsilon"`
	HashPrefixLength  int     `yaml:"hash_prefix_length"`
}

// DefaultKernelConfig returns the documented defaults.
func DefaultKernelConfig() KernelConfig {
	return KernelConfig{
		MaxIterations:     10000,
		MaxRecursionDepth: 100,
		MaxOperations:     1000000,
		TimeoutSeconds:    30.0,
		RatioEpsilon:      defaultRatioEpsilon,
		HashPrefixLength:  16,
	}
}

// Merge merges a caller-supplied partial config over c: zero-valued fields
// on override are treated as "not specified".
func (c KernelConfig) Merge(override KernelConfig) KernelConfig {
	out := c
	if override.MaxIterations != 0 {
		out.MaxIterations = override.MaxIterations
	}
	if override.MaxRecursionDepth != 0 {
		out.MaxRecursionDepth = override.MaxRecursionDepth
	}
	if override.MaxOperations != 0 {
		out.MaxOperations = override.MaxOperations
	}
	if override.TimeoutSeconds != 0 {
		out.TimeoutSeconds = override.TimeoutSeconds
	}
	if override.RatioEpsilon != 0 {
		out.RatioEpsilon = override.RatioEpsilon
	}
	if override.HashPrefixLength != 0 {
		out.HashPrefixLength = override.HashPrefixLength
	}
	return out
}
