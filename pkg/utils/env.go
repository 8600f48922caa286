// Package utils provides shared helpers used across the kernel's packages.
package utils

import (
	"os"
	"strconv"
)

// EnvOrDefault returns the value of the environment variable identified by
// key, or fallback if the variable is unset or empty.
func EnvOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// EnvOrDefaultInt returns the integer value of the environment variable
// identified by key, or fallback if the variable is unset, empty, or cannot
// be parsed as an integer. Kernel tunables such as NEWTON_MAX_ITERATIONS
// flow through here (pkg/config.LoadFromEnv).
func EnvOrDefaultInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// EnvOrDefaultFloat64 returns the float value of the environment variable
// identified by key, or fallback if the variable is unset, empty, or cannot
// be parsed. Used for the fractional kernel tunables (NEWTON_TIMEOUT_SECONDS,
// NEWTON_RATIO_EPSILON).
func EnvOrDefaultFloat64(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
