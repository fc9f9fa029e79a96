package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

// Environment variables that override file values.
const (
	EnvProvider    = "STEPWISE_PROVIDER"
	EnvModel       = "STEPWISE_MODEL"
	EnvMaxSteps    = "STEPWISE_MAX_STEPS"
	EnvMaxDuration = "STEPWISE_MAX_DURATION"
	EnvLogLevel    = "STEPWISE_LOG_LEVEL"
)

// envVarPattern matches ${VAR} and $VAR patterns
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}|\$([A-Za-z0-9_]+)`)

// ExpandEnv replaces ${VAR} and $VAR with environment variables
// Example: "Bearer ${GITHUB_TOKEN}" → "Bearer ghp_abc123..."
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := ""
		if match[1] == '{' {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}
		return os.Getenv(varName)
	})
}

// ExpandEnvMap expands all values in a map
func ExpandEnvMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}

	expanded := make(map[string]string, len(m))
	for key, value := range m {
		expanded[key] = ExpandEnv(value)
	}
	return expanded
}

// applyEnv overrides file values with STEPWISE_* variables and resolves
// provider defaults. The environment wins over the file.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvProvider); v != "" {
		if v != c.Provider.Name {
			c.Provider.Model = ""
		}
		c.Provider.Name = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv(EnvMaxSteps); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxSteps, err)
		}
		c.Limits.MaxSteps = n
	}
	if v := os.Getenv(EnvMaxDuration); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxDuration, err)
		}
		c.Limits.MaxDuration = d
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}

	c.Provider.ResolveProvider()
	for i := range c.Provider.Fallbacks {
		c.Provider.Fallbacks[i].ResolveProvider()
	}
	return nil
}
