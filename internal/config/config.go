package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete stepwise configuration
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Limits    LimitsConfig    `yaml:"limits"`
	Retry     RetryConfig     `yaml:"retry"`
	Tools     ToolsConfig     `yaml:"tools"`
	Hooks     HooksConfig     `yaml:"hooks"`
	MCP       MCPConfig       `yaml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProviderConfig selects the reasoning provider. Fallbacks are tried in
// order when the primary provider fails.
type ProviderConfig struct {
	Name        string           `yaml:"name"` // "openai" or "anthropic"
	Model       string           `yaml:"model"`
	APIKey      string           `yaml:"api_key"`  // supports ${VAR}
	BaseURL     string           `yaml:"base_url"` // supports ${VAR}
	Temperature float32          `yaml:"temperature"`
	MaxTokens   int              `yaml:"max_tokens"`
	Fallbacks   []ProviderConfig `yaml:"fallbacks"`
}

// LimitsConfig bounds a single run
type LimitsConfig struct {
	MaxSteps    int           `yaml:"max_steps"`
	MaxDuration time.Duration `yaml:"max_duration"`
	StallWindow int           `yaml:"stall_window"` // 0 disables stall detection
	MaxMessages int           `yaml:"max_messages"` // 0 keeps all messages
}

// RetryConfig is the backoff policy for reasoning provider calls
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      bool          `yaml:"jitter"`
}

// ToolsConfig controls which builtin tools are registered and how calls run
type ToolsConfig struct {
	Enabled        []string      `yaml:"enabled"` // empty enables every builtin
	Mode           string        `yaml:"mode"`    // sequential, parallel or mixed
	MaxConcurrency int           `yaml:"max_concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
	OutputLimit    int           `yaml:"output_limit"`
}

// HooksConfig contains hook-related settings
type HooksConfig struct {
	// BashConfirm enables user confirmation before bash commands
	BashConfirm bool `yaml:"bash_confirm"`
	// ToolConfirm enables user confirmation before specified tools
	ToolConfirm []string `yaml:"tool_confirm"`
	// CircuitBreaker denies a tool after repeated consecutive failures
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures the per-tool circuit breaker. A zero
// threshold disables it; a zero cooldown never retries a tripped tool.
type CircuitBreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// MCPConfig contains MCP-specific settings
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig defines a single MCP server
type MCPServerConfig struct {
	Name      string            `yaml:"name"`      // Unique server identifier
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command"`   // Executable to run (stdio)
	Args      []string          `yaml:"args"`      // Command arguments
	URL       string            `yaml:"url"`       // Endpoint (http)
	Env       map[string]string `yaml:"env"`       // Environment variables with ${VAR} support
	Disabled  bool              `yaml:"disabled"`  // Skip this server if true
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Color  bool   `yaml:"color"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // host:port of the OTLP/HTTP collector
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

var (
	providerNames  = []string{"openai", "anthropic"}
	toolModes      = []string{"", "sequential", "parallel", "mixed"}
	logFormats     = []string{"", "text", "json"}
	logLevels      = []string{"", "debug", "info", "tool", "agent", "warn", "warning", "error"}
	mcpTransports  = []string{"stdio", "http"}
	defaultModels  = map[string]string{"openai": "gpt-4o", "anthropic": "claude-sonnet-4-5"}
	defaultAPIKeys = map[string]string{"openai": "OPENAI_API_KEY", "anthropic": "ANTHROPIC_API_KEY"}
)

// Default returns the configuration used when no file is found
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:        "openai",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Limits: LimitsConfig{
			MaxSteps:    20,
			StallWindow: 3,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Multiplier:  2.0,
			Jitter:      true,
		},
		Hooks: HooksConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Threshold: 5,
				Cooldown:  time.Minute,
			},
		},
		Tools: ToolsConfig{
			Mode:        "mixed",
			Timeout:     2 * time.Minute,
			OutputLimit: 30000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "stepwise",
		},
	}
}

// Load reads and parses the YAML config file. Values missing from the file
// keep their defaults; environment overrides are applied last.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads config with fallback to default locations
// Checks: ./stepwise.yaml, ./configs/stepwise.yaml,
// ~/.config/stepwise/stepwise.yaml, /etc/stepwise/stepwise.yaml
func LoadWithDefaults() (*Config, error) {
	for _, loc := range Locations() {
		if _, err := os.Stat(loc); err == nil {
			return Load(loc)
		}
	}

	// No config found - defaults plus environment (not an error)
	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Locations lists the config paths searched by LoadWithDefaults, in order.
func Locations() []string {
	locations := []string{
		"./stepwise.yaml",
		"./configs/stepwise.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".config", "stepwise", "stepwise.yaml"))
	}
	return append(locations, "/etc/stepwise/stepwise.yaml")
}

func (c *Config) finish() error {
	if err := c.applyEnv(); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ResolveProvider fills model and API key defaults for the named provider.
// It is applied to the primary provider and every fallback.
func (p *ProviderConfig) ResolveProvider() {
	p.APIKey = ExpandEnv(p.APIKey)
	p.BaseURL = ExpandEnv(p.BaseURL)
	if p.Model == "" {
		p.Model = defaultModels[p.Name]
	}
	if p.APIKey == "" {
		if env, ok := defaultAPIKeys[p.Name]; ok {
			p.APIKey = os.Getenv(env)
		}
	}
}

// Validate checks config correctness
func (c *Config) Validate() error {
	var errs []error

	if err := c.Provider.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("provider: %w", err))
	}
	for i, fb := range c.Provider.Fallbacks {
		if err := fb.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("provider.fallbacks[%d]: %w", i, err))
		}
	}

	if c.Limits.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("limits.max_steps must be >= 1, got %d", c.Limits.MaxSteps))
	}
	if c.Limits.MaxDuration < 0 {
		errs = append(errs, errors.New("limits.max_duration must not be negative"))
	}
	if c.Limits.StallWindow < 0 || c.Limits.StallWindow == 1 {
		errs = append(errs, fmt.Errorf("limits.stall_window must be 0 or >= 2, got %d", c.Limits.StallWindow))
	}
	if c.Limits.MaxMessages < 0 {
		errs = append(errs, errors.New("limits.max_messages must not be negative"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}

	if !slices.Contains(toolModes, c.Tools.Mode) {
		errs = append(errs, fmt.Errorf("tools.mode: unknown mode %q", c.Tools.Mode))
	}
	if c.Tools.Timeout < 0 || c.Tools.MaxConcurrency < 0 || c.Tools.OutputLimit < 0 {
		errs = append(errs, errors.New("tools: timeout, max_concurrency and output_limit must not be negative"))
	}

	if c.Hooks.CircuitBreaker.Threshold < 0 || c.Hooks.CircuitBreaker.Cooldown < 0 {
		errs = append(errs, errors.New("hooks.circuit_breaker: threshold and cooldown must not be negative"))
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	if err := c.validateServers(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks a single provider entry
func (p *ProviderConfig) Validate() error {
	if !slices.Contains(providerNames, p.Name) {
		return fmt.Errorf("unknown provider %q (supported: openai, anthropic)", p.Name)
	}
	if p.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative, got %d", p.MaxTokens)
	}
	return nil
}

func (c *Config) validateServers() error {
	// Check for duplicate server names
	names := make(map[string]bool)
	for i, server := range c.MCP.Servers {
		if server.Name == "" {
			return fmt.Errorf("server #%d: name cannot be empty", i+1)
		}

		if names[server.Name] {
			return fmt.Errorf("duplicate server name: %s", server.Name)
		}
		names[server.Name] = true

		if err := server.Validate(); err != nil {
			return fmt.Errorf("server %s: %w", server.Name, err)
		}
	}
	return nil
}

// Validate checks a single server config
func (s *MCPServerConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	// Server names prefix tool names, which providers restrict to ^[a-zA-Z0-9_-]+$
	for _, ch := range s.Name {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-') {
			return fmt.Errorf("server name '%s' contains invalid character '%c' (only alphanumeric, underscore, and hyphen allowed)", s.Name, ch)
		}
	}

	if s.Transport == "" {
		return fmt.Errorf("transport is required")
	}
	if !slices.Contains(mcpTransports, s.Transport) {
		return fmt.Errorf("unsupported transport: %s (supported: stdio, http)", s.Transport)
	}

	switch s.Transport {
	case "stdio":
		if s.Command == "" {
			return fmt.Errorf("command is required")
		}
	case "http":
		if s.URL == "" {
			return fmt.Errorf("url is required")
		}
	}
	return nil
}
