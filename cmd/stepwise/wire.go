package main

import (
	"context"
	"fmt"
	"io"

	"stepwise/internal/agent"
	"stepwise/internal/config"
	"stepwise/internal/hook"
	"stepwise/internal/hook/handlers"
	"stepwise/internal/llm"
	"stepwise/internal/llm/anthropic"
	"stepwise/internal/llm/openai"
	"stepwise/internal/logger"
	"stepwise/internal/mcp"
	"stepwise/internal/retry"
	"stepwise/internal/tool"
	"stepwise/internal/tool/builtin"
)

const defaultSystemPrompt = `You are a helpful AI assistant with access to tools.
Work step by step: call tools to inspect and change the environment, read their results, and adapt.
When the task is complete, call the terminate tool with your final answer, or reply without tool calls.
Always provide clear, concise responses.`

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadWithDefaults()
}

func newLogger(w io.Writer, cfg config.LoggingConfig, verbose bool) (*logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = logger.LevelDebug
	}

	if cfg.Format == "json" {
		return logger.NewJSONLogger(w, level), nil
	}
	log := logger.NewLogger(w, level)
	log.SetColorMode(cfg.Color)
	return log, nil
}

func newProviderClient(p config.ProviderConfig) (llm.Client, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("%s API key required (set provider.api_key or the provider's API key variable)", p.Name)
	}
	switch p.Name {
	case "openai":
		return openai.NewClient(p.APIKey, p.Model, p.BaseURL), nil
	case "anthropic":
		return anthropic.NewClient(p.APIKey, p.Model, p.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", p.Name)
	}
}

// buildClient returns the primary provider, wrapped in a fallback chain
// when fallbacks are configured.
func buildClient(p config.ProviderConfig) (llm.Client, error) {
	primary, err := newProviderClient(p)
	if err != nil {
		return nil, err
	}
	if len(p.Fallbacks) == 0 {
		return primary, nil
	}

	clients := []llm.Client{primary}
	for i, fb := range p.Fallbacks {
		c, err := newProviderClient(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback %d: %w", i, err)
		}
		clients = append(clients, c)
	}
	return llm.NewFallback(clients...), nil
}

func buildLimits(cfg config.LimitsConfig) agent.RunLimits {
	return agent.RunLimits{
		MaxSteps:    cfg.MaxSteps,
		MaxDuration: cfg.MaxDuration,
		StallWindow: cfg.StallWindow,
		MaxMessages: cfg.MaxMessages,
	}
}

func buildRetry(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Multiplier:  cfg.Multiplier,
		Jitter:      cfg.Jitter,
	}
}

func buildAgentConfig(cfg *config.Config) *agent.Config {
	return &agent.Config{
		Temperature:          cfg.Provider.Temperature,
		MaxTokens:            cfg.Provider.MaxTokens,
		Limits:               buildLimits(cfg.Limits),
		Retry:                buildRetry(cfg.Retry),
		IncludeBestPractices: true,
	}
}

// buildRegistry registers the enabled builtins and every configured MCP
// server's tools. The caller closes the returned manager.
func buildRegistry(ctx context.Context, cfg *config.Config, log *logger.Logger) (*tool.Registry, *mcp.Manager, error) {
	registry := tool.NewRegistry()
	if err := builtin.Register(registry, cfg.Tools.Enabled...); err != nil {
		return nil, nil, err
	}

	manager := mcp.NewManager(registry)
	if err := manager.Initialize(ctx, cfg.MCP); err != nil {
		if manager.ServerCount() == 0 && len(cfg.MCP.Servers) > 0 {
			log.Warn("MCP disabled: %v", err)
		} else {
			log.Warn("%v", err)
		}
	}
	if n := manager.ServerCount(); n > 0 {
		log.Info("Connected %d MCP server(s): %v", n, manager.ListServers())
	}
	return registry, manager, nil
}

func buildHooks(cfg config.HooksConfig) *hook.Manager {
	manager := hook.NewManager()
	if cfg.BashConfirm {
		manager.Register(handlers.NewBashConfirmHandler())
	}
	if len(cfg.ToolConfirm) > 0 {
		manager.Register(handlers.NewToolConfirmHandler(cfg.ToolConfirm...))
	}
	if cb := cfg.CircuitBreaker; cb.Threshold > 0 {
		manager.Register(handlers.NewCircuitBreakerHandler(cb.Threshold, cb.Cooldown))
	}
	return manager
}

func buildExecutor(registry *tool.Registry, cfg config.ToolsConfig) (*tool.Executor, error) {
	mode, err := tool.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	executor := tool.NewExecutor(registry)
	executor.SetMode(mode)
	executor.SetMaxConcurrency(cfg.MaxConcurrency)
	executor.SetTimeout(cfg.Timeout)
	if cfg.OutputLimit > 0 {
		executor.SetOutputLimit(cfg.OutputLimit)
	}
	return executor, nil
}
