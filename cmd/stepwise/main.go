package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stepwise/internal/agent"
	"stepwise/internal/cli"
	"stepwise/internal/config"
	"stepwise/internal/mcp"
	"stepwise/internal/telemetry"
)

var version = "dev"

type runOptions struct {
	configPath  string
	provider    string
	model       string
	apiKey      string
	apiBaseURL  string
	temperature float32
	maxSteps    int
	maxDuration time.Duration
	stallWindow int
	maxMessages int
	verbose     bool
	noColor     bool
	logFormat   string
	transcript  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:           "stepwise",
		Short:         "Stepwise tool-using agent runtime",
		Long:          "Runs a Think/Act loop: a language model picks tools, stepwise executes them and feeds the results back until the task is done.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: search ./stepwise.yaml, ./configs, ~/.config/stepwise, /etc/stepwise)")

	runCmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run the agent on a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, opts, strings.Join(args, " "))
		},
	}

	flags := runCmd.Flags()
	flags.StringVar(&opts.provider, "provider", "", "Reasoning provider: openai or anthropic")
	flags.StringVar(&opts.model, "model", "", "Model to use")
	flags.StringVar(&opts.apiKey, "api-key", "", "Provider API key")
	flags.StringVar(&opts.apiBaseURL, "api-base-url", "", "Provider API base URL")
	flags.Float32Var(&opts.temperature, "temperature", 0.7, "Temperature")
	flags.IntVar(&opts.maxSteps, "max-steps", agent.DefaultMaxSteps, "Maximum Think calls per run")
	flags.DurationVar(&opts.maxDuration, "max-duration", 0, "Wall-clock limit for the run (0 = none)")
	flags.IntVar(&opts.stallWindow, "stall-window", agent.DefaultStallWindow, "Identical cycles that end the run (0 = off)")
	flags.IntVar(&opts.maxMessages, "max-messages", 0, "Memory length cap (0 = unbounded)")
	flags.BoolVar(&opts.verbose, "verbose", false, "Enable verbose output (debug mode)")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	flags.BoolVar(&opts.transcript, "transcript", false, "Print the full message transcript after the run")

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTools(cmd, opts)
		},
	}

	rootCmd.AddCommand(runCmd, toolsCmd)
	return rootCmd
}

// applyFlags copies explicitly set flags over config values.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	flags := cmd.Flags()
	if flags.Changed("provider") && opts.provider != cfg.Provider.Name {
		cfg.Provider.Name = opts.provider
		cfg.Provider.Model = ""
		cfg.Provider.APIKey = ""
	}
	if flags.Changed("model") {
		cfg.Provider.Model = opts.model
	}
	if flags.Changed("api-key") {
		cfg.Provider.APIKey = opts.apiKey
	}
	if flags.Changed("api-base-url") {
		cfg.Provider.BaseURL = opts.apiBaseURL
	}
	if flags.Changed("temperature") {
		cfg.Provider.Temperature = opts.temperature
	}
	if flags.Changed("max-steps") {
		cfg.Limits.MaxSteps = opts.maxSteps
	}
	if flags.Changed("max-duration") {
		cfg.Limits.MaxDuration = opts.maxDuration
	}
	if flags.Changed("stall-window") {
		cfg.Limits.StallWindow = opts.stallWindow
	}
	if flags.Changed("max-messages") {
		cfg.Limits.MaxMessages = opts.maxMessages
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}
	if opts.noColor {
		cfg.Logging.Color = false
	}
	cfg.Provider.ResolveProvider()
}

func runTask(cmd *cobra.Command, opts *runOptions, task string) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := newLogger(cmd.OutOrStdout(), cfg.Logging, opts.verbose)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mcp.Version = version
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warn("Telemetry shutdown failed: %v", err)
		}
	}()

	client, err := buildClient(cfg.Provider)
	if err != nil {
		return err
	}
	log.Debug("Using provider %s (model: %s)", client.Provider(), client.Model())

	registry, mcpManager, err := buildRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer mcpManager.Close()
	log.Info("Registered %d tools", registry.Len())

	executor, err := buildExecutor(registry, cfg.Tools)
	if err != nil {
		return err
	}

	ag := agent.New("general", defaultSystemPrompt, client, registry, buildAgentConfig(cfg))
	ag.SetExecutor(executor)
	ag.SetHookManager(buildHooks(cfg.Hooks))
	ag.SetLogger(log)

	out, runErr := ag.Run(ctx, &agent.Input{Task: task})
	if out == nil {
		return runErr
	}

	renderer := cli.NewRenderer(cmd.OutOrStdout())
	renderer.SetColorMode(cfg.Logging.Color)
	if opts.transcript {
		renderer.RenderTranscript(out.Messages)
	}
	if !log.IsJSON() {
		renderer.RenderResult(out, runErr)
	}
	return runErr
}

func listTools(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd.ErrOrStderr(), cfg.Logging, false)
	if err != nil {
		return err
	}

	registry, mcpManager, err := buildRegistry(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer mcpManager.Close()

	renderer := cli.NewRenderer(cmd.OutOrStdout())
	renderer.SetColorMode(cfg.Logging.Color)
	renderer.RenderTools(registry.List())
	return nil
}
