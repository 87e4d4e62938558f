package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/convergectl/internal/config"
	"github.com/danmuck/convergectl/internal/logging"
	"github.com/danmuck/convergectl/internal/observability"
	"github.com/danmuck/convergectl/internal/scenario"
	"github.com/spf13/pflag"
)

const version = "0.1.0"

const (
	exitConverged = 0
	exitDiverged  = 1
	exitFailure   = 2
)

const defaultConfigPath = "scenario.toml"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitFailure
	}
	switch args[0] {
	case "run":
		return runScenario(args[1:], stderr)
	case "validate":
		return validateScenario(args[1:], stdout, stderr)
	case "init":
		return initScenario(args[1:], stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "convergectl %s\n", version)
		return exitConverged
	case "help", "-h", "--help":
		usage(stdout)
		return exitConverged
	default:
		fmt.Fprintf(stderr, "convergectl: unknown command %q\n", args[0])
		usage(stderr)
		return exitFailure
	}
}

type runOptions struct {
	configPath  string
	outDir      string
	typingDelay time.Duration
	statusAddr  string
	logLevel    string

	flags *pflag.FlagSet
}

func parseRunFlags(args []string, stderr io.Writer) (runOptions, error) {
	var opts runOptions
	fs := pflag.NewFlagSet("convergectl run", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "scenario file (.toml, .yaml or .yml)")
	fs.StringVarP(&opts.outDir, "out", "o", "", "host directory for collected artifacts (overrides output_dir)")
	fs.DurationVar(&opts.typingDelay, "typing-delay", 0, "per-character typing delay (overrides typing_delay)")
	fs.StringVar(&opts.statusAddr, "status-addr", "", "serve /health, /status and /metrics on this address")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		if len(rest) > 1 || fs.Changed("config") {
			return opts, fmt.Errorf("unexpected argument: %s", rest[len(rest)-1])
		}
		opts.configPath = rest[0]
	}
	if opts.typingDelay < 0 {
		return opts, fmt.Errorf("--typing-delay must not be negative")
	}
	opts.flags = fs
	return opts, nil
}

// applyOverrides copies explicitly set flags over the loaded scenario.
func applyOverrides(cfg *config.Scenario, opts runOptions) {
	if opts.flags == nil {
		return
	}
	if opts.flags.Changed("out") {
		cfg.Params.OutputDir = opts.outDir
	}
	if opts.flags.Changed("typing-delay") {
		cfg.Params.TypingDelay = opts.typingDelay
	}
	if opts.flags.Changed("status-addr") {
		cfg.Status.Addr = opts.statusAddr
	}
}

func runScenario(args []string, stderr io.Writer) int {
	opts, err := parseRunFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitConverged
		}
		fmt.Fprintf(stderr, "convergectl run: %v\n", err)
		return exitFailure
	}
	if opts.logLevel != "" {
		if _, ok := logging.ParseLevel(opts.logLevel); !ok {
			fmt.Fprintf(stderr, "convergectl run: unknown log level %q\n", opts.logLevel)
			return exitFailure
		}
		_ = os.Setenv(logging.EnvLogLevel, opts.logLevel)
	}
	logger := observability.InitLogger("convergectl")

	cfg, err := config.LoadScenario(opts.configPath)
	if err != nil {
		logger.Error().Err(err).Msg("scenario load failed")
		return exitFailure
	}
	applyOverrides(&cfg, opts)
	if err := config.Validate(cfg); err != nil {
		logger.Error().Err(err).Msg("scenario invalid after flag overrides")
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := observability.NewTracker()
	if cfg.Status.Addr != "" {
		srv := observability.NewStatusServer(cfg.Status.Addr, tracker, cfg.Status.CorsOrigins)
		if _, err := srv.Start(); err != nil {
			logger.Error().Err(err).Str("addr", cfg.Status.Addr).Msg("status server failed")
			return exitFailure
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	actors, closeActors, err := config.BuildActors(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("actor setup failed")
		return exitFailure
	}
	defer func() {
		if err := closeActors(); err != nil {
			logger.Warn().Err(err).Msg("actor cleanup failed")
		}
	}()

	driver := scenario.NewDriver(cfg.Params, tracker, observability.MetricsObserver{})
	driver.Logger = logger
	result, err := driver.Run(ctx, actors)
	if err != nil {
		var assertErr *scenario.AssertionError
		if errors.As(err, &assertErr) {
			fmt.Fprintln(stderr, assertErr.Error())
			return exitDiverged
		}
		logger.Error().Err(err).Msg("scenario failed")
		return exitFailure
	}
	logger.Info().
		Str("run", result.ID).
		Str("out", result.Layout.Root).
		Int("actors", len(actors)).
		Msg("clients converged")
	return exitConverged
}

func validateScenario(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("convergectl validate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.StringP("config", "c", defaultConfigPath, "scenario file to validate")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitConverged
		}
		return exitFailure
	}
	if rest := fs.Args(); len(rest) == 1 && !fs.Changed("config") {
		*path = rest[0]
	}

	cfg, err := config.LoadScenario(*path)
	if err != nil {
		fmt.Fprintf(stderr, "convergectl validate: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "Validated scenario at %s (%d actors, document %s)\n",
		*path, len(cfg.Actors), cfg.Params.DocumentPath)
	return exitConverged
}

func initScenario(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("convergectl init", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	kind := fs.String("kind", config.TransportSSH, "template kind: ssh|terminal")
	output := fs.StringP("output", "o", defaultConfigPath, "output path for the scenario template")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitConverged
		}
		return exitFailure
	}

	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		fmt.Fprintf(stderr, "convergectl init: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "Wrote %s scenario template to %s\n", *kind, *output)
	return exitConverged
}

func usage(w io.Writer) {
	fmt.Fprint(w, `convergectl drives editor clients through a shared scenario and checks
that every client ends with the same document.

Usage:
  convergectl run [--config scenario.toml] [--out DIR] [--typing-delay 100ms]
                  [--status-addr :9300] [--log-level info]
  convergectl validate [--config scenario.toml]
  convergectl init [--kind ssh|terminal] [--output scenario.toml] [--force]
  convergectl version

Exit status: 0 converged, 1 documents differ, 2 any other failure.
`)
}
