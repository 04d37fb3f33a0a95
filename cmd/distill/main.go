package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/distill/api"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/models"
	"github.com/use-agent/distill/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("an error occurred", "error", err)
		os.Exit(1)
	}
}

// options holds command-line overrides. Zero values leave the environment
// or config file setting in place.
type options struct {
	configPath string
	fields     []string
	retries    int
	delay      time.Duration
	maxChars   int
	outputDir  string
	provider   string
	printJSON  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	var cfg *config.Config

	root := &cobra.Command{
		Use:   "distill [url]",
		Short: "Scrape a web page and extract structured data into JSON and Excel",
		Long: "distill fetches a page through Firecrawl (or directly), stores the raw text,\n" +
			"asks an LLM to extract a fixed list of fields, and writes the result\n" +
			"as formatted_data_<stamp>.json and formatted_data_<stamp>.xlsx.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			initLogger(cfg.Log)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			url := cfg.Pipeline.URL
			if len(args) == 1 {
				url = args[0]
			}
			return runOnce(cmd.Context(), cfg, url, opts.printJSON)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file overlaid on environment settings")
	pf.StringSliceVar(&opts.fields, "fields", nil, "comma-separated fields to extract")
	pf.IntVar(&opts.retries, "retries", 0, "scrape attempts (default from DISTILL_RETRIES or 3)")
	pf.DurationVar(&opts.delay, "delay", 0, "pause between failed scrape attempts (default 5s)")
	pf.IntVar(&opts.maxChars, "max-chars", 0, "characters of page text sent to the model (default 3000)")
	pf.StringVar(&opts.outputDir, "output", "", "artifact directory (default \"output\")")
	pf.StringVar(&opts.provider, "provider", "", "scraping provider: firecrawl or direct")
	root.Flags().BoolVar(&opts.printJSON, "print", false, "print the run report as JSON to stdout")

	root.AddCommand(newServeCmd(&cfg))
	return root
}

func newServeCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *cfg)
		},
	}
}

// loadConfig reads env (and the optional YAML file), applies flag overrides
// and validates the result.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.configPath); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Load()
	}

	flags := cmd.Flags()
	if flags.Changed("fields") {
		cfg.Pipeline.Fields = opts.fields
	}
	if flags.Changed("retries") {
		cfg.Pipeline.Retries = opts.retries
	}
	if flags.Changed("delay") {
		cfg.Pipeline.RetryDelay = opts.delay
	}
	if flags.Changed("max-chars") {
		cfg.Pipeline.MaxChars = opts.maxChars
	}
	if flags.Changed("output") {
		cfg.Output.Dir = opts.outputDir
	}
	if flags.Changed("provider") {
		cfg.Scraper.Provider = opts.provider
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runOnce performs a single run and exits non-zero on failure.
func runOnce(ctx context.Context, cfg *config.Config, url string, printJSON bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	slog.Info("distill starting", "url", url, "provider", p.ProviderName(), "model", cfg.LLM.Model)

	report, err := p.Run(ctx, models.RunRequest{URL: url})
	if err != nil {
		return err
	}

	if printJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "    ")
		return enc.Encode(report)
	}
	return nil
}

// serve starts the HTTP API and blocks until SIGINT/SIGTERM.
func serve(ctx context.Context, cfg *config.Config) error {
	p, err := pipeline.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	slog.Info("distill server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"provider", p.ProviderName(),
		"model", cfg.LLM.Model,
	)
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		slog.Warn("auth enabled but DISTILL_API_KEYS is empty, API is open")
	}

	routerCtx, stopRouter := context.WithCancel(ctx)
	defer stopRouter()
	router := api.NewRouter(routerCtx, p, cfg, time.Now())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	// A run in flight can take minutes; give it a bounded window.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("distill stopped")
	return nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
