package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/facility-live/internal/config"
	"github.com/rickgao/facility-live/internal/connection"
	"github.com/rickgao/facility-live/internal/feed"
	"github.com/rickgao/facility-live/internal/metrics"
	"github.com/rickgao/facility-live/internal/status"
	"github.com/rickgao/facility-live/internal/subscription"
	"github.com/rickgao/facility-live/internal/update"
	"github.com/rickgao/facility-live/internal/version"
)

// maxPending bounds the events waiting for the printer.
const maxPending = 4096

type options struct {
	configPath string
	url        string
	topics     []string
	verbose    bool
	jsonOutput bool
	statusAddr string
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "livetail [topic...]",
		Short:         "Print live facility updates",
		Long:          `livetail subscribes to facility topics over STOMP-over-WebSocket and prints every counter, occupancy and full update it receives.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.topics = append(opts.topics, args...)
			err := run(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "livetail:", err)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to config file (defaults apply when empty)")
	flags.StringVar(&opts.url, "url", "", "streaming endpoint, overrides endpoint.url")
	flags.StringArrayVarP(&opts.topics, "topic", "t", nil, "facility topic key to bind (repeatable)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print updates as JSON lines")
	flags.StringVar(&opts.statusAddr, "status-addr", "", "status server address, overrides status.addr")

	return cmd
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts options) (*config.ClientConfig, error) {
	cfg := &config.ClientConfig{}
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.url != "" {
		cfg.Endpoint.URL = opts.url
	}
	if opts.statusAddr != "" {
		cfg.Status.Addr = opts.statusAddr
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if len(opts.topics) > 0 {
		cfg.Topics = opts.topics
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("no topics: pass --topic or set topics in the config file")
	}
	return cfg, nil
}

// newLogger builds the slog handler selected by the log section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, stderr)
	slog.SetDefault(logger)

	logger.Info("starting livetail",
		"version", version.Version,
		"commit", version.Commit,
		"url", cfg.Endpoint.URL,
		"topics", cfg.Topics,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mgr := connection.NewManager(
		connection.ManagerConfigFrom(cfg),
		logger,
		connection.WithMetrics(metrics.New(reg)),
	)

	queue := feed.NewQueue[update.Event](cfg.Connection.BufferSize, maxPending)

	bindings := make([]*subscription.Binding, 0, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		b := subscription.New(mgr, logger.With("topic", topic))
		if err := b.Bind(topic, func(ev update.Event) { queue.Push(ev) }); err != nil {
			logger.Warn("skipping topic", "topic", topic, "error", err)
			continue
		}
		bindings = append(bindings, b)
	}
	if len(bindings) == 0 {
		return fmt.Errorf("no usable topics in %v", cfg.Topics)
	}

	var server *status.Server
	if cfg.Status.Addr != "" {
		server = status.NewServer(cfg.Status.Addr, cfg.Status.MetricsPath, mgr, reg, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Printer
	g.Go(func() error {
		p := newPrinter(stdout, opts.jsonOutput)
		for {
			ev, ok := queue.Pop()
			if !ok {
				return nil
			}
			if err := p.Print(ev); err != nil {
				return fmt.Errorf("print update: %w", err)
			}
		}
	})

	if server != nil {
		g.Go(server.ListenAndServe)
	}

	// Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		for _, b := range bindings {
			b.Unbind()
		}
		mgr.Disconnect()
		queue.Close()

		if server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("status server shutdown", "error", err)
			}
		}

		if dropped := queue.Stats().Dropped; dropped > 0 {
			logger.Warn("printer fell behind", "dropped", dropped)
		}
		stats := mgr.Stats()
		logger.Info("livetail stopped",
			"sessions", stats.Sessions,
			"reconnects", stats.Reconnects,
			"delivered", stats.Delivered,
			"parse_errors", stats.ParseErrors,
		)
		return nil
	})

	return g.Wait()
}
