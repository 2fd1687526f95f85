package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/config"
	"github.com/treekeeper/treekeeper/internal/logging"
	"github.com/treekeeper/treekeeper/internal/metrics"
	"github.com/treekeeper/treekeeper/tree"
)

// dialFunc opens the coordination session selected by cfg.
type dialFunc func(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.CoordMetrics) (coord.Service, error)

// app holds the flags and per-invocation state shared by every command.
type app struct {
	configPath string
	backend    string
	servers    string
	namespace  string
	timeout    time.Duration

	out    io.Writer
	errOut io.Writer
	dial   dialFunc

	cfg      *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	client   *tree.Client
	server   *metrics.Server
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut, dial: dialBackend}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "treectl",
		Short:         "Inspect and edit a coordination tree",
		Version:       version + " (built " + buildTime + ", commit " + gitCommit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "Path to configuration file")
	f.StringVar(&a.backend, "backend", "", "Override backend (zookeeper, oxia, memory)")
	f.StringVar(&a.servers, "servers", "", "Override server addresses, comma separated")
	f.StringVar(&a.namespace, "namespace", "", "Override namespace")
	f.DurationVar(&a.timeout, "timeout", 30*time.Second, "Per-command timeout (watch ignores it)")

	root.AddCommand(
		a.existsCmd(),
		a.createCmd(),
		a.deleteCmd(),
		a.getCmd(),
		a.setCmd(),
		a.lsCmd(),
		a.findCmd(),
		a.watchCmd(),
	)
	return root
}

// setup loads configuration, applies flag overrides, and connects.
func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFromPath(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	co := &a.cfg.Coordination
	if a.backend != "" {
		co.Backend = a.backend
	}
	if a.servers != "" {
		co.Servers = strings.Split(a.servers, ",")
	}
	if a.namespace != "" {
		co.Namespace = a.namespace
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	id := uuid.NewString()
	a.logger = logging.Configure(a.cfg.Observability.LogLevel, a.cfg.Observability.LogFormat).
		WithCorrelationID(id).
		With(map[string]any{"command": cmd.Name()})
	ctx := logging.WithCorrelationIDCtx(cmd.Context(), id)
	ctx = logging.WithLoggerCtx(ctx, a.logger)
	ctx = logging.WithFieldsCtx(ctx, map[string]any{"backend": co.Backend})
	cmd.SetContext(ctx)

	a.registry = prometheus.NewRegistry()
	coordMetrics := metrics.NewCoordMetricsWithRegistry(a.registry)
	svc, err := a.dial(ctx, a.cfg, a.logger, coordMetrics)
	if err != nil {
		return err
	}
	a.client = tree.New(svc,
		tree.WithLogger(a.logger),
		tree.WithRetryPolicy(co.RetryPolicy()),
		tree.WithCoordMetrics(coordMetrics),
		tree.WithWatchMetrics(metrics.NewWatchMetricsWithRegistry(a.registry)),
	)

	if addr := a.cfg.Observability.MetricsAddr; addr != "" {
		a.server = metrics.NewServerWithRegistry(addr, a.registry).
			WithLogger(a.logger).
			WithHealth(a.client.Guard().EnsureConnected)
		if err := a.server.Start(); err != nil {
			return err
		}
	}
	a.logger.Debugf("connected", map[string]any{
		"backend":   co.Backend,
		"addresses": a.client.Addresses(),
		"namespace": a.client.Namespace(),
	})
	return nil
}

// shutdown releases whatever setup acquired. Safe to call when setup did
// not run or failed part way.
func (a *app) shutdown() error {
	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Close())
		a.server = nil
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
		a.client = nil
	}
	return errors.Join(errs...)
}

// opContext bounds a single command by --timeout.
func (a *app) opContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), a.timeout)
}
