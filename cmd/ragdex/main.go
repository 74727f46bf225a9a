// Package main implements the ragdex CLI for working with a vector store
// from the shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdex/internal/config"
	"github.com/fyrsmithlabs/ragdex/internal/embeddings"
	"github.com/fyrsmithlabs/ragdex/internal/logging"
	"github.com/fyrsmithlabs/ragdex/internal/telemetry"
	"github.com/fyrsmithlabs/ragdex/internal/vectorstore"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).execute(ctx, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// embedderFunc builds the embedder handed to the store.
type embedderFunc func(config.EmbeddingsConfig, *zap.Logger) (vectorstore.Embedder, error)

func teiEmbedder(ec config.EmbeddingsConfig, logger *zap.Logger) (vectorstore.Embedder, error) {
	svc, err := embeddings.NewService(embeddings.ConfigFrom(ec), logger)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// app carries flag values and everything built from them for one command
// invocation.
type app struct {
	configPath  string
	metricsAddr string
	backend     string
	persistDir  string
	collection  string
	logLevel    string

	out         io.Writer
	newEmbedder embedderFunc

	cfg     *config.Config
	logger  *logging.Logger
	tel     *telemetry.Telemetry
	metrics *http.Server
	store   vectorstore.Store
}

func newApp(out io.Writer) *app {
	return &app{out: out, newEmbedder: teiEmbedder}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "ragdex",
		Short: "Manage documents in a vector store",
		Long: `ragdex adds, searches and deletes documents in a vector store.

Backends are selected by --type or vectorstore.type in the config file.
Embeddings come from a Text Embeddings Inference server (embeddings.base_url).

Examples:
  # List compiled-in backends
  ragdex backends

  # Add documents from a JSON lines file
  ragdex add --file docs.jsonl

  # Search with a metadata filter
  ragdex search "vector databases" -k 3 --filter '{"book": "intro"}'`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.config/ragdex/config.yaml)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	flags.StringVar(&a.backend, "type", "", "vector store backend (overrides vectorstore.type)")
	flags.StringVar(&a.persistDir, "persist-dir", "", "persistence directory for embedded backends")
	flags.StringVar(&a.collection, "collection", "", "collection name (overrides vectorstore.options.collection_name)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newBackendsCmd(a),
		newAddCmd(a),
		newSearchCmd(a),
		newGetCmd(a),
		newDeleteCmd(a),
		newCountCmd(a),
		newInfoCmd(a),
	)
	return root
}

// execute runs one command line and releases whatever setup acquired, even
// when the command fails.
func (a *app) execute(ctx context.Context, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(a.out)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown(context.WithoutCancel(ctx)))
}

// setup loads configuration, then builds the logger, telemetry and metrics
// endpoint. The store is opened lazily by commands that need it.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(a.configPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.VectorStore.Type = a.backend
	}
	if a.persistDir != "" {
		cfg.VectorStore.PersistDir = a.persistDir
	}
	if a.collection != "" {
		cfg.VectorStore.Options["collection_name"] = a.collection
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.metricsAddr != "" {
		cfg.Observability.MetricsAddr = a.metricsAddr
	}
	a.cfg = cfg

	lc, err := logging.FromLogConfig(cfg.Log)
	if err != nil {
		return err
	}
	a.logger, err = logging.NewLogger(lc, nil)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	a.tel, err = telemetry.New(cmd.Context(), telemetry.FromObservability(cfg.Observability))
	if err != nil {
		return err
	}

	if cfg.Observability.MetricsAddr != "" {
		if err := a.serveMetrics(cfg.Observability.MetricsAddr); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(context.Background(), "metrics server failed", zap.Error(err))
		}
	}()
	a.logger.Info(context.Background(), "serving metrics", zap.String("addr", ln.Addr().String()))
	return nil
}

// openStore builds the embedder and the configured store.
func (a *app) openStore(ctx context.Context) (vectorstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	emb, err := a.newEmbedder(a.cfg.Embeddings, a.logger.Underlying())
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	store, err := vectorstore.NewStore(ctx, a.cfg, emb, a.logger.Underlying())
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) teardown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if c, ok := a.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	if a.tel != nil {
		errs = append(errs, a.tel.Shutdown(ctx))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
