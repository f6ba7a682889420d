package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/rr-dnstun/internal/dns/common/clock"
	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/config"
	"github.com/haukened/rr-dnstun/internal/dns/gateways/transport"
	"github.com/haukened/rr-dnstun/internal/dns/gateways/upstream"
	"github.com/haukened/rr-dnstun/internal/dns/gateways/wire"
	"github.com/haukened/rr-dnstun/internal/dns/infra/metrics"
	"github.com/haukened/rr-dnstun/internal/dns/repos/blocklist"
	"github.com/haukened/rr-dnstun/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/rr-dnstun/internal/dns/repos/blocklist/bolt"
	"github.com/haukened/rr-dnstun/internal/dns/repos/blocklist/lru"
	"github.com/haukened/rr-dnstun/internal/dns/repos/replaycache"
	"github.com/haukened/rr-dnstun/internal/dns/services/relay"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-dnstund"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the relay.
type Application struct {
	config    *config.AppConfig
	transport *transport.UDPTransport
	relay     *relay.Relay
	metrics   *http.Server
	closers   []io.Closer
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":           appName,
		"version":       version,
		"env":           cfg.Env,
		"log_level":     cfg.Log.Level,
		"port":          cfg.Relay.Port,
		"carriers":      cfg.Relay.Carriers,
		"payload_limit": cfg.Relay.PayloadLimit,
	}, "Starting DNS tunnel relay")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Relay failed")
	}

	log.Info(nil, "DNS tunnel relay stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	codec := wire.NewUDPCodec(logger)

	executor := upstream.NewExecutor(upstream.Options{
		Timeout:      cfg.Upstream.Timeout,
		Insecure:     cfg.Upstream.Insecure,
		MaxBodyBytes: cfg.Upstream.MaxBody,
		QPS:          cfg.Upstream.QPS,
		Burst:        cfg.Upstream.Burst,
		Logger:       logger,
	})
	log.Info(map[string]any{
		"timeout":  cfg.Upstream.Timeout,
		"insecure": cfg.Upstream.Insecure,
		"qps":      cfg.Upstream.QPS,
	}, "Upstream HTTP executor configured")

	var closers []io.Closer
	egress, closer, err := buildBlocklist(cfg, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build blocklist: %w", err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	opts := relay.Options{
		Carriers:     cfg.Relay.Carriers,
		PayloadLimit: cfg.Relay.PayloadLimit,
		Executor:     executor,
		Blocklist:    egress,
		Logger:       logger,
	}
	if cfg.Cache.Size > 0 {
		cache, err := replaycache.New(cfg.Cache.Size, cfg.Cache.TTL, clk)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("failed to create replay cache: %w", err)
		}
		opts.Cache = cache
		log.Info(map[string]any{
			"size": cfg.Cache.Size,
			"ttl":  cfg.Cache.TTL,
		}, "Replay cache configured")
	}

	relayService, err := relay.NewRelay(opts)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("failed to create relay: %w", err)
	}

	udpTransport := transport.NewUDPTransport(
		cfg.ListenAddr(), codec, logger,
		transport.WithMaxInFlight(int64(cfg.Relay.MaxInFlight)),
	)

	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr)
	}

	return &Application{
		config:    cfg,
		transport: udpTransport,
		relay:     relayService,
		metrics:   metricsServer,
		closers:   closers,
	}, nil
}

// buildBlocklist returns the egress blocklist. Without a rule directory every
// host is allowed. The returned closer releases the rule store, if any.
func buildBlocklist(cfg *config.AppConfig, clk clock.Clock, logger log.Logger) (relay.Blocklist, io.Closer, error) {
	if cfg.Blocklist.Directory == "" {
		log.Info(map[string]any{"disabled": true}, "Egress blocklist disabled")
		return &blocklist.NoopBlocklist{}, nil, nil
	}

	store, err := bolt.New(cfg.Blocklist.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open blocklist store: %w", err)
	}

	cache, err := lru.New(cfg.Blocklist.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to create blocklist cache: %w", err)
	}

	now := clk.Now()
	rules, err := blocklist.LoadDirectory(cfg.Blocklist.Directory, logger, now)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to load blocklist directory: %w", err)
	}

	repo := blocklist.NewRepository(store, cache, bloom.NewFactory(), blocklist.DefaultFPRate)
	if err := repo.UpdateAll(rules, uint64(now.Unix()), now.Unix()); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to build blocklist: %w", err)
	}

	fields := blocklistFields(repo.Stats())
	fields["directory"] = cfg.Blocklist.Directory
	fields["db"] = cfg.Blocklist.DB
	fields["rules"] = len(rules)
	log.Info(fields, "Egress blocklist loaded")

	return repo, store, nil
}

// blocklistFields turns repository stats into log fields.
func blocklistFields(stats blocklist.RepoStats) map[string]any {
	return map[string]any{
		"version":        stats.Store.Version,
		"updated_unix":   stats.Store.UpdatedUnix,
		"exact_rules":    stats.Store.ExactKeys,
		"suffix_rules":   stats.Store.SuffixKeys,
		"cache_capacity": stats.Cache.Capacity,
	}
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error releasing resource")
		}
	}
}

// Start binds the UDP socket and, when configured, the metrics endpoint.
func (app *Application) Start(ctx context.Context) error {
	if err := app.transport.Start(ctx, app.relay); err != nil {
		return fmt.Errorf("failed to start UDP transport: %w", err)
	}

	log.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": "UDP",
	}, "DNS tunnel relay started")

	if app.metrics != nil {
		go func() {
			if err := app.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(map[string]any{"error": err, "address": app.metrics.Addr}, "Metrics server failed")
			}
		}()
		log.Info(map[string]any{"address": app.metrics.Addr}, "Metrics server started")
	}
	return nil
}

// Shutdown drains in-flight queries, then releases every resource.
func (app *Application) Shutdown(ctx context.Context) error {
	log.Info(nil, "Shutdown initiated")

	err := app.transport.Shutdown(ctx)
	if err != nil {
		log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
	}

	if app.metrics != nil {
		if mErr := app.metrics.Shutdown(ctx); mErr != nil {
			log.Warn(map[string]any{"error": mErr}, "Error during metrics shutdown")
			err = errors.Join(err, mErr)
		}
	}

	closeAll(app.closers)

	if err == nil {
		log.Info(nil, "Graceful shutdown completed")
	}
	return err
}

// Run starts the relay and blocks until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		closeAll(app.closers)
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	return app.Shutdown(shutdownCtx)
}
