// Command poolbench pushes a configurable load through a thread pool and
// reports throughput, optionally exposing Prometheus metrics and traces.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/fluxorio/threadpool/pkg/config"
	"github.com/fluxorio/threadpool/pkg/core"
	"github.com/fluxorio/threadpool/pkg/observability/otel"
	"github.com/fluxorio/threadpool/pkg/observability/prometheus"
	"github.com/fluxorio/threadpool/pkg/threadpool"
)

// EnvPrefix prefixes environment overrides, e.g. POOLBENCH_BENCH_ITEMS=1000
const EnvPrefix = "POOLBENCH"

// BenchConfig is the poolbench configuration file
type BenchConfig struct {
	Pool    threadpool.Config `yaml:"pool"`
	Bench   WorkloadConfig    `yaml:"bench"`
	Metrics MetricsConfig     `yaml:"metrics"`
	Tracing TracingConfig     `yaml:"tracing"`
}

// WorkloadConfig shapes the generated load
type WorkloadConfig struct {
	Submitters int           `yaml:"submitters"`
	Items      int           `yaml:"items"`
	Work       time.Duration `yaml:"work"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	// Addr enables the /metrics server when set; poolbench then keeps serving until interrupted
	Addr string `yaml:"addr"`
}

// TracingConfig wraps every item in a span when enabled
type TracingConfig struct {
	Enabled bool        `yaml:"enabled"`
	Otel    otel.Config `yaml:"otel"`
}

func defaultConfig() BenchConfig {
	return BenchConfig{
		Pool: threadpool.DefaultConfig(),
		Bench: WorkloadConfig{
			Submitters: 4,
			Items:      100000,
		},
		Tracing: TracingConfig{Otel: otel.DefaultConfig()},
	}
}

func (c *BenchConfig) Validate() error {
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	if c.Bench.Submitters < 1 {
		return fmt.Errorf("bench.submitters must be at least 1, got %d", c.Bench.Submitters)
	}
	if c.Bench.Items < 0 {
		return fmt.Errorf("bench.items cannot be negative, got %d", c.Bench.Items)
	}
	if c.Tracing.Enabled {
		return c.Tracing.Otel.Validate()
	}
	return nil
}

func loadConfig(path string) (BenchConfig, error) {
	cfg := defaultConfig()
	validator := config.ValidatorFunc(func(c interface{}) error {
		return c.(*BenchConfig).Validate()
	})

	if path == "" {
		if err := config.ApplyEnvOverrides(EnvPrefix, &cfg); err != nil {
			return BenchConfig{}, err
		}
		return cfg, config.Validate(&cfg, validator)
	}

	if err := config.LoadWithEnv(path, EnvPrefix, &cfg, validator); err != nil {
		return BenchConfig{}, err
	}
	return cfg, nil
}

func main() {
	var (
		configFile = flag.String("config", "", "Config file path (YAML/JSON)")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := core.NewLogger(core.LoggerConfig{Prefix: "[poolbench] ", Debug: *debug})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, prometheus.DefaultRegistry); err != nil {
		logger.Errorf("poolbench failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg BenchConfig, logger core.Logger, registry *promclient.Registry) error {
	var tracing *otel.Tracing
	if cfg.Tracing.Enabled {
		t, err := otel.Setup(ctx, cfg.Tracing.Otel)
		if err != nil {
			return err
		}
		tracing = t
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracing.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("tracing shutdown: %v", err)
			}
		}()
	}

	registerer := promclient.WrapRegistererWith(promclient.Labels{"service": "poolbench"}, registry)
	metrics := prometheus.NewPoolMetrics(registerer, cfg.Pool.Name)

	var processed atomic.Int64
	handler := otel.TraceHandler(tracing.Tracer(), cfg.Pool.Name, func(_ context.Context, _ int) {
		if cfg.Bench.Work > 0 {
			time.Sleep(cfg.Bench.Work)
		}
		processed.Add(1)
	})

	pool, err := threadpool.New(handler,
		threadpool.WithConfig(cfg.Pool),
		threadpool.WithLogger(logger),
		threadpool.WithObserver(metrics),
	)
	if err != nil {
		return err
	}
	defer pool.Close()

	registerer.MustRegister(prometheus.NewStatsCollector(pool.Name(), pool.Stats))

	var server *prometheus.Server
	serveErr := make(chan error, 1)
	if cfg.Metrics.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		server = prometheus.NewServer(registry)
		go func() {
			serveErr <- server.Serve(ln)
		}()
		logger.Infof("metrics on http://%s/metrics", ln.Addr())
	}

	logger.Infof("pool %s (%s): %d workers, %d items from %d submitters",
		pool.Name(), pool.ID(), pool.Concurrency(), cfg.Bench.Items, cfg.Bench.Submitters)

	start := time.Now()
	if err := submitAll(ctx, pool, cfg.Bench); err != nil {
		return err
	}
	pool.WaitForAll()
	elapsed := time.Since(start)

	if got := processed.Load(); got != int64(cfg.Bench.Items) {
		return fmt.Errorf("processed %d items, submitted %d", got, cfg.Bench.Items)
	}

	rate := float64(cfg.Bench.Items) / elapsed.Seconds()
	fmt.Printf("%d items in %s (%.0f items/s)\n", cfg.Bench.Items, elapsed.Round(time.Microsecond), rate)

	if server != nil {
		logger.Info("serving metrics until interrupted")
		select {
		case err := <-serveErr:
			return fmt.Errorf("metrics server: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("metrics server shutdown: %v", err)
		}
	}

	stats := pool.Stats()
	logger.Debugf("final stats: submitted=%d completed=%d queued=%d", stats.Submitted, stats.Completed, stats.Queued)
	return nil
}

// submitAll splits items across the configured submitters
func submitAll(ctx context.Context, pool *threadpool.Pool[int], load WorkloadConfig) error {
	g, ctx := errgroup.WithContext(ctx)
	per := load.Items / load.Submitters
	extra := load.Items % load.Submitters

	next := 0
	for s := 0; s < load.Submitters; s++ {
		count := per
		if s < extra {
			count++
		}
		first := next
		next += count

		g.Go(func() error {
			for i := first; i < first+count; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := pool.Submit(i); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted while submitting: %w", err)
	}
	return err
}
