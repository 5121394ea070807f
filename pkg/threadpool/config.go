package threadpool

import (
	"fmt"
	"runtime"

	"github.com/fluxorio/threadpool/pkg/config"
	"github.com/fluxorio/threadpool/pkg/core"
	"github.com/fluxorio/threadpool/pkg/core/failfast"
)

// EnvPrefix is the environment prefix used by LoadConfig overrides,
// e.g. THREADPOOL_CONCURRENCY=8.
const EnvPrefix = "THREADPOOL"

// Config is the file-loadable part of a pool's settings
type Config struct {
	// Name identifies the pool in logs and metrics
	Name string `yaml:"name" json:"name"`

	// Concurrency is the number of workers. Zero selects runtime.NumCPU();
	// use WithConcurrency(0) for a pool that really has no workers.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// LockOSThread pins every worker to its own OS thread
	LockOSThread bool `yaml:"lock_os_thread" json:"lock_os_thread"`
}

// DefaultConfig returns default pool configuration
func DefaultConfig() Config {
	return Config{
		Name:        "threadpool",
		Concurrency: 0,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.Concurrency)
	}
	return nil
}

// LoadConfig reads a YAML or JSON pool config and applies THREADPOOL_* overrides
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	err := config.LoadWithEnv(path, EnvPrefix, &cfg, config.ValidatorFunc(func(c interface{}) error {
		return c.(*Config).Validate()
	}))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PanicHandler receives a handler panic when isolated recovery is enabled
type PanicHandler func(worker int, err *failfast.PanicError)

type options struct {
	name           string
	concurrency    int
	hasConcurrency bool
	lockOSThread   bool
	logger         core.Logger
	observer       Observer
	onPanic        PanicHandler
}

func defaultOptions() options {
	return options{
		name:     DefaultConfig().Name,
		observer: nopObserver{},
	}
}

func (o *options) workers() int {
	if o.hasConcurrency {
		return o.concurrency
	}
	return runtime.NumCPU()
}

// Option configures a Pool
type Option func(*options)

// WithConfig applies a loaded Config. A zero Concurrency keeps the hardware default.
func WithConfig(c Config) Option {
	return func(o *options) {
		if c.Name != "" {
			o.name = c.Name
		}
		if c.Concurrency != 0 {
			o.concurrency = c.Concurrency
			o.hasConcurrency = true
		}
		o.lockOSThread = o.lockOSThread || c.LockOSThread
	}
}

// WithConcurrency sets the worker count. When omitted the pool uses runtime.NumCPU().
//
// Zero is accepted but is caller misuse: such a pool queues everything it is
// given and never runs any of it, so WaitForAll blocks forever once an item
// has been submitted.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
		o.hasConcurrency = true
	}
}

// WithName sets the pool name used in logs and metrics
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger replaces the default std log logger
func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver installs an event observer, e.g. prometheus.PoolMetrics
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithLockOSThread pins each worker goroutine to a dedicated OS thread
func WithLockOSThread() Option {
	return func(o *options) {
		o.lockOSThread = true
	}
}

// WithPanicHandler switches handler panics from process-fatal to isolated:
// the panic is recovered, passed to fn, and the worker keeps running.
func WithPanicHandler(fn PanicHandler) Option {
	return func(o *options) {
		o.onPanic = fn
	}
}
