package threadpool

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/fluxorio/threadpool/pkg/core"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, "pool.yaml", "name: indexer\nconcurrency: 3\nlock_os_thread: true\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Name != "indexer" {
		t.Errorf("Name = %q, want indexer", cfg.Name)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Concurrency)
	}
	if !cfg.LockOSThread {
		t.Error("LockOSThread = false, want true")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "pool.json", `{"concurrency": 2}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Name != "threadpool" {
		t.Errorf("Name = %q, want default threadpool", cfg.Name)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "pool.yaml", "concurrency: 3\n")
	t.Setenv("THREADPOOL_CONCURRENCY", "7")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Concurrency != 7 {
		t.Errorf("Concurrency = %d, want 7 from env", cfg.Concurrency)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "pool.yaml", "concurrency: -2\n")

	_, err := LoadConfig(path)
	if !errors.Is(err, ErrInvalidConcurrency) {
		t.Errorf("LoadConfig() error = %v, want ErrInvalidConcurrency", err)
	}
}

func TestWithConfig(t *testing.T) {
	pool, err := New(func(int) {},
		WithConfig(Config{Name: "cfg", Concurrency: 3}),
		WithLogger(core.NewNopLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer pool.Close()

	if pool.Name() != "cfg" {
		t.Errorf("Name() = %q, want cfg", pool.Name())
	}
	if pool.Concurrency() != 3 {
		t.Errorf("Concurrency() = %d, want 3", pool.Concurrency())
	}
}

func TestWithConfig_ZeroKeepsHardwareDefault(t *testing.T) {
	pool, err := New(func(int) {}, WithConfig(DefaultConfig()), WithLogger(core.NewNopLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer pool.Close()

	if pool.Concurrency() != runtime.NumCPU() {
		t.Errorf("Concurrency() = %d, want %d", pool.Concurrency(), runtime.NumCPU())
	}
}
