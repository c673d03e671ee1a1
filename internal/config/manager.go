package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay collapses bursts of editor writes into one reload.
const debounceDelay = 500 * time.Millisecond

// Status describes the currently loaded configuration.
type Status struct {
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	LoadedAt    time.Time `json:"loaded_at"`
	ReloadCount int64     `json:"reload_count"`
	LastError   string    `json:"last_error,omitempty"`
}

// generation pairs a parsed config with the status it was loaded under so
// readers never see one without the other.
type generation struct {
	cfg    *Config
	status Status
}

// Manager owns the configuration file: it parses it, publishes the result
// for lock-free reads and reloads it when the file changes on disk.
type Manager struct {
	path   string
	logger *slog.Logger
	cur    atomic.Pointer[generation]

	reloadMu sync.Mutex

	mu        sync.Mutex
	listeners []func(*Config)
	watcher   *fsnotify.Watcher
}

// NewManager loads path and returns a Manager serving it.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{path: path, logger: logger}

	cfg, sum, err := m.read()
	if err != nil {
		return nil, err
	}
	m.cur.Store(&generation{cfg: cfg, status: Status{
		Path:        path,
		Checksum:    sum,
		LoadedAt:    time.Now(),
		ReloadCount: 1,
	}})
	return m, nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	return m.cur.Load().cfg
}

// Status returns information about the loaded configuration.
func (m *Manager) Status() Status {
	return m.cur.Load().status
}

// OnChange registers fn to run after each reload that changed the file.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Reload re-reads the file. A file that fails to read or validate leaves the
// current configuration in place and is reported through Status.LastError.
// Listeners run only when the content changed.
func (m *Manager) Reload() error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	prev := m.cur.Load()
	cfg, sum, err := m.read()
	if err != nil {
		failed := *prev
		failed.status.LastError = err.Error()
		m.cur.Store(&failed)
		return err
	}
	if sum == prev.status.Checksum {
		if prev.status.LastError != "" {
			recovered := *prev
			recovered.status.LastError = ""
			m.cur.Store(&recovered)
		}
		return nil
	}

	next := &generation{cfg: cfg, status: Status{
		Path:        m.path,
		Checksum:    sum,
		LoadedAt:    time.Now(),
		ReloadCount: prev.status.ReloadCount + 1,
	}}
	m.cur.Store(next)
	m.logger.Info("configuration reloaded", "path", m.path, "checksum", sum[:12])

	m.mu.Lock()
	listeners := append([]func(*Config){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

func (m *Manager) read() (*Config, string, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, "", fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(data)
	return cfg, hex.EncodeToString(sum[:]), nil
}

// Watch reloads the configuration whenever the file changes, until ctx is
// done or Close is called. The parent directory is watched so that editors
// and deploy tools that replace the file by rename are noticed.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		_ = w.Close()
		return err
	}

	m.mu.Lock()
	m.watcher = w
	m.mu.Unlock()

	go m.watch(ctx, w)
	return nil
}

func (m *Manager) watch(ctx context.Context, w *fsnotify.Watcher) {
	target := filepath.Clean(m.path)
	pending := time.AfterFunc(time.Hour, m.reloadFromWatch)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == target && ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				pending.Reset(debounceDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", "error", err)
		}
	}
}

func (m *Manager) reloadFromWatch() {
	if err := m.Reload(); err != nil {
		m.logger.Error("failed to reload config, keeping current", "error", err)
	}
}

// Close stops watching. It is safe to call without Watch.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Close()
	m.watcher = nil
	return err
}
