package config

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"searchwatch/pkg/logx"
)

// reloadDebounce absorbs the burst of events editors emit for one save.
const reloadDebounce = 250 * time.Millisecond

// ErrWatcherClosed is returned by Watch when fsnotify closes its channels.
// Callers are expected to restart Watch with a backoff.
var ErrWatcherClosed = errors.New("config watcher closed")

// ConfigManager owns the current config of one file and fans reloads out to
// subscribers.
type ConfigManager struct {
	path string

	mu   sync.RWMutex
	cfg  *Config
	hash uint64

	// subsMu is held while sending so Unsubscribe never closes a channel
	// that publish is writing to.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs an extra check run by Reload after Validate and
// before anything is committed.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

func (m *ConfigManager) Path() string { return m.path }

// Parse reads and decodes the file without validating or committing it.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b)
}

// Load parses and validates the file, then commits it as the current config.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", m.path, err)
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	h := hashConfig(cfg)
	m.mu.Lock()
	m.cfg = cfg
	m.hash = h
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Reload re-reads the file and publishes it when the content differs from
// the committed config and passes validation. A rejected file leaves the
// current config in place.
func (m *ConfigManager) Reload(ctx context.Context) (bool, error) {
	cfg, err := m.Parse()
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", m.path, err)
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	same := h != 0 && h == m.hash
	m.mu.RUnlock()
	if same {
		return false, nil
	}

	if err := Validate(cfg); err != nil {
		return false, err
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			return false, err
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	return true, nil
}

func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s != ch {
			continue
		}
		m.subs = append(m.subs[:i], m.subs[i+1:]...)
		close(ch)
		return
	}
}

// publish hands cfg to every subscriber. A full subscriber loses its oldest
// pending config; only the newest one matters.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.debug("config update dropped", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// Watch reloads the config whenever its file changes, until ctx is done.
// It watches the parent directory so editors that replace the file by rename
// are still seen.
func (m *ConfigManager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()

	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}
	m.debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return ErrWatcherClosed
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			debounce.Reset(reloadDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// events were lost; the file may have changed
				m.warn("config watch overflow", logx.Err(err))
				debounce.Reset(reloadDebounce)
				continue
			}
			m.warn("config watch error", logx.Err(err))

		case <-debounce.C:
			changed, err := m.Reload(ctx)
			switch {
			case err != nil:
				m.warn("config rejected", logx.String("path", m.path), logx.Err(err))
			case changed:
				m.debug("config published", logx.String("path", m.path))
			default:
				m.debug("config unchanged", logx.String("path", m.path))
			}
		}
	}
}

func (m *ConfigManager) debug(msg string, fields ...logx.Field) {
	if !m.log.IsZero() {
		m.log.Debug(msg, fields...)
	}
}

func (m *ConfigManager) warn(msg string, fields ...logx.Field) {
	if !m.log.IsZero() {
		m.log.Warn(msg, fields...)
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := Encode("config.json", cfg)
	if err != nil || len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
