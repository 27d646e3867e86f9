package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"volramp/internal/schedule"
	"volramp/pkg/logx"
)

const (
	reloadDebounce     = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Snapshot is a committed configuration together with the schedule built from it.
type Snapshot struct {
	Config   *Config
	Schedule *schedule.Schedule
	// Fallback is set when the built-in defaults replaced an unreadable or invalid file.
	Fallback bool
	// Err is why the fallback happened.
	Err    error
	Format string
}

// Manager reads the config file, keeps the last good Snapshot and publishes
// reloads to subscribers.
type Manager struct {
	path string
	fs   afero.Fs

	mu       sync.RWMutex
	cur      Snapshot
	lastHash uint64

	// subsMu also guards sends so Unsubscribe never closes a channel mid-send.
	subsMu sync.Mutex
	subs   []chan Snapshot

	log logx.Logger
}

// NewManager reads path from fs. A nil fs means the OS filesystem.
func NewManager(path string, fs afero.Fs) *Manager {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Manager{path: path, fs: fs}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log.With(logx.String("comp", "config")) }

func (m *Manager) Path() string { return m.path }

// Parse reads and strictly decodes the file without committing it.
func (m *Manager) Parse() (*Config, string, error) {
	b, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		return nil, "", err
	}
	jb, format, err := coerceToJSONBytes(m.path, b)
	if err != nil {
		return nil, format, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, format, fmt.Errorf("%s decode: %w", format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, format, fmt.Errorf("%s decode: trailing data", format)
		}
		return nil, format, err
	}
	return &cfg, format, nil
}

// Build parses the file and derives the schedule. Any failure is returned
// as-is; callers decide whether to fall back.
func (m *Manager) Build() (Snapshot, error) {
	cfg, format, err := m.Parse()
	if err != nil {
		return Snapshot{Format: format}, err
	}
	sched, err := cfg.BuildSchedule()
	if err != nil {
		return Snapshot{Format: format}, err
	}
	return Snapshot{Config: cfg, Schedule: sched, Format: format}, nil
}

// Load builds and commits the file, or commits the built-in defaults with a
// warning when the file is missing or invalid. It never fails.
func (m *Manager) Load() Snapshot {
	snap, err := m.Build()
	if err != nil {
		snap = fallback(err)
		m.log.Warn("config unusable; using built-in schedule", logx.String("path", m.path), logx.Err(err))
	}
	m.commit(snap)
	return snap
}

func fallback(err error) Snapshot {
	cfg := Default()
	// Default is valid by construction.
	sched, buildErr := cfg.BuildSchedule()
	if buildErr != nil {
		panic(fmt.Sprintf("built-in config is invalid: %v", buildErr))
	}
	return Snapshot{Config: cfg, Schedule: sched, Fallback: true, Err: err}
}

func (m *Manager) commit(s Snapshot) {
	m.mu.Lock()
	m.cur = s
	if !s.Fallback {
		m.lastHash = hashConfig(s.Config)
	}
	m.mu.Unlock()
}

func (m *Manager) Get() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *Manager) Subscribe(buffer int) chan Snapshot {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan Snapshot) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

// publish always leaves the newest snapshot queued: a full subscriber loses
// its oldest pending item.
func (m *Manager) publish(s Snapshot) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// Reload re-reads the file and publishes it if it is valid and changed.
// Invalid files keep the previous snapshot.
func (m *Manager) Reload() (bool, error) {
	snap, err := m.Build()
	if err != nil {
		m.log.Warn("config reload rejected; keeping previous", logx.String("path", m.path), logx.Err(err))
		return false, err
	}

	h := hashConfig(snap.Config)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	prev := m.cur
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return false, nil
	}

	changed, fields := SummarizeChange(prev.Config, snap.Config)
	m.commit(snap)
	m.publish(snap)
	m.log.Info("config reloaded",
		append([]logx.Field{logx.String("changed", strings.Join(changed, ",")), logx.Int("targets", snap.Schedule.Len())}, fields...)...)
	return true, nil
}

// Watch reloads on file changes until ctx ends. The fsnotify watcher is
// recreated with jittered backoff whenever it breaks.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}
	sleep := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			if ctx.Err() == nil {
				_, _ = m.Reload()
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			m.log.Warn("config watch init failed", logx.String("dir", dir), logx.Err(err))
			if !sleep(nextWait()) {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		if !m.drain(ctx, w, file, debounce) {
			_ = w.Close()
			return nil
		}
		_ = w.Close()

		wait := nextWait()
		m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir), logx.Duration("backoff", wait))
		if !sleep(wait) {
			return nil
		}
	}
	return nil
}

// drain forwards events for file until the watcher breaks (true) or ctx ends (false).
func (m *Manager) drain(ctx context.Context, w *fsnotify.Watcher, file string, debounce func()) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-w.Events:
			if !ok {
				return true
			}
			// Editors often replace the file, so match by basename and accept every op.
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return true
			}
			if err == nil {
				continue
			}
			if err == fsnotify.ErrEventOverflow {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				debounce()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
			if strings.Contains(strings.ToLower(err.Error()), "closed") {
				return true
			}
		}
	}
}
