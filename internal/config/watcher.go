package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// PoseFilePaths returns cfg.Poses.Files with relative entries resolved
// against the directory of configPath.
func PoseFilePaths(cfg *Config, configPath string) []string {
	base := filepath.Dir(configPath)
	out := make([]string, 0, len(cfg.Poses.Files))
	for _, f := range cfg.Poses.Files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(base, f)
		}
		out = append(out, f)
	}
	return out
}

// Change describes one accepted reload.
type Change struct {
	Old, New *Config

	// ConfigEdited is set when the config file's content changed.
	ConfigEdited bool

	// PoseFiles lists the resolved pose files that were edited, added to or
	// removed from poses.files.
	PoseFiles []string
}

// PosesChanged reports whether the pose catalog needs rebuilding.
func (c Change) PosesChanged() bool {
	return len(c.PoseFiles) > 0 || c.Old.Poses.IncludeBuiltin() != c.New.Poses.IncludeBuiltin()
}

// snapshot is the watched file set as last read.
type snapshot struct {
	cfg     *Config
	digests map[string][sha256.Size]byte
	mtimes  map[string]time.Time
}

// Watcher polls a config file and the pose files it lists. When any of them
// is edited and the result still loads and validates, onChange receives a
// [Change]. A broken edit is logged and the previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(Change)

	mu   sync.Mutex
	last snapshot

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and its pose files and starts polling them. It fails
// if the initial load fails.
func NewWatcher(path string, onChange func(Change), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.last = snap
	go w.loop()
	return w, nil
}

// Current returns the last config that loaded and validated.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	w.mu.Lock()
	prev := w.last
	w.mu.Unlock()

	if !modified(prev.mtimes) {
		return
	}
	next, err := w.read()
	if err != nil {
		slog.Warn("config reload rejected, keeping current config", "path", w.path, "err", err)
		return
	}

	c := Change{Old: prev.cfg, New: next.cfg}
	for p, d := range next.digests {
		old, ok := prev.digests[p]
		switch {
		case p == w.path:
			c.ConfigEdited = d != old
		case !ok || d != old:
			c.PoseFiles = append(c.PoseFiles, p)
		}
	}
	for p := range prev.digests {
		if _, ok := next.digests[p]; !ok {
			c.PoseFiles = append(c.PoseFiles, p)
		}
	}
	slices.Sort(c.PoseFiles)

	w.mu.Lock()
	if !c.ConfigEdited && len(c.PoseFiles) == 0 {
		// Touched only.
		w.last.mtimes = next.mtimes
		w.mu.Unlock()
		return
	}
	w.last = next
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path, "config_edited", c.ConfigEdited, "pose_files", c.PoseFiles)
	if w.onChange != nil {
		w.onChange(c)
	}
}

// modified reports whether any file's modification time moved. A file that
// cannot be stat'ed counts as modified so its removal is picked up by read.
func modified(mtimes map[string]time.Time) bool {
	for p, m := range mtimes {
		info, err := os.Stat(p)
		if err != nil || !info.ModTime().Equal(m) {
			return true
		}
	}
	return false
}

// read loads and validates the config, then reads every pose file it lists.
func (w *Watcher) read() (snapshot, error) {
	snap := snapshot{
		digests: make(map[string][sha256.Size]byte),
		mtimes:  make(map[string]time.Time),
	}
	data, err := snap.add(w.path)
	if err != nil {
		return snapshot{}, err
	}
	if snap.cfg, err = LoadFromReader(bytes.NewReader(data)); err != nil {
		return snapshot{}, err
	}
	for _, p := range PoseFilePaths(snap.cfg, w.path) {
		if _, err := snap.add(p); err != nil {
			return snapshot{}, fmt.Errorf("pose file: %w", err)
		}
	}
	return snap, nil
}

func (s *snapshot) add(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s.mtimes[path] = info.ModTime()
	s.digests[path] = sha256.Sum256(data)
	return data, nil
}
