package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v2"

	deverrors "github.com/CodedInternet/gowl/onboard/errors"
)

const MaxIndex = 20

// Store reads and writes snapshots in a single directory. Indexed snapshots
// live in config_<n>.yaml for n in 1..MaxIndex.
type Store struct {
	Dir string

	log *slog.Logger
	now func() time.Time
}

func NewStore(dir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		Dir: dir,
		log: log.With("component", "config"),
		now: time.Now,
	}
}

// IndexPath returns the file backing config index.
func (s *Store) IndexPath(index int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("config_%d.yaml", index))
}

// Load reads the snapshot for index. Indices outside 1..MaxIndex fail with
// errors.ConfigIndexError before the disk is touched.
func (s *Store) Load(index int) (*Snapshot, error) {
	if index < 1 || index > MaxIndex {
		return nil, deverrors.ConfigIndexError{Index: index, Max: MaxIndex}
	}
	return s.LoadPath(s.IndexPath(index))
}

// LoadPath reads a snapshot from any file. Settings missing from the file
// keep their defaults.
func (s *Store) LoadPath(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	snap, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	snap.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if w, h, clamped := snap.Resolution(); clamped {
		s.log.Warn("resolution is dangerously high, clamping",
			"width", snap.Camera.ResolutionWidth, "height", snap.Camera.ResolutionHeight,
			"clamped_width", w, "clamped_height", h)
		snap.Camera.ResolutionWidth, snap.Camera.ResolutionHeight = w, h
	}

	return snap, nil
}

// Parse decodes and validates a snapshot.
func Parse(raw []byte) (*Snapshot, error) {
	snap := Default()
	defaults := snap.Relays
	snap.Relays = nil

	if err := yaml.Unmarshal(raw, snap); err != nil {
		return nil, err
	}
	if snap.Relays == nil {
		snap.Relays = defaults
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Save writes snap next to the indexed files as <timestamp>_<name>.yaml and
// returns the path written.
func (s *Store) Save(snap *Snapshot, name string) (string, error) {
	if name == "" {
		name = snap.Name
	}

	raw, err := yaml.Marshal(snap)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(s.Dir, fmt.Sprintf("%s_%s.yaml", s.now().Format("20060102-150405"), name))
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return "", err
	}

	s.log.Info("configuration saved", "path", path)
	return path, nil
}

// ParseIndex turns an operator supplied index into an int.
func ParseIndex(arg string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, fmt.Errorf("invalid configuration index %q: %w", arg, err)
	}
	return index, nil
}

// Handle is the process wide pointer to the active snapshot. Readers always
// see a complete snapshot; replacing it never blocks them.
type Handle struct {
	active atomic.Pointer[Snapshot]
}

func NewHandle(snap *Snapshot) *Handle {
	h := &Handle{}
	h.active.Store(snap)
	return h
}

func (h *Handle) Load() *Snapshot {
	return h.active.Load()
}

// Swap installs snap and returns the snapshot it replaced.
func (h *Handle) Swap(snap *Snapshot) *Snapshot {
	return h.active.Swap(snap)
}
