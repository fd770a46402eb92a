// Package snapshot persists the event store and alert registry to a single
// versioned on-disk artifact and restores it on startup.
//
// The file is a JSON envelope written to a temporary path and renamed into
// place, so a crash mid-write never corrupts the previous snapshot.
// Unknown fields are ignored on load and missing optional fields default,
// which keeps older builds able to read newer minor schema additions.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xtxerr/vigil/internal/errors"
	"github.com/xtxerr/vigil/internal/logging"
	"github.com/xtxerr/vigil/internal/store"
	"github.com/xtxerr/vigil/internal/types"
)

// Version is the current snapshot schema version. Bump on incompatible
// layout changes; additive field changes do not need a bump.
const Version = 1

// Snapshot is the on-disk envelope.
type Snapshot struct {
	Version     int                  `json:"version"`
	SavedAt     time.Time            `json:"saved_at"`
	Logs        []types.LogEntry     `json:"logs"`
	Metrics     []types.MetricSample `json:"metrics"`
	AlertEvents []types.AlertEvent   `json:"alert_events"`
	Rules       []types.AlertRule    `json:"rules"`
}

// Persister writes and reads snapshots at a fixed path.
type Persister struct {
	path string
	log  *slog.Logger
}

// NewPersister creates a persister for the given snapshot path.
func NewPersister(path string) *Persister {
	return &Persister{
		path: path,
		log:  logging.Component("snapshot"),
	}
}

// Path returns the snapshot file path.
func (p *Persister) Path() string {
	return p.path
}

// Save serializes the store view and rules and atomically replaces the
// snapshot file. The view is a consistent copy, so no store locks are held
// during serialization or IO.
func (p *Persister) Save(view store.View, rules []types.AlertRule) error {
	snap := Snapshot{
		Version:     Version,
		SavedAt:     view.TakenAt,
		Logs:        view.Logs,
		Metrics:     view.Metrics,
		AlertEvents: view.Events,
		Rules:       rules,
	}

	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}

	p.log.Debug("snapshot saved",
		"path", p.path,
		"bytes", len(data),
		"logs", len(snap.Logs),
		"metrics", len(snap.Metrics),
		"events", len(snap.AlertEvents),
		"rules", len(snap.Rules))
	return nil
}

// Load reads the snapshot file. A missing file yields an empty snapshot
// and no error. A file that cannot be parsed, or that declares a newer
// schema version than this build understands, fails with
// ErrCorruptSnapshot; the caller logs it and starts empty. There is no
// partial load.
func (p *Persister) Load() (*Snapshot, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			p.log.Info("no snapshot found, starting empty", "path", p.path)
			return &Snapshot{Version: Version}, nil
		}
		return nil, errors.NewCorruptSnapshot(p.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewCorruptSnapshot(p.path, err)
	}
	if snap.Version > Version {
		return nil, errors.NewCorruptSnapshot(p.path,
			fmt.Errorf("snapshot version %d newer than supported %d", snap.Version, Version))
	}

	p.log.Info("snapshot loaded",
		"path", p.path,
		"saved_at", snap.SavedAt,
		"logs", len(snap.Logs),
		"metrics", len(snap.Metrics),
		"events", len(snap.AlertEvents),
		"rules", len(snap.Rules))
	return &snap, nil
}
