// Package results persists optimization result snapshots to disk.
package results

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ViniHorstFer/portfolio-sub000/internal/optimizer"
)

const snapshotExtension = ".msgpack"

// Snapshot wraps one optimization result with run identity for later audit.
type Snapshot struct {
	ID        string           `msgpack:"id" json:"id"`
	Objective string           `msgpack:"objective" json:"objective"`
	CreatedAt time.Time        `msgpack:"created_at" json:"created_at"`
	Result    optimizer.Result `msgpack:"result" json:"result"`
}

// Store writes snapshots as msgpack files under a single directory. File
// names are time-prefixed so lexical order matches chronological order.
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore creates the snapshot directory when missing.
func NewStore(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &Store{
		dir: dir,
		log: log.With().Str("component", "results").Logger(),
	}, nil
}

// Save persists one result and returns the stored snapshot.
func (s *Store) Save(objective string, result optimizer.Result) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.New().String(),
		Objective: objective,
		CreatedAt: time.Now().UTC(),
		Result:    result,
	}

	data, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	name := snap.CreatedAt.Format("20060102T150405") + "_" + snap.ID + snapshotExtension
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot %s: %w", name, err)
	}

	s.log.Debug().
		Str("id", snap.ID).
		Str("objective", objective).
		Bool("success", result.Success).
		Msg("Saved optimization snapshot")
	return snap, nil
}

// Latest returns the most recent snapshot, or nil when none exist.
func (s *Store) Latest() (*Snapshot, error) {
	names, err := s.listSnapshotNames()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	return s.load(names[len(names)-1])
}

// Get returns the snapshot with the given ID, or nil when it does not exist.
func (s *Store) Get(id string) (*Snapshot, error) {
	names, err := s.listSnapshotNames()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if strings.Contains(name, id) {
			return s.load(name)
		}
	}
	return nil, nil
}

// List returns snapshot IDs in chronological order.
func (s *Store) List() ([]string, error) {
	names, err := s.listSnapshotNames()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		base := strings.TrimSuffix(name, snapshotExtension)
		if idx := strings.Index(base, "_"); idx >= 0 {
			ids = append(ids, base[idx+1:])
		}
	}
	return ids, nil
}

func (s *Store) listSnapshotNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), snapshotExtension) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) load(name string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", name, err)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", name, err)
	}
	return &snap, nil
}
