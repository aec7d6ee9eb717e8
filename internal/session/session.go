// Package session persists menu navigation snapshots between runs.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/fumetsu/hibiki/internal/log"
)

const (
	// DefaultName is the snapshot loaded by --resume
	DefaultName = "default"
	// CrashName is the snapshot written on an unhandled failure
	CrashName = "crash"
)

// Snapshot is one immutable navigation state.  History is the ordered list of
// menu identifiers the user had descended through when the snapshot was taken.
type Snapshot struct {
	Version string    `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	History []string  `json:"history"`
	// MediaID pins the title the user was looking at, when any
	MediaID int    `json:"media_id,omitempty"`
	Episode string `json:"episode,omitempty"`
}

// Store reads and writes snapshots under the sessions directory
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Save writes a named snapshot.  Snapshots are never merged; a save replaces
// whatever was there.
func (s *Store) Save(name string, snap *Snapshot) error {
	if snap.Version == "" {
		snap.Version = "1.0"
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating sessions directory: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling session: %w", err)
	}
	if err := renameio.WriteFile(s.path(name), data, 0600); err != nil {
		return fmt.Errorf("writing session %s: %w", name, err)
	}
	log.Debug("Saved session", "name", name, "history_depth", len(snap.History))
	return nil
}

// SaveTimestamped writes a snapshot under a timestamp-encoded name and
// returns that name.
func (s *Store) SaveTimestamped(snap *Snapshot) (string, error) {
	now := time.Now()
	name := fmt.Sprintf("session_%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
	if err := s.Save(name, snap); err != nil {
		return "", err
	}
	return name, nil
}

// Load reads a named snapshot.  A missing file is returned as nil-with-nil-error.
func (s *Store) Load(name string) (*Snapshot, error) {
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", name, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", name, err)
	}
	return &snap, nil
}

// MostRecent returns the newest timestamp-encoded snapshot name, or empty
// when none exist.  The timestamp encoding makes lexicographic order
// chronological, so no file metadata is consulted.
func (s *Store) MostRecent() (string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("listing sessions: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return names[len(names)-1], nil
}

// List returns every stored snapshot name, newest timestamped last
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}
