// Package state persists the per-tag identity records linking local task ids
// to remote board items, with content fingerprints for change detection.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/untoldecay/tmsync/internal/github"
	"github.com/untoldecay/tmsync/internal/tasks"
)

// Record is one identity entry: the durable link between a task id and the
// board item the engine created for it.
type Record struct {
	RemoteItemID string             `json:"remote_item_id"`
	ContentID    string             `json:"content_id"`
	ContentKind  github.ContentKind `json:"content_kind"`
	Fingerprint  string             `json:"fingerprint"`
	FieldsHash   string             `json:"fields_hash"`
	BodyHash     string             `json:"body_hash"`
	LastSeen     time.Time          `json:"last_seen"`
}

// stateFile is the on-disk shape.
type stateFile struct {
	Version int               `json:"version"`
	Tag     string            `json:"tag"`
	Records map[string]Record `json:"records"`
}

const fileVersion = 1

// Store holds the identity records for one tag and knows how to persist
// them. Mutating methods are safe for concurrent use; the executor updates
// the snapshot from multiple workers.
type Store struct {
	path string
	tag  string

	mu      sync.Mutex
	records map[string]Record
	loaded  bool
}

// Path returns the state file path for a tag under the given taskmaster
// directory (the directory holding tasks.json).
func Path(dir, tag string) string {
	return filepath.Join(dir, fmt.Sprintf("sync-state-%s.json", tag))
}

// NewStore builds a store for the state file at path.
func NewStore(path, tag string) *Store {
	return &Store{path: path, tag: tag, records: make(map[string]Record)}
}

// Load reads the state file. A missing file yields an empty record set; the
// engine then re-anchors from the board.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.records = make(map[string]Record)
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	if sf.Version > fileVersion {
		return fmt.Errorf("state file %s has version %d, this build understands %d", s.path, sf.Version, fileVersion)
	}
	if sf.Records == nil {
		sf.Records = make(map[string]Record)
	}
	s.records = sf.Records
	s.loaded = true
	return nil
}

// Empty reports whether the store holds no records.
func (s *Store) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records) == 0
}

// Len returns the number of tracked records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns the record for a task id.
func (s *Store) Get(taskID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[taskID]
	return r, ok
}

// Put inserts or replaces the record for a task id. Called only after the
// corresponding remote mutation is confirmed.
func (s *Store) Put(taskID string, r Record) {
	s.mu.Lock()
	s.records[taskID] = r
	s.mu.Unlock()
}

// Delete removes the record for a task id.
func (s *Store) Delete(taskID string) {
	s.mu.Lock()
	delete(s.records, taskID)
	s.mu.Unlock()
}

// MarkSeen refreshes last_seen on an unchanged record.
func (s *Store) MarkSeen(taskID string, now time.Time) {
	s.mu.Lock()
	if r, ok := s.records[taskID]; ok {
		r.LastSeen = now
		s.records[taskID] = r
	}
	s.mu.Unlock()
}

// Class is the diff classification of one task against the stored records.
type Class int

const (
	NewTask Class = iota
	ChangedTask
	UnchangedTask
)

// Delta is the diff result for one task.
type Delta struct {
	Class         Class
	Record        Record // zero for NewTask
	FieldsChanged bool   // ChangedTask only
	BodyChanged   bool   // ChangedTask only
}

// Diff classifies a task against its stored record using the precomputed
// fingerprint. Component hashes decide whether a change needs a field
// update, a body update, or both.
func (s *Store) Diff(taskID string, fp tasks.Fingerprint) Delta {
	s.mu.Lock()
	r, ok := s.records[taskID]
	s.mu.Unlock()

	if !ok {
		return Delta{Class: NewTask}
	}
	if r.Fingerprint == fp.Full {
		return Delta{Class: UnchangedTask, Record: r}
	}
	d := Delta{Class: ChangedTask, Record: r}
	// Records rebuilt by re-anchoring carry no component hashes; treat both
	// components as changed so one full update restores them.
	d.FieldsChanged = r.FieldsHash == "" || r.FieldsHash != fp.Fields
	d.BodyChanged = r.BodyHash == "" || r.BodyHash != fp.Body
	return d
}

// Orphans returns the task ids present in state but absent from the given
// live id set, sorted for deterministic planning.
func (s *Store) Orphans(liveIDs map[string]bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orphans []string
	for id := range s.records {
		if !liveIDs[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// Commit writes the record set to disk atomically: serialize to a temporary
// sibling, fsync, rename over the old file. A flock sidecar guards against
// two processes committing at once (sync and watch on the same tag). A crash
// at any point leaves the previous file intact.
func (s *Store) Commit() error {
	s.mu.Lock()
	sf := stateFile{Version: fileVersion, Tag: s.tag, Records: s.records}
	data, err := json.MarshalIndent(sf, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock state file: %w", err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
