// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"fragmentcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Resolution aliases domain.Resolution for in-memory persistence operations.
	Resolution = domain.Resolution
	// PluginRecord aliases domain.PluginRecord.
	PluginRecord = domain.PluginRecord
	// RulesEngine aliases domain.RulesEngine carried for integration points.
	RulesEngine = domain.RulesEngine
	// PersistentStore aliases the domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	resolutions map[string]Resolution
	plugins     map[string]PluginRecord
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Resolutions map[string]Resolution   `json:"resolutions"`
	Plugins     map[string]PluginRecord `json:"plugins"`
}

func newMemoryState() memoryState {
	return memoryState{
		resolutions: make(map[string]Resolution),
		plugins:     make(map[string]PluginRecord),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Resolutions: make(map[string]Resolution, len(state.resolutions)),
		Plugins:     make(map[string]PluginRecord, len(state.plugins)),
	}
	for k, v := range state.resolutions {
		s.Resolutions[k] = domain.CloneResolution(v)
	}
	for k, v := range state.plugins {
		s.Plugins[k] = domain.ClonePluginRecord(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Resolutions {
		state.resolutions[k] = domain.CloneResolution(v)
	}
	for k, v := range s.Plugins {
		state.plugins[k] = domain.ClonePluginRecord(v)
	}
	return state
}

// Store provides an in-memory persistent store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store carrying the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine for integration points like plugins.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// AppendResolution stores a new resolution log entry, assigning its ID and
// timestamps. Entries are immutable once appended.
func (s *Store) AppendResolution(_ context.Context, resolution Resolution) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resolution.ID == "" {
		resolution.ID = s.newID()
	}
	if _, exists := s.state.resolutions[resolution.ID]; exists {
		return Resolution{}, fmt.Errorf("resolution %q already exists", resolution.ID)
	}
	now := s.nowFn()
	resolution.CreatedAt = now
	resolution.UpdatedAt = now
	s.state.resolutions[resolution.ID] = domain.CloneResolution(resolution)
	return domain.CloneResolution(resolution), nil
}

// GetResolution retrieves a resolution log entry by ID.
func (s *Store) GetResolution(_ context.Context, id string) (Resolution, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resolution, ok := s.state.resolutions[id]
	if !ok {
		return Resolution{}, false, nil
	}
	return domain.CloneResolution(resolution), true, nil
}

// ListResolutions returns all resolution log entries ordered oldest first.
func (s *Store) ListResolutions(_ context.Context) ([]Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Resolution, 0, len(s.state.resolutions))
	for _, resolution := range s.state.resolutions {
		out = append(out, domain.CloneResolution(resolution))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// PutPluginRecord upserts the installation record for a plugin, keyed by
// plugin name. Existing records keep their identity and creation time.
func (s *Store) PutPluginRecord(_ context.Context, record PluginRecord) (PluginRecord, error) {
	if record.Name == "" {
		return PluginRecord{}, fmt.Errorf("plugin record name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	if existing, ok := s.state.plugins[record.Name]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	} else {
		if record.ID == "" {
			record.ID = s.newID()
		}
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	s.state.plugins[record.Name] = domain.ClonePluginRecord(record)
	return domain.ClonePluginRecord(record), nil
}

// ListPluginRecords returns all plugin installation records ordered by name.
func (s *Store) ListPluginRecords(_ context.Context) ([]PluginRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PluginRecord, 0, len(s.state.plugins))
	for _, record := range s.state.plugins {
		out = append(out, domain.ClonePluginRecord(record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close releases no resources for the in-memory store.
func (s *Store) Close() error { return nil }
