// Package sqlite provides a SQLite-backed persistent store that mirrors the
// in-memory semantics while snapshotting state to an embedded database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sqldocs "fragmentcore/docs/schema/sql"
	"fragmentcore/internal/infra/persistence/memory"
	"fragmentcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// It snapshots the full state after every successful mutation.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "fragmentcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqldocs.SQLite); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{"resolutions", "plugins"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	type raw struct {
		bucket  string
		payload []byte
	}
	var raws []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.bucket, &r.payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}
	snapshot := memory.Snapshot{}
	for _, r := range raws {
		switch r.bucket {
		case "resolutions":
			if err := json.Unmarshal(r.payload, &snapshot.Resolutions); err != nil {
				return fmt.Errorf("decode resolutions: %w", err)
			}
		case "plugins":
			if err := json.Unmarshal(r.payload, &snapshot.Plugins); err != nil {
				return fmt.Errorf("decode plugins: %w", err)
			}
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "resolutions":
			data, err = json.Marshal(snapshot.Resolutions)
		case "plugins":
			data, err = json.Marshal(snapshot.Plugins)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// AppendResolution appends a resolution log entry, then snapshots state to SQLite.
func (s *Store) AppendResolution(ctx context.Context, resolution domain.Resolution) (domain.Resolution, error) {
	appended, err := s.Store.AppendResolution(ctx, resolution)
	if err != nil {
		return appended, err
	}
	if pErr := s.persist(); pErr != nil {
		return appended, pErr
	}
	return appended, nil
}

// PutPluginRecord upserts a plugin record, then snapshots state to SQLite.
func (s *Store) PutPluginRecord(ctx context.Context, record domain.PluginRecord) (domain.PluginRecord, error) {
	put, err := s.Store.PutPluginRecord(ctx, record)
	if err != nil {
		return put, err
	}
	if pErr := s.persist(); pErr != nil {
		return put, pErr
	}
	return put, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
