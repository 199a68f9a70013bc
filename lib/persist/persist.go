// Package persist stores object snapshots in SQLite.
package persist

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/ivars/vm"
	"github.com/chazu/ivars/vm/wire"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound indicates the requested snapshot doesn't exist.
var ErrNotFound = errors.New("persist: snapshot not found")

var log = commonlog.GetLogger("ivars.persist")

// Record describes a stored snapshot without decoding it.
type Record struct {
	ID        string    `json:"id" yaml:"id"`
	Class     string    `json:"class" yaml:"class"`
	Size      int       `json:"size" yaml:"size"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Store is a snapshot database. Snapshots are kept in their canonical
// CBOR encoding.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persist: opening database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: creating schema: %w", err)
	}

	log.Debugf("opened snapshot store %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Save stores a snapshot under a new ID and returns the ID.
func (s *Store) Save(ctx context.Context, snap *wire.Snapshot) (string, error) {
	id := uuid.NewString()
	if err := s.Put(ctx, id, snap); err != nil {
		return "", err
	}
	return id, nil
}

// Put stores a snapshot under id, replacing any snapshot already there.
func (s *Store) Put(ctx context.Context, id string, snap *wire.Snapshot) error {
	data, err := wire.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persist: encoding %s: %w", snap.Class, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO snapshots (id, class, data, created_at) VALUES (?, ?, ?, ?)",
		id, snap.Class, data, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("persist: saving snapshot: %w", err)
	}
	log.Debugf("saved %s snapshot %s (%d bytes)", snap.Class, id, len(data))
	return nil
}

// Load retrieves the snapshot stored under id.
func (s *Store) Load(ctx context.Context, id string) (*wire.Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("persist: querying snapshot: %w", err)
	}
	snap, err := wire.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("persist: snapshot %s: %w", id, err)
	}
	return snap, nil
}

// Delete removes the snapshot stored under id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("persist: deleting snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("persist: deleting snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns the stored snapshots, oldest first. A non-empty class
// restricts the listing to that class.
func (s *Store) List(ctx context.Context, class string) ([]Record, error) {
	query := "SELECT id, class, length(data), created_at FROM snapshots"
	var args []any
	if class != "" {
		query += " WHERE class = ?"
		args = append(args, class)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("persist: listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created int64
		if err := rows.Scan(&r.ID, &r.Class, &r.Size, &created); err != nil {
			return nil, fmt.Errorf("persist: listing snapshots: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persist: listing snapshots: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Object helpers
// ---------------------------------------------------------------------------

// SaveObject captures obj and stores the snapshot.
func (s *Store) SaveObject(ctx context.Context, v *vm.VM, obj *vm.Object) (string, error) {
	snap, err := wire.Capture(v, obj)
	if err != nil {
		return "", err
	}
	return s.Save(ctx, snap)
}

// LoadObject loads a snapshot and restores it as a new object in v.
func (s *Store) LoadObject(ctx context.Context, v *vm.VM, id string) (*vm.Object, error) {
	snap, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return wire.Restore(v, snap)
}
