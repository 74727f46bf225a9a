package qdrant

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite" // SQLite driver
)

// storage persists LocalClient state in a single SQLite file.
// Points are stored as marshaled qdrant.PointStruct messages.
type storage struct {
	db *sql.DB
}

func openStorage(ctx context.Context, path string) (*storage, error) {
	// _pragma=busy_timeout: wait up to 5s for a lock instead of failing.
	// _pragma=journal_mode(WAL): readers do not block the writer.
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	dsn := path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer per file.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &storage{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *storage) createTables(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		vector_size INTEGER NOT NULL,
		distance INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS points (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (collection, id),
		FOREIGN KEY (collection) REFERENCES collections(name) ON DELETE CASCADE
	);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// load reads every collection and its points.
func (s *storage) load(ctx context.Context) (map[string]*collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, vector_size, distance FROM collections`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	collections := make(map[string]*collection)
	for rows.Next() {
		var (
			name     string
			size     uint64
			distance int32
		)
		if err := rows.Scan(&name, &size, &distance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		collections[name] = newCollection(size, qdrant.Distance(distance))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pointRows, err := s.db.QueryContext(ctx, `SELECT collection, id, data FROM points`)
	if err != nil {
		return nil, fmt.Errorf("failed to list points: %w", err)
	}
	defer pointRows.Close()
	for pointRows.Next() {
		var (
			name, id string
			data     []byte
		)
		if err := pointRows.Scan(&name, &id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		c, ok := collections[name]
		if !ok {
			continue
		}
		var p qdrant.PointStruct
		if err := proto.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("corrupt point %s/%s: %w", name, id, err)
		}
		c.points[id] = &p
	}
	return collections, pointRows.Err()
}

func (s *storage) createCollection(ctx context.Context, name string, size uint64, distance qdrant.Distance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, vector_size, distance) VALUES (?, ?, ?)`,
		name, size, int32(distance))
	if err != nil {
		return fmt.Errorf("failed to save collection %s: %w", name, err)
	}
	return nil
}

func (s *storage) deleteCollection(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

func (s *storage) upsertPoints(ctx context.Context, name string, points []*qdrant.PointStruct) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO points (collection, id, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		data, err := proto.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal point: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, name, PointIDString(p.GetId()), data); err != nil {
			return fmt.Errorf("failed to write point: %w", err)
		}
	}
	return tx.Commit()
}

func (s *storage) deletePoints(ctx context.Context, name string, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM points WHERE collection = ? AND id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, name, id); err != nil {
			return fmt.Errorf("failed to delete point: %w", err)
		}
	}
	return tx.Commit()
}

func (s *storage) close() error {
	return s.db.Close()
}
