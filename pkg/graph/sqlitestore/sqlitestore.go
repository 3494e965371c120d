// Package sqlitestore mirrors the in-memory knowledge graph into a
// SQLite database, for deployments that want a queryable durable copy
// without running Neo4j.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sanonone/pharmakg/pkg/graph"
)

// Store implements graph.Backend on a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and initializes the
// schema. WAL mode keeps mirror writes from blocking readers.
func New(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}

	// Writes are serialized by SQLite anyway; a small pool is enough.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: connect: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		type TEXT NOT NULL,
		key TEXT NOT NULL,
		attrs TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (type, key)
	);

	CREATE TABLE IF NOT EXISTS edges (
		type TEXT NOT NULL,
		from_key TEXT NOT NULL,
		to_key TEXT NOT NULL,
		attrs TEXT NOT NULL,
		studies TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (type, from_key, to_key)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(type, to_key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertNode writes the node row, replacing its attributes on conflict.
func (s *Store) UpsertNode(ctx context.Context, v graph.NodeView) error {
	attrs, err := json.Marshal(v.Attrs)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal node attrs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (type, key, attrs, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (type, key) DO UPDATE SET
			attrs = excluded.attrs,
			updated_at = excluded.updated_at
	`, string(v.Type), v.Key, string(attrs), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert node %s/%s: %w", v.Type, v.Key, err)
	}
	return nil
}

// UpsertRelationship writes the edge row, replacing its attributes and
// study list on conflict.
func (s *Store) UpsertRelationship(ctx context.Context, v graph.EdgeView) error {
	attrs, err := json.Marshal(v.Attrs)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal edge attrs: %w", err)
	}
	studies, err := json.Marshal(v.Studies)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal edge studies: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO edges (type, from_key, to_key, attrs, studies, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (type, from_key, to_key) DO UPDATE SET
			attrs = excluded.attrs,
			studies = excluded.studies,
			updated_at = excluded.updated_at
	`, string(v.Type), v.From, v.To, string(attrs), string(studies), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert edge %s %s->%s: %w", v.Type, v.From, v.To, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// CountNodes reports the number of stored nodes of one type. Used by
// consistency checks and tests.
func (s *Store) CountNodes(ctx context.Context, typ graph.NodeType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE type = ?`, string(typ)).Scan(&n)
	return n, err
}

// Edge reads one edge row back, reporting whether it exists.
func (s *Store) Edge(ctx context.Context, typ graph.EdgeType, from, to string) (graph.EdgeView, bool, error) {
	var attrsJSON, studiesJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT attrs, studies FROM edges
		WHERE type = ? AND from_key = ? AND to_key = ?
	`, string(typ), from, to).Scan(&attrsJSON, &studiesJSON)
	if err == sql.ErrNoRows {
		return graph.EdgeView{}, false, nil
	}
	if err != nil {
		return graph.EdgeView{}, false, err
	}

	v := graph.EdgeView{Type: typ, From: from, To: to}
	if err := json.Unmarshal([]byte(attrsJSON), &v.Attrs); err != nil {
		return graph.EdgeView{}, false, fmt.Errorf("sqlitestore: decode edge attrs: %w", err)
	}
	if err := json.Unmarshal([]byte(studiesJSON), &v.Studies); err != nil {
		return graph.EdgeView{}, false, fmt.Errorf("sqlitestore: decode edge studies: %w", err)
	}
	return v, true, nil
}
