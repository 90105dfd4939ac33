// Package index records completed projects in a local sqlite database so
// later projects can reconcile against prior findings. The index is
// deliberately small: one row per project with the counts the adjudicator
// and CLI need, plus a pointer to the graph artifact on disk.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one completed (or failed) project in the index.
type Record struct {
	ProjectID     string
	Topic         string
	Status        string
	NodeCount     int
	EvidenceCount int
	DisputedNodes int
	GraphPath     string
	CompletedAt   time.Time
}

// Store is the sqlite-backed project index.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the index database at dir/index.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	dbPath := filepath.Join(dir, "index.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		project_id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		status TEXT NOT NULL,
		node_count INTEGER NOT NULL DEFAULT 0,
		evidence_count INTEGER NOT NULL DEFAULT 0,
		disputed_nodes INTEGER NOT NULL DEFAULT 0,
		graph_path TEXT,
		completed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_topic ON projects(topic);
	CREATE INDEX IF NOT EXISTS idx_projects_completed ON projects(completed_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts or replaces the row for a project.
func (s *Store) Record(rec Record) error {
	if rec.ProjectID == "" {
		return fmt.Errorf("project id required")
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO projects
		(project_id, topic, status, node_count, evidence_count, disputed_nodes, graph_path, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ProjectID, rec.Topic, rec.Status, rec.NodeCount,
		rec.EvidenceCount, rec.DisputedNodes, rec.GraphPath, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record project %s: %w", rec.ProjectID, err)
	}
	return nil
}

// ListRecent returns the most recently completed projects, newest first.
func (s *Store) ListRecent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT project_id, topic, status, node_count, evidence_count, disputed_nodes, graph_path, completed_at
		FROM projects ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// FindByTopic returns prior projects whose topic contains the query,
// excluding the named project, newest first.
func (s *Store) FindByTopic(query, excludeProjectID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := s.db.Query(`
		SELECT project_id, topic, status, node_count, evidence_count, disputed_nodes, graph_path, completed_at
		FROM projects
		WHERE topic LIKE ? AND project_id != ?
		ORDER BY completed_at DESC LIMIT ?`,
		"%"+query+"%", excludeProjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search projects: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		var graphPath sql.NullString
		if err := rows.Scan(&r.ProjectID, &r.Topic, &r.Status, &r.NodeCount,
			&r.EvidenceCount, &r.DisputedNodes, &graphPath, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		r.GraphPath = graphPath.String
		out = append(out, r)
	}
	return out, rows.Err()
}
