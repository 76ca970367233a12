package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bull/studyflow/internal/study"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "studyflow.db"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	file_name   TEXT NOT NULL,
	status      TEXT NOT NULL,
	uploaded_at TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents(uploaded_at);
`

// SQLiteRepository stores each document as a JSON payload row, with the
// columns used for listing kept alongside.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

var _ DocumentRepository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (or creates) the database in dataDir.
func NewSQLiteRepository(dataDir string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteRepository{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *SQLiteRepository) Path() string {
	return r.path
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*study.Document, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM documents WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return decodeDocument([]byte(payload))
}

func (r *SQLiteRepository) Put(ctx context.Context, doc *study.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document without id", study.ErrInvalidInput)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling document: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (id, file_name, status, uploaded_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			status = excluded.status,
			uploaded_at = excluded.uploaded_at,
			updated_at = excluded.updated_at,
			payload = excluded.payload
	`, doc.ID, doc.FileName, string(doc.Status),
		doc.UploadedAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		string(payload))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return nil
}

// List returns all documents, newest upload first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*study.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*study.Document
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc, err := decodeDocument([]byte(payload))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	sortNewestFirst(docs)
	return docs, nil
}
