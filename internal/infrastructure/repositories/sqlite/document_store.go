// Package sqlite persists documents in a single SQLite table. Live listeners
// are served in-process, so the file must not be shared between servers.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chatgate/internal/core/domain"
	"chatgate/internal/core/ports"
	"chatgate/internal/infrastructure/repositories/docstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type SQLiteDocumentStore struct {
	db     *sql.DB
	clock  *docstore.Clock
	hub    *docstore.Hub
	logger *zap.SugaredLogger
}

var _ ports.DocumentStore = (*SQLiteDocumentStore)(nil)

// NewSQLiteDocumentStore opens (or creates) the database at path.
func NewSQLiteDocumentStore(path string, logger *zap.SugaredLogger) (*SQLiteDocumentStore, error) {
	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}

	var latest sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(created_at) FROM documents`).Scan(&latest); err != nil {
		db.Close()
		return nil, fmt.Errorf("read latest write time: %w", err)
	}
	clock := docstore.NewClock()
	if latest.Valid {
		clock = docstore.NewClockAfter(time.Unix(0, latest.Int64))
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Infow("opened sqlite document store", "path", path)

	return &SQLiteDocumentStore{
		db:     db,
		clock:  clock,
		hub:    docstore.NewHub(),
		logger: logger,
	}, nil
}

func openDatabase(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			fields TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(collection, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection, seq);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return db, nil
}

func (s *SQLiteDocumentStore) Add(ctx context.Context, path domain.CollectionPath, fields domain.Fields) (domain.DocumentID, error) {
	if path == "" {
		return "", domain.ErrInvalidArgument
	}

	id := domain.DocumentID(uuid.New().String())
	now := s.clock.Next()

	data, err := json.Marshal(docstore.ResolveServerTimestamps(fields, now))
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, fields, created_at) VALUES (?, ?, ?, ?)`,
		string(path), string(id), string(data), now.UnixNano(),
	); err != nil {
		s.logger.Warnw("insert document failed", "collection", string(path), "error", err)
		return "", fmt.Errorf("insert document: %w", err)
	}

	s.hub.Notify(path)
	return id, nil
}

func (s *SQLiteDocumentStore) Query(ctx context.Context, path domain.CollectionPath, q domain.Query) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields, created_at FROM documents WHERE collection = ? ORDER BY seq`,
		string(path),
	)
	if err != nil {
		s.logger.Warnw("query documents failed", "collection", string(path), "error", err)
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warnw("query documents failed", "collection", string(path), "error", err)
		return nil, fmt.Errorf("query documents: %w", err)
	}

	return docstore.Apply(docs, q), nil
}

func (s *SQLiteDocumentStore) Get(ctx context.Context, path domain.DocumentPath) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fields, created_at FROM documents WHERE collection = ? AND id = ?`,
		string(path.Collection), string(path.ID),
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		id      string
		data    string
		created int64
	)
	if err := row.Scan(&id, &data, &created); err != nil {
		return nil, err
	}

	var fields domain.Fields
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}

	return &domain.Document{
		ID:         domain.DocumentID(id),
		Fields:     fields,
		CreateTime: time.Unix(0, created).UTC(),
	}, nil
}

func (s *SQLiteDocumentStore) SubscribeCollection(ctx context.Context, path domain.CollectionPath, q domain.Query, onSnapshot ports.SnapshotHandler, onError ports.ErrorHandler) (ports.Subscription, error) {
	return s.hub.Watch(ctx, path, func(ctx context.Context) ([]domain.Document, error) {
		return s.Query(ctx, path, q)
	}, onSnapshot, onError)
}

func (s *SQLiteDocumentStore) SubscribeDocument(ctx context.Context, path domain.DocumentPath, onSnapshot ports.DocumentHandler, onError ports.ErrorHandler) (ports.Subscription, error) {
	return s.hub.WatchDocument(ctx, path, func(ctx context.Context) (*domain.Document, error) {
		doc, err := s.Get(ctx, path)
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil, nil
		}
		return doc, err
	}, onSnapshot, onError)
}

func (s *SQLiteDocumentStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDocumentStore) Close() error {
	s.hub.Close()
	return s.db.Close()
}
