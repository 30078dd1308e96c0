package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/passe/internal/models"
)

// DefaultDocument is the row name used when none is configured.
const DefaultDocument = "default"

// PostgresStore keeps the registry document as one row of the
// registry_documents table.
type PostgresStore struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
	// Name selects the document row.
	Name string
}

// NewPostgresStore creates a PostgresStore using the given connection.
// db must be a valid *sql.DB whose schema was created by db.InitPostgres.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db, Name: DefaultDocument}
}

// Load fetches the document body. A missing row is an empty registry.
func (s *PostgresStore) Load(ctx context.Context) (models.Document, error) {
	var body string
	err := s.DB.QueryRowContext(ctx,
		`SELECT body FROM registry_documents WHERE name = $1`,
		s.Name,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load document: %w", models.ErrPersistence, err)
	}
	return models.Unmarshal([]byte(body))
}

// Save upserts the document body in a single statement and bumps the
// row version.
func (s *PostgresStore) Save(ctx context.Context, doc models.Document) error {
	data, err := models.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO registry_documents (name, body, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (name) DO UPDATE SET
			body = EXCLUDED.body,
			version = registry_documents.version + 1
	`, s.Name, string(data))
	if err != nil {
		return fmt.Errorf("%w: save document: %w", models.ErrPersistence, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.DB.Close()
}
