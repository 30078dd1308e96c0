package repository

import (
	"context"
	"fmt"

	"github.com/atinyakov/passe/internal/db"
	"github.com/atinyakov/passe/internal/models"
)

// Backend kinds accepted by Open.
const (
	KindFile     = "file"
	KindBolt     = "bolt"
	KindPostgres = "postgres"
)

// Store is a registry backend that owns a resource.
type Store interface {
	Load(ctx context.Context) (models.Document, error)
	Save(ctx context.Context, doc models.Document) error
	Close() error
}

// Open returns the backend of the given kind. location is a file path for
// file and bolt, and a DSN for postgres.
func Open(ctx context.Context, kind, location string) (Store, error) {
	switch kind {
	case KindFile, "":
		return NewFileStore(location), nil
	case KindBolt:
		return OpenBoltStore(location)
	case KindPostgres:
		conn, err := db.InitPostgres(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrPersistence, err)
		}
		return NewPostgresStore(conn), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
