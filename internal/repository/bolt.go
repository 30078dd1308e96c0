package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/boltdb/bolt"
	"go.uber.org/multierr"

	"github.com/atinyakov/passe/internal/models"
)

const (
	// boltTimeout bounds the wait for the file lock held by another process.
	boltTimeout = time.Second

	boltBucket = "passe"
	boltKey    = "registry"
)

// BoltStore keeps the registry document as a single value in a BoltDB file.
//
// Bolt holds an exclusive file lock for as long as a database is open, so
// the file is opened per operation. The command line tool and the daemon
// can then share one store, each waiting at most boltTimeout for the other.
type BoltStore struct {
	path string
}

// OpenBoltStore creates the BoltDB file at path if needed and checks that
// it can be opened.
func OpenBoltStore(path string) (*BoltStore, error) {
	s := &BoltStore{path: path}
	err := s.update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the document. An absent file, bucket or key is an empty
// registry.
func (s *BoltStore) Load(_ context.Context) (doc models.Document, err error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: boltTimeout, ReadOnly: true})
	if errors.Is(err, fs.ErrNotExist) {
		return models.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt %s: %w", models.ErrPersistence, s.path, err)
	}
	defer func() { err = multierr.Append(err, closeBolt(db)) }()

	var data []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(boltKey)); v != nil {
			// v is only valid inside the transaction.
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bolt view: %w", models.ErrPersistence, err)
	}
	return models.Unmarshal(data)
}

// Save replaces the document in one bolt transaction.
func (s *BoltStore) Save(_ context.Context, doc models.Document) error {
	data, err := models.Marshal(doc)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(boltKey), data)
	})
}

// Close is a no-op; no database stays open between operations.
func (s *BoltStore) Close() error {
	return nil
}

func (s *BoltStore) update(fn func(*bolt.Tx) error) (err error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: boltTimeout})
	if err != nil {
		return fmt.Errorf("%w: open bolt %s: %w", models.ErrPersistence, s.path, err)
	}
	defer func() { err = multierr.Append(err, closeBolt(db)) }()

	if err := db.Update(fn); err != nil {
		return fmt.Errorf("%w: bolt update: %w", models.ErrPersistence, err)
	}
	return nil
}

func closeBolt(db *bolt.DB) error {
	if err := db.Close(); err != nil {
		return fmt.Errorf("%w: close bolt: %w", models.ErrPersistence, err)
	}
	return nil
}
