// Package service implements the vault registry: the catalog of identities
// and their registered sites, delegating persistence to a Backend.
package service

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/passe/internal/models"
)

// Backend defines the persistence operations required by the Registry.
type Backend interface {
	// Load returns the durable document. A store that has never been
	// written yields an empty document.
	Load(ctx context.Context) (models.Document, error)
	// Save durably replaces the document. A failed Save must leave the
	// previous document readable.
	Save(ctx context.Context, doc models.Document) error
}

// Registry is the single source of truth for identities and site catalogs
// within one process. It is safe for concurrent use; each mutation is one
// short critical section.
type Registry struct {
	mu      sync.RWMutex
	backend Backend
	doc     models.Document
	log     *zap.Logger
}

// NewRegistry loads the current document from backend.
func NewRegistry(ctx context.Context, backend Backend, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	doc, err := backend.Load(ctx)
	if err != nil {
		return nil, persistence(err)
	}
	return &Registry{backend: backend, doc: doc, log: log}, nil
}

// ListIdentities returns all identity names, sorted.
func (r *Registry) ListIdentities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.Identities()
}

// ListSites returns the catalog of identity in insertion order.
func (r *Registry) ListSites(identity string) ([]string, error) {
	name, err := models.NormalizeName(identity)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sites, ok := r.doc[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, models.ErrNotFound)
	}
	return slices.Clone(sites), nil
}

// CreateIdentity registers name with an empty catalog.
func (r *Registry) CreateIdentity(ctx context.Context, name string) error {
	name, err := models.NormalizeName(name)
	if err != nil {
		return err
	}
	err = r.mutate(ctx, func(doc models.Document) error {
		if _, ok := doc[name]; ok {
			return fmt.Errorf("%q: %w", name, models.ErrAlreadyExists)
		}
		doc[name] = []string{}
		return nil
	})
	if err == nil {
		r.log.Info("identity created")
	}
	return err
}

// DeleteIdentity removes name together with its whole catalog.
func (r *Registry) DeleteIdentity(ctx context.Context, name string) error {
	name, err := models.NormalizeName(name)
	if err != nil {
		return err
	}
	err = r.mutate(ctx, func(doc models.Document) error {
		if _, ok := doc[name]; !ok {
			return fmt.Errorf("%q: %w", name, models.ErrNotFound)
		}
		delete(doc, name)
		return nil
	})
	if err == nil {
		r.log.Info("identity deleted")
	}
	return err
}

// AddSite appends site to the catalog of identity. A site that is already
// registered is reported as models.ErrDuplicateSite and changes nothing.
func (r *Registry) AddSite(ctx context.Context, identity, site string) error {
	name, err := models.NormalizeName(identity)
	if err != nil {
		return err
	}
	site, err = models.NormalizeName(site)
	if err != nil {
		return err
	}
	err = r.mutate(ctx, func(doc models.Document) error {
		sites, ok := doc[name]
		if !ok {
			return fmt.Errorf("%q: %w", name, models.ErrNotFound)
		}
		if slices.Contains(sites, site) {
			return fmt.Errorf("%q: %w", site, models.ErrDuplicateSite)
		}
		doc[name] = append(sites, site)
		return nil
	})
	if err == nil {
		r.log.Debug("site added", zap.String("site", site))
	}
	return err
}

// RemoveSite deletes site from the catalog of identity.
func (r *Registry) RemoveSite(ctx context.Context, identity, site string) error {
	name, err := models.NormalizeName(identity)
	if err != nil {
		return err
	}
	site, err = models.NormalizeName(site)
	if err != nil {
		return err
	}
	err = r.mutate(ctx, func(doc models.Document) error {
		sites, ok := doc[name]
		if !ok {
			return fmt.Errorf("%q: %w", name, models.ErrNotFound)
		}
		i := slices.Index(sites, site)
		if i < 0 {
			return fmt.Errorf("%q: %w", site, models.ErrSiteNotFound)
		}
		doc[name] = slices.Delete(sites, i, i+1)
		return nil
	})
	if err == nil {
		r.log.Debug("site removed", zap.String("site", site))
	}
	return err
}

// Reload replaces the in-memory view with the durable document. On error
// the view is left unchanged. The load runs under the write lock so a
// mutation cannot commit between the read and the swap.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.backend.Load(ctx)
	if err != nil {
		return persistence(err)
	}
	r.doc = doc
	return nil
}

// mutate runs a read-modify-write cycle under the write lock. fn edits a
// private copy of the freshest durable document; the in-memory view is
// swapped only once that copy has been saved, so any failure leaves the
// pre-call state visible.
func (r *Registry) mutate(ctx context.Context, fn func(models.Document) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.backend.Load(ctx)
	if err != nil {
		return persistence(err)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		r.doc = current
		return err
	}
	if err := r.backend.Save(ctx, next); err != nil {
		r.log.Error("failed to persist registry", zap.Error(err))
		return persistence(err)
	}
	r.doc = next
	return nil
}

func persistence(err error) error {
	if models.Kind(err) == "PersistenceFailure" {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrPersistence, err)
}
