// Package gateway wraps the external deterministic password derivation
// function. It validates inputs, bounds each call with a timeout, and
// reduces every failure to one of two kinds: models.ErrDerivationUnavailable
// or models.ErrDerivationRejected.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atinyakov/passe/internal/models"
)

// DefaultTimeout bounds a derivation when the caller does not choose one.
const DefaultTimeout = 5 * time.Second

// Generator is the external derivation function. Implementations must be
// deterministic and must not retain, persist or log any argument.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f(ctx, req).
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Gateway is a stateless, concurrency-safe front for a Generator.
type Gateway struct {
	gen     Generator
	timeout time.Duration
}

// New returns a Gateway calling gen. A non-positive timeout selects
// DefaultTimeout.
func New(gen Generator, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{gen: gen, timeout: timeout}
}

// Derive returns the password for req. Identical requests always yield
// identical passwords.
func (g *Gateway) Derive(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if g.gen == nil {
		return "", fmt.Errorf("%w: no generator configured", models.ErrDerivationUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	password, err := g.gen.Generate(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrDerivationRejected), errors.Is(err, models.ErrDerivationUnavailable):
		return "", err
	case ctx.Err() != nil:
		return "", fmt.Errorf("%w: %w", models.ErrDerivationUnavailable, ctx.Err())
	default:
		return "", fmt.Errorf("%w: %w", models.ErrDerivationUnavailable, err)
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %w", models.ErrDerivationUnavailable, ctx.Err())
	}
	if password == "" {
		return "", fmt.Errorf("%w: empty password returned", models.ErrDerivationRejected)
	}
	return password, nil
}

// Validate checks req against the derivation contract.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Identity) == "":
		return fmt.Errorf("%w: empty identity", models.ErrDerivationRejected)
	case len(bytes.TrimSpace(r.Secret)) == 0:
		return fmt.Errorf("%w: empty master secret", models.ErrDerivationRejected)
	case strings.TrimSpace(r.Site) == "":
		return fmt.Errorf("%w: empty site", models.ErrDerivationRejected)
	case r.Counter < 1:
		return fmt.Errorf("%w: counter %d is not positive", models.ErrDerivationRejected, r.Counter)
	case strings.TrimSpace(r.Scope) == "":
		return fmt.Errorf("%w: empty scope", models.ErrDerivationRejected)
	case !r.Template.Valid():
		return fmt.Errorf("%w: unknown template %q", models.ErrDerivationRejected, r.Template)
	}
	return nil
}
