// Package session implements the client state machine that moves from no
// identity selected, to secret pending, to browsing, and back. The master
// secret lives only inside a Session and is wiped on every lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/passe/internal/gateway"
	"github.com/atinyakov/passe/internal/models"
	"github.com/atinyakov/passe/internal/secret"
)

// State is a Session's position in the state machine.
type State int

const (
	// Idle: no identity selected.
	Idle State = iota
	// SecretPending: identity selected, master secret not yet captured.
	SecretPending
	// Browsing: secret held, catalog visible, passwords computable.
	Browsing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SecretPending:
		return "secret_pending"
	case Browsing:
		return "browsing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Registry is the subset of the vault registry a Session needs.
type Registry interface {
	ListSites(identity string) ([]string, error)
	AddSite(ctx context.Context, identity, site string) error
}

// Deriver produces site passwords. *gateway.Gateway implements it.
type Deriver interface {
	Derive(ctx context.Context, req gateway.Request) (string, error)
}

// Status is a snapshot for rendering.
type Status struct {
	State    State
	Identity string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithIdleTimeout locks the session after d without a successful
// operation. Zero disables the idle lock.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Session) { s.idle = d }
}

// WithAfterSignal sets fn to run after every lock made by LockOnSignal,
// with the signal that caused it. Front ends use it to carry out the
// signal's default action once the secret is gone.
func WithAfterSignal(fn func(os.Signal)) Option {
	return func(s *Session) { s.afterSignal = fn }
}

// Session is one active use of the vault. It is safe for concurrent use.
type Session struct {
	registry Registry
	deriver  Deriver
	log      *zap.Logger
	idle     time.Duration
	// afterSignal runs once LockOnSignal has locked the session.
	afterSignal func(os.Signal)

	mu       sync.Mutex
	state    State
	identity string
	secret   *secret.Buffer
	// epoch increments on every lock; derivations started in an older
	// epoch are discarded.
	epoch uint64
	timer *time.Timer
	// touches increments every time the idle timer is re-armed.
	touches uint64
}

// New returns an Idle session.
func New(registry Registry, deriver Deriver, opts ...Option) *Session {
	s := &Session{registry: registry, deriver: deriver, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current state and selected identity.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{State: s.state, Identity: s.identity}
}

// SelectIdentity moves Idle to SecretPending. It fails with
// models.ErrNotFound, leaving the session Idle, if name is not registered.
func (s *Session) SelectIdentity(name string) error {
	name, err := models.NormalizeName(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return fmt.Errorf("select identity while %s: %w", s.state, models.ErrInvalidState)
	}
	if _, err := s.registry.ListSites(name); err != nil {
		return err
	}
	s.identity = name
	s.state = SecretPending
	s.touchLocked()
	s.log.Info("identity selected", zap.String("state", s.state.String()))
	return nil
}

// SubmitSecret moves SecretPending to Browsing. The trimmed secret is
// moved into protected memory and pw is zeroed whatever the outcome. A
// blank secret fails with models.ErrInvalidName and the session stays
// SecretPending.
func (s *Session) SubmitSecret(pw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SecretPending {
		secret.Zero(pw)
		return fmt.Errorf("submit secret while %s: %w", s.state, models.ErrInvalidState)
	}
	buf, err := secret.NewTrimmed(pw)
	if errors.Is(err, secret.ErrEmpty) {
		return fmt.Errorf("master secret: %w", models.ErrInvalidName)
	}
	if err != nil {
		return err
	}
	s.secret = buf
	s.state = Browsing
	s.touchLocked()
	s.log.Info("secret accepted", zap.String("state", s.state.String()), zap.Bool("mlocked", buf.Locked()))
	return nil
}

// AddSiteAndReveal registers site for the browsing identity and returns
// its derived credential. A site that is already registered is re-derived
// rather than reported as an error.
func (s *Session) AddSiteAndReveal(ctx context.Context, site string, opts ...gateway.Option) (models.Credential, error) {
	site, err := models.NormalizeName(site)
	if err != nil {
		return models.Credential{}, err
	}
	identity, err := s.browsingIdentity("add site")
	if err != nil {
		return models.Credential{}, err
	}
	if err := s.registry.AddSite(ctx, identity, site); err != nil && !errors.Is(err, models.ErrDuplicateSite) {
		return models.Credential{}, err
	}
	return s.reveal(ctx, site, opts)
}

// ViewSite returns a freshly derived credential for a registered site.
func (s *Session) ViewSite(ctx context.Context, site string, opts ...gateway.Option) (models.Credential, error) {
	site, err := models.NormalizeName(site)
	if err != nil {
		return models.Credential{}, err
	}
	identity, err := s.browsingIdentity("view site")
	if err != nil {
		return models.Credential{}, err
	}
	sites, err := s.registry.ListSites(identity)
	if err != nil {
		return models.Credential{}, err
	}
	if !slices.Contains(sites, site) {
		return models.Credential{}, fmt.Errorf("%q: %w", site, models.ErrSiteNotFound)
	}
	return s.reveal(ctx, site, opts)
}

// Sites returns the catalog of the browsing identity.
func (s *Session) Sites() ([]string, error) {
	identity, err := s.browsingIdentity("list sites")
	if err != nil {
		return nil, err
	}
	return s.registry.ListSites(identity)
}

// Lock returns the session to Idle from any state. The secret is zeroed
// and released before Lock returns, and any derivation in flight will be
// discarded.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockLocked()
}

// LockOnSignal calls Lock for every value received on sigs until ctx is
// done. Front ends feed it suspension and "lock now" notifications. The
// lock runs on a goroutine; the signal's default action, if wanted, is
// left to the WithAfterSignal hook.
func (s *Session) LockOnSignal(ctx context.Context, sigs <-chan os.Signal) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sigs:
				if !ok {
					return
				}
				s.Lock()
				s.log.Info("session locked by signal", zap.String("signal", sig.String()))
				if s.afterSignal != nil {
					s.afterSignal(sig)
				}
			}
		}
	}()
}

func (s *Session) lockLocked() {
	wasIdle := s.state == Idle
	if s.secret != nil {
		if err := s.secret.Close(); err != nil {
			s.log.Warn("failed to release secret memory", zap.Error(err))
		}
		s.secret = nil
	}
	s.identity = ""
	s.state = Idle
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !wasIdle {
		s.log.Info("session locked")
	}
}

func (s *Session) browsingIdentity(op string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Browsing {
		return "", fmt.Errorf("%s while %s: %w", op, s.state, models.ErrInvalidState)
	}
	return s.identity, nil
}

// reveal derives the password for site without holding the session lock,
// so Lock can proceed while the gateway runs. The result is dropped if a
// lock happened in the meantime.
func (s *Session) reveal(ctx context.Context, site string, opts []gateway.Option) (models.Credential, error) {
	s.mu.Lock()
	if s.state != Browsing {
		state := s.state
		s.mu.Unlock()
		return models.Credential{}, fmt.Errorf("reveal while %s: %w", state, models.ErrInvalidState)
	}
	identity, epoch := s.identity, s.epoch
	pw := s.secret.Copy()
	s.mu.Unlock()
	defer secret.Zero(pw)

	password, err := s.deriver.Derive(ctx, gateway.NewRequest(identity, pw, site, opts...))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return models.Credential{}, fmt.Errorf("session locked during derivation: %w", models.ErrInvalidState)
	}
	if err != nil {
		s.log.Warn("derivation failed", zap.String("kind", models.Kind(err)))
		return models.Credential{}, err
	}
	s.touchLocked()
	return models.Credential{Site: site, Password: password}, nil
}

// touchLocked re-arms the idle lock.
func (s *Session) touchLocked() {
	if s.idle <= 0 {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.touches++
	epoch, touch := s.epoch, s.touches
	s.timer = time.AfterFunc(s.idle, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch || s.touches != touch {
			return
		}
		s.log.Info("session idle, locking")
		s.lockLocked()
	})
}
