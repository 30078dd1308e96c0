package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atinyakov/passe/internal/gateway"
	"github.com/atinyakov/passe/internal/models"
	"github.com/atinyakov/passe/internal/repository"
	"github.com/atinyakov/passe/internal/service"
)

var hashGenerator = gateway.GeneratorFunc(func(_ context.Context, req gateway.Request) (string, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		req.Identity, req.Secret, req.Site, req.Counter, req.Scope, req.Template)))
	return hex.EncodeToString(sum[:8]), nil
})

func newRegistry(t *testing.T, identities ...string) *service.Registry {
	t.Helper()
	ctx := context.Background()
	reg, err := service.NewRegistry(ctx, repository.NewFileStore(filepath.Join(t.TempDir(), "passe.json")), nil)
	require.NoError(t, err)
	for _, name := range identities {
		require.NoError(t, reg.CreateIdentity(ctx, name))
	}
	return reg
}

func browsing(t *testing.T, s *Session, identity, pw string) {
	t.Helper()
	require.NoError(t, s.SelectIdentity(identity))
	require.NoError(t, s.SubmitSecret([]byte(pw)))
	require.Equal(t, Browsing, s.Status().State)
}

func TestScenario_ViewLockView(t *testing.T) {
	reg := newRegistry(t, "alice")
	require.NoError(t, reg.AddSite(context.Background(), "alice", "github.com"))
	s := New(reg, gateway.New(hashGenerator, time.Second))
	ctx := context.Background()

	assert.Equal(t, Idle, s.Status().State)
	browsing(t, s, "alice", "correct-horse")

	first, err := s.ViewSite(ctx, "github.com")
	require.NoError(t, err)
	assert.NotEmpty(t, first.Password)
	assert.Equal(t, "github.com", first.Site)

	second, err := s.ViewSite(ctx, "github.com")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	s.Lock()
	assert.Equal(t, Status{State: Idle}, s.Status())
	_, err = s.ViewSite(ctx, "github.com")
	assert.ErrorIs(t, err, models.ErrInvalidState)

	browsing(t, s, "alice", "correct-horse")
	third, err := s.ViewSite(ctx, "github.com")
	require.NoError(t, err)
	assert.Equal(t, first.Password, third.Password)
}

func TestSelectIdentity_Unknown(t *testing.T) {
	s := New(newRegistry(t), gateway.New(hashGenerator, time.Second))

	err := s.SelectIdentity("bob")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, Idle, s.Status().State)

	assert.ErrorIs(t, s.SelectIdentity("  "), models.ErrInvalidName)
	assert.Equal(t, Idle, s.Status().State)
}

func TestSelectIdentity_OnlyFromIdle(t *testing.T) {
	s := New(newRegistry(t, "alice", "bob"), gateway.New(hashGenerator, time.Second))
	require.NoError(t, s.SelectIdentity("alice"))

	assert.ErrorIs(t, s.SelectIdentity("bob"), models.ErrInvalidState)
	assert.Equal(t, Status{State: SecretPending, Identity: "alice"}, s.Status())
}

func TestSubmitSecret(t *testing.T) {
	s := New(newRegistry(t, "alice"), gateway.New(hashGenerator, time.Second))

	pw := []byte("early")
	assert.ErrorIs(t, s.SubmitSecret(pw), models.ErrInvalidState)
	assert.Equal(t, make([]byte, len(pw)), pw)

	require.NoError(t, s.SelectIdentity("alice"))
	assert.ErrorIs(t, s.SubmitSecret([]byte("   ")), models.ErrInvalidName)
	assert.Equal(t, SecretPending, s.Status().State)

	pw = []byte(" correct-horse ")
	require.NoError(t, s.SubmitSecret(pw))
	assert.Equal(t, Browsing, s.Status().State)
	assert.Equal(t, make([]byte, len(pw)), pw, "caller's copy must be wiped")
}

func TestBrowsingOperations_RequireBrowsing(t *testing.T) {
	s := New(newRegistry(t, "alice"), gateway.New(hashGenerator, time.Second))
	ctx := context.Background()

	for _, setup := range []func(){func() {}, func() { require.NoError(t, s.SelectIdentity("alice")) }} {
		setup()
		_, err := s.ViewSite(ctx, "github.com")
		assert.ErrorIs(t, err, models.ErrInvalidState)
		_, err = s.AddSiteAndReveal(ctx, "github.com")
		assert.ErrorIs(t, err, models.ErrInvalidState)
		_, err = s.Sites()
		assert.ErrorIs(t, err, models.ErrInvalidState)
	}
}

func TestAddSiteAndReveal(t *testing.T) {
	reg := newRegistry(t, "alice")
	s := New(reg, gateway.New(hashGenerator, time.Second))
	ctx := context.Background()
	browsing(t, s, "alice", "correct-horse")

	added, err := s.AddSiteAndReveal(ctx, " github.com ")
	require.NoError(t, err)
	assert.Equal(t, "github.com", added.Site)

	again, err := s.AddSiteAndReveal(ctx, "github.com")
	require.NoError(t, err, "duplicate add re-reveals")
	assert.Equal(t, added, again)

	sites, err := s.Sites()
	require.NoError(t, err)
	assert.Equal(t, []string{"github.com"}, sites)

	viewed, err := s.ViewSite(ctx, "github.com")
	require.NoError(t, err)
	assert.Equal(t, added, viewed)
}

func TestViewSite_Options(t *testing.T) {
	reg := newRegistry(t, "alice")
	s := New(reg, gateway.New(hashGenerator, time.Second))
	ctx := context.Background()
	browsing(t, s, "alice", "correct-horse")
	_, err := s.AddSiteAndReveal(ctx, "bank")
	require.NoError(t, err)

	base, err := s.ViewSite(ctx, "bank")
	require.NoError(t, err)
	pin, err := s.ViewSite(ctx, "bank", gateway.WithScope("pin"), gateway.WithTemplate(gateway.PIN))
	require.NoError(t, err)
	v2, err := s.ViewSite(ctx, "bank", gateway.WithCounter(2))
	require.NoError(t, err)

	assert.NotEqual(t, base.Password, pin.Password)
	assert.NotEqual(t, base.Password, v2.Password)
}

func TestViewSite_Unregistered(t *testing.T) {
	s := New(newRegistry(t, "alice"), gateway.New(hashGenerator, time.Second))
	browsing(t, s, "alice", "pw")

	_, err := s.ViewSite(context.Background(), "github.com")
	assert.ErrorIs(t, err, models.ErrSiteNotFound)
}

func TestViewSite_ForwardsGatewayFailure(t *testing.T) {
	reg := newRegistry(t, "alice")
	require.NoError(t, reg.AddSite(context.Background(), "alice", "github.com"))
	failing := gateway.GeneratorFunc(func(context.Context, gateway.Request) (string, error) {
		return "", errors.New("spectre missing")
	})
	s := New(reg, gateway.New(failing, time.Second))
	browsing(t, s, "alice", "pw")

	_, err := s.ViewSite(context.Background(), "github.com")
	assert.ErrorIs(t, err, models.ErrDerivationUnavailable)
	assert.Equal(t, Browsing, s.Status().State, "a failed derivation is not fatal")
}

func TestLock_DiscardsInFlightDerivation(t *testing.T) {
	reg := newRegistry(t, "alice")
	require.NoError(t, reg.AddSite(context.Background(), "alice", "github.com"))

	started := make(chan struct{})
	release := make(chan struct{})
	slow := gateway.GeneratorFunc(func(context.Context, gateway.Request) (string, error) {
		close(started)
		<-release
		return "derived", nil
	})
	s := New(reg, gateway.New(slow, 5*time.Second))
	browsing(t, s, "alice", "pw")

	type result struct {
		cred models.Credential
		err  error
	}
	done := make(chan result, 1)
	go func() {
		cred, err := s.ViewSite(context.Background(), "github.com")
		done <- result{cred, err}
	}()

	<-started
	s.Lock()
	close(release)

	res := <-done
	assert.ErrorIs(t, res.err, models.ErrInvalidState)
	assert.Empty(t, res.cred.Password)
	assert.Equal(t, Idle, s.Status().State)
}

func TestLock_ClosesSecret(t *testing.T) {
	s := New(newRegistry(t, "alice"), gateway.New(hashGenerator, time.Second))
	browsing(t, s, "alice", "pw")

	buf := s.secret
	require.NotNil(t, buf)
	s.Lock()
	assert.True(t, buf.Closed())
	assert.Nil(t, s.secret)

	s.Lock()
	assert.Equal(t, Idle, s.Status().State)
}

func TestIdleTimeout(t *testing.T) {
	s := New(newRegistry(t, "alice"), gateway.New(hashGenerator, time.Second), WithIdleTimeout(30*time.Millisecond))
	browsing(t, s, "alice", "pw")

	assert.Eventually(t, func() bool {
		return s.Status().State == Idle
	}, time.Second, 5*time.Millisecond)
}

func TestLockOnSignal(t *testing.T) {
	s := New(newRegistry(t, "alice"), gateway.New(hashGenerator, time.Second))
	browsing(t, s, "alice", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	s.LockOnSignal(ctx, sigs)
	sigs <- os.Interrupt

	assert.Eventually(t, func() bool {
		return s.Status().State == Idle
	}, time.Second, 5*time.Millisecond)
}

func TestLockOnSignal_RunsHookAfterLock(t *testing.T) {
	type call struct {
		sig   os.Signal
		state State
	}
	calls := make(chan call, 1)
	var s *Session
	s = New(newRegistry(t, "alice"), gateway.New(hashGenerator, time.Second),
		WithAfterSignal(func(sig os.Signal) {
			calls <- call{sig: sig, state: s.Status().State}
		}))
	browsing(t, s, "alice", "pw")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	s.LockOnSignal(ctx, sigs)
	sigs <- os.Interrupt

	select {
	case c := <-calls:
		assert.Equal(t, os.Interrupt, c.sig)
		assert.Equal(t, Idle, c.state, "the hook must see a locked session")
	case <-time.After(time.Second):
		t.Fatal("hook was not called")
	}
}

func TestRaiseDefault_IgnoresOtherSignals(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	// os.Interrupt is outside the list, so nothing is re-raised and the
	// test process keeps running.
	RaiseDefault(sigs, SuspendSignals...)(os.Interrupt)
	if len(SuspendSignals) > 0 {
		assert.NotContains(t, SuspendSignals, os.Signal(os.Interrupt))
	}
}

func TestSecretNeverLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg := newRegistry(t, "alice")
	s := New(reg, gateway.New(hashGenerator, time.Second), WithLogger(zap.New(core)))
	ctx := context.Background()

	browsing(t, s, "alice", "correct-horse")
	cred, err := s.AddSiteAndReveal(ctx, "github.com")
	require.NoError(t, err)
	s.Lock()

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		line := entry.Message + fmt.Sprint(entry.ContextMap())
		assert.NotContains(t, line, "correct-horse")
		assert.False(t, strings.Contains(line, cred.Password), "derived password leaked into %q", line)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "secret_pending", SecretPending.String())
	assert.Equal(t, "browsing", Browsing.String())
	assert.Equal(t, "state(7)", State(7).String())
}
