package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/passe/internal/models"
)

// hmacGenerator is a deterministic stand-in for the external function.
var hmacGenerator = GeneratorFunc(func(_ context.Context, req Request) (string, error) {
	mac := hmac.New(sha256.New, req.Secret)
	fmt.Fprintf(mac, "%s\x00%s\x00%d\x00%s\x00%s", req.Identity, req.Site, req.Counter, req.Scope, req.Template)
	return hex.EncodeToString(mac.Sum(nil))[:20], nil
})

func TestNewRequest_Defaults(t *testing.T) {
	req := NewRequest("alice", []byte("pw"), "github.com")
	assert.Equal(t, 1, req.Counter)
	assert.Equal(t, "default", req.Scope)
	assert.Equal(t, Long, req.Template)

	req = NewRequest("alice", []byte("pw"), "github.com", WithCounter(3), WithScope("pin"), WithTemplate(PIN))
	assert.Equal(t, 3, req.Counter)
	assert.Equal(t, "pin", req.Scope)
	assert.Equal(t, PIN, req.Template)

	req = NewRequest("alice", []byte("pw"), "github.com", WithScope(""), WithTemplate(""))
	assert.Equal(t, "default", req.Scope)
	assert.Equal(t, Long, req.Template)
}

func TestDerive_Deterministic(t *testing.T) {
	g := New(hmacGenerator, time.Second)
	base := NewRequest("alice", []byte("correct-horse"), "github.com")

	first, err := g.Derive(context.Background(), base)
	require.NoError(t, err)
	second, err := g.Derive(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	variants := []Request{
		NewRequest("bob", []byte("correct-horse"), "github.com"),
		NewRequest("alice", []byte("battery-staple"), "github.com"),
		NewRequest("alice", []byte("correct-horse"), "gitlab.com"),
		NewRequest("alice", []byte("correct-horse"), "github.com", WithCounter(2)),
		NewRequest("alice", []byte("correct-horse"), "github.com", WithScope("pin")),
		NewRequest("alice", []byte("correct-horse"), "github.com", WithTemplate(Short)),
	}
	for _, v := range variants {
		got, err := g.Derive(context.Background(), v)
		require.NoError(t, err)
		assert.NotEqual(t, first, got, "variant %+v collided", v)
	}
}

func TestDerive_RejectsInvalidInput(t *testing.T) {
	called := false
	g := New(GeneratorFunc(func(context.Context, Request) (string, error) {
		called = true
		return "x", nil
	}), time.Second)

	cases := map[string]Request{
		"empty identity": NewRequest("  ", []byte("pw"), "site"),
		"empty secret":   NewRequest("alice", []byte(" "), "site"),
		"empty site":     NewRequest("alice", []byte("pw"), ""),
		"zero counter":   NewRequest("alice", []byte("pw"), "site", WithCounter(0)),
		"bad template":   NewRequest("alice", []byte("pw"), "site", WithTemplate("huge")),
		"blank scope":    {Identity: "alice", Secret: []byte("pw"), Site: "site", Counter: 1, Scope: " ", Template: Long},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := g.Derive(context.Background(), req)
			assert.ErrorIs(t, err, models.ErrDerivationRejected)
		})
	}
	assert.False(t, called, "generator must not run for invalid input")
}

func TestDerive_Timeout(t *testing.T) {
	g := New(GeneratorFunc(func(ctx context.Context, _ Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), 20*time.Millisecond)

	_, err := g.Derive(context.Background(), NewRequest("alice", []byte("pw"), "site"))
	assert.ErrorIs(t, err, models.ErrDerivationUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDerive_ClassifiesGeneratorErrors(t *testing.T) {
	req := NewRequest("alice", []byte("pw"), "site")

	_, err := New(GeneratorFunc(func(context.Context, Request) (string, error) {
		return "", errors.New("library not loaded")
	}), time.Second).Derive(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrDerivationUnavailable)

	_, err = New(GeneratorFunc(func(context.Context, Request) (string, error) {
		return "", fmt.Errorf("%w: bad site", models.ErrDerivationRejected)
	}), time.Second).Derive(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrDerivationRejected)

	_, err = New(GeneratorFunc(func(context.Context, Request) (string, error) {
		return "", nil
	}), time.Second).Derive(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrDerivationRejected)

	_, err = New(nil, 0).Derive(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrDerivationUnavailable)
}

func TestParseTemplate(t *testing.T) {
	tmpl, err := ParseTemplate(" PIN ")
	require.NoError(t, err)
	assert.Equal(t, PIN, tmpl)

	_, err = ParseTemplate("enormous")
	assert.ErrorIs(t, err, models.ErrDerivationRejected)
}

func TestParseSecretMode(t *testing.T) {
	m, err := ParseSecretMode("")
	require.NoError(t, err)
	assert.Equal(t, SecretArg, m)

	m, err = ParseSecretMode(" STDIN ")
	require.NoError(t, err)
	assert.Equal(t, SecretStdin, m)

	_, err = ParseSecretMode("env")
	assert.Error(t, err)
}
