package cli

import (
	"bytes"
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

	"github.com/atinyakov/passe/internal/client/prompt"
	"github.com/atinyakov/passe/internal/gateway"
	"github.com/atinyakov/passe/internal/models"
)

var hashGenerator = gateway.GeneratorFunc(func(_ context.Context, req gateway.Request) (string, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		req.Identity, req.Secret, req.Site, req.Counter, req.Scope, req.Template)))
	return hex.EncodeToString(sum[:8]), nil
})

type harness struct {
	t     *testing.T
	store string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, key := range []string{
		"PASSE_CONFIG", "PASSE_STORE", "PASSE_STORE_PATH", "PASSE_DATABASE_DSN", "PASSE_SPECTRE",
		"PASSE_SPECTRE_SECRET", "PASSE_LOG_LEVEL", "PASSE_DERIVE_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return &harness{t: t, store: filepath.Join(t.TempDir(), "passe.json")}
}

// run executes passe with the given stdin and returns exit code, stdout
// and stderr.
func (h *harness) run(stdin string, args ...string) (int, string, string) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	r := &Runner{
		Stdin:     strings.NewReader(stdin),
		Stdout:    &stdout,
		Stderr:    &stderr,
		Generator: hashGenerator,
	}
	code := r.Run(context.Background(), append([]string{"-f", h.store}, args...))
	return code, stdout.String(), stderr.String()
}

func TestRun_RegistryModes(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("", "new", "alice")
	require.Equal(t, ExitOK, code)
	assert.Equal(t, "Created user `alice`\n", out)

	code, _, errOut := h.run("", "new", "alice")
	assert.Equal(t, ExitAlreadyExists, code)
	assert.True(t, strings.HasPrefix(errOut, "passe: "), errOut)
	assert.Equal(t, 1, strings.Count(errOut, "\n"), "one line per failure")

	code, out, _ = h.run("", "add", "alice", "github.com")
	require.Equal(t, ExitOK, code)
	assert.Equal(t, "Added `github.com` to `alice`\n", out)
	code, _, _ = h.run("", "add", "alice", "bank")
	require.Equal(t, ExitOK, code)

	code, _, _ = h.run("", "add", "alice", "bank")
	assert.Equal(t, ExitDuplicateSite, code)

	code, out, _ = h.run("", "list", "alice")
	require.Equal(t, ExitOK, code)
	assert.Equal(t, "github.com\nbank\n", out)

	code, out, _ = h.run("", "list")
	require.Equal(t, ExitOK, code)
	assert.Equal(t, "alice\n", out)

	code, _, _ = h.run("", "del", "alice", "nope")
	assert.Equal(t, ExitSiteNotFound, code)
	code, out, _ = h.run("", "del", "alice", "bank")
	require.Equal(t, ExitOK, code)
	assert.Equal(t, "Deleted `bank` from `alice`\n", out)

	code, _, _ = h.run("", "rm", "alice")
	require.Equal(t, ExitOK, code)
	code, _, _ = h.run("", "list", "alice")
	assert.Equal(t, ExitNotFound, code)

	data, err := os.ReadFile(h.store)
	require.NoError(t, err)
	assert.Equal(t, "{}", strings.TrimSpace(string(data)))
}

func TestRun_ShowAndReveal(t *testing.T) {
	h := newHarness(t)
	h.run("", "new", "alice")

	code, added, _ := h.run("correct-horse\n", "add", "--reveal", "alice", "github.com")
	require.Equal(t, ExitOK, code)
	assert.NotEmpty(t, strings.TrimSpace(added))

	code, shown, errOut := h.run("correct-horse\n", "show", "alice", "github.com")
	require.Equal(t, ExitOK, code)
	assert.Equal(t, added, shown)
	assert.Contains(t, errOut, "Enter Master Password (alice)")
	assert.NotContains(t, errOut, "correct-horse")

	_, rotated, _ := h.run("correct-horse\n", "show", "--counter", "2", "alice", "github.com")
	assert.NotEqual(t, shown, rotated)

	code, _, _ = h.run("correct-horse\n", "show", "alice", "bank")
	assert.Equal(t, ExitSiteNotFound, code)

	code, _, _ = h.run("\n", "show", "alice", "github.com")
	assert.Equal(t, ExitInvalidName, code, "blank master secret")

	code, _, _ = h.run("pw\n", "show", "-t", "emoji", "alice", "github.com")
	assert.Equal(t, ExitDerivationRejected, code)
}

func TestRun_Interactive(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run("")
	assert.Equal(t, ExitNotFound, code)
	assert.Contains(t, errOut, "passe new")

	h.run("", "new", "alice")
	code, _, _ = h.run("")
	assert.Equal(t, ExitSiteNotFound, code)

	h.run("", "add", "alice", "github.com")
	h.run("", "add", "alice", "bank")
	_, want, _ := h.run("pw\n", "show", "alice", "bank")

	// A single user is selected without asking.
	code, out, errOut := h.run("2\npw\n")
	require.Equal(t, ExitOK, code, errOut)
	assert.Equal(t, want, out)
	assert.Contains(t, errOut, "Select a site (alice):")

	h.run("", "new", "bob")
	code, out, errOut = h.run("alice\nbank\npw\n")
	require.Equal(t, ExitOK, code, errOut)
	assert.Equal(t, want, out)
	assert.Contains(t, errOut, "Select a user:")

	code, _, _ = h.run("carol\n")
	assert.Equal(t, ExitUsage, code)
}

func TestRun_Generate(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("pw\n", "gen", "--name", "alice", "--site", "github.com")
	require.Equal(t, ExitOK, code)
	assert.NotEmpty(t, strings.TrimSpace(out))

	_, again, _ := h.run("pw\n", "gen", "-u", "alice", "-s", "github.com")
	assert.Equal(t, out, again)

	code, _, _ = h.run("pw\n", "gen", "--name", "alice")
	assert.Equal(t, ExitUsage, code)

	_, err := os.Stat(h.store)
	assert.True(t, errors.Is(err, os.ErrNotExist), "gen does not touch the registry")
}

func TestRun_Usage(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run("", "help")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "usage: passe")
	assert.Contains(t, out, "--template")

	code, _, errOut := h.run("", "frobnicate")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut, "passe: invalid mode `frobnicate`")

	code, _, _ = h.run("", "add", "alice")
	assert.Equal(t, ExitUsage, code)

	code, _, _ = h.run("", "--bogus")
	assert.Equal(t, ExitUsage, code)

	code, out, _ = h.run("", "--help")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "Modes:")

	code, _, errOut = h.run("", "--spectre-secret", "env", "list")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, errOut, "unknown spectre secret mode")
}

func TestRun_PersistenceFailure(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.store, []byte(`{"alice": "not-a-list"}`), 0o600))

	code, _, _ := h.run("", "list")
	assert.Equal(t, ExitPersistence, code)
}

func TestRun_LocksOnSignal(t *testing.T) {
	h := newHarness(t)
	h.run("", "new", "alice")
	h.run("", "add", "alice", "github.com")

	sigs := make(chan os.Signal, 1)
	sigs <- os.Interrupt
	blocked := gateway.GeneratorFunc(func(ctx context.Context, req gateway.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	after := make(chan os.Signal, 1)
	var stdout, stderr bytes.Buffer
	r := &Runner{
		Stdin:       strings.NewReader("pw\n"),
		Stdout:      &stdout,
		Stderr:      &stderr,
		Generator:   blocked,
		Signals:     sigs,
		AfterSignal: func(sig os.Signal) { after <- sig },
	}
	code := r.Run(context.Background(), []string{"-f", h.store, "--derive-timeout", "2s", "show", "alice", "github.com"})
	assert.Contains(t, []int{ExitInvalidState, ExitDerivationUnavailable}, code)
	assert.Empty(t, stdout.String())

	select {
	case sig := <-after:
		assert.Equal(t, os.Interrupt, sig)
	case <-time.After(time.Second):
		t.Fatal("the signal's default action was not handed back")
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitUsage, ExitCode(usagef("bad")))
	assert.Equal(t, ExitUsage, ExitCode(fmt.Errorf("choose: %w", prompt.ErrInvalidChoice)))
	assert.Equal(t, ExitInternal, ExitCode(prompt.ErrCancelled))
	assert.Equal(t, ExitInternal, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitDerivationUnavailable, ExitCode(fmt.Errorf("x: %w", models.ErrDerivationUnavailable)))
	assert.Equal(t, ExitPersistence, ExitCode(models.ErrPersistence))
}
