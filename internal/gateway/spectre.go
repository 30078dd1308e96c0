package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/atinyakov/passe/internal/models"
	"github.com/atinyakov/passe/internal/secret"
)

// DefaultSpectrePath is the derivation binary looked up on PATH.
const DefaultSpectrePath = "spectre"

// SecretMode selects how the master secret reaches the spectre binary.
type SecretMode string

const (
	// SecretArg passes the secret as "--pass". This is what the spectre
	// command line tool accepts, but the secret is visible to other local
	// users in the process list while the child runs.
	SecretArg SecretMode = "arg"
	// SecretStdin writes the secret and a newline to the child's stdin,
	// for builds that read it from there.
	SecretStdin SecretMode = "stdin"
)

// DefaultSecretMode is the transport used when none is configured.
const DefaultSecretMode = SecretArg

// ParseSecretMode returns the mode named by s. An empty string selects
// DefaultSecretMode.
func ParseSecretMode(s string) (SecretMode, error) {
	switch m := SecretMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DefaultSecretMode, nil
	case SecretArg, SecretStdin:
		return m, nil
	}
	return "", fmt.Errorf("unknown spectre secret mode %q (want %q or %q)", s, SecretArg, SecretStdin)
}

// Spectre runs the external spectre binary as
//
//	spectre --name IDENTITY --pass SECRET --site SITE
//
// Counter, scope and template flags are appended only when they differ
// from the defaults. In SecretStdin mode "--pass" is left out and the
// secret is written to stdin instead.
type Spectre struct {
	// Path is the binary to execute.
	Path string
	// Secret selects the secret transport; empty means DefaultSecretMode.
	Secret SecretMode
}

// Args returns the command line for req, excluding the binary.
func (s Spectre) Args(req Request) []string {
	args := []string{"--name", req.Identity}
	if s.mode() == SecretArg {
		args = append(args, "--pass", string(req.Secret))
	}
	args = append(args, "--site", req.Site)
	if req.Counter != DefaultCounter {
		args = append(args, "--counter", strconv.Itoa(req.Counter))
	}
	if req.Scope != DefaultScope {
		args = append(args, "--scope", req.Scope)
	}
	if req.Template != DefaultTemplate {
		args = append(args, "--template", string(req.Template))
	}
	return args
}

func (s Spectre) mode() SecretMode {
	if s.Secret == "" {
		return DefaultSecretMode
	}
	return s.Secret
}

// Generate executes Path once and returns its trimmed standard output.
func (s Spectre) Generate(ctx context.Context, req Request) (string, error) {
	path := s.Path
	if path == "" {
		path = DefaultSpectrePath
	}

	cmd := exec.CommandContext(ctx, path, s.Args(req)...)
	if s.mode() == SecretStdin {
		stdin := make([]byte, 0, len(req.Secret)+1)
		stdin = append(append(stdin, req.Secret...), '\n')
		defer secret.Zero(stdin)
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %w", models.ErrDerivationUnavailable, ctx.Err())
	}
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		return "", fmt.Errorf("%w: %s exited with status %d", models.ErrDerivationRejected, path, exitErr.ExitCode())
	case err != nil:
		return "", fmt.Errorf("%w: %w", models.ErrDerivationUnavailable, err)
	}

	password := strings.TrimSpace(stdout.String())
	if password == "" {
		return "", fmt.Errorf("%w: %s produced no output", models.ErrDerivationRejected, path)
	}
	return password, nil
}
