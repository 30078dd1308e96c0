// Package cli implements the passe command line: mode dispatch over the
// vault registry, the session and the derivation gateway, usage text, and
// the mapping from failure kinds to exit codes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/atinyakov/passe/internal/client/prompt"
	"github.com/atinyakov/passe/internal/config"
	"github.com/atinyakov/passe/internal/gateway"
	"github.com/atinyakov/passe/internal/logger"
	"github.com/atinyakov/passe/internal/models"
	"github.com/atinyakov/passe/internal/repository"
	"github.com/atinyakov/passe/internal/secret"
	"github.com/atinyakov/passe/internal/service"
	"github.com/atinyakov/passe/internal/session"
)

// Runner executes one passe invocation.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Generator replaces the spectre binary named in the configuration.
	Generator gateway.Generator
	// Signals locks the session when a signal arrives.
	Signals <-chan os.Signal
	// AfterSignal runs after a signal on Signals has locked the session.
	AfterSignal func(os.Signal)
}

// invocation is the state of one Run.
type invocation struct {
	*Runner
	opts   *config.Options
	flags  flags
	log    *zap.Logger
	prompt *prompt.Prompter
	gw     *gateway.Gateway
}

// Run parses args (without the program name), executes the selected mode
// and returns the process exit code. Failures are reported on Stderr as a
// single "passe: <message>" line.
func (r *Runner) Run(ctx context.Context, args []string) int {
	inv := &invocation{Runner: r}
	opts, rest, err := config.Parse("passe", args, inv.flags.register)
	if errors.Is(err, pflag.ErrHelp) {
		printUsage(r.Stdout)
		return ExitOK
	}
	if err != nil {
		return r.fail(usagef("%v", err))
	}
	inv.opts = opts

	l := logger.New()
	if err := l.Init(opts.LogLevel); err != nil {
		return r.fail(usagef("%v", err))
	}
	defer func() { _ = l.Log.Sync() }()
	inv.log = l.Log

	mode, err := gateway.ParseSecretMode(opts.SpectreSecret)
	if err != nil {
		return r.fail(usagef("%v", err))
	}

	inv.prompt = prompt.New(r.Stdin, r.Stderr)
	gen := r.Generator
	if gen == nil {
		gen = gateway.Spectre{Path: opts.Spectre, Secret: mode}
	}
	inv.gw = gateway.New(gen, time.Duration(opts.DeriveTimeout))

	if err := inv.dispatch(ctx, rest); err != nil {
		return r.fail(err)
	}
	return ExitOK
}

func (r *Runner) fail(err error) int {
	fmt.Fprintf(r.Stderr, "passe: %v\n", err)
	var ue *usageError
	if errors.As(err, &ue) {
		printUsage(r.Stderr)
	}
	return ExitCode(err)
}

func (inv *invocation) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return inv.withRegistry(ctx, inv.interactive)
	}
	mode, args := args[0], args[1:]
	switch mode {
	case "help":
		printUsage(inv.Stdout)
		return nil
	case "gen", "generate":
		if len(args) != 0 {
			return usagef("gen takes no positional arguments")
		}
		if inv.flags.name == "" || inv.flags.site == "" {
			return usagef("gen requires --name and --site")
		}
		return inv.generate(ctx)
	}

	want, ok := arity[mode]
	if !ok {
		return usagef("invalid mode `%s`", mode)
	}
	if len(args) < want.min || len(args) > want.max {
		return usagef("%s: %s", mode, want.help)
	}
	return inv.withRegistry(ctx, func(ctx context.Context, reg *service.Registry) error {
		switch mode {
		case "new":
			if err := reg.CreateIdentity(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(inv.Stdout, "Created user `%s`\n", args[0])
		case "rm":
			if err := reg.DeleteIdentity(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(inv.Stdout, "Removed user `%s`\n", args[0])
		case "add":
			if inv.flags.reveal {
				return inv.reveal(ctx, reg, args[0], args[1], true)
			}
			if err := reg.AddSite(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(inv.Stdout, "Added `%s` to `%s`\n", args[1], args[0])
		case "del":
			if err := reg.RemoveSite(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(inv.Stdout, "Deleted `%s` from `%s`\n", args[1], args[0])
		case "list":
			return inv.list(reg, args)
		case "show":
			return inv.reveal(ctx, reg, args[0], args[1], false)
		}
		return nil
	})
}

var arity = map[string]struct {
	min, max int
	help     string
}{
	"new":  {1, 1, "expected <user>"},
	"rm":   {1, 1, "expected <user>"},
	"add":  {2, 2, "expected <user> <site>"},
	"del":  {2, 2, "expected <user> <site>"},
	"list": {0, 1, "expected [user]"},
	"show": {2, 2, "expected <user> <site>"},
}

// withRegistry opens the configured store for the duration of fn.
func (inv *invocation) withRegistry(ctx context.Context, fn func(context.Context, *service.Registry) error) (err error) {
	store, err := repository.Open(ctx, inv.opts.Store, inv.opts.Location())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()
	reg, err := service.NewRegistry(ctx, store, inv.log)
	if err != nil {
		return err
	}
	return fn(ctx, reg)
}

func (inv *invocation) list(reg *service.Registry, args []string) error {
	if len(args) == 0 {
		for _, name := range reg.ListIdentities() {
			fmt.Fprintln(inv.Stdout, name)
		}
		return nil
	}
	sites, err := reg.ListSites(args[0])
	if err != nil {
		return err
	}
	for _, site := range sites {
		fmt.Fprintln(inv.Stdout, site)
	}
	return nil
}

// reveal unlocks a session for identity and prints the password of site,
// registering the site first when add is set.
func (inv *invocation) reveal(ctx context.Context, reg *service.Registry, identity, site string, add bool) error {
	opts, err := inv.flags.options()
	if err != nil {
		return err
	}
	sess, err := inv.unlock(ctx, reg, identity)
	if err != nil {
		return err
	}
	defer sess.Lock()

	var cred models.Credential
	if add {
		cred, err = sess.AddSiteAndReveal(ctx, site, opts...)
	} else {
		cred, err = sess.ViewSite(ctx, site, opts...)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(inv.Stdout, cred.Password)
	return nil
}

// unlock returns a Browsing session for identity. The caller must Lock it.
func (inv *invocation) unlock(ctx context.Context, reg *service.Registry, identity string) (*session.Session, error) {
	sess := session.New(reg, inv.gw,
		session.WithLogger(inv.log),
		session.WithAfterSignal(inv.AfterSignal),
	)
	if inv.Signals != nil {
		sess.LockOnSignal(ctx, inv.Signals)
	}
	if err := sess.SelectIdentity(identity); err != nil {
		return nil, err
	}
	pw, err := inv.prompt.Secret(sess.Status().Identity)
	if err != nil {
		sess.Lock()
		return nil, err
	}
	if err := sess.SubmitSecret(pw); err != nil {
		sess.Lock()
		return nil, err
	}
	return sess, nil
}

// interactive picks an identity and a site from lists, prompts for the
// master password and prints the site password. A single identity is
// selected without asking.
func (inv *invocation) interactive(ctx context.Context, reg *service.Registry) error {
	identities := reg.ListIdentities()
	if len(identities) == 0 {
		return fmt.Errorf("%w: no users, please run `passe new <user>`", models.ErrNotFound)
	}
	identity := identities[0]
	if len(identities) > 1 {
		var err error
		if identity, err = inv.prompt.Choose("Select a user:", identities); err != nil {
			return err
		}
	}

	sites, err := reg.ListSites(identity)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		return fmt.Errorf("%w: no sites saved, please run `passe add %s <site>`", models.ErrSiteNotFound, identity)
	}
	site, err := inv.prompt.Choose(fmt.Sprintf("Select a site (%s):", identity), sites)
	if err != nil {
		return err
	}
	return inv.reveal(ctx, reg, identity, site, false)
}

// generate derives a password for --name and --site without consulting
// the registry.
func (inv *invocation) generate(ctx context.Context) error {
	opts, err := inv.flags.options()
	if err != nil {
		return err
	}
	pw, err := inv.prompt.Secret(inv.flags.name)
	if err != nil {
		return err
	}
	defer secret.Zero(pw)
	password, err := inv.gw.Derive(ctx, gateway.NewRequest(inv.flags.name, pw, inv.flags.site, opts...))
	if err != nil {
		return err
	}
	fmt.Fprintln(inv.Stdout, password)
	return nil
}
