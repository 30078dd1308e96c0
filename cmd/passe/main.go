// Package main is the passe command line tool.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/atinyakov/passe/internal/client/cli"
	"github.com/atinyakov/passe/internal/session"
)

func main() {
	// Lock any unlocked session on hangup or terminal stop, then let the
	// signal suspend or end the process as usual.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, session.LockSignals...)

	runner := &cli.Runner{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Signals:     sigs,
		AfterSignal: session.RaiseDefault(sigs),
	}
	os.Exit(runner.Run(context.Background(), os.Args[1:]))
}
