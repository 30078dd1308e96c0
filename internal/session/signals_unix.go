//go:build unix

package session

import (
	"os"
	"os/signal"
	"syscall"
)

// LockSignals are the signals front ends subscribe to LockOnSignal: the
// controlling terminal going away and a terminal stop request.
var LockSignals = []os.Signal{syscall.SIGHUP, syscall.SIGTSTP}

// SuspendSignals are the LockSignals whose default action stops the
// process rather than ending it.
var SuspendSignals = []os.Signal{syscall.SIGTSTP}

// RaiseDefault returns a WithAfterSignal hook that re-delivers a signal
// with its default action and then resumes delivery to c. A terminal stop
// suspends the process until SIGCONT; a hangup ends it. When only is not
// empty, signals outside it are left alone.
func RaiseDefault(c chan<- os.Signal, only ...os.Signal) func(os.Signal) {
	return func(sig os.Signal) {
		sysSig, ok := sig.(syscall.Signal)
		if !ok || (len(only) > 0 && !contains(only, sig)) {
			return
		}
		signal.Reset(sysSig)
		_ = syscall.Kill(os.Getpid(), sysSig)
		signal.Notify(c, sysSig)
	}
}

func contains(sigs []os.Signal, sig os.Signal) bool {
	for _, s := range sigs {
		if s == sig {
			return true
		}
	}
	return false
}
