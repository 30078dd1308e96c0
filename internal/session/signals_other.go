//go:build !unix

package session

import "os"

// LockSignals are the signals front ends subscribe to LockOnSignal.
var LockSignals = []os.Signal{os.Interrupt}

// SuspendSignals is empty: there is no terminal stop signal here.
var SuspendSignals []os.Signal

// RaiseDefault returns a hook that does nothing; os.Interrupt only locks.
func RaiseDefault(chan<- os.Signal, ...os.Signal) func(os.Signal) {
	return func(os.Signal) {}
}
