package backend

import (
	"os"
	"os/signal"
	"syscall"
)

// ExitHook arranges for cleanup to run when the host process is going away.
type ExitHook func(cleanup func())

// SignalExitHook runs cleanup on the first of sigs and then exits the host
// with the conventional 128+signal status.
func SignalExitHook(sigs ...os.Signal) ExitHook {
	return func(cleanup func()) {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, sigs...)
		go func() {
			sig := <-ch
			signal.Stop(ch)
			cleanup()
			if s, ok := sig.(syscall.Signal); ok {
				os.Exit(128 + int(s))
			}
			os.Exit(1)
		}()
	}
}

// NoExitHook leaves cleanup to the caller, who must call Supervisor.Close.
func NoExitHook(func()) {}
