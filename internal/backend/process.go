package backend

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is a handle on one spawned PHP built-in server.
type Process struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	startedAt time.Time
	done      chan struct{}

	mu       sync.Mutex
	exitCode int
	signal   string
}

func newProcess(cmd *exec.Cmd, stdin io.WriteCloser) *Process {
	return &Process{
		cmd:       cmd,
		stdin:     stdin,
		startedAt: time.Now(),
		done:      make(chan struct{}),
		exitCode:  -1,
	}
}

// Pid returns the operating system process ID.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// StartedAt returns when the process was spawned.
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Stdin returns the write end of the process's standard input pipe.
func (p *Process) Stdin() io.Writer {
	return p.stdin
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Running reports whether the process has not exited yet.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code, or -1 while running or when killed by a signal.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Signal returns the name of the signal that terminated the process, if any.
func (p *Process) Signal() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signal
}

// Kill sends SIGKILL. Killing an already exited process is not an error.
func (p *Process) Kill() error {
	if !p.Running() {
		return nil
	}
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// markExited records the state left by cmd.Wait and releases Done.
func (p *Process) markExited() {
	p.mu.Lock()
	if ps := p.cmd.ProcessState; ps != nil {
		p.exitCode = ps.ExitCode()
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			p.signal = ws.Signal().String()
		}
	}
	p.mu.Unlock()
	close(p.done)
}
