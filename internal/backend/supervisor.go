// Package backend supervises the single PHP built-in server process that
// serves every invocation of a warm function instance.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"php-lambda-launcher/internal/portwait"

	"github.com/sirupsen/logrus"
)

const (
	// Host is the loopback address the backend binds.
	Host = "127.0.0.1"
	// Port is the fixed port the backend listens on.
	Port = 8000
	// ReadinessAttempts is the retry budget for the readiness probe.
	ReadinessAttempts = 400

	waitDelay = 2 * time.Second
)

// Command is the executable and arguments used to spawn the backend.
type Command struct {
	Path string
	Args []string
}

// PHPCommand is the built-in server invocation: explicit php.ini, loopback
// bind and the filesystem root as document root.
func PHPCommand(port int) Command {
	return Command{
		Path: "php",
		Args: []string{"-c", "php.ini", "-S", fmt.Sprintf("%s:%d", Host, port), "-t", "/"},
	}
}

// Readiness confirms that the backend accepts connections.
type Readiness interface {
	WaitUntilOpen(ctx context.Context, port, maxAttempts int) error
}

// Supervisor owns a single slot holding at most one backend process.
// EnsureStarted fills the slot on demand; a dead process is replaced on the
// next call. Concurrent callers converge on one spawn.
type Supervisor struct {
	startSem chan struct{} // held for spawn + readiness

	mu      sync.Mutex // guards the slot
	current *Process
	ready   bool
	spawns  int

	command   Command
	dir       string
	env       []string
	port      int
	attempts  int
	readiness Readiness
	exitHook  ExitHook
	hookOnce  sync.Once
	observers []func(*Process)
	logger    *logrus.Entry
}

type Option func(s *Supervisor)

// WithDir sets the backend working directory.
func WithDir(dir string) Option {
	return func(s *Supervisor) {
		s.dir = dir
	}
}

// WithEnv sets the backend environment. A nil env inherits the host's.
func WithEnv(env []string) Option {
	return func(s *Supervisor) {
		s.env = env
	}
}

// WithPort overrides the port that is probed and passed to the PHP command.
func WithPort(port int) Option {
	return func(s *Supervisor) {
		s.port = port
	}
}

// WithCommand replaces the PHP command line.
func WithCommand(cmd Command) Option {
	return func(s *Supervisor) {
		s.command = cmd
	}
}

// WithReadiness replaces the readiness probe and its attempt budget.
func WithReadiness(r Readiness, attempts int) Option {
	return func(s *Supervisor) {
		s.readiness = r
		s.attempts = attempts
	}
}

// WithExitHook sets how the backend gets killed when the host exits.
func WithExitHook(h ExitHook) Option {
	return func(s *Supervisor) {
		s.exitHook = h
	}
}

// WithExitObserver registers f to be called after any backend process exits.
func WithExitObserver(f func(*Process)) Option {
	return func(s *Supervisor) {
		s.observers = append(s.observers, f)
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// NewSupervisor returns a Supervisor with an empty slot.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		startSem:  make(chan struct{}, 1),
		port:      Port,
		attempts:  ReadinessAttempts,
		readiness: portwait.New(),
		exitHook:  NoExitHook,
		logger:    logrus.WithField("component", "php_backend"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.command.Path == "" {
		s.command = PHPCommand(s.port)
	}
	return s
}

// Addr is the host:port the backend serves on.
func (s *Supervisor) Addr() string {
	return fmt.Sprintf("%s:%d", Host, s.port)
}

// Current returns the live, ready backend process or nil.
func (s *Supervisor) Current() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.ready && s.current.Running() {
		return s.current
	}
	return nil
}

// Spawns returns how many processes this supervisor has started.
func (s *Supervisor) Spawns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawns
}

// EnsureStarted returns the running backend, spawning one and waiting for it
// to accept connections if the slot is empty or its process has exited.
// A failed startup leaves the slot empty so the next call starts over.
// Callers queued behind another caller's startup return early if ctx ends.
func (s *Supervisor) EnsureStarted(ctx context.Context) (*Process, error) {
	if proc := s.Current(); proc != nil {
		return proc, nil
	}

	select {
	case s.startSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.startSem }()

	if proc := s.Current(); proc != nil {
		return proc, nil
	}

	proc, err := s.spawn()
	if err != nil {
		return nil, err
	}

	s.hookOnce.Do(func() {
		s.exitHook(s.killCurrent)
	})

	if err := s.waitReady(ctx, proc); err != nil {
		s.release(proc)
		if killErr := proc.Kill(); killErr != nil {
			s.logger.WithError(killErr).Warn("Failed to kill backend after failed startup")
		}
		return nil, err
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"pid":  proc.Pid(),
		"addr": s.Addr(),
	}).Info("PHP built-in server ready")
	return proc, nil
}

// Close kills the current backend process, if any, and empties the slot.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	proc := s.current
	s.current = nil
	s.ready = false
	s.mu.Unlock()

	if proc == nil {
		return nil
	}
	return proc.Kill()
}

func (s *Supervisor) killCurrent() {
	if err := s.Close(); err != nil {
		s.logger.WithError(err).Warn("Failed to kill backend on exit")
	}
}

func (s *Supervisor) spawn() (*Process, error) {
	s.logger.WithFields(logrus.Fields{
		"command": s.command.Path,
		"args":    s.command.Args,
		"dir":     s.dir,
	}).Info("Spawning PHP built-in server")

	cmd := exec.Command(s.command.Path, s.command.Args...)
	cmd.Dir = s.dir
	cmd.Env = s.env
	cmd.SysProcAttr = sysProcAttr()
	// don't let a grandchild holding the output pipes block Wait forever
	cmd.WaitDelay = waitDelay

	cmd.Stdout = &logWriter{entry: s.logger.WithField("source", "stdout"), level: logrus.DebugLevel}
	cmd.Stderr = &logWriter{entry: s.logger.WithField("source", "stderr"), level: logrus.WarnLevel}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &StartError{Op: "spawn", Err: fmt.Errorf("opening stdin pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		s.logger.WithError(err).Error("PHP built-in server process errored")
		stdin.Close()
		return nil, &StartError{Op: "spawn", Err: err}
	}

	proc := newProcess(cmd, stdin)
	procLog := s.logger.WithField("pid", proc.Pid())
	go s.wait(proc, procLog)

	s.mu.Lock()
	s.current = proc
	s.ready = false
	s.spawns++
	spawns := s.spawns
	s.mu.Unlock()

	procLog.WithField("spawn_count", spawns).Debug("PHP built-in server spawned")
	return proc, nil
}

func (s *Supervisor) wait(proc *Process, procLog *logrus.Entry) {
	err := proc.cmd.Wait()
	proc.markExited()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		procLog.WithError(err).Error("PHP built-in server process errored")
	}
	procLog.WithFields(logrus.Fields{
		"exit_code": proc.ExitCode(),
		"signal":    proc.Signal(),
	}).Info("PHP built-in server process closed")

	for _, f := range s.observers {
		f(proc)
	}
}

// waitReady probes the port, giving up early if the process dies first.
func (s *Supervisor) waitReady(ctx context.Context, proc *Process) error {
	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-proc.Done():
			cancel()
		case <-probeCtx.Done():
		}
	}()

	err := s.readiness.WaitUntilOpen(probeCtx, s.port, s.attempts)
	if !proc.Running() {
		return &StartError{Op: "ready", Err: fmt.Errorf("%w: exit code %d", ErrExited, proc.ExitCode())}
	}
	if err != nil {
		return &StartError{Op: "ready", Err: err}
	}
	return nil
}

// release empties the slot if it still holds proc.
func (s *Supervisor) release(proc *Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == proc {
		s.current = nil
		s.ready = false
	}
}
