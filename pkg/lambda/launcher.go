package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"php-lambda-launcher/internal/adapters/awsevent"
	"php-lambda-launcher/internal/backend"
	"php-lambda-launcher/internal/config"
	"php-lambda-launcher/pkg/server"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

// Launcher keeps the container, and with it the PHP backend, alive across
// invocations of a warm function instance.
type Launcher struct {
	container   *server.Container
	lastUsed    time.Time
	mu          sync.RWMutex
	initialized bool
	initOnce    sync.Once
}

var (
	globalLauncher *Launcher
	launcherOnce   sync.Once
)

// GetLauncher returns the global launcher instance
func GetLauncher() *Launcher {
	launcherOnce.Do(func() {
		globalLauncher = &Launcher{}
	})
	return globalLauncher
}

// NewLauncher returns a launcher around an existing container.
func NewLauncher(container *server.Container) *Launcher {
	l := &Launcher{
		container:   container,
		initialized: true,
		lastUsed:    time.Now(),
	}
	l.initOnce.Do(func() {})
	return l
}

// Initialize builds the container once; later calls are no-ops.
func (l *Launcher) Initialize(cfg *config.Config, opts ...backend.Option) error {
	var initErr error
	l.initOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		container, err := server.NewContainer(cfg, opts...)
		if err != nil {
			initErr = err
			return
		}

		l.container = container
		l.lastUsed = time.Now()
		l.initialized = true
	})

	return initErr
}

// GetContainer returns the container, initializing from the environment if
// Initialize was never called.
func (l *Launcher) GetContainer() (*server.Container, error) {
	l.mu.Lock()
	if l.initialized && l.container != nil {
		l.lastUsed = time.Now()
		container := l.container
		l.mu.Unlock()
		return container, nil
	}
	l.mu.Unlock()

	cfg, err := config.GetOptimizedConfig()
	if err != nil {
		return nil, err
	}
	if err := l.Initialize(cfg); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.container == nil {
		return nil, errors.New("launcher is not initialized")
	}
	return l.container, nil
}

// Handle serves one invocation. Malformed events get a 400 response; a
// backend that cannot be started fails the invocation.
func (l *Launcher) Handle(ctx context.Context, raw json.RawMessage) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	info := invocationInfo(ctx)
	log := logrus.WithFields(logrus.Fields{
		"request_id": info.RequestID,
		"function":   info.FunctionName,
	})

	container, err := l.GetContainer()
	if err != nil {
		log.WithError(err).Error("Failed to initialize launcher")
		return events.APIGatewayProxyResponse{}, err
	}

	ev, err := awsevent.Normalize(raw)
	if err != nil {
		log.WithError(err).Warn("Rejected invocation event")
		return awsevent.ErrorResponse(http.StatusBadRequest, err.Error()), nil
	}

	php := container.Config.PHP
	req, err := awsevent.ToBridgeRequest(ev, php.UserDir, php.Entrypoint)
	if err != nil {
		log.WithError(err).Warn("Rejected invocation event")
		return awsevent.ErrorResponse(http.StatusBadRequest, err.Error()), nil
	}

	log = log.WithFields(logrus.Fields{
		"method":   req.Method,
		"uri":      req.URI,
		"filename": req.Filename,
	})

	resp, err := container.Bridge.Query(ctx, req)
	if err != nil {
		log.WithError(err).Error("PHP backend unavailable")
		return events.APIGatewayProxyResponse{}, err
	}

	fields := logrus.Fields{
		"status_code":   resp.StatusCode,
		"response_size": len(resp.Body),
		"latency_ms":    float64(time.Since(start).Nanoseconds()) / 1000000,
	}
	if resp.StatusCode >= 500 {
		log.WithFields(fields).Error("Invocation completed with server error")
	} else {
		log.WithFields(fields).Info("Invocation completed")
	}

	return awsevent.ToProxyResponse(resp), nil
}

// IsHealthy reports whether a ready backend process is running
func (l *Launcher) IsHealthy() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.initialized || l.container == nil || l.container.Supervisor == nil {
		return false
	}
	return l.container.Supervisor.Current() != nil
}

// LastUsed returns when the launcher last served an invocation
func (l *Launcher) LastUsed() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastUsed
}

// Cleanup stops the backend and forgets the container
func (l *Launcher) Cleanup() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.container != nil {
		if err := l.container.Close(); err != nil {
			return err
		}
		l.container = nil
	}

	l.initialized = false
	return nil
}

var _ HandlerFunc = (&Launcher{}).Handle
