package server

import (
	"errors"
	"fmt"

	"php-lambda-launcher/internal/backend"
	"php-lambda-launcher/internal/bridge"
	"php-lambda-launcher/internal/config"

	"github.com/sirupsen/logrus"
)

// Container holds all launcher dependencies
type Container struct {
	Config     *config.Config
	Supervisor *backend.Supervisor
	Bridge     *bridge.Bridge
}

// NewContainer wires the backend supervisor and the bridge from cfg. opts
// are applied after the configured directory and environment.
func NewContainer(cfg *config.Config, opts ...backend.Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	logger := logrus.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"mode":        config.GetDeploymentMode(),
	})

	backendCfg := cfg.Backend()
	supervisorOpts := []backend.Option{
		backend.WithDir(backendCfg.Dir),
		backend.WithEnv(backendCfg.Env),
		backend.WithLogger(logger.WithField("component", "php_backend")),
	}
	supervisor := backend.NewSupervisor(append(supervisorOpts, opts...)...)

	b := bridge.New(supervisor, supervisor.Addr(),
		bridge.WithLogger(logger.WithField("component", "bridge")),
	)

	return &Container{
		Config:     cfg,
		Supervisor: supervisor,
		Bridge:     b,
	}, nil
}

// Close kills the backend process
func (c *Container) Close() error {
	if c.Supervisor == nil {
		return nil
	}
	if err := c.Supervisor.Close(); err != nil {
		return fmt.Errorf("failed to stop php backend: %w", err)
	}
	return nil
}
