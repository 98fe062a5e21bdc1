package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"php-lambda-launcher/internal/backend"
	"php-lambda-launcher/internal/config"
	"php-lambda-launcher/internal/handlers"
	"php-lambda-launcher/pkg/server"
)

func main() {
	app := &cli.App{
		Name:  "php-dev",
		Usage: "serve a PHP project locally through the Lambda launcher bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "The address for the HTTP server to listen on.",
				Value: ":3000",
			},
			&cli.StringFlag{
				Name:  "user-dir",
				Usage: "Directory holding the PHP project. Defaults to the working directory.",
			},
			&cli.DurationFlag{
				Name:  "slow-threshold",
				Usage: "Requests slower than this are logged as slow.",
				Value: 2 * time.Second,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("Dev server failed")
	}
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadDev()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if dir := ctx.String("user-dir"); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving user dir: %w", err)
		}
		cfg.PHP.UserDir = abs
	}
	config.ConfigureLogging(cfg)

	// The signal handling below owns shutdown, so the supervisor must not
	// install its own exit hook.
	container, err := server.NewContainer(cfg, backend.WithExitHook(backend.NoExitHook))
	if err != nil {
		return fmt.Errorf("initializing container: %w", err)
	}
	defer container.Close()

	gin.SetMode(gin.DebugMode)
	router := gin.New()
	handlers.SetupRoutes(router, &handlers.RouterConfig{
		Handler: handlers.NewPHPHandler(
			container.Bridge, container.Supervisor,
			cfg.PHP.UserDir, cfg.PHP.Entrypoint,
		),
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		SlowThreshold:     ctx.Duration("slow-threshold"),
	})

	srv := &http.Server{
		Addr:    ctx.String("listen"),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	logrus.WithFields(logrus.Fields{
		"listen":   srv.Addr,
		"user_dir": cfg.PHP.UserDir,
	}).Info("Dev server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
	case sig := <-quit:
		logrus.WithField("signal", sig.String()).Info("Shutting down dev server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logrus.Info("Dev server exited")
	return nil
}
