package main

import (
	"syscall"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"php-lambda-launcher/internal/backend"
	"php-lambda-launcher/internal/config"
	"php-lambda-launcher/pkg/lambda"
)

var launcher *lambda.Launcher

func init() {
	cfg, err := config.GetOptimizedConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	config.ConfigureLogging(cfg)

	launcher = lambda.GetLauncher()
	// Lambda sends SIGTERM before freezing the sandbox for good
	err = launcher.Initialize(cfg, backend.WithExitHook(backend.SignalExitHook(syscall.SIGTERM, syscall.SIGINT)))
	if err != nil {
		panic("Failed to initialize launcher: " + err.Error())
	}

	sc := config.GetServerlessConfig()
	logrus.WithFields(logrus.Fields{
		"function":    sc.FunctionName,
		"region":      sc.Region,
		"stage":       sc.Stage,
		"runtime_dir": cfg.PHP.RuntimeDir,
		"user_dir":    cfg.PHP.UserDir,
		"dev":         cfg.Dev,
	}).Info("PHP launcher initialized")
}

func main() {
	awslambda.Start(launcher.Handle)
}
