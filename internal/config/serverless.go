package config

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ServerlessConfig holds serverless-specific configuration
type ServerlessConfig struct {
	IsLambda     bool
	FunctionName string
	Region       string
	Stage        string
}

// Global serverless configuration
var (
	serverlessConfig *ServerlessConfig
	serverlessOnce   sync.Once
)

// GetServerlessConfig returns the serverless configuration
func GetServerlessConfig() *ServerlessConfig {
	serverlessOnce.Do(func() {
		serverlessConfig = &ServerlessConfig{
			IsLambda:     isRunningInLambda(),
			FunctionName: os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
			Region:       os.Getenv("AWS_REGION"),
			Stage:        GetEnv("STAGE", "dev"),
		}
	})
	return serverlessConfig
}

// isRunningInLambda detects if the application is running in AWS Lambda
func isRunningInLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// IsServerlessMode returns true if running in serverless mode
func IsServerlessMode() bool {
	return GetServerlessConfig().IsLambda
}

// GetDeploymentMode returns the current deployment mode
func GetDeploymentMode() string {
	if IsServerlessMode() {
		return "serverless"
	}
	return "server"
}

// BackendConfig is the working directory and environment the PHP
// built-in server is spawned with.
type BackendConfig struct {
	Dir string
	Env []string
}

// Backend resolves where and with which environment the backend runs.
// Production runs from the bundled runtime directory with it prepended to
// PATH; development runs from the user code directory with the inherited
// environment.
func (c *Config) Backend() BackendConfig {
	env := os.Environ()
	if c.Dev {
		return BackendConfig{Dir: c.PHP.UserDir, Env: env}
	}
	return BackendConfig{
		Dir: c.PHP.RuntimeDir,
		Env: prependPath(env, c.PHP.RuntimeDir),
	}
}

func prependPath(env []string, dir string) []string {
	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			kv = "PATH=" + dir + ":" + strings.TrimPrefix(kv, "PATH=")
			found = true
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PATH="+dir)
	}
	return out
}

// GetOptimizedConfig returns configuration for the current deployment mode.
// NOW_PHP_DEV is honoured inside Lambda too, since local emulators set the
// function name variable.
func GetOptimizedConfig() (*Config, error) {
	config, err := Load()
	if err != nil {
		return nil, err
	}

	if IsServerlessMode() && config.Dev {
		logrus.WithFields(logrus.Fields{
			"function": GetServerlessConfig().FunctionName,
			"user_dir": config.PHP.UserDir,
		}).Warn("NOW_PHP_DEV is set inside Lambda, running PHP from the user directory")
	}

	return config, nil
}
