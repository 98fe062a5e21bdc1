package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the launcher
type Config struct {
	Environment string
	LogLevel    string
	Port        string
	Dev         bool
	PHP         PHPConfig
	RateLimit   RateLimitConfig
}

// PHPConfig holds the directories the PHP backend is launched from
type PHPConfig struct {
	TaskRoot   string
	RuntimeDir string // bundled php binary and php.ini
	UserDir    string // user code, entry points are resolved here
	Entrypoint string // front controller used when the path names no script
}

// RateLimitConfig holds dev server rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return load(false)
}

// LoadDev is Load with development mode forced on, as if NOW_PHP_DEV=1.
// Without USER_DIR the user code directory is the working directory.
func LoadDev() (*Config, error) {
	return load(true)
}

func load(forceDev bool) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("PORT", "3000")
	viper.SetDefault("ENVIRONMENT", "production")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LAMBDA_TASK_ROOT", "/var/task")
	viper.SetDefault("PHP_ENTRYPOINT", "index.php")
	viper.SetDefault("RATE_LIMIT_RPS", 50)
	viper.SetDefault("RATE_LIMIT_BURST", 100)

	taskRoot := viper.GetString("LAMBDA_TASK_ROOT")
	dev := forceDev || viper.GetString("NOW_PHP_DEV") == "1"

	runtimeDir := viper.GetString("PHP_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join(taskRoot, "native")
	}

	userDir := viper.GetString("USER_DIR")
	if userDir == "" {
		if dev {
			wd, err := os.Getwd()
			if err != nil {
				return nil, err
			}
			userDir = wd
		} else {
			userDir = filepath.Join(taskRoot, "user")
		}
	}

	environment := viper.GetString("ENVIRONMENT")
	if dev {
		environment = "development"
	}

	config := &Config{
		Environment: environment,
		LogLevel:    viper.GetString("LOG_LEVEL"),
		Port:        viper.GetString("PORT"),
		Dev:         dev,
		PHP: PHPConfig{
			TaskRoot:   taskRoot,
			RuntimeDir: runtimeDir,
			UserDir:    userDir,
			Entrypoint: viper.GetString("PHP_ENTRYPOINT"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:             viper.GetInt("RATE_LIMIT_BURST"),
		},
	}

	return config, nil
}

// GetEnv gets an environment variable with a fallback value
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
