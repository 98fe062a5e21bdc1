package config

import (
	"github.com/sirupsen/logrus"
)

// ConfigureLogging sets the global logrus level and formatter. Lambda output
// goes to CloudWatch, so serverless mode logs JSON.
func ConfigureLogging(cfg *Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if IsServerlessMode() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
