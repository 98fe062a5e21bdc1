package backend

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// logWriter surfaces every chunk a backend stream produces as one log entry.
type logWriter struct {
	entry *logrus.Entry
	level logrus.Level
}

func (w *logWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.entry.Log(w.level, msg)
	}
	return len(p), nil
}
