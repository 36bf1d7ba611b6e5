// Package logging builds the service-wide slog logger.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// New creates a slog logger that writes to both stdout and the given
// log file, creating parent directories as needed. The returned cleanup
// flushes and closes the file.
func New(logFilePath, level string) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		return nil, func() {}, err
	}
	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, func() {}, err
	}
	mw := io.MultiWriter(os.Stdout, f)
	h := slog.NewTextHandler(mw, &slog.HandlerOptions{Level: parseLevel(level)})
	lg := slog.New(h)
	log.SetOutput(mw) // ensure stdlib log also goes to both

	cleanup := func() {
		_ = f.Sync()
		_ = f.Close()
	}
	return lg, cleanup, nil
}

func parseLevel(level string) slog.Leveler {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
