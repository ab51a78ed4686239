// Package errlog records operational errors in the error_log table, falling
// back to a file when the database write itself fails.
package errlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const fallbackFile = "error_log.txt"

// Writer persists an error message.
type Writer interface {
	InsertErrorLog(ctx context.Context, message string) error
}

// Logger is a best-effort error sink. It never returns an error to the caller.
type Logger struct {
	db     Writer
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

func New(db Writer, dir string, logger *slog.Logger) *Logger {
	return &Logger{db: db, dir: dir, logger: logger, now: time.Now}
}

// Log emits msg through slog and stores it in the database, or in
// <dir>/error_log.txt if the database write fails.
func (l *Logger) Log(ctx context.Context, msg string, args ...any) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logger.Error(msg)

	err := l.db.InsertErrorLog(ctx, msg)
	if err == nil {
		return
	}
	fallback := fmt.Sprintf("error log write failed: %v, for initial error: %s", err, msg)
	if ferr := l.writeFile(fallback); ferr != nil {
		l.logger.Error("Failed to write error log file", "error", ferr, "message", msg)
	}
}

func (l *Logger) writeFile(msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(l.dir, fallbackFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s: %s\n", l.now().UTC().Format(time.RFC3339), msg)
	return err
}
