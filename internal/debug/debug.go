package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Build flag for debug mode - can be overridden at build time
// go build -ldflags "-X github.com/standardbeagle/findall/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// Options controls how a logger is built.
type Options struct {
	// MCPMode silences all output; stdio belongs to the protocol.
	MCPMode bool
	// Verbose forces debug level regardless of build flag or environment.
	Verbose bool
	// Component is attached to every record when non-empty.
	Component string
}

// IsDebugEnabled returns true if the build flag or DEBUG environment
// variable asks for debug output.
func IsDebugEnabled() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("DEBUG")
	return v == "1" || v == "true"
}

// NewLogger builds the logger handed to every component. A nil writer or
// MCP mode yields a logger that discards everything.
func NewLogger(w io.Writer, opts Options) *slog.Logger {
	if w == nil || opts.MCPMode {
		return Discard()
	}

	level := slog.LevelInfo
	if opts.Verbose || IsDebugEnabled() {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard lets constructors accept a nil logger.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// OpenLogFile creates a timestamped log file under the temp directory.
// The caller owns the returned file.
func OpenLogFile() (*os.File, string, error) {
	logDir := filepath.Join(os.TempDir(), "findall-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("findall-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create log file: %w", err)
	}
	return file, logPath, nil
}
