package internal

import (
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
)

// MCPSessionLogger returns a logger writing to a file under the cache dir.
// The stdio transport owns stdout and stderr confuses some MCP clients, so
// server-side events go to disk instead. The returned closer flushes the file.
func MCPSessionLogger(verbose bool) (zerolog.Logger, func()) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	logDir := filepath.Join(xdg.CacheHome, "ytscribe")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return zerolog.New(io.Discard), func() {}
	}

	logPath := filepath.Join(logDir, "mcp.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.New(io.Discard), func() {}
	}

	logger := zerolog.New(logFile).Level(level).With().Timestamp().Logger()
	return logger, func() { _ = logFile.Close() }
}
