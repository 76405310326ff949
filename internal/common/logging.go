package common

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

// Logger wraps arbor.ILogger to provide a consistent interface
type Logger struct {
	arbor.ILogger
}

func consoleWriter() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		TextOutput:       true,
		DisableTimestamp: false,
	}
}

// NewLogger creates a console logger with the specified level
func NewLogger(level string) *Logger {
	l := arbor.NewLogger().
		WithConsoleWriter(consoleWriter()).
		WithLevelFromString(normalizeLevel(level))
	return &Logger{ILogger: l}
}

// NewLoggerFromConfig builds the logger described by the [logging] section.
// Unknown outputs are ignored; with no usable output it falls back to the console.
func NewLoggerFromConfig(cfg LoggingConfig) *Logger {
	l := arbor.NewLogger()
	wrote := false

	for _, output := range cfg.Outputs {
		switch strings.ToLower(strings.TrimSpace(output)) {
		case "console", "stdout":
			l = l.WithConsoleWriter(consoleWriter())
			wrote = true
		case "file":
			if cfg.FilePath == "" {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
				continue
			}
			l = l.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   cfg.FilePath,
				TimeFormat: "15:04:05",
				MaxSize:    100 * 1024 * 1024, // 100 MB
				MaxBackups: 3,
				TextOutput: true,
			})
			wrote = true
		}
	}
	if !wrote {
		l = l.WithConsoleWriter(consoleWriter())
	}

	return &Logger{ILogger: l.WithLevelFromString(normalizeLevel(cfg.Level))}
}

// NewSilentLogger creates a logger that discards all output
func NewSilentLogger() *Logger {
	return &Logger{ILogger: arbor.NewNoOpLogger()}
}

// WithCorrelation returns a child logger tagged with the request correlation id
func (l *Logger) WithCorrelation(id string) *Logger {
	if id == "" {
		return l
	}
	return &Logger{ILogger: l.ILogger.WithCorrelationId(id)}
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug", "info", "warn", "error":
		return strings.ToLower(strings.TrimSpace(level))
	case "warning":
		return "warn"
	default:
		return "info"
	}
}
