package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger owns the process loggers. Full writes to stderr, the optional file and
// the protocol sink; Diagnostic skips the protocol sink and is the only logger
// allowed to report failures of the protocol channel itself.
type Logger struct {
	full       zerolog.Logger
	diagnostic zerolog.Logger
	protocol   *ProtocolWriter
	file       *RotatingWriter
	redactor   *Redactor
}

// Config holds logger configuration
type Config struct {
	Level         string // trace, debug, info, warn, error
	ProtocolLevel string // minimum level forwarded to the host as log messages
	File          string // optional log file path
	Pretty        bool   // human-readable stderr output
	Redaction     bool   // redact secrets before they leave the process
	MaxSize       int    // max size in MB before rotation
	MaxAge        int    // max age in days of rotated files
	Compress      bool   // gzip rotated files
}

// DefaultConfig returns the logger configuration used when nothing is set
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		ProtocolLevel: "info",
		Redaction:     true,
		MaxSize:       100,
		MaxAge:        7,
		Compress:      true,
	}
}

// New creates the loggers. stderr receives the local diagnostic stream;
// stdout is never written to.
func New(cfg Config, stderr io.Writer) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	protocolLevel, err := zerolog.ParseLevel(cfg.ProtocolLevel)
	if err != nil || cfg.ProtocolLevel == "" {
		protocolLevel = zerolog.InfoLevel
	}

	if stderr == nil {
		stderr = os.Stderr
	}
	var local io.Writer = stderr
	if cfg.Pretty {
		local = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}

	var file *RotatingWriter
	if cfg.File != "" {
		file, err = NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, err
		}
		local = io.MultiWriter(local, file)
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		local = redactor.Wrap(local)
	}

	protocol := NewProtocolWriter(protocolLevel, redactor)

	diagnostic := zerolog.New(local).Level(level).With().Timestamp().Logger()
	full := zerolog.New(zerolog.MultiLevelWriter(local, protocol)).Level(level).With().Timestamp().Logger()

	log.Logger = full

	return &Logger{
		full:       full,
		diagnostic: diagnostic,
		protocol:   protocol,
		file:       file,
		redactor:   redactor,
	}, nil
}

// Nop returns a Logger that discards everything
func Nop() *Logger {
	return &Logger{
		full:       zerolog.Nop(),
		diagnostic: zerolog.Nop(),
		protocol:   NewProtocolWriter(zerolog.Disabled, nil),
	}
}

// Zerolog returns the full logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.full
}

// Diagnostic returns the logger that never writes to the protocol channel
func (l *Logger) Diagnostic() zerolog.Logger {
	return l.diagnostic
}

// Protocol returns the sink that forwards entries to the host
func (l *Logger) Protocol() *ProtocolWriter {
	return l.protocol
}

// Close detaches the protocol sink and closes the log file
func (l *Logger) Close() error {
	l.protocol.Bind(nil)
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
