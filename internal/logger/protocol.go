package logger

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Emitter delivers a log entry to the host
type Emitter interface {
	EmitLog(level, message string) error
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(level, message string) error

func (f EmitterFunc) EmitLog(level, message string) error {
	return f(level, message)
}

// ProtocolWriter is a zerolog.LevelWriter that forwards entries at or above
// its level to the bound Emitter. It drops everything while unbound.
type ProtocolWriter struct {
	level    zerolog.Level
	redactor *Redactor

	mu      sync.RWMutex
	emitter Emitter
}

var _ zerolog.LevelWriter = (*ProtocolWriter)(nil)

// NewProtocolWriter creates an unbound protocol sink
func NewProtocolWriter(level zerolog.Level, redactor *Redactor) *ProtocolWriter {
	return &ProtocolWriter{level: level, redactor: redactor}
}

// Bind sets the emitter; nil detaches it
func (w *ProtocolWriter) Bind(e Emitter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emitter = e
}

// Level returns the minimum forwarded level
func (w *ProtocolWriter) Level() zerolog.Level {
	return w.level
}

// Write implements io.Writer. Entries without a level are not forwarded.
func (w *ProtocolWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

// WriteLevel implements zerolog.LevelWriter. Emit failures are swallowed; the
// transport reports them on the diagnostic stream.
func (w *ProtocolWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.level || level == zerolog.NoLevel || w.level == zerolog.Disabled {
		return len(p), nil
	}

	w.mu.RLock()
	emitter := w.emitter
	w.mu.RUnlock()
	if emitter == nil {
		return len(p), nil
	}

	message := entryMessage(p)
	if w.redactor != nil {
		message = w.redactor.Redact(message)
	}
	_ = emitter.EmitLog(level.String(), message)
	return len(p), nil
}

// entryMessage extracts the human part of a zerolog JSON entry: the message,
// followed by the error field when present
func entryMessage(p []byte) string {
	var entry struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(p, &entry); err != nil {
		return string(p)
	}
	switch {
	case entry.Error == "":
		return entry.Message
	case entry.Message == "":
		return entry.Error
	default:
		return entry.Message + ": " + entry.Error
	}
}
