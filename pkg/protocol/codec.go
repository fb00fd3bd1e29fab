package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// ErrEmptyLine is returned by Decode for a line with no content
var ErrEmptyLine = errors.New("empty line")

// DecodeError describes a line that is not a valid message. Type and ID are
// set when the envelope itself decoded and only the remaining fields did not.
type DecodeError struct {
	Line string
	Type Type
	ID   json.RawMessage
	Err  error
}

// Answerable reports whether the host expects a reply to the broken line
func (e *DecodeError) Answerable() bool {
	return (e.Type == TypeCall || e.Type == TypeLoadPlugins) && len(e.ID) > 0 && string(e.ID) != "null"
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// maxLoggedLine bounds how much of a bad line is kept for diagnostics
const maxLoggedLine = 256

// envelope is the part of a message needed to route a reply
type envelope struct {
	Type Type            `json:"type"`
	ID   json.RawMessage `json:"id"`
}

// Decode parses one line into a Message. The envelope is decoded first so a
// line with a bad field still reports which request it belonged to.
func Decode(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrEmptyLine
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, &DecodeError{Line: truncate(line), Err: err}
	}
	if env.Type == "" {
		return nil, &DecodeError{Line: truncate(line), ID: env.ID, Err: errors.New("missing message type")}
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, &DecodeError{Line: truncate(line), Type: env.Type, ID: env.ID, Err: err}
	}
	return &msg, nil
}

func truncate(line []byte) string {
	if len(line) <= maxLoggedLine {
		return string(line)
	}
	return string(line[:maxLoggedLine]) + "..."
}

type flusher interface {
	Flush() error
}

// Encoder writes messages as single JSON lines. Encode is safe for concurrent
// use; each message is written and flushed under one lock.
type Encoder struct {
	w      io.Writer
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewEncoder creates an encoder over w. Write failures are reported to logger,
// which must not itself write to the protocol channel.
func NewEncoder(w io.Writer, logger zerolog.Logger) *Encoder {
	return &Encoder{
		w:      w,
		logger: logger.With().Str("component", "protocol").Logger(),
	}
}

// Encode writes msg followed by a newline and flushes it
func (e *Encoder) Encode(msg Message) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		e.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("Failed to encode message")
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	data := buf.Bytes()

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(data); err != nil {
		e.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("Transport write failed")
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	if f, ok := e.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			e.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("Transport flush failed")
			return fmt.Errorf("flush %s: %w", msg.Type, err)
		}
	}
	return nil
}
