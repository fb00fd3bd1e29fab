package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/harun/skillbridge/internal/tracing"
	"github.com/harun/skillbridge/pkg/plugin"
	"github.com/harun/skillbridge/pkg/protocol"
)

// CodeBadRequest marks a request the bridge could not act on
const CodeBadRequest = "bad_request"

// Config holds the loop settings
type Config struct {
	PluginsDir  string        // scanned at startup and by load_plugins without a dir
	CallTimeout time.Duration // 0 disables the per-call bound
	MaxInFlight int           // calls handled at once; 1 keeps strict order
}

// DecodeRecorder counts lines that could not be decoded
type DecodeRecorder interface {
	ObserveDecodeFailure()
}

// Option configures a Bridge
type Option func(*Bridge)

// WithDecodeRecorder sets the decode failure counter
func WithDecodeRecorder(r DecodeRecorder) Option {
	return func(b *Bridge) {
		b.decodeRecorder = r
	}
}

// WithLifecycle replaces the lifecycle the bridge creates for itself
func WithLifecycle(lc *Lifecycle) Option {
	return func(b *Bridge) {
		b.lifecycle = lc
	}
}

// Bridge is the read, dispatch and write loop between the host and the plugins
type Bridge struct {
	cfg            Config
	logger         zerolog.Logger
	runtime        *plugin.PluginRuntime
	in             io.Reader
	enc            *protocol.Encoder
	lifecycle      *Lifecycle
	decodeRecorder DecodeRecorder

	calls    *errgroup.Group
	inFlight sync.WaitGroup
}

// New creates a bridge reading requests from in and writing through enc
func New(cfg Config, runtime *plugin.PluginRuntime, in io.Reader, enc *protocol.Encoder, logger zerolog.Logger, opts ...Option) *Bridge {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}

	b := &Bridge{
		cfg:     cfg,
		logger:  logger.With().Str("component", "bridge").Logger(),
		runtime: runtime,
		in:      in,
		enc:     enc,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.lifecycle == nil {
		b.lifecycle = NewLifecycle()
	}

	if cfg.MaxInFlight > 1 {
		b.calls = &errgroup.Group{}
		b.calls.SetLimit(cfg.MaxInFlight)
	}
	return b
}

// Lifecycle returns the lifecycle driving the loop
func (b *Bridge) Lifecycle() *Lifecycle {
	return b.lifecycle
}

// Run discovers the configured plugin root, announces readiness and serves
// requests until shutdown, end of input, a stop request or ctx cancellation.
// Those are all clean stops; an error means startup failed.
func (b *Bridge) Run(ctx context.Context) error {
	if b.cfg.PluginsDir != "" {
		if _, err := b.runtime.Discover(ctx, b.cfg.PluginsDir); err != nil {
			b.lifecycle.RequestStop("startup failure")
			return fmt.Errorf("startup discovery: %w", err)
		}
	}

	if err := b.lifecycle.MarkReady(); err != nil {
		// stopped before ready, e.g. by a signal during discovery
		b.logger.Info().Str("reason", b.lifecycle.Reason()).Msg("Stopped before ready")
		return b.shutdown()
	}
	if err := b.enc.Encode(protocol.Ready()); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to announce readiness")
	}
	b.logger.Info().Int("plugins", b.runtime.Registry().Len()).Msg("Bridge ready")

	stopOnCancel := context.AfterFunc(ctx, func() {
		b.lifecycle.RequestStop("context cancelled")
	})
	defer stopOnCancel()

	reader := newLineReader(b.in)
	defer reader.Close()

	for !b.lifecycle.Stopping() {
		line, err := reader.Next(b.lifecycle.Done())
		if err != nil {
			switch {
			case errors.Is(err, errStopped):
			case errors.Is(err, io.EOF):
				b.lifecycle.RequestStop("end of input")
			default:
				b.logger.Error().Err(err).Msg("Failed to read input")
				b.lifecycle.RequestStop("read error")
			}
			continue
		}
		b.handleLine(ctx, line)
	}

	b.logger.Info().Str("reason", b.lifecycle.Reason()).Msg("Bridge stopping")
	return b.shutdown()
}

func (b *Bridge) shutdown() error {
	b.waitInFlight()
	if err := b.runtime.Shutdown(); err != nil {
		b.logger.Warn().Err(err).Msg("Plugin shutdown reported an error")
	}
	b.logger.Info().Msg("Bridge stopped")
	return nil
}

func (b *Bridge) waitInFlight() {
	if b.calls != nil {
		_ = b.calls.Wait()
	}
	b.inFlight.Wait()
}

func (b *Bridge) handleLine(ctx context.Context, line []byte) {
	msg, err := protocol.Decode(line)
	if err != nil {
		if errors.Is(err, protocol.ErrEmptyLine) {
			return
		}
		if b.decodeRecorder != nil {
			b.decodeRecorder.ObserveDecodeFailure()
		}
		var derr *protocol.DecodeError
		if errors.As(err, &derr) {
			if derr.Answerable() {
				b.logger.Warn().Err(derr.Err).Str("line", derr.Line).Msg("Rejecting malformed request")
				b.send(protocol.ErrorResponse(derr.ID, "malformed "+string(derr.Type)+": "+derr.Err.Error(), CodeBadRequest))
				return
			}
			b.logger.Warn().Err(derr.Err).Str("line", derr.Line).Msg("Discarding undecodable line")
			return
		}
		b.logger.Warn().Err(err).Msg("Discarding undecodable line")
		return
	}

	switch msg.Type {
	case protocol.TypeCall:
		b.dispatchCall(ctx, msg)
	case protocol.TypeLoadPlugins:
		b.waitInFlight()
		b.handleLoadPlugins(ctx, msg)
	case protocol.TypeShutdown:
		if b.lifecycle.RequestStop("shutdown message") {
			b.logger.Info().Msg("Shutdown requested by host")
		}
	default:
		b.logger.Debug().Str("type", string(msg.Type)).Msg("Ignoring message")
	}
}

func (b *Bridge) dispatchCall(ctx context.Context, msg *protocol.Message) {
	if b.calls == nil {
		b.handleCall(ctx, msg)
		return
	}

	b.inFlight.Add(1)
	b.calls.Go(func() error {
		defer b.inFlight.Done()
		b.handleCall(ctx, msg)
		return nil
	})
}

func (b *Bridge) handleCall(ctx context.Context, msg *protocol.Message) {
	ctx = tracing.NewRequestContext(ctx, string(msg.ID), msg.Plugin)
	logger := tracing.Logger(ctx, b.logger).With().Str("method", msg.Method).Logger()

	if msg.Plugin == "" || msg.Method == "" {
		logger.Warn().Msg("Call is missing plugin or method")
		b.send(protocol.ErrorResponse(msg.ID, "call requires plugin and method", CodeBadRequest))
		return
	}

	callCtx := ctx
	if b.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	value, err := b.runtime.Invoke(callCtx, msg.Plugin, msg.Method, msg.Args)
	elapsed := time.Since(start)

	if err != nil {
		code := plugin.ErrorCode(err)
		text := err.Error()
		if code == plugin.CodeTimeout {
			text = fmt.Sprintf("call timed out after %s", b.cfg.CallTimeout)
		}
		logger.Warn().Err(err).Str("code", code).Dur("elapsed", elapsed).Msg("Call failed")
		b.send(protocol.ErrorResponse(msg.ID, text, code))
		return
	}

	resp, err := protocol.Response(msg.ID, value)
	if err != nil {
		logger.Warn().Err(err).Msg("Call result is not serializable")
		b.send(protocol.ErrorResponse(msg.ID, err.Error(), plugin.CodeInvocationFailed))
		return
	}
	logger.Debug().Dur("elapsed", elapsed).Msg("Call completed")
	b.send(resp)
}

func (b *Bridge) handleLoadPlugins(ctx context.Context, msg *protocol.Message) {
	data, err := msg.LoadPlugins()
	if err != nil {
		b.logger.Warn().Err(err).Msg("Invalid load_plugins command")
		if msg.HasID() {
			b.send(protocol.ErrorResponse(msg.ID, err.Error(), CodeBadRequest))
		}
		return
	}

	dir := data.Dir
	if dir == "" {
		dir = b.cfg.PluginsDir
	}

	result, err := b.Rescan(ctx, dir)
	if !msg.HasID() {
		return
	}
	if err != nil {
		b.send(protocol.ErrorResponse(msg.ID, err.Error(), plugin.CodeInvocationFailed))
		return
	}
	b.send(protocol.LoadResult(msg.ID, result))
}

// Rescan runs discovery on dir. Existing keys found again are replaced and
// their live instances reset; keys not found stay registered.
func (b *Bridge) Rescan(ctx context.Context, dir string) (*plugin.LoadResult, error) {
	if dir == "" {
		return nil, errors.New("no plugin directory configured")
	}
	result, err := b.runtime.Discover(ctx, dir)
	if err != nil {
		b.logger.Error().Err(err).Str("dir", dir).Msg("Rescan failed")
		return nil, err
	}
	return result, nil
}

// send writes a message; transport failures are already reported by the encoder
func (b *Bridge) send(msg protocol.Message) {
	_ = b.enc.Encode(msg)
}
