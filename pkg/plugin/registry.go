package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Error codes reported alongside error text
const (
	CodeUnknownPlugin    = "unknown_plugin"
	CodeUnknownMethod    = "unknown_method"
	CodeInvocationFailed = "invocation_failed"
	CodeTimeout          = "timeout"
)

// ErrorCode classifies an Invoke error into a stable machine-readable code
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownPlugin):
		return CodeUnknownPlugin
	case errors.Is(err, ErrUnknownMethod):
		return CodeUnknownMethod
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInvocationFailed
	}
}

// Recorder observes registry activity, typically for metrics
type Recorder interface {
	ObserveCall(key, method, code string, elapsed time.Duration)
	ObserveDiscoveryFailure()
	SetRegistered(count int)
}

// entry holds one registered key. sem serializes instance construction,
// method calls and retirement for that key; instance and instanceID belong to
// whoever holds sem.
type entry struct {
	key        string
	source     string
	factory    Factory
	descriptor Descriptor

	sem        chan struct{}
	instance   Plugin
	instanceID string

	// retired entries refuse new calls. orphaned asks the current slot holder
	// to close the instance on release, for callers that could not wait for it.
	retired  atomic.Bool
	orphaned atomic.Bool
}

func newEntry(key, source string, factory Factory, desc Descriptor) *entry {
	return &entry{
		key:        key,
		source:     source,
		factory:    factory,
		descriptor: desc,
		sem:        make(chan struct{}, 1),
	}
}

// release frees the slot, closing the instance first if it was orphaned
func (e *entry) release() {
	if e.orphaned.Swap(false) && e.instance != nil {
		closeInstance(e.instance)
		e.instance = nil
	}
	<-e.sem
}

// DefaultCloseGrace bounds how long Close and re-registration wait for a running call
const DefaultCloseGrace = 2 * time.Second

// errRetired signals that an entry was replaced between lookup and locking
var errRetired = errors.New("registration replaced")

// Registry maps plugin keys to their factories and, once called, their live instance
type Registry struct {
	logger           zerolog.Logger
	sink             Sink
	recorder         Recorder
	closeGrace       time.Duration
	constructTimeout time.Duration
	entries          map[string]*entry
	order            []string
	mu               sync.RWMutex
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithSink sets the receiver of plugin_registered events
func WithSink(sink Sink) RegistryOption {
	return func(r *Registry) {
		r.sink = sink
	}
}

// WithRecorder sets the call/registration observer
func WithRecorder(rec Recorder) RegistryOption {
	return func(r *Registry) {
		r.recorder = rec
	}
}

// WithCloseGrace sets how long Close and re-registration wait for a running
// call before leaving the instance to be closed when that call returns
func WithCloseGrace(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.closeGrace = d
	}
}

// WithConstructTimeout bounds the descriptor snapshot construction in Register.
// Zero leaves it bounded only by the caller's context.
func WithConstructTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.constructTimeout = d
	}
}

// NewRegistry creates an empty registry
func NewRegistry(logger zerolog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:     logger.With().Str("component", "plugin-registry").Logger(),
		closeGrace: DefaultCloseGrace,
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register builds a transient instance to snapshot its descriptor, stores the
// factory under key and emits a registration event. Re-registering a key replaces
// the factory and retires the old live instance once any call on it has finished.
func (r *Registry) Register(ctx context.Context, key, source string, factory Factory) (Descriptor, error) {
	if r.constructTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.constructTimeout)
		defer cancel()
	}
	transient, err := construct(ctx, factory)
	if err != nil {
		return Descriptor{}, fmt.Errorf("construct %s: %w", key, err)
	}
	desc := transient.Descriptor()
	closeInstance(transient)

	desc.Key = key
	desc = desc.Normalize()
	if err := ValidateDescriptor(desc); err != nil {
		return Descriptor{}, err
	}

	next := newEntry(key, source, factory, desc)

	r.mu.Lock()
	prev, exists := r.entries[key]
	r.entries[key] = next
	if !exists {
		r.order = append(r.order, key)
	}
	count := len(r.entries)
	r.mu.Unlock()

	if exists {
		r.logger.Debug().
			Str("key", key).
			Str("previous", prev.source).
			Msg("Replacing plugin registration")
		graceCtx, cancel := context.WithTimeout(context.Background(), r.closeGrace)
		r.retire(graceCtx, prev)
		cancel()
	}

	r.logger.Info().
		Str("key", key).
		Str("name", desc.Name).
		Int("priority", desc.Priority).
		Int("rules", len(desc.Rules)).
		Int("tasks", len(desc.Tasks)).
		Msg("Registered plugin")

	if r.recorder != nil {
		r.recorder.SetRegistered(count)
	}
	if r.sink != nil {
		r.sink.PluginRegistered(desc)
	}
	return desc, nil
}

// Invoke runs method on the live instance for key, constructing it on first use.
// Calls on the same key never overlap; ctx bounds both the wait and the call.
func (r *Registry) Invoke(ctx context.Context, key, method string, args []any) (any, error) {
	start := time.Now()
	result, err := r.invoke(ctx, key, method, args)
	if r.recorder != nil {
		code := ErrorCode(err)
		if code == "" {
			code = "ok"
		}
		key, method := observedLabels(key, method, code)
		r.recorder.ObserveCall(key, method, code, time.Since(start))
	}
	return result, err
}

// UnknownLabel replaces host-supplied names that match nothing registered,
// keeping the set of observed labels bounded
const UnknownLabel = "unknown"

func observedLabels(key, method, code string) (string, string) {
	switch code {
	case CodeUnknownPlugin:
		return UnknownLabel, UnknownLabel
	case CodeUnknownMethod:
		return key, UnknownLabel
	}
	return key, method
}

func (r *Registry) invoke(ctx context.Context, key, method string, args []any) (any, error) {
	for {
		r.mu.RLock()
		e, ok := r.entries[key]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, key)
		}

		result, err := r.invokeEntry(ctx, e, method, args)
		if errors.Is(err, errRetired) {
			continue
		}
		return result, err
	}
}

type callResult struct {
	value any
	err   error
}

func (r *Registry) invokeEntry(ctx context.Context, e *entry, method string, args []any) (any, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, &InvocationError{Key: e.key, Method: method, Err: ctx.Err()}
	}

	if e.retired.Load() {
		e.release()
		return nil, errRetired
	}

	call := NewCall(e.key, method, args)
	done := make(chan callResult, 1)

	// The slot is released by the worker, so a call that outlives ctx still
	// blocks the next call on this key until it really returns.
	go func() {
		defer e.release()
		value, err := r.runLocked(ctx, e, call)
		done <- callResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, ErrUnknownMethod) {
				return nil, res.err
			}
			return nil, &InvocationError{Key: e.key, Method: method, Err: res.err}
		}
		return res.value, nil
	case <-ctx.Done():
		r.logger.Warn().
			Str("key", e.key).
			Str("method", method).
			Msg("Plugin call abandoned after context ended")
		return nil, &InvocationError{Key: e.key, Method: method, Err: ctx.Err()}
	}
}

// runLocked builds the instance on first use and dispatches call. The caller holds e.sem.
func (r *Registry) runLocked(ctx context.Context, e *entry, call Call) (any, error) {
	if e.instance == nil {
		inst, err := construct(ctx, e.factory)
		if err != nil {
			return nil, fmt.Errorf("construct instance: %w", err)
		}
		id, _ := gonanoid.New()
		e.instance = inst
		e.instanceID = id
		r.logger.Debug().Str("key", e.key).Str("instance", id).Msg("Created plugin instance")
	}

	if !e.instance.HasMethod(call.Method) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, call.Method)
	}
	return invokeSafely(ctx, e.instance, call)
}

// retire stops new calls on e and closes its live instance. A call still running
// after ctx ends keeps the instance until it returns; it is closed then.
func (r *Registry) retire(ctx context.Context, e *entry) {
	e.retired.Store(true)
	r.closeEntry(ctx, e)
}

// closeEntry closes e's live instance, waiting for a running call until ctx ends
func (r *Registry) closeEntry(ctx context.Context, e *entry) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		e.orphaned.Store(true)
		// The call may have returned between the deadline and the flag.
		select {
		case e.sem <- struct{}{}:
			e.orphaned.Store(false)
		default:
			r.logger.Warn().
				Str("key", e.key).
				Msg("Plugin call still running, instance will be closed when it returns")
			return
		}
	}
	defer func() { <-e.sem }()

	if e.instance != nil {
		r.logger.Debug().Str("key", e.key).Str("instance", e.instanceID).Msg("Closing plugin instance")
		closeInstance(e.instance)
		e.instance = nil
	}
}

// Get returns the descriptor registered under key
func (r *Registry) Get(key string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return Descriptor{}, false
	}
	return e.descriptor, true
}

// List returns all descriptors in first-registration order
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]Descriptor, 0, len(r.order))
	for _, key := range r.order {
		descs = append(descs, r.entries[key].descriptor)
	}
	return descs
}

// Len returns the number of registered keys
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Live reports whether key currently has a constructed instance. A key whose
// slot is busy counts as live.
func (r *Registry) Live(key string) bool {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case e.sem <- struct{}{}:
	default:
		return true
	}
	defer func() { <-e.sem }()
	return e.instance != nil
}

// Close closes every live instance. Registrations stay in place. Calls still
// running after the close grace period keep their instance until they return.
func (r *Registry) Close() error {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, key := range r.order {
		entries = append(entries, r.entries[key])
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.closeGrace)
	defer cancel()
	for _, e := range entries {
		r.closeEntry(ctx, e)
	}
	r.logger.Debug().Int("plugins", len(entries)).Msg("Closed plugin instances")
	return nil
}

func construct(ctx context.Context, factory Factory) (p Plugin, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec}
		}
	}()
	p, err = factory(ctx)
	if err == nil && p == nil {
		err = errors.New("factory returned no plugin")
	}
	return p, err
}

func invokeSafely(ctx context.Context, p Plugin, call Call) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec}
		}
	}()
	return p.Invoke(ctx, call)
}

func closeInstance(p Plugin) {
	if c, ok := p.(io.Closer); ok {
		_ = c.Close()
	}
}
