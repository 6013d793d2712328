// Package engine orchestrates batch application: ingress validation,
// identity stamping, batch-level idempotency, per-envelope permission
// checks, sanitization for DOM payloads, and dispatch to the window
// manager, state store and application engine. Batches are applied
// envelope-by-envelope with at most one batch in flight.
package engine

import (
	"fmt"

	"go.uber.org/zap"

	"uicp/internal/adapter"
	"uicp/internal/config"
	"uicp/internal/identity"
	"uicp/internal/permission"
	"uicp/internal/protocol"
	"uicp/internal/sanitize"
	"uicp/internal/state"
	"uicp/internal/validate"
	"uicp/internal/window"
)

// Egress receives authorized api.call dispatches. The call itself (network,
// retries, response plumbing) happens outside this core.
type Egress interface {
	Call(p protocol.APICallParams) error
}

// Canceller receives txn.cancel requests for in-flight transactions.
type Canceller interface {
	Cancel(txnID string)
}

type nopEgress struct{}

func (nopEgress) Call(protocol.APICallParams) error { return nil }

type nopCanceller struct{}

func (nopCanceller) Cancel(string) {}

// EnvelopeError records which envelope of a batch failed and why.
type EnvelopeError struct {
	Index int
	Op    protocol.Op
	Err   error
}

func (e EnvelopeError) Error() string {
	return fmt.Sprintf("envelope %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e EnvelopeError) Unwrap() error { return e.Err }

// BatchResult summarizes one batch application.
type BatchResult struct {
	TraceID           string          `json:"traceId"`
	BatchHash         string          `json:"batchHash"`
	Applied           int             `json:"applied"`
	SkippedDuplicates int             `json:"skippedDuplicates"`
	DuplicateBatch    bool            `json:"duplicateBatch,omitempty"`
	Errors            []EnvelopeError `json:"errors,omitempty"`
}

// componentMount tracks one rendered component instance.
type componentMount struct {
	windowID protocol.WindowID
	target   string
	name     string
	props    map[string]any
}

// Engine wires the core pipeline together. One instance owns one batch-hash
// seen-set and one component registry; batch application is serialized by
// the adapter's own lock plus the single-caller contract.
type Engine struct {
	windows   *window.Manager
	state     *state.Store
	apply     *adapter.Engine
	egress    Egress
	canceller Canceller
	notify    Notifier
	logger    *zap.Logger

	components map[string]componentMount

	batchIdempotency bool
	seen             map[string]struct{}
	seenOrder        []string
	maxSeen          int
}

// Option configures an Engine.
type Option func(*Engine)

// WithEgress routes api.call envelopes to the given collaborator.
func WithEgress(e Egress) Option {
	return func(eng *Engine) { eng.egress = e }
}

// WithCanceller routes txn.cancel envelopes to the given collaborator.
func WithCanceller(c Canceller) Option {
	return func(eng *Engine) { eng.canceller = c }
}

// WithNotifier attaches the side-channel event consumer.
func WithNotifier(n Notifier) Option {
	return func(eng *Engine) { eng.notify = n }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// New builds an engine from its collaborators. The adapter is constructed
// internally over the window manager so both share one view of the tree.
func New(cfg config.EngineConfig, windows *window.Manager, store *state.Store, opts ...Option) *Engine {
	eng := &Engine{
		windows:          windows,
		state:            store,
		egress:           nopEgress{},
		canceller:        nopCanceller{},
		logger:           zap.NewNop(),
		components:       make(map[string]componentMount),
		batchIdempotency: cfg.BatchIdempotency,
		seen:             make(map[string]struct{}),
		maxSeen:          cfg.MaxSeenBatches,
	}
	for _, opt := range opts {
		opt(eng)
	}
	adapterOpts := []adapter.Option{adapter.WithLogger(eng.logger)}
	if !cfg.Dedup {
		adapterOpts = append(adapterOpts, adapter.WithoutDedup())
	}
	eng.apply = adapter.NewEngine(windows, adapterOpts...)
	return eng
}

// Adapter exposes the application engine, mainly for tests and the CLI.
func (eng *Engine) Adapter() *adapter.Engine { return eng.apply }

// Run takes a raw JSON batch or plan, validates, stamps and applies it.
// Validation failures abort before anything is applied. Per-envelope
// failures during application are collected, not fatal: the batch proceeds
// envelope-by-envelope and the caller sees every error in the result.
func (eng *Engine) Run(raw []byte) (*BatchResult, error) {
	batch, err := validate.Batch(raw)
	if err != nil {
		return nil, err
	}
	return eng.RunValidated(batch)
}

// RunValidated applies an already validated batch.
func (eng *Engine) RunValidated(batch protocol.Batch) (*BatchResult, error) {
	stamped, traceID := identity.Stamp(batch, "")
	hash := identity.BatchHash(stamped)

	res := &BatchResult{TraceID: traceID, BatchHash: hash}

	if eng.batchIdempotency {
		if _, dup := eng.seen[hash]; dup {
			res.DuplicateBatch = true
			res.SkippedDuplicates = len(stamped)
			eng.logger.Info("skipping duplicate batch",
				zap.String("traceId", traceID),
				zap.String("batchHash", hash))
			return res, nil
		}
	}

	eng.logger.Info("applying batch",
		zap.String("traceId", traceID),
		zap.String("batchHash", hash),
		zap.Int("envelopes", len(stamped)))

	for i, env := range stamped {
		outcome, err := eng.applyEnvelope(env)
		res.Applied += outcome.Applied
		res.SkippedDuplicates += outcome.SkippedDuplicates
		if err != nil {
			ee := EnvelopeError{Index: i, Op: env.Op, Err: err}
			res.Errors = append(res.Errors, ee)
			eng.emit(Event{Type: EventError, TraceID: env.TraceID, Op: env.Op, WindowID: env.WindowID, Err: err})
			eng.logger.Warn("envelope failed",
				zap.Int("index", i),
				zap.String("op", string(env.Op)),
				zap.Error(err))
		}
	}

	// A batch is remembered only once something from it landed. A batch
	// whose every envelope errored stays unremembered so a retry is not
	// silently skipped as a duplicate.
	if eng.batchIdempotency && res.Applied+res.SkippedDuplicates > 0 {
		eng.remember(hash)
	}
	return res, nil
}

// remember adds a batch hash to the seen-set, evicting the oldest entry
// when the cap is reached.
func (eng *Engine) remember(hash string) {
	if eng.maxSeen > 0 && len(eng.seenOrder) >= eng.maxSeen {
		oldest := eng.seenOrder[0]
		eng.seenOrder = eng.seenOrder[1:]
		delete(eng.seen, oldest)
	}
	eng.seen[hash] = struct{}{}
	eng.seenOrder = append(eng.seenOrder, hash)
}

// applyEnvelope gates and dispatches one envelope.
func (eng *Engine) applyEnvelope(env protocol.Envelope) (adapter.Outcome, error) {
	if decision := permission.RequireEnvelope(env); decision != permission.Granted {
		eng.emit(Event{Type: EventDenied, TraceID: env.TraceID, Op: env.Op, WindowID: env.WindowID})
		return adapter.Outcome{}, fmt.Errorf("%w: %s under scope %s",
			protocol.ErrPermissionDenied, env.Op, env.Op.Scope())
	}

	switch p := env.Params.(type) {
	case protocol.WindowCreateParams:
		id, err := eng.windows.Create(p)
		if err != nil {
			return adapter.Outcome{}, err
		}
		eng.emit(Event{Type: EventApplied, TraceID: env.TraceID, Op: env.Op, WindowID: id})
		return adapter.Outcome{Applied: 1}, nil

	case protocol.WindowMoveParams:
		return eng.windowOutcome(env, eng.windows.Move(p))
	case protocol.WindowResizeParams:
		return eng.windowOutcome(env, eng.windows.Resize(p))
	case protocol.WindowFocusParams:
		return eng.windowOutcome(env, eng.windows.Focus(p))
	case protocol.WindowUpdateParams:
		return eng.windowOutcome(env, eng.windows.Update(p))

	case protocol.WindowCloseParams:
		if err := eng.windows.Close(p); err != nil {
			return adapter.Outcome{}, err
		}
		// Drop per-window residue so a future window reusing the id
		// starts clean.
		eng.apply.Forget(protocol.WindowID(p.WindowID))
		eng.state.DropWindow(protocol.WindowID(p.WindowID))
		eng.emit(Event{Type: EventApplied, TraceID: env.TraceID, Op: env.Op, WindowID: env.WindowID})
		return adapter.Outcome{Applied: 1}, nil

	case protocol.DomParams:
		return eng.applyDom(env, p)

	case protocol.ComponentRenderParams:
		return eng.renderComponent(env, p)
	case protocol.ComponentUpdateParams:
		return eng.updateComponent(env, p)
	case protocol.ComponentDestroyParams:
		return eng.destroyComponent(env, p)

	case protocol.StateSetParams:
		eng.state.Set(p)
		eng.emit(Event{Type: EventApplied, TraceID: env.TraceID, Op: env.Op, WindowID: env.WindowID})
		return adapter.Outcome{Applied: 1}, nil

	case protocol.StateGetParams:
		value, ok := eng.state.Get(p)
		if !ok {
			value = nil
		}
		eng.emit(Event{Type: EventStateValue, TraceID: env.TraceID, Op: env.Op,
			WindowID: env.WindowID, Value: value})
		return adapter.Outcome{Applied: 1}, nil

	case protocol.StateWatchParams:
		traceID := env.TraceID
		op := env.Op
		windowID := env.WindowID
		eng.state.Watch(p, func(scope, key string, value any) {
			eng.emit(Event{Type: EventStateValue, TraceID: traceID, Op: op,
				WindowID: windowID, Value: value})
		})
		return adapter.Outcome{Applied: 1}, nil

	case protocol.StateUnwatchParams:
		eng.state.Unwatch(p)
		return adapter.Outcome{Applied: 1}, nil

	case protocol.APICallParams:
		if err := eng.egress.Call(p); err != nil {
			return adapter.Outcome{}, fmt.Errorf("egress dispatch: %w", err)
		}
		eng.emit(Event{Type: EventAPICall, TraceID: env.TraceID, Op: env.Op,
			WindowID: env.WindowID, Value: p.URL})
		return adapter.Outcome{Applied: 1}, nil

	case protocol.TxnCancelParams:
		txn := p.ID
		if txn == "" {
			txn = env.TxnID
		}
		eng.canceller.Cancel(txn)
		eng.emit(Event{Type: EventTxnCancel, TraceID: env.TraceID, Op: env.Op, Value: txn})
		return adapter.Outcome{Applied: 1}, nil
	}

	return adapter.Outcome{}, fmt.Errorf("%w: no dispatch for %s", protocol.ErrValidationFailed, env.Op)
}

func (eng *Engine) windowOutcome(env protocol.Envelope, err error) (adapter.Outcome, error) {
	if err != nil {
		return adapter.Outcome{}, err
	}
	eng.emit(Event{Type: EventApplied, TraceID: env.TraceID, Op: env.Op, WindowID: env.WindowID})
	return adapter.Outcome{Applied: 1}, nil
}

// applyDom sanitizes the payload and hands it to the application engine.
// The permission gate has already refused sanitize:false, so every payload
// passing through here is sanitized: defense in depth, not the sole layer.
func (eng *Engine) applyDom(env protocol.Envelope, p protocol.DomParams) (adapter.Outcome, error) {
	safe, err := sanitize.Strict(p.HTML)
	if err != nil {
		return adapter.Outcome{}, err
	}
	mode, ok := adapter.ModeForOp(env.Op)
	if !ok {
		return adapter.Outcome{}, fmt.Errorf("%w: %s is not a dom mutation", protocol.ErrValidationFailed, env.Op)
	}
	outcome, err := eng.apply.Apply(adapter.ApplyParams{
		WindowID: protocol.WindowID(p.WindowID),
		Target:   p.Target,
		HTML:     safe,
		Mode:     mode,
	})
	if err != nil {
		return outcome, err
	}
	eventType := EventApplied
	if outcome.SkippedDuplicates > 0 {
		eventType = EventSkippedDuplicate
	}
	eng.emit(Event{Type: eventType, TraceID: env.TraceID, Op: env.Op,
		WindowID: protocol.WindowID(p.WindowID), Target: p.Target})
	return outcome, nil
}

func (eng *Engine) emit(ev Event) {
	if eng.notify != nil {
		eng.notify(ev)
	}
}
