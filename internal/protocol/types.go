// Package protocol defines the closed set of UI mutation operations, the
// envelope/batch value types they travel in, and the size limits enforced at
// the ingress boundary.
//
// Everything here is a plain value type: envelopes are constructed by the
// planner/actor pipeline, validated once at ingress, and immutable afterwards
// except for identity stamping (missing keys filled in).
package protocol

// Op identifies one operation kind. The set is closed: adding a kind requires
// adding its parameter schema in internal/validate and a dispatch arm in
// internal/engine.
type Op string

const (
	OpWindowCreate Op = "window.create"
	OpWindowMove   Op = "window.move"
	OpWindowResize Op = "window.resize"
	OpWindowFocus  Op = "window.focus"
	OpWindowUpdate Op = "window.update"
	OpWindowClose  Op = "window.close"

	OpDomSet     Op = "dom.set"
	OpDomReplace Op = "dom.replace"
	OpDomAppend  Op = "dom.append"

	OpComponentRender  Op = "component.render"
	OpComponentUpdate  Op = "component.update"
	OpComponentDestroy Op = "component.destroy"

	OpStateSet     Op = "state.set"
	OpStateGet     Op = "state.get"
	OpStateWatch   Op = "state.watch"
	OpStateUnwatch Op = "state.unwatch"

	OpAPICall   Op = "api.call"
	OpTxnCancel Op = "txn.cancel"
)

// Ops lists every operation kind. Order is stable (grouped by scope) so that
// iteration in tests and documentation is deterministic.
var Ops = []Op{
	OpWindowCreate, OpWindowMove, OpWindowResize, OpWindowFocus, OpWindowUpdate, OpWindowClose,
	OpDomSet, OpDomReplace, OpDomAppend,
	OpComponentRender, OpComponentUpdate, OpComponentDestroy,
	OpStateSet, OpStateGet, OpStateWatch, OpStateUnwatch,
	OpAPICall, OpTxnCancel,
}

// Valid reports whether op is a member of the closed operation set.
func (op Op) Valid() bool {
	switch op {
	case OpWindowCreate, OpWindowMove, OpWindowResize, OpWindowFocus, OpWindowUpdate, OpWindowClose,
		OpDomSet, OpDomReplace, OpDomAppend,
		OpComponentRender, OpComponentUpdate, OpComponentDestroy,
		OpStateSet, OpStateGet, OpStateWatch, OpStateUnwatch,
		OpAPICall, OpTxnCancel:
		return true
	}
	return false
}

// Scope names a capability category used by the permission gate.
type Scope string

const (
	ScopeDOM        Scope = "dom"
	ScopeWindow     Scope = "window"
	ScopeComponents Scope = "components"
)

// Scope returns the capability scope an operation is checked under.
// State, api.call and txn.cancel operations live under the dom scope: the
// grouping is historical, their own risk is bounded by validation.
func (op Op) Scope() Scope {
	switch op {
	case OpWindowCreate, OpWindowMove, OpWindowResize, OpWindowFocus, OpWindowUpdate, OpWindowClose:
		return ScopeWindow
	case OpComponentRender, OpComponentUpdate, OpComponentDestroy:
		return ScopeComponents
	default:
		return ScopeDOM
	}
}

// IsDomMutation reports whether op carries an HTML payload that must pass
// sanitization before application.
func (op Op) IsDomMutation() bool {
	switch op {
	case OpDomSet, OpDomReplace, OpDomAppend:
		return true
	}
	return false
}

// WindowID identifies one live window. A distinct type so a window id cannot
// be confused with a target selector or a trace id in call signatures.
type WindowID string

// Envelope is one validated UI command. Params holds the typed parameter
// struct matching Op (one of the *Params types in params.go).
type Envelope struct {
	ID             string
	IdempotencyKey string
	TraceID        string
	TxnID          string
	WindowID       WindowID
	Op             Op
	Params         any
}

// Batch is an ordered sequence of envelopes submitted together.
// Length is bounded by MaxBatchEnvelopes at validation time.
type Batch []Envelope

// Size limits enforced by the validator and sanitizer. These mirror the
// ingress contract: a batch over any cap is rejected, never truncated.
const (
	// MaxBatchEnvelopes bounds the number of envelopes per batch.
	MaxBatchEnvelopes = 64

	// MaxHTMLBytes caps one dom.set/replace/append HTML payload.
	MaxHTMLBytes = 64 << 10

	// MaxBatchHTMLBytes caps the sum of all HTML payloads in a batch.
	MaxBatchHTMLBytes = 128 << 10

	// MinWindowSize is the smallest accepted window width or height.
	MinWindowSize = 120
)
