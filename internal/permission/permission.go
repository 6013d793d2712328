// Package permission is the capability gate between validated envelopes and
// the application pipeline. Decisions are a pure function of scope,
// operation name and a narrow slice of params; no global state is
// consulted, which keeps the gate trivially table-testable.
package permission

import (
	"uicp/internal/protocol"
)

// Decision is the outcome of a permission check.
type Decision string

const (
	Granted Decision = "granted"
	Denied  Decision = "denied"
)

// Context carries the slice of an envelope the gate inspects.
type Context struct {
	Operation string
	// SanitizeDisabled is true when the envelope explicitly opted out of
	// HTML sanitization. There is no path through this gate for
	// unsanitized HTML.
	SanitizeDisabled bool
}

// IsGated reports whether a scope is subject to per-operation checks. Only
// the dom scope is gated; window and component operations are granted
// unconditionally here because their safety is enforced at validation time
// (dimension bounds, closed schemas).
func IsGated(scope protocol.Scope) bool {
	return scope == protocol.ScopeDOM
}

// domAllowed is the explicit allow-list under the gated dom scope. The
// state, txn and api entries are grouped here historically, not because
// they touch HTML; their own risk is bounded by other checks (scheme
// allow-list, closed schemas). Everything absent is denied.
var domAllowed = map[string]bool{
	string(protocol.OpDomSet):       true,
	string(protocol.OpDomReplace):   true,
	string(protocol.OpDomAppend):    true,
	string(protocol.OpStateSet):     true,
	string(protocol.OpStateGet):     true,
	string(protocol.OpStateWatch):   true,
	string(protocol.OpStateUnwatch): true,
	"state.patch":                   true,
	string(protocol.OpTxnCancel):    true,
	string(protocol.OpAPICall):      true,
}

// Require decides whether an operation may proceed under the given scope.
// Ungated scopes always grant. Under dom the default is deny: only
// allow-listed operations pass, and the dom.* mutations are refused when the
// envelope opted out of sanitization.
func Require(scope protocol.Scope, ctx Context) Decision {
	if !IsGated(scope) {
		return Granted
	}
	if !domAllowed[ctx.Operation] {
		return Denied
	}
	if protocol.Op(ctx.Operation).IsDomMutation() && ctx.SanitizeDisabled {
		return Denied
	}
	return Granted
}

// RequireEnvelope checks a validated envelope against its operation's
// scope. Convenience wrapper for the apply pipeline.
func RequireEnvelope(env protocol.Envelope) Decision {
	ctx := Context{Operation: string(env.Op)}
	if p, ok := env.Params.(protocol.DomParams); ok {
		ctx.SanitizeDisabled = p.SanitizeDisabled()
	}
	return Require(env.Op.Scope(), ctx)
}
