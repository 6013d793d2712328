// Package validate turns untrusted JSON batches into typed, normalized
// protocol.Batch values. It is the ingress boundary: strict per-operation
// schemas (unknown fields rejected), numeric and size bounds, a danger
// pattern prefilter on HTML payloads, and a parse-time scheme allow-list
// for api.call URLs. Validation is a pure function of its input.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"uicp/internal/protocol"
)

// envelopeWire is the single internal shape both accepted input forms are
// normalized into before schema validation runs.
type envelopeWire struct {
	ID             string          `json:"id,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	TraceID        string          `json:"traceId,omitempty"`
	TxnID          string          `json:"txnId,omitempty"`
	WindowID       string          `json:"windowId,omitempty"`
	Op             string          `json:"op"`
	Params         json.RawMessage `json:"params"`
}

// planWire is the planner output form: a batch wrapped with summary and
// hints. Only the batch participates in validation; the wrapper fields are
// checked for shape and otherwise passed through to the caller's telemetry.
type planWire struct {
	Summary    string            `json:"summary"`
	Risks      []string          `json:"risks,omitempty"`
	Batch      []json.RawMessage `json:"batch"`
	ActorHints map[string]any    `json:"actorHints,omitempty"`
}

// snakeAliases maps plan-entry field names onto the canonical envelope
// names. Plan entries and envelopes are the same logical command from two
// producers; both converge here so the schemas below exist exactly once.
var snakeAliases = map[string]string{
	"window_id":       "windowId",
	"idempotency_key": "idempotencyKey",
	"trace_id":        "traceId",
	"txn_id":          "txnId",
	"actor_hints":     "actorHints",
}

// envelopeFields is the closed set of accepted envelope-level keys.
var envelopeFields = map[string]bool{
	"id": true, "idempotencyKey": true, "traceId": true,
	"txnId": true, "windowId": true, "op": true, "params": true,
}

// Batch validates raw as either a bare envelope array or a plan object
// carrying one, and returns the typed batch. The returned error is always a
// *Error with a JSON-pointer path when validation fails.
func Batch(raw []byte) (protocol.Batch, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errAt("/", "empty input")
	}

	var entries []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, errAt("/", "batch must be a JSON array: %v", err)
		}
	case '{':
		plan, perr := decodePlan(raw)
		if perr != nil {
			return nil, perr
		}
		entries = plan.Batch
	default:
		return nil, errAt("/", "input must be a batch array or a plan object")
	}

	if len(entries) == 0 {
		return nil, errAt("/batch", "batch must contain at least 1 envelope")
	}
	if len(entries) > protocol.MaxBatchEnvelopes {
		return nil, errAt("/batch", "batch exceeds %d envelopes (got %d)", protocol.MaxBatchEnvelopes, len(entries))
	}

	batch := make(protocol.Batch, 0, len(entries))
	totalHTML := 0
	for i, entry := range entries {
		env, err := validateEnvelope(i, entry, &totalHTML)
		if err != nil {
			return nil, err
		}
		batch = append(batch, env)
	}
	if totalHTML > protocol.MaxBatchHTMLBytes {
		return nil, errAt("/batch", "total HTML payload %d bytes exceeds %d byte cap", totalHTML, protocol.MaxBatchHTMLBytes)
	}
	return batch, nil
}

func decodePlan(raw []byte) (*planWire, *Error) {
	normalized, err := normalizeKeys(raw, "/")
	if err != nil {
		return nil, err
	}
	var plan planWire
	dec := json.NewDecoder(bytes.NewReader(normalized))
	dec.DisallowUnknownFields()
	if derr := dec.Decode(&plan); derr != nil {
		if field, ok := unknownField(derr); ok {
			return nil, errAt("/"+field, "unknown field")
		}
		return nil, errAt("/", "malformed plan: %v", derr)
	}
	if plan.Batch == nil {
		return nil, errAt("/batch", "plan is missing the batch array")
	}
	return &plan, nil
}

// validateEnvelope normalizes one entry, strict-decodes its header, then
// dispatches to the parameter schema keyed by op. totalHTML accumulates
// the batch-wide HTML byte total.
func validateEnvelope(i int, raw json.RawMessage, totalHTML *int) (protocol.Envelope, *Error) {
	base := fmt.Sprintf("/%d", i)

	normalized, nerr := normalizeKeys(raw, base)
	if nerr != nil {
		return protocol.Envelope{}, nerr
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(normalized, &keys); err != nil {
		return protocol.Envelope{}, errAt(base, "envelope must be a JSON object: %v", err)
	}
	for k := range keys {
		if !envelopeFields[k] {
			return protocol.Envelope{}, errAt(base+"/"+k, "unknown field")
		}
	}

	var wire envelopeWire
	if err := json.Unmarshal(normalized, &wire); err != nil {
		return protocol.Envelope{}, errAt(base, "malformed envelope: %v", err)
	}
	op := protocol.Op(wire.Op)
	if wire.Op == "" {
		return protocol.Envelope{}, errAt(base+"/op", "missing operation kind")
	}
	if !op.Valid() {
		return protocol.Envelope{}, errAt(base+"/op", "unknown operation kind %q", wire.Op)
	}
	if len(wire.Params) == 0 {
		return protocol.Envelope{}, errAt(base+"/params", "missing params")
	}

	params, windowID, perr := decodeParams(op, wire.Params, base+"/params", totalHTML)
	if perr != nil {
		return protocol.Envelope{}, perr
	}
	// An envelope-level windowId may restate the one in params but never
	// contradict it: the hash and events use the envelope value while the
	// dispatch uses the params value, so a disagreement must not pass.
	if wire.WindowID != "" {
		if windowID != "" && windowID != wire.WindowID {
			return protocol.Envelope{}, errAt(base+"/windowId",
				"windowId %q conflicts with params windowId %q", wire.WindowID, windowID)
		}
		windowID = wire.WindowID
	}

	return protocol.Envelope{
		ID:             wire.ID,
		IdempotencyKey: wire.IdempotencyKey,
		TraceID:        wire.TraceID,
		TxnID:          wire.TxnID,
		WindowID:       protocol.WindowID(windowID),
		Op:             op,
		Params:         params,
	}, nil
}

// decodeParams strict-decodes raw against the schema keyed by op and runs
// the per-op semantic checks. It returns the typed params and the window id
// the operation addresses (empty for workspace-level ops).
func decodeParams(op protocol.Op, raw json.RawMessage, base string, totalHTML *int) (any, string, *Error) {
	switch op {
	case protocol.OpWindowCreate:
		var p protocol.WindowCreateParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if p.Title == "" {
			return nil, "", errAt(base+"/title", "title is required")
		}
		if err := checkDimension(p.Width, base+"/width"); err != nil {
			return nil, "", err
		}
		if err := checkDimension(p.Height, base+"/height"); err != nil {
			return nil, "", err
		}
		return p, p.ID, nil

	case protocol.OpWindowMove:
		var p protocol.WindowMoveParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireWindowID(p.WindowID, base); err != nil {
			return nil, "", err
		}
		return p, p.WindowID, nil

	case protocol.OpWindowResize:
		var p protocol.WindowResizeParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireWindowID(p.WindowID, base); err != nil {
			return nil, "", err
		}
		if p.Width < protocol.MinWindowSize {
			return nil, "", errAt(base+"/width", "width must be >= %d", protocol.MinWindowSize)
		}
		if p.Height < protocol.MinWindowSize {
			return nil, "", errAt(base+"/height", "height must be >= %d", protocol.MinWindowSize)
		}
		return p, p.WindowID, nil

	case protocol.OpWindowFocus:
		var p protocol.WindowFocusParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireWindowID(p.WindowID, base); err != nil {
			return nil, "", err
		}
		return p, p.WindowID, nil

	case protocol.OpWindowUpdate:
		var p protocol.WindowUpdateParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireWindowID(p.WindowID, base); err != nil {
			return nil, "", err
		}
		if err := checkDimension(p.Width, base+"/width"); err != nil {
			return nil, "", err
		}
		if err := checkDimension(p.Height, base+"/height"); err != nil {
			return nil, "", err
		}
		return p, p.WindowID, nil

	case protocol.OpWindowClose:
		var p protocol.WindowCloseParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireWindowID(p.WindowID, base); err != nil {
			return nil, "", err
		}
		return p, p.WindowID, nil

	case protocol.OpDomSet, protocol.OpDomReplace, protocol.OpDomAppend:
		var p protocol.DomParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireWindowID(p.WindowID, base); err != nil {
			return nil, "", err
		}
		if p.Target == "" {
			return nil, "", errAt(base+"/target", "target selector is required")
		}
		if len(p.HTML) > protocol.MaxHTMLBytes {
			return nil, "", errAt(base+"/html", "html payload %d bytes exceeds %d byte cap", len(p.HTML), protocol.MaxHTMLBytes)
		}
		if name := scanDanger(p.HTML); name != "" {
			return nil, "", errAt(base+"/html", "dangerous content: %s", name)
		}
		*totalHTML += len(p.HTML)
		return p, p.WindowID, nil

	case protocol.OpComponentRender:
		var p protocol.ComponentRenderParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireWindowID(p.WindowID, base); err != nil {
			return nil, "", err
		}
		if p.Target == "" {
			return nil, "", errAt(base+"/target", "target selector is required")
		}
		if p.Component == "" {
			return nil, "", errAt(base+"/component", "component name is required")
		}
		return p, p.WindowID, nil

	case protocol.OpComponentUpdate:
		var p protocol.ComponentUpdateParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if p.ID == "" {
			return nil, "", errAt(base+"/id", "component id is required")
		}
		return p, "", nil

	case protocol.OpComponentDestroy:
		var p protocol.ComponentDestroyParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if p.ID == "" {
			return nil, "", errAt(base+"/id", "component id is required")
		}
		return p, "", nil

	case protocol.OpStateSet:
		var p protocol.StateSetParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireScopeKey(p.Scope, p.Key, base); err != nil {
			return nil, "", err
		}
		return p, p.WindowID, nil

	case protocol.OpStateGet:
		var p protocol.StateGetParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireScopeKey(p.Scope, p.Key, base); err != nil {
			return nil, "", err
		}
		return p, p.WindowID, nil

	case protocol.OpStateWatch:
		var p protocol.StateWatchParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireScopeKey(p.Scope, p.Key, base); err != nil {
			return nil, "", err
		}
		return p, p.WindowID, nil

	case protocol.OpStateUnwatch:
		var p protocol.StateUnwatchParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if err := requireScopeKey(p.Scope, p.Key, base); err != nil {
			return nil, "", err
		}
		return p, p.WindowID, nil

	case protocol.OpAPICall:
		var p protocol.APICallParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		if p.URL == "" {
			return nil, "", errAt(base+"/url", "url is required")
		}
		if err := checkAPIURL(p.URL, base+"/url"); err != nil {
			return nil, "", err
		}
		return p, p.WindowID, nil

	case protocol.OpTxnCancel:
		var p protocol.TxnCancelParams
		if err := strictDecode(raw, &p, base); err != nil {
			return nil, "", err
		}
		return p, "", nil
	}

	// Unreachable: op validity is checked before dispatch.
	return nil, "", errAt(base, "no schema for operation %q", op)
}

// apiSchemes is the parse-time scheme allow-list for api.call. The uicp
// pseudo-scheme carries internal intents alongside real HTTP destinations;
// anything else is a hard validation failure, not a runtime permission
// decision.
var apiSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
}

// uicpIntents enumerates the accepted hosts of the uicp:// pseudo-scheme.
var uicpIntents = map[string]bool{
	"intent":       true,
	"compute.call": true,
}

func checkAPIURL(raw, path string) *Error {
	u, err := url.Parse(raw)
	if err != nil {
		return errAt(path, "invalid url: %v", err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch {
	case scheme == "":
		return errAt(path, "url must be absolute")
	case apiSchemes[scheme]:
		return nil
	case scheme == "uicp":
		if !uicpIntents[u.Host] {
			return errAt(path, "unknown uicp intent %q", u.Host)
		}
		return nil
	default:
		return errAt(path, "scheme %q is not allowed", scheme)
	}
}

func requireWindowID(id, base string) *Error {
	if id == "" {
		return errAt(base+"/windowId", "windowId is required")
	}
	return nil
}

func requireScopeKey(scope, key, base string) *Error {
	if scope == "" {
		return errAt(base+"/scope", "scope is required")
	}
	if key == "" {
		return errAt(base+"/key", "key is required")
	}
	return nil
}

func checkDimension(v *int, path string) *Error {
	if v != nil && *v < protocol.MinWindowSize {
		return errAt(path, "must be >= %d", protocol.MinWindowSize)
	}
	return nil
}

// strictDecode unmarshals raw into v rejecting unknown fields, translating
// decoder errors into pointer-addressed validation errors.
func strictDecode(raw json.RawMessage, v any, base string) *Error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if field, ok := unknownField(err); ok {
			return errAt(base+"/"+field, "unknown field")
		}
		return errAt(base, "malformed params: %v", err)
	}
	return nil
}

// unknownField extracts the field name from encoding/json's unknown-field
// error. The error has no structured form, so this parses the quoted name.
func unknownField(err error) (string, bool) {
	const marker = `unknown field "`
	msg := err.Error()
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	rest := msg[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// normalizeKeys rewrites top-level snake_case aliases in a JSON object to
// their canonical camelCase names. Non-objects pass through untouched; alias
// collisions (both spellings present) are rejected.
func normalizeKeys(raw json.RawMessage, base string) (json.RawMessage, *Error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errAt(base, "malformed object: %v", err)
	}
	changed := false
	for alias, canonical := range snakeAliases {
		val, ok := obj[alias]
		if !ok {
			continue
		}
		if _, dup := obj[canonical]; dup {
			return nil, errAt(base+"/"+alias, "field conflicts with %q", canonical)
		}
		obj[canonical] = val
		delete(obj, alias)
		changed = true
	}
	if !changed {
		return raw, nil
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, errAt(base, "normalization failed: %v", err)
	}
	return out, nil
}
