package protocol

// Parameter structs, one per operation kind. Field presence matters for
// optional numeric fields (absent vs zero), so those are pointers. JSON tags
// define the accepted wire shape; the validator decodes with unknown fields
// disallowed, so no struct may carry fields unrelated to its op.

// WindowCreateParams opens a new window. ID is optional; when absent the
// window manager assigns one. Width/Height default to the manager's standard
// size and must be >= MinWindowSize when given.
type WindowCreateParams struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title"`
	X      *int   `json:"x,omitempty"`
	Y      *int   `json:"y,omitempty"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
}

// WindowMoveParams repositions an existing window.
type WindowMoveParams struct {
	WindowID string `json:"windowId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// WindowResizeParams resizes an existing window.
// Both dimensions must be >= MinWindowSize.
type WindowResizeParams struct {
	WindowID string `json:"windowId"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// WindowFocusParams raises a window to the top of the z-order.
type WindowFocusParams struct {
	WindowID string `json:"windowId"`
}

// WindowUpdateParams changes window chrome in place. All fields besides the
// id are optional; present dimensions must be >= MinWindowSize.
type WindowUpdateParams struct {
	WindowID string  `json:"windowId"`
	Title    *string `json:"title,omitempty"`
	X        *int    `json:"x,omitempty"`
	Y        *int    `json:"y,omitempty"`
	Width    *int    `json:"width,omitempty"`
	Height   *int    `json:"height,omitempty"`
}

// WindowCloseParams destroys a window and its content tree.
type WindowCloseParams struct {
	WindowID string `json:"windowId"`
}

// DomParams carries an HTML mutation for dom.set, dom.replace and
// dom.append. Target is a CSS selector resolved inside the window's content
// root. Sanitize defaults to true; an explicit false is rejected by the
// permission gate, the field exists only so the opt-out is visible rather
// than silently ignored.
type DomParams struct {
	WindowID string `json:"windowId"`
	Target   string `json:"target"`
	HTML     string `json:"html"`
	Sanitize *bool  `json:"sanitize,omitempty"`
}

// SanitizeDisabled reports whether the envelope explicitly opted out of
// sanitization.
func (p DomParams) SanitizeDisabled() bool {
	return p.Sanitize != nil && !*p.Sanitize
}

// ComponentRenderParams mounts a registered component into a target element.
type ComponentRenderParams struct {
	WindowID  string         `json:"windowId"`
	Target    string         `json:"target"`
	Component string         `json:"component"`
	ID        string         `json:"id,omitempty"`
	Props     map[string]any `json:"props,omitempty"`
}

// ComponentUpdateParams re-renders a mounted component with new props.
type ComponentUpdateParams struct {
	ID    string         `json:"id"`
	Props map[string]any `json:"props,omitempty"`
}

// ComponentDestroyParams unmounts a component.
type ComponentDestroyParams struct {
	ID string `json:"id"`
}

// StateSetParams writes a value into the scoped state store.
type StateSetParams struct {
	Scope    string `json:"scope"`
	Key      string `json:"key"`
	Value    any    `json:"value"`
	WindowID string `json:"windowId,omitempty"`
}

// StateGetParams reads a value from the scoped state store.
type StateGetParams struct {
	Scope    string `json:"scope"`
	Key      string `json:"key"`
	WindowID string `json:"windowId,omitempty"`
}

// StateWatchParams registers interest in changes to a state key.
type StateWatchParams struct {
	Scope    string `json:"scope"`
	Key      string `json:"key"`
	WindowID string `json:"windowId,omitempty"`
}

// StateUnwatchParams removes a previously registered watch.
type StateUnwatchParams struct {
	Scope    string `json:"scope"`
	Key      string `json:"key"`
	WindowID string `json:"windowId,omitempty"`
}

// APICallParams dispatches a network or intent call to the egress layer.
// The URL scheme is restricted at validation time; this core never performs
// the call itself.
type APICallParams struct {
	URL            string            `json:"url"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           any               `json:"body,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	WindowID       string            `json:"windowId,omitempty"`
}

// TxnCancelParams asks the orchestrator to abort an in-flight transaction.
// With no ID the envelope's own txn id is the subject.
type TxnCancelParams struct {
	ID string `json:"id,omitempty"`
}
