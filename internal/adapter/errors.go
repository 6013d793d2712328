package adapter

import (
	"fmt"

	"uicp/internal/protocol"
)

// Error is an application failure carrying enough context (window id,
// target, mode) to render an actionable message. It wraps one of the
// protocol sentinels so callers classify with errors.Is.
type Error struct {
	WindowID protocol.WindowID
	Target   string
	Mode     Mode
	Err      error
	Detail   string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v (window=%s target=%q mode=%s): %s",
			e.Err, e.WindowID, e.Target, e.Mode, e.Detail)
	}
	return fmt.Sprintf("%v (window=%s target=%q mode=%s)",
		e.Err, e.WindowID, e.Target, e.Mode)
}

func (e *Error) Unwrap() error { return e.Err }

func (eng *Engine) failf(p ApplyParams, sentinel error, format string, args ...any) error {
	return &Error{
		WindowID: p.WindowID,
		Target:   p.Target,
		Mode:     p.Mode,
		Err:      sentinel,
		Detail:   fmt.Sprintf(format, args...),
	}
}
