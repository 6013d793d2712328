package validate

import (
	"fmt"

	"uicp/internal/protocol"
)

// Error is a validation failure located by a JSON-pointer style path into
// the submitted batch, e.g. "/3/params/html". It wraps
// protocol.ErrValidationFailed so callers can classify without inspecting
// the concrete type.
type Error struct {
	Path string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

func (e *Error) Unwrap() error {
	return protocol.ErrValidationFailed
}

// errAt builds an Error at the given path.
func errAt(path, format string, args ...any) *Error {
	return &Error{Path: path, Msg: fmt.Sprintf(format, args...)}
}
