// Package adapter is the application/deduplication engine: the final step
// that turns a sanitized HTML payload into a bounded mutation of a window's
// content tree. It remembers a content hash per (window, target) pair and
// skips mutations whose payload is unchanged, so streaming re-renders of
// identical state cost nothing and cause no flicker.
package adapter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"uicp/internal/identity"
	"uicp/internal/protocol"
	"uicp/internal/sanitize"
)

// Mode selects how the payload lands on the resolved target.
type Mode string

const (
	// ModeSet replaces the target's children (innerHTML assignment).
	ModeSet Mode = "set"
	// ModeReplace replaces the target element itself (outerHTML).
	ModeReplace Mode = "replace"
	// ModeAppend inserts the payload after the target's last child
	// (insertAdjacentHTML beforeend).
	ModeAppend Mode = "append"
)

// ModeForOp maps a dom mutation op onto its apply mode.
func ModeForOp(op protocol.Op) (Mode, bool) {
	switch op {
	case protocol.OpDomSet:
		return ModeSet, true
	case protocol.OpDomReplace:
		return ModeReplace, true
	case protocol.OpDomAppend:
		return ModeAppend, true
	}
	return "", false
}

// WindowManager is the capability the engine consumes: content-root lookup,
// which doubles as the existence check. Satisfied by *window.Manager.
type WindowManager interface {
	ContentRoot(id protocol.WindowID) (*html.Node, bool)
}

// ApplyParams describes one mutation. HTML is the branded sanitized type:
// there is no way to hand this engine a raw string.
type ApplyParams struct {
	WindowID protocol.WindowID
	Target   string
	HTML     sanitize.SafeHTML
	Mode     Mode
}

// Outcome reports what an Apply call did.
type Outcome struct {
	Applied           int `json:"applied"`
	SkippedDuplicates int `json:"skippedDuplicates"`
}

// dedupKey identifies one mutation target. A struct key, not a string
// concatenation, so distinct (window, target) pairs can never collide.
type dedupKey struct {
	WindowID protocol.WindowID
	Target   string
}

// Engine applies sanitized mutations to window content trees. One instance
// owns one dedup map; construct isolated instances for tests. The engine has
// no internal concurrency: callers serialize batch application.
type Engine struct {
	mu      sync.Mutex
	windows WindowManager
	last    map[dedupKey]string
	dedupe  bool
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithoutDedup disables content-hash deduplication. Test hook.
func WithoutDedup() Option {
	return func(e *Engine) { e.dedupe = false }
}

// WithLogger attaches a logger for apply/skip diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine over the given window manager.
func NewEngine(windows WindowManager, opts ...Option) *Engine {
	e := &Engine{
		windows: windows,
		last:    make(map[dedupKey]string),
		dedupe:  true,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply performs one mutation. The target window must exist and the
// selector must resolve inside its content root. Identical re-applications
// (same window, target and payload hash) are skipped. Mutation failures are
// wrapped as typed errors, never propagated as panics.
func (e *Engine) Apply(p ApplyParams) (Outcome, error) {
	switch p.Mode {
	case ModeSet, ModeReplace, ModeAppend:
	default:
		return Outcome{}, e.failf(p, protocol.ErrValidationFailed, "unrecognized apply mode %q", p.Mode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	root, ok := e.windows.ContentRoot(p.WindowID)
	if !ok {
		return Outcome{}, e.failf(p, protocol.ErrWindowNotFound, "no such window")
	}

	// Target resolution comes before the dedup check: a remembered hash for
	// a selector whose node has since been removed must fail, not report a
	// skipped duplicate.
	target, err := resolveTarget(root, p.Target)
	if err != nil {
		return Outcome{}, e.failf(p, protocol.ErrDomApplyFailed, "%v", err)
	}

	key := dedupKey{WindowID: p.WindowID, Target: p.Target}
	hash := identity.HTMLHash(string(p.HTML))
	if e.dedupe {
		if prev, seen := e.last[key]; seen && prev == hash {
			e.logger.Debug("skipped duplicate apply",
				zap.String("windowId", string(p.WindowID)),
				zap.String("target", p.Target))
			return Outcome{SkippedDuplicates: 1}, nil
		}
	}

	if err := e.mutate(target, root, p); err != nil {
		return Outcome{}, err
	}

	e.last[key] = hash
	e.logger.Debug("applied dom mutation",
		zap.String("windowId", string(p.WindowID)),
		zap.String("target", p.Target),
		zap.String("mode", string(p.Mode)))
	return Outcome{Applied: 1}, nil
}

// Reset drops all remembered content hashes. Used when a window tree is
// rebuilt wholesale (workspace restore).
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = make(map[dedupKey]string)
}

// ForgetTarget drops the remembered hash for one (window, target) pair.
// Used when the node behind a selector is removed, so a later identical
// payload for the same selector is not mistaken for a duplicate.
func (e *Engine) ForgetTarget(id protocol.WindowID, target string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.last, dedupKey{WindowID: id, Target: target})
}

// Forget drops remembered hashes for one window, typically on close.
func (e *Engine) Forget(id protocol.WindowID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.last {
		if key.WindowID == id {
			delete(e.last, key)
		}
	}
}

// mutate performs the DOM edit, converting panics from tree manipulation
// into typed errors.
func (e *Engine) mutate(target, root *html.Node, p ApplyParams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = e.failf(p, protocol.ErrDomApplyFailed, "mutation panic: %v", r)
		}
	}()

	switch p.Mode {
	case ModeSet:
		nodes, perr := parseFragment(string(p.HTML), target)
		if perr != nil {
			return e.failf(p, protocol.ErrDomApplyFailed, "parse payload: %v", perr)
		}
		for target.FirstChild != nil {
			target.RemoveChild(target.FirstChild)
		}
		for _, n := range nodes {
			target.AppendChild(n)
		}

	case ModeReplace:
		if target == root {
			return e.failf(p, protocol.ErrDomApplyFailed, "cannot replace the content root")
		}
		parent := target.Parent
		if parent == nil {
			return e.failf(p, protocol.ErrDomApplyFailed, "target is detached")
		}
		nodes, perr := parseFragment(string(p.HTML), parent)
		if perr != nil {
			return e.failf(p, protocol.ErrDomApplyFailed, "parse payload: %v", perr)
		}
		for _, n := range nodes {
			parent.InsertBefore(n, target)
		}
		parent.RemoveChild(target)

	case ModeAppend:
		nodes, perr := parseFragment(string(p.HTML), target)
		if perr != nil {
			return e.failf(p, protocol.ErrDomApplyFailed, "parse payload: %v", perr)
		}
		for _, n := range nodes {
			target.AppendChild(n)
		}
	}
	return nil
}

// resolveTarget finds the first element matching the selector, considering
// the content root itself and then its descendants.
func resolveTarget(root *html.Node, selector string) (*html.Node, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %v", selector, err)
	}
	if sel.Match(root) {
		return root, nil
	}
	if n := cascadia.Query(root, sel); n != nil {
		return n, nil
	}
	return nil, fmt.Errorf("selector %q matched nothing", selector)
}

// parseFragment parses payload in the syntactic context of parent and
// returns the new nodes detached, ready for insertion.
func parseFragment(payload string, parent *html.Node) ([]*html.Node, error) {
	ctx := &html.Node{
		Type:     html.ElementNode,
		Data:     parent.Data,
		DataAtom: parent.DataAtom,
	}
	nodes, err := html.ParseFragment(strings.NewReader(payload), ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return nodes, nil
}
