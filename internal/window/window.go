// Package window holds live window records and their parsed content trees.
// It implements the WindowManager capability the application engine
// consumes (content-root lookup) plus the full set of window.* operations.
package window

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"uicp/internal/protocol"
)

// Default chrome for windows created without explicit geometry.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Record is one live window: chrome state plus the content root every DOM
// mutation for this window resolves against.
type Record struct {
	ID     protocol.WindowID
	Title  string
	X, Y   int
	Width  int
	Height int

	// zOrder orders windows for focus; higher is frontmost.
	zOrder int

	root *html.Node
}

// Root returns the window's content root element.
func (r *Record) Root() *html.Node { return r.root }

// ContentHTML renders the current contents of the root element.
func (r *Record) ContentHTML() string {
	var b strings.Builder
	for c := r.root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return ""
		}
	}
	return b.String()
}

// Manager is the in-memory window tree. Safe for concurrent readers; batch
// application is serialized by the engine, so writers never interleave.
type Manager struct {
	mu      sync.RWMutex
	windows map[protocol.WindowID]*Record
	zTop    int
	logger  *zap.Logger
}

// NewManager creates an empty window manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		windows: make(map[protocol.WindowID]*Record),
		logger:  logger,
	}
}

// Exists reports whether a window id is live.
func (m *Manager) Exists(id protocol.WindowID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.windows[id]
	return ok
}

// Record returns the live record for id.
func (m *Manager) Record(id protocol.WindowID) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.windows[id]
	return rec, ok
}

// ContentRoot returns the content root element for id. This is the
// WindowManager capability the application engine consumes.
func (m *Manager) ContentRoot(id protocol.WindowID) (*html.Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.windows[id]
	if !ok {
		return nil, false
	}
	return rec.root, true
}

// IDs returns all live window ids sorted for deterministic iteration.
func (m *Manager) IDs() []protocol.WindowID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]protocol.WindowID, 0, len(m.windows))
	for id := range m.windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Create opens a new window. A caller-supplied id is honored (idempotent
// re-creation of the same id is an error); otherwise one is generated.
func (m *Manager) Create(p protocol.WindowCreateParams) (protocol.WindowID, error) {
	id := protocol.WindowID(p.ID)
	if id == "" {
		id = protocol.WindowID(uuid.NewString())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.windows[id]; exists {
		return "", fmt.Errorf("window %q already exists", id)
	}

	rec := &Record{
		ID:     id,
		Title:  p.Title,
		Width:  DefaultWidth,
		Height: DefaultHeight,
		root:   newContentRoot(),
	}
	if p.X != nil {
		rec.X = *p.X
	}
	if p.Y != nil {
		rec.Y = *p.Y
	}
	if p.Width != nil {
		rec.Width = *p.Width
	}
	if p.Height != nil {
		rec.Height = *p.Height
	}
	m.zTop++
	rec.zOrder = m.zTop
	m.windows[id] = rec

	m.logger.Debug("window created",
		zap.String("windowId", string(id)),
		zap.String("title", p.Title))
	return id, nil
}

// Move repositions a window.
func (m *Manager) Move(p protocol.WindowMoveParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.windows[protocol.WindowID(p.WindowID)]
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrWindowNotFound, p.WindowID)
	}
	rec.X, rec.Y = p.X, p.Y
	return nil
}

// Resize changes window dimensions. Bounds are enforced at validation time.
func (m *Manager) Resize(p protocol.WindowResizeParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.windows[protocol.WindowID(p.WindowID)]
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrWindowNotFound, p.WindowID)
	}
	rec.Width, rec.Height = p.Width, p.Height
	return nil
}

// Focus raises a window to the top of the z-order.
func (m *Manager) Focus(p protocol.WindowFocusParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.windows[protocol.WindowID(p.WindowID)]
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrWindowNotFound, p.WindowID)
	}
	m.zTop++
	rec.zOrder = m.zTop
	return nil
}

// Focused returns the frontmost window id, or "" when none exist.
func (m *Manager) Focused() protocol.WindowID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var top *Record
	for _, rec := range m.windows {
		if top == nil || rec.zOrder > top.zOrder {
			top = rec
		}
	}
	if top == nil {
		return ""
	}
	return top.ID
}

// Update changes window chrome in place; absent fields are untouched.
func (m *Manager) Update(p protocol.WindowUpdateParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.windows[protocol.WindowID(p.WindowID)]
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrWindowNotFound, p.WindowID)
	}
	if p.Title != nil {
		rec.Title = *p.Title
	}
	if p.X != nil {
		rec.X = *p.X
	}
	if p.Y != nil {
		rec.Y = *p.Y
	}
	if p.Width != nil {
		rec.Width = *p.Width
	}
	if p.Height != nil {
		rec.Height = *p.Height
	}
	return nil
}

// Close destroys a window and its content tree.
func (m *Manager) Close(p protocol.WindowCloseParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := protocol.WindowID(p.WindowID)
	if _, ok := m.windows[id]; !ok {
		return fmt.Errorf("%w: %s", protocol.ErrWindowNotFound, p.WindowID)
	}
	delete(m.windows, id)
	m.logger.Debug("window closed", zap.String("windowId", p.WindowID))
	return nil
}

// newContentRoot builds the empty element DOM mutations resolve inside:
// <div id="root"></div>.
func newContentRoot() *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "id", Val: "root"}},
	}
}
