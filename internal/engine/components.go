package engine

import (
	"fmt"

	"github.com/google/uuid"

	"uicp/internal/adapter"
	"uicp/internal/protocol"
	"uicp/internal/sanitize"
)

// Component operations mount placeholder elements into window content and
// track instance props. Actual component rendering (widgets, event wiring)
// belongs to the excluded UI layer, which consumes the mount markup and the
// component_props events emitted here.

// renderComponent mounts a placeholder element for the component inside the
// target and registers the instance.
func (eng *Engine) renderComponent(env protocol.Envelope, p protocol.ComponentRenderParams) (adapter.Outcome, error) {
	id := p.ID
	if id == "" {
		id = "cmp-" + uuid.NewString()
	}
	if _, exists := eng.components[id]; exists {
		return adapter.Outcome{}, fmt.Errorf("%w: component %q already mounted", protocol.ErrValidationFailed, id)
	}

	markup := fmt.Sprintf(`<div id=%q data-component=%q></div>`, id, p.Component)
	safe, err := sanitize.Strict(markup)
	if err != nil {
		return adapter.Outcome{}, err
	}
	outcome, err := eng.apply.Apply(adapter.ApplyParams{
		WindowID: protocol.WindowID(p.WindowID),
		Target:   p.Target,
		HTML:     safe,
		Mode:     adapter.ModeSet,
	})
	if err != nil {
		return outcome, err
	}

	eng.components[id] = componentMount{
		windowID: protocol.WindowID(p.WindowID),
		target:   p.Target,
		name:     p.Component,
		props:    p.Props,
	}
	eng.emit(Event{Type: EventComponentProps, TraceID: env.TraceID, Op: env.Op,
		WindowID: protocol.WindowID(p.WindowID), Target: "#" + id, Value: p.Props})
	return outcome, nil
}

// updateComponent merges new props into a mounted instance and re-emits
// them for the rendering layer.
func (eng *Engine) updateComponent(env protocol.Envelope, p protocol.ComponentUpdateParams) (adapter.Outcome, error) {
	mount, ok := eng.components[p.ID]
	if !ok {
		return adapter.Outcome{}, fmt.Errorf("%w: component %q is not mounted", protocol.ErrDomApplyFailed, p.ID)
	}
	if mount.props == nil {
		mount.props = make(map[string]any, len(p.Props))
	}
	for k, v := range p.Props {
		mount.props[k] = v
	}
	eng.components[p.ID] = mount

	eng.emit(Event{Type: EventComponentProps, TraceID: env.TraceID, Op: env.Op,
		WindowID: mount.windowID, Target: "#" + p.ID, Value: mount.props})
	return adapter.Outcome{Applied: 1}, nil
}

// destroyComponent removes the mount element from the window content and
// drops the instance.
func (eng *Engine) destroyComponent(env protocol.Envelope, p protocol.ComponentDestroyParams) (adapter.Outcome, error) {
	mount, ok := eng.components[p.ID]
	if !ok {
		return adapter.Outcome{}, fmt.Errorf("%w: component %q is not mounted", protocol.ErrDomApplyFailed, p.ID)
	}

	safe, err := sanitize.Strict("")
	if err != nil {
		return adapter.Outcome{}, err
	}
	// Replacing the mount element with an empty fragment removes it.
	outcome, err := eng.apply.Apply(adapter.ApplyParams{
		WindowID: mount.windowID,
		Target:   "#" + p.ID,
		HTML:     safe,
		Mode:     adapter.ModeReplace,
	})
	if err != nil {
		return outcome, err
	}
	delete(eng.components, p.ID)
	// The mount node is gone; remembered hashes for its selector and for
	// the target it was rendered into are stale now.
	eng.apply.ForgetTarget(mount.windowID, "#"+p.ID)
	eng.apply.ForgetTarget(mount.windowID, mount.target)
	eng.emit(Event{Type: EventApplied, TraceID: env.TraceID, Op: env.Op, WindowID: mount.windowID})
	return outcome, nil
}
