package adapter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uicp/internal/protocol"
	"uicp/internal/sanitize"
	"uicp/internal/window"
)

var _ WindowManager = (*window.Manager)(nil)

func newFixture(t *testing.T, opts ...Option) (*Engine, *window.Manager, protocol.WindowID) {
	t.Helper()
	windows := window.NewManager(nil)
	id, err := windows.Create(protocol.WindowCreateParams{ID: "w1", Title: "Test"})
	require.NoError(t, err)
	return NewEngine(windows, opts...), windows, id
}

func safe(t *testing.T, html string) sanitize.SafeHTML {
	t.Helper()
	s, err := sanitize.Strict(html)
	require.NoError(t, err)
	return s
}

func contentOf(t *testing.T, windows *window.Manager, id protocol.WindowID) string {
	t.Helper()
	rec, ok := windows.Record(id)
	require.True(t, ok)
	return rec.ContentHTML()
}

func TestApplySet(t *testing.T) {
	eng, windows, id := newFixture(t)

	outcome, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#root", HTML: safe(t, "<p>Hi</p>"), Mode: ModeSet,
	})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Applied: 1}, outcome)
	assert.Equal(t, "<p>Hi</p>", contentOf(t, windows, id))

	// Set replaces previous content.
	_, err = eng.Apply(ApplyParams{
		WindowID: id, Target: "#root", HTML: safe(t, "<p>Bye</p>"), Mode: ModeSet,
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>Bye</p>", contentOf(t, windows, id))
}

func TestApplyAppend(t *testing.T) {
	eng, windows, id := newFixture(t)

	for _, html := range []string{"<li>one</li>", "<li>two</li>"} {
		_, err := eng.Apply(ApplyParams{
			WindowID: id, Target: "#root", HTML: safe(t, html), Mode: ModeAppend,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, "<li>one</li><li>two</li>", contentOf(t, windows, id))
}

func TestApplyReplace(t *testing.T) {
	eng, windows, id := newFixture(t)

	_, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#root",
		HTML: safe(t, `<div id="inner">old</div>`), Mode: ModeSet,
	})
	require.NoError(t, err)

	outcome, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#inner",
		HTML: safe(t, `<section id="inner">new</section>`), Mode: ModeReplace,
	})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Applied: 1}, outcome)
	assert.Equal(t, `<section id="inner">new</section>`, contentOf(t, windows, id))
}

func TestReplaceContentRootRejected(t *testing.T) {
	eng, _, id := newFixture(t)

	_, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#root", HTML: safe(t, "<p>x</p>"), Mode: ModeReplace,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrDomApplyFailed))
}

func TestDedupIdempotence(t *testing.T) {
	eng, _, id := newFixture(t)
	params := ApplyParams{
		WindowID: id, Target: "#root", HTML: safe(t, "<p>Hi</p>"), Mode: ModeSet,
	}

	first, err := eng.Apply(params)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Applied: 1}, first)

	second, err := eng.Apply(params)
	require.NoError(t, err)
	assert.Equal(t, Outcome{SkippedDuplicates: 1}, second)

	// A changed payload applies again.
	params.HTML = safe(t, "<p>New</p>")
	third, err := eng.Apply(params)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Applied: 1}, third)
}

func TestDedupKeyedPerTarget(t *testing.T) {
	eng, windows, id := newFixture(t)

	_, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#root",
		HTML: safe(t, `<div id="a"></div><div id="b"></div>`), Mode: ModeSet,
	})
	require.NoError(t, err)

	// The same payload against two different targets is not a duplicate.
	outcomeA, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#a", HTML: safe(t, "<p>x</p>"), Mode: ModeSet,
	})
	require.NoError(t, err)
	outcomeB, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#b", HTML: safe(t, "<p>x</p>"), Mode: ModeSet,
	})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Applied: 1}, outcomeA)
	assert.Equal(t, Outcome{Applied: 1}, outcomeB)
	assert.Equal(t, `<div id="a"><p>x</p></div><div id="b"><p>x</p></div>`,
		contentOf(t, windows, id))
}

func TestDedupDisabled(t *testing.T) {
	eng, _, id := newFixture(t, WithoutDedup())
	params := ApplyParams{
		WindowID: id, Target: "#root", HTML: safe(t, "<p>Hi</p>"), Mode: ModeSet,
	}

	for i := 0; i < 3; i++ {
		outcome, err := eng.Apply(params)
		require.NoError(t, err)
		assert.Equal(t, Outcome{Applied: 1}, outcome)
	}
}

func TestStaleDedupEntryFailsWhenTargetGone(t *testing.T) {
	eng, _, id := newFixture(t)

	_, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#root",
		HTML: safe(t, `<div id="inner"></div>`), Mode: ModeSet,
	})
	require.NoError(t, err)

	inner := ApplyParams{
		WindowID: id, Target: "#inner", HTML: safe(t, "<p>x</p>"), Mode: ModeSet,
	}
	_, err = eng.Apply(inner)
	require.NoError(t, err)

	// A broader set removes the #inner node but leaves its dedup entry.
	_, err = eng.Apply(ApplyParams{
		WindowID: id, Target: "#root", HTML: safe(t, "<p>flat</p>"), Mode: ModeSet,
	})
	require.NoError(t, err)

	// Re-applying the remembered payload must fail resolution, not report
	// a skipped duplicate.
	outcome, err := eng.Apply(inner)
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrDomApplyFailed))
	assert.Equal(t, Outcome{}, outcome)
}

func TestForget(t *testing.T) {
	eng, _, id := newFixture(t)
	params := ApplyParams{
		WindowID: id, Target: "#root", HTML: safe(t, "<p>Hi</p>"), Mode: ModeSet,
	}

	_, err := eng.Apply(params)
	require.NoError(t, err)

	eng.Forget(id)
	outcome, err := eng.Apply(params)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Applied: 1}, outcome, "forgotten target should apply again")
}

func TestWindowNotFound(t *testing.T) {
	eng, _, _ := newFixture(t)

	_, err := eng.Apply(ApplyParams{
		WindowID: "missing", Target: "#root", HTML: safe(t, "<p>x</p>"), Mode: ModeSet,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrWindowNotFound))

	var aerr *Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, protocol.WindowID("missing"), aerr.WindowID)
	assert.Equal(t, "#root", aerr.Target)
}

func TestTargetNotResolved(t *testing.T) {
	eng, _, id := newFixture(t)

	_, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#nope", HTML: safe(t, "<p>x</p>"), Mode: ModeSet,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrDomApplyFailed))
}

func TestInvalidSelector(t *testing.T) {
	eng, _, id := newFixture(t)

	_, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "[[", HTML: safe(t, "<p>x</p>"), Mode: ModeSet,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrDomApplyFailed))
}

func TestUnknownMode(t *testing.T) {
	eng, _, id := newFixture(t)

	_, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#root", HTML: safe(t, "<p>x</p>"), Mode: Mode("merge"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrValidationFailed),
		"an unrecognized mode must fail, never fall back to set")
}

func TestModeForOp(t *testing.T) {
	tests := []struct {
		op   protocol.Op
		want Mode
		ok   bool
	}{
		{protocol.OpDomSet, ModeSet, true},
		{protocol.OpDomReplace, ModeReplace, true},
		{protocol.OpDomAppend, ModeAppend, true},
		{protocol.OpWindowCreate, "", false},
	}
	for _, tt := range tests {
		mode, ok := ModeForOp(tt.op)
		assert.Equal(t, tt.ok, ok, "op %s", tt.op)
		assert.Equal(t, tt.want, mode, "op %s", tt.op)
	}
}

func TestNestedSelectorResolution(t *testing.T) {
	eng, windows, id := newFixture(t)

	_, err := eng.Apply(ApplyParams{
		WindowID: id, Target: "#root",
		HTML: safe(t, `<div class="outer"><ul class="list"></ul></div>`), Mode: ModeSet,
	})
	require.NoError(t, err)

	_, err = eng.Apply(ApplyParams{
		WindowID: id, Target: "div.outer > ul.list",
		HTML: safe(t, "<li>row</li>"), Mode: ModeAppend,
	})
	require.NoError(t, err)
	assert.Equal(t, `<div class="outer"><ul class="list"><li>row</li></ul></div>`,
		contentOf(t, windows, id))
}
