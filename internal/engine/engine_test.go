package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uicp/internal/config"
	"uicp/internal/protocol"
	"uicp/internal/state"
	"uicp/internal/window"
)

type recordingEgress struct {
	calls []protocol.APICallParams
}

func (r *recordingEgress) Call(p protocol.APICallParams) error {
	r.calls = append(r.calls, p)
	return nil
}

type recordingCanceller struct {
	cancelled []string
}

func (r *recordingCanceller) Cancel(txnID string) {
	r.cancelled = append(r.cancelled, txnID)
}

type fixture struct {
	eng       *Engine
	windows   *window.Manager
	store     *state.Store
	egress    *recordingEgress
	canceller *recordingCanceller
	events    []Event
}

func newFixture(t *testing.T, cfg config.EngineConfig) *fixture {
	t.Helper()
	f := &fixture{
		windows:   window.NewManager(nil),
		store:     state.NewStore(nil),
		egress:    &recordingEgress{},
		canceller: &recordingCanceller{},
	}
	f.eng = New(cfg, f.windows, f.store,
		WithEgress(f.egress),
		WithCanceller(f.canceller),
		WithNotifier(func(ev Event) { f.events = append(f.events, ev) }))
	return f
}

func defaultCfg() config.EngineConfig {
	return config.Default().Engine
}

func (f *fixture) run(t *testing.T, raw string) *BatchResult {
	t.Helper()
	res, err := f.eng.Run([]byte(raw))
	require.NoError(t, err)
	return res
}

const planFixture = `{
	"summary": "x",
	"batch": [
		{"op": "window.create", "params": {"id": "w1", "title": "T"}},
		{"op": "dom.set", "params": {"windowId": "w1", "target": "#root", "html": "<p>Hi</p>"}}
	]
}`

func TestEndToEndScenario(t *testing.T) {
	cfg := defaultCfg()
	cfg.BatchIdempotency = false
	f := newFixture(t, cfg)

	res := f.run(t, planFixture)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 0, res.SkippedDuplicates)
	assert.Empty(t, res.Errors)
	assert.NotEmpty(t, res.TraceID)
	assert.NotEmpty(t, res.BatchHash)

	rec, ok := f.windows.Record("w1")
	require.True(t, ok)
	assert.Equal(t, "T", rec.Title)
	// The clean payload sanitized unchanged.
	assert.Equal(t, "<p>Hi</p>", rec.ContentHTML())

	// Immediate replay: window.create collides, dom.set deduplicates.
	replay := f.run(t, planFixture)
	assert.Equal(t, res.BatchHash, replay.BatchHash, "hash is stable across runs")
	assert.Equal(t, 0, replay.Applied)
	assert.Equal(t, 1, replay.SkippedDuplicates)
	assert.Len(t, replay.Errors, 1)
	assert.Equal(t, 0, replay.Errors[0].Index)
}

func TestBatchIdempotencySkip(t *testing.T) {
	f := newFixture(t, defaultCfg())

	first := f.run(t, planFixture)
	assert.Equal(t, 2, first.Applied)
	assert.False(t, first.DuplicateBatch)

	second := f.run(t, planFixture)
	assert.True(t, second.DuplicateBatch)
	assert.Equal(t, 0, second.Applied)
	assert.Equal(t, 2, second.SkippedDuplicates)
	assert.Empty(t, second.Errors)
}

func TestFailedBatchNotRememberedAsSeen(t *testing.T) {
	f := newFixture(t, defaultCfg())

	// Every envelope errors: the target window does not exist.
	batch := `[{"op": "dom.set", "params": {"windowId": "ghost", "target": "#root", "html": "<p>x</p>"}}]`
	first := f.run(t, batch)
	require.Len(t, first.Errors, 1)

	// The retry must run again and report the same failure, not get
	// skipped as a duplicate batch.
	second := f.run(t, batch)
	assert.False(t, second.DuplicateBatch)
	require.Len(t, second.Errors, 1)

	// Once the window exists, the same batch applies and is remembered.
	f.run(t, `[{"op": "window.create", "params": {"id": "ghost", "title": "T"}}]`)
	third := f.run(t, batch)
	assert.Empty(t, third.Errors)
	assert.True(t, f.run(t, batch).DuplicateBatch)
}

func TestValidationFailureAbortsBatch(t *testing.T) {
	f := newFixture(t, defaultCfg())

	_, err := f.eng.Run([]byte(`[
		{"op": "window.create", "params": {"id": "w1", "title": "T"}},
		{"op": "dom.set", "params": {"windowId": "w1", "target": "#root", "html": "<script>x</script>"}}
	]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrValidationFailed))
	// Nothing from the batch was applied.
	assert.False(t, f.windows.Exists("w1"))
}

func TestSanitizeOptOutDenied(t *testing.T) {
	f := newFixture(t, defaultCfg())

	res := f.run(t, `[
		{"op": "window.create", "params": {"id": "w1", "title": "T"}},
		{"op": "dom.set", "params": {"windowId": "w1", "target": "#root", "html": "<p>x</p>", "sanitize": false}}
	]`)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors[0], protocol.ErrPermissionDenied))

	rec, ok := f.windows.Record("w1")
	require.True(t, ok)
	assert.Equal(t, "", rec.ContentHTML(), "denied payload must not touch the window")
}

func TestDomPayloadSanitizedBeforeApply(t *testing.T) {
	f := newFixture(t, defaultCfg())

	res := f.run(t, `[
		{"op": "window.create", "params": {"id": "w1", "title": "T"}},
		{"op": "dom.set", "params": {"windowId": "w1", "target": "#root",
		 "html": "<p>ok</p><a href=\"//evil.com\">link</a>"}}
	]`)
	assert.Empty(t, res.Errors)

	rec, _ := f.windows.Record("w1")
	content := rec.ContentHTML()
	assert.Contains(t, content, "<p>ok</p>")
	assert.NotContains(t, content, "evil.com")
}

func TestWindowLifecycle(t *testing.T) {
	f := newFixture(t, defaultCfg())

	res := f.run(t, `[
		{"op": "window.create", "params": {"id": "w1", "title": "T", "width": 400, "height": 300}},
		{"op": "window.move", "params": {"windowId": "w1", "x": 50, "y": 60}},
		{"op": "window.resize", "params": {"windowId": "w1", "width": 500, "height": 400}},
		{"op": "window.update", "params": {"windowId": "w1", "title": "Renamed"}},
		{"op": "window.focus", "params": {"windowId": "w1"}}
	]`)
	assert.Equal(t, 5, res.Applied)
	assert.Empty(t, res.Errors)

	rec, ok := f.windows.Record("w1")
	require.True(t, ok)
	assert.Equal(t, "Renamed", rec.Title)
	assert.Equal(t, 50, rec.X)
	assert.Equal(t, 500, rec.Width)

	res = f.run(t, `[{"op": "window.close", "params": {"windowId": "w1"}}]`)
	assert.Equal(t, 1, res.Applied)
	assert.False(t, f.windows.Exists("w1"))
}

func TestCloseClearsDedupState(t *testing.T) {
	cfg := defaultCfg()
	cfg.BatchIdempotency = false
	f := newFixture(t, cfg)

	f.run(t, `[
		{"op": "window.create", "params": {"id": "w1", "title": "T"}},
		{"op": "dom.set", "params": {"windowId": "w1", "target": "#root", "html": "<p>x</p>"}}
	]`)
	f.run(t, `[{"op": "window.close", "params": {"windowId": "w1"}}]`)

	// Recreating the window and re-applying the same payload must apply,
	// not dedup against the dead window's history.
	res := f.run(t, `[
		{"op": "window.create", "params": {"id": "w1", "title": "T"}},
		{"op": "dom.set", "params": {"windowId": "w1", "target": "#root", "html": "<p>x</p>"}}
	]`)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 0, res.SkippedDuplicates)
}

func TestStateOps(t *testing.T) {
	f := newFixture(t, defaultCfg())

	res := f.run(t, `[
		{"op": "state.set", "params": {"scope": "workspace", "key": "theme", "value": "dark"}},
		{"op": "state.get", "params": {"scope": "workspace", "key": "theme"}}
	]`)
	assert.Equal(t, 2, res.Applied)
	assert.Empty(t, res.Errors)

	v, ok := f.store.Get(protocol.StateGetParams{Scope: "workspace", Key: "theme"})
	require.True(t, ok)
	assert.Equal(t, "dark", v)

	// The state.get result went out on the side channel.
	var found bool
	for _, ev := range f.events {
		if ev.Type == EventStateValue && ev.Value == "dark" {
			found = true
		}
	}
	assert.True(t, found, "expected a state_value event carrying the read value")
}

func TestStateWatchEmitsOnChange(t *testing.T) {
	f := newFixture(t, defaultCfg())

	f.run(t, `[{"op": "state.watch", "params": {"scope": "s", "key": "k"}}]`)
	f.run(t, `[{"op": "state.set", "params": {"scope": "s", "key": "k", "value": 42}}]`)

	var got []any
	for _, ev := range f.events {
		if ev.Type == EventStateValue {
			got = append(got, ev.Value)
		}
	}
	require.Len(t, got, 1)
	assert.Equal(t, float64(42), got[0])
}

func TestAPICallDispatch(t *testing.T) {
	f := newFixture(t, defaultCfg())

	res := f.run(t, `[{"op": "api.call", "params": {"url": "https://example.com/data", "method": "GET"}}]`)
	assert.Equal(t, 1, res.Applied)
	require.Len(t, f.egress.calls, 1)
	assert.Equal(t, "https://example.com/data", f.egress.calls[0].URL)
}

func TestTxnCancelDispatch(t *testing.T) {
	f := newFixture(t, defaultCfg())

	res := f.run(t, `[{"op": "txn.cancel", "txn_id": "txn-7", "params": {}}]`)
	assert.Equal(t, 1, res.Applied)
	require.Len(t, f.canceller.cancelled, 1)
	assert.Equal(t, "txn-7", f.canceller.cancelled[0])
}

func TestComponentLifecycle(t *testing.T) {
	// Batch idempotency off: the test repeats identical destroy batches to
	// exercise per-envelope semantics.
	cfg := defaultCfg()
	cfg.BatchIdempotency = false
	f := newFixture(t, cfg)

	res := f.run(t, `[
		{"op": "window.create", "params": {"id": "w1", "title": "T"}},
		{"op": "component.render", "params": {"windowId": "w1", "target": "#root", "component": "chart", "id": "c1", "props": {"series": "a"}}}
	]`)
	assert.Empty(t, res.Errors)

	rec, _ := f.windows.Record("w1")
	content := rec.ContentHTML()
	assert.Contains(t, content, `id="c1"`)
	assert.Contains(t, content, `data-component="chart"`)

	res = f.run(t, `[{"op": "component.update", "params": {"id": "c1", "props": {"series": "b"}}}]`)
	assert.Empty(t, res.Errors)

	res = f.run(t, `[{"op": "component.destroy", "params": {"id": "c1"}}]`)
	assert.Empty(t, res.Errors)
	rec, _ = f.windows.Record("w1")
	assert.NotContains(t, rec.ContentHTML(), "c1")

	// Destroying again fails: the mount is gone.
	res = f.run(t, `[{"op": "component.destroy", "params": {"id": "c1"}}]`)
	require.Len(t, res.Errors, 1)

	// Remounting the same component with identical markup works after a
	// destroy, and so does destroying it again.
	res = f.run(t, `[{"op": "component.render", "params": {"windowId": "w1", "target": "#root", "component": "chart", "id": "c1", "props": {"series": "a"}}}]`)
	assert.Empty(t, res.Errors)
	rec, _ = f.windows.Record("w1")
	assert.Contains(t, rec.ContentHTML(), `id="c1"`)

	res = f.run(t, `[{"op": "component.destroy", "params": {"id": "c1"}}]`)
	assert.Empty(t, res.Errors)
	rec, _ = f.windows.Record("w1")
	assert.NotContains(t, rec.ContentHTML(), "c1")
}

func TestWindowNotFoundSurfaces(t *testing.T) {
	f := newFixture(t, defaultCfg())

	res := f.run(t, `[{"op": "dom.set", "params": {"windowId": "ghost", "target": "#root", "html": "<p>x</p>"}}]`)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors[0], protocol.ErrWindowNotFound))
}

func TestSeenBatchEviction(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxSeenBatches = 1
	f := newFixture(t, cfg)

	a := `[{"op": "state.set", "params": {"scope": "s", "key": "k", "value": 1}}]`
	b := `[{"op": "state.set", "params": {"scope": "s", "key": "k", "value": 2}}]`

	assert.False(t, f.run(t, a).DuplicateBatch)
	// b evicts a from the seen-set.
	assert.False(t, f.run(t, b).DuplicateBatch)
	// a is no longer remembered, so it applies again.
	assert.False(t, f.run(t, a).DuplicateBatch)
	// Immediate repeat of a is still caught.
	assert.True(t, f.run(t, a).DuplicateBatch)
}
