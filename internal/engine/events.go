package engine

import "uicp/internal/protocol"

// EventType classifies a side-channel event.
type EventType string

const (
	// EventApplied reports one applied mutation.
	EventApplied EventType = "applied"
	// EventSkippedDuplicate reports a mutation skipped by deduplication.
	EventSkippedDuplicate EventType = "skipped_duplicate"
	// EventDenied reports a permission denial.
	EventDenied EventType = "denied"
	// EventError reports an envelope that failed to apply.
	EventError EventType = "error"
	// EventStateValue carries the result of a state.get.
	EventStateValue EventType = "state_value"
	// EventAPICall reports an api.call handed to the egress layer.
	EventAPICall EventType = "api_call"
	// EventTxnCancel reports a cancellation handed to the orchestrator.
	EventTxnCancel EventType = "txn_cancel"
	// EventComponentProps carries updated props for a mounted component.
	EventComponentProps EventType = "component_props"
)

// Event is one side-channel emission to the telemetry/UI layer. The engine
// never blocks on the consumer; the notifier runs synchronously and must be
// cheap.
type Event struct {
	Type     EventType
	TraceID  string
	Op       protocol.Op
	WindowID protocol.WindowID
	Target   string
	Value    any
	Err      error
}

// Notifier consumes side-channel events. A nil notifier drops them.
type Notifier func(Event)
