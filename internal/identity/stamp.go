package identity

import (
	"strconv"

	"github.com/google/uuid"

	"uicp/internal/protocol"
)

// hashedEnvelope is the slice of an envelope that participates in the batch
// hash. Transient identity fields (id, idempotencyKey, traceId, txnId) are
// excluded so two semantically identical batches hash identically even when
// stamped independently.
type hashedEnvelope struct {
	Op       protocol.Op       `json:"op"`
	WindowID protocol.WindowID `json:"windowId,omitempty"`
	Params   any               `json:"params"`
}

// BatchHash computes the stable content hash of a batch: a canonical
// serialization (sorted keys, preserved array order) of each envelope's
// op/windowId/params folded through FNV-1a 32-bit, rendered base-36.
// Stable across process restarts for the same semantic content.
func BatchHash(batch protocol.Batch) string {
	hashed := make([]hashedEnvelope, len(batch))
	for i, env := range batch {
		hashed[i] = hashedEnvelope{Op: env.Op, WindowID: env.WindowID, Params: env.Params}
	}
	return strconv.FormatUint(uint64(fnv1a32(canonicalString(hashed))), 36)
}

// HTMLHash hashes one HTML payload for per-target deduplication in the
// application engine.
func HTMLHash(html string) string {
	return strconv.FormatUint(uint64(fnv1a32(html)), 36)
}

// Stamp fills in missing identity fields and returns the stamped batch and
// its trace id. Every envelope without an idempotency key gets a fresh one;
// envelopes missing trace/txn ids inherit the batch-level fallback. When no
// fallback is supplied, the first trace id already present in the batch is
// reused, and a new one is generated only if none exists.
func Stamp(batch protocol.Batch, fallbackTraceID string) (protocol.Batch, string) {
	traceID := fallbackTraceID
	if traceID == "" {
		for _, env := range batch {
			if env.TraceID != "" {
				traceID = env.TraceID
				break
			}
		}
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}

	txnID := ""
	for _, env := range batch {
		if env.TxnID != "" {
			txnID = env.TxnID
			break
		}
	}
	if txnID == "" {
		txnID = uuid.NewString()
	}

	stamped := make(protocol.Batch, len(batch))
	for i, env := range batch {
		if env.IdempotencyKey == "" {
			env.IdempotencyKey = uuid.NewString()
		}
		if env.TraceID == "" {
			env.TraceID = traceID
		}
		if env.TxnID == "" {
			env.TxnID = txnID
		}
		stamped[i] = env
	}
	return stamped, traceID
}
