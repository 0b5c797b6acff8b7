package agreement

import (
	"context"
)

// EventSource is how the orchestrator observes the MPC signer.
// Poll must not block longer than one lookup; callers drive the cadence.
type EventSource interface {
	Poll(ctx context.Context, requestId [32]byte, kind EventKind) (*SignatureEvent, bool, error)
}

// FlowStore persists flow status so it can be read without blocking on the flow.
type FlowStore interface {
	Upsert(rec *FlowRecord) error
	Get(requestId [32]byte) (*FlowRecord, error)
	GetByState(state FlowState) ([]*FlowRecord, error)
}
