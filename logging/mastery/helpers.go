package mastery

import (
	"context"

	"fireknight/sim/logging"
)

const (
	// EventProcResolved is emitted when a scripted proc request matched
	// the observed qualifying expirations.
	EventProcResolved logging.EventType = "mastery.proc_resolved"
	// EventProcRejected is emitted when a scripted proc request was
	// rejected by the guard.
	EventProcRejected logging.EventType = "mastery.proc_rejected"
)

// ResolutionPayload captures the guard's verdict for one (holder, step).
type ResolutionPayload struct {
	Holder          string `json:"holder"`
	Mastery         string `json:"mastery"`
	Step            int    `json:"step"`
	RequestedCount  int    `json:"requestedCount"`
	QualifyingCount int    `json:"qualifyingCount"`
	Reason          string `json:"reason,omitempty"`
}

// ProcResolved publishes a successful reconciliation.
func ProcResolved(ctx context.Context, pub logging.Publisher, tick, turn int, payload ResolutionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventProcResolved,
		Tick:     tick,
		Turn:     turn,
		Actor:    payload.Holder,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryMastery,
		Payload:  payload,
	})
}

// ProcRejected publishes a guard rejection. Rejections are warnings: they
// mean the script and the engine disagree.
func ProcRejected(ctx context.Context, pub logging.Publisher, tick, turn int, payload ResolutionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventProcRejected,
		Tick:     tick,
		Turn:     turn,
		Actor:    payload.Holder,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryMastery,
		Payload:  payload,
	})
}
