package scheduler

import (
	"context"

	"fireknight/sim/logging"
)

const (
	// EventTurnResolved is emitted once per step that produced a winner.
	EventTurnResolved logging.EventType = "scheduler.turn_resolved"
	// EventIdleTick is emitted when no actor passed the gate.
	EventIdleTick logging.EventType = "scheduler.idle_tick"
)

// TurnResolvedPayload summarizes one resolved turn.
type TurnResolvedPayload struct {
	Winner        string  `json:"winner"`
	ActorIndex    int     `json:"actorIndex"`
	PreResetMeter float64 `json:"preResetMeter"`
	ExtraTurn     bool    `json:"extraTurn"`
	ShieldHits    int     `json:"shieldHits,omitempty"`
}

// TurnResolved publishes a turn summary.
func TurnResolved(ctx context.Context, pub logging.Publisher, tick, turn int, payload TurnResolvedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTurnResolved,
		Tick:     tick,
		Turn:     turn,
		Actor:    payload.Winner,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryScheduler,
		Payload:  payload,
	})
}

// IdleTick publishes a no-winner tick.
func IdleTick(ctx context.Context, pub logging.Publisher, tick int) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventIdleTick,
		Tick:     tick,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryScheduler,
	})
}
