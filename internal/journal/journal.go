package journal

import "fmt"

// Journal is the append-only fact store for one simulation run. It owns the
// (tick, seq) numbering and the run-scoped turn-bookmark counter so the
// engine stays free of global state.
//
// Invariant: a tick must be opened with StartTick before any fact is
// appended, and the ordered pair (tick, seq) is strictly increasing across
// the whole log.
type Journal struct {
	events      []Event
	tick        int
	seq         int
	turnCounter int
}

// New constructs an empty journal.
func New() *Journal {
	return &Journal{events: make([]Event, 0, 64)}
}

// CurrentTick reports the most recently opened tick, zero when no tick has
// ever been opened.
func (j *Journal) CurrentTick() int { return j.tick }

// StartTick opens the next tick and resets the intra-tick sequence.
func (j *Journal) StartTick() int {
	j.tick++
	j.seq = 0
	return j.tick
}

// TurnCounter reports the run-scoped turn-bookmark value: the number of
// TURN_START brackets opened so far, including extra turns.
func (j *Journal) TurnCounter() int { return j.turnCounter }

// NextTurn advances the turn-bookmark counter and returns its new value.
func (j *Journal) NextTurn() int {
	j.turnCounter++
	return j.turnCounter
}

// Append records a fact on the current tick. It fails when no tick has been
// opened; events are immutable once appended.
func (j *Journal) Append(t EventType, actor string, payload Payload) error {
	if j.tick <= 0 {
		return fmt.Errorf("journal: StartTick must be called before appending %s", t)
	}
	j.seq++
	j.events = append(j.events, Event{
		Tick:    j.tick,
		Seq:     j.seq,
		Type:    t,
		Actor:   actor,
		Payload: payload,
	})
	return nil
}

// Len reports the number of recorded events.
func (j *Journal) Len() int { return len(j.events) }

// Events returns a copy of the recorded event sequence.
func (j *Journal) Events() []Event {
	out := make([]Event, len(j.events))
	copy(out, j.events)
	return out
}

// EventsSince returns a copy of the events appended after position n. It is
// the loop-termination hook: callers scan the delta after each step for a
// stop condition such as a completed boss turn.
func (j *Journal) EventsSince(n int) []Event {
	if n < 0 {
		n = 0
	}
	if n >= len(j.events) {
		return nil
	}
	out := make([]Event, len(j.events)-n)
	copy(out, j.events[n:])
	return out
}
