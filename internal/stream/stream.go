// Package stream reads and writes the event-stream wire format: a JSON
// array of {tick, seq, type, actor, data} objects, strictly increasing by
// (tick, seq). Decoding validates the full ordering contract so a loaded
// stream carries the same guarantees as a freshly simulated one.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"fireknight/sim/internal/journal"
)

// FormatError is a user-facing event-stream validation failure.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return e.Reason }

func formatErrf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// IsFormatError reports whether err is a stream-format failure.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

type wireEvent struct {
	Tick  int             `json:"tick"`
	Seq   int             `json:"seq"`
	Type  string          `json:"type"`
	Actor *string         `json:"actor"`
	Data  json.RawMessage `json:"data"`
}

// Encode serializes events to the wire format.
func Encode(events []journal.Event) ([]byte, error) {
	out := make([]wireEvent, 0, len(events))
	for i, e := range events {
		var actor *string
		if e.Actor != "" {
			name := e.Actor
			actor = &name
		}
		data := json.RawMessage("{}")
		if e.Payload != nil {
			raw, err := json.Marshal(e.Payload)
			if err != nil {
				return nil, fmt.Errorf("stream: marshal event[%d] data: %w", i, err)
			}
			data = raw
		}
		out = append(out, wireEvent{
			Tick:  e.Tick,
			Seq:   e.Seq,
			Type:  string(e.Type),
			Actor: actor,
			Data:  data,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// WriteFile dumps events to a wire-format file.
func WriteFile(path string, events []journal.Event) error {
	raw, err := Encode(events)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	return os.WriteFile(path, raw, 0o644)
}

// LoadFile reads and validates a wire-format file.
func LoadFile(path string) ([]journal.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, formatErrf("cannot read event stream %s: %v", path, err)
	}
	return Decode(raw)
}

// Decode parses and validates wire-format bytes.
func Decode(raw []byte) ([]journal.Event, error) {
	var wire []wireEvent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, formatErrf("invalid event stream JSON: %v", err)
	}

	events := make([]journal.Event, 0, len(wire))
	lastTick, lastSeq := 0, 0
	haveLast := false

	for i, w := range wire {
		if w.Tick < 1 {
			return nil, formatErrf("event[%d].tick must be an int >= 1", i)
		}
		if w.Seq < 1 {
			return nil, formatErrf("event[%d].seq must be an int >= 1", i)
		}
		t := journal.EventType(w.Type)
		if !t.Known() {
			return nil, formatErrf("event[%d].type is not a valid event type: %q", i, w.Type)
		}
		if len(w.Data) > 0 && !isJSONObject(w.Data) {
			return nil, formatErrf("event[%d].data must be an object", i)
		}
		if haveLast && (w.Tick < lastTick || (w.Tick == lastTick && w.Seq <= lastSeq)) {
			return nil, formatErrf(
				"events must be strictly increasing by (tick, seq); event[%d] has (%d, %d) after (%d, %d)",
				i, w.Tick, w.Seq, lastTick, lastSeq)
		}
		lastTick, lastSeq = w.Tick, w.Seq
		haveLast = true

		payload, err := decodePayload(t, w.Data)
		if err != nil {
			return nil, formatErrf("event[%d]: %v", i, err)
		}

		actor := ""
		if w.Actor != nil {
			actor = *w.Actor
		}
		events = append(events, journal.Event{
			Tick:    w.Tick,
			Seq:     w.Seq,
			Type:    t,
			Actor:   actor,
			Payload: payload,
		})
	}
	return events, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func decodePayload(t journal.EventType, data json.RawMessage) (journal.Payload, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	unmarshal := func(v any) error {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("invalid %s data: %v", t, err)
		}
		return nil
	}

	switch t {
	case journal.EventTickStart:
		var p journal.TickStartPayload
		return p, unmarshal(&p)
	case journal.EventFillComplete:
		var p journal.FillCompletePayload
		return p, unmarshal(&p)
	case journal.EventWinnerSelected:
		var p journal.WinnerSelectedPayload
		return p, unmarshal(&p)
	case journal.EventResetApplied:
		var p journal.ResetAppliedPayload
		return p, unmarshal(&p)
	case journal.EventTurnStart:
		var p journal.TurnStartPayload
		return p, unmarshal(&p)
	case journal.EventTurnEnd:
		var p journal.TurnEndPayload
		return p, unmarshal(&p)
	case journal.EventEffectTriggered:
		var p journal.EffectTriggeredPayload
		return p, unmarshal(&p)
	case journal.EventEffectApplied:
		var p journal.EffectAppliedPayload
		return p, unmarshal(&p)
	case journal.EventEffectDurationChanged:
		var p journal.EffectDurationChangedPayload
		return p, unmarshal(&p)
	case journal.EventEffectExpired:
		var p journal.EffectExpiredPayload
		return p, unmarshal(&p)
	case journal.EventMasteryProc:
		var p journal.MasteryProcPayload
		return p, unmarshal(&p)
	case journal.EventMasteryProcRejected:
		var p journal.MasteryProcRejectedPayload
		return p, unmarshal(&p)
	case journal.EventSkillConsumed:
		var p journal.SkillConsumedPayload
		return p, unmarshal(&p)
	}
	return nil, fmt.Errorf("unhandled event type %q", t)
}
