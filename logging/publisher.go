package logging

import (
	"context"
	"time"
)

type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

const (
	CategoryScheduler = "scheduler"
	CategoryEffects   = "effects"
	CategoryMastery   = "mastery"
	CategorySystem    = "system"
)

// Event is a diagnostic record about the simulation. It is observational
// only: the deterministic battle journal never depends on it.
type Event struct {
	Type     EventType      `json:"type"`
	Tick     int            `json:"tick"`
	Turn     int            `json:"turn,omitempty"`
	Time     time.Time      `json:"time"`
	Actor    string         `json:"actor,omitempty"`
	Severity Severity       `json:"severity"`
	Category string         `json:"category,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

func NopPublisher() Publisher {
	return nopPublisher{}
}

type fieldPublisher struct {
	next   Publisher
	fields map[string]any
}

func (p *fieldPublisher) Publish(ctx context.Context, event Event) {
	if p.next == nil {
		return
	}
	if len(p.fields) > 0 {
		if event.Extra == nil {
			event.Extra = make(map[string]any, len(p.fields))
		}
		for k, v := range p.fields {
			if _, exists := event.Extra[k]; !exists {
				event.Extra[k] = v
			}
		}
	}
	p.next.Publish(ctx, event)
}

// WithFields decorates a publisher so every event carries the given extra
// fields unless the event already sets them.
func WithFields(next Publisher, fields map[string]any) Publisher {
	if next == nil {
		return NopPublisher()
	}
	if len(fields) == 0 {
		return next
	}
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &fieldPublisher{next: next, fields: copied}
}
