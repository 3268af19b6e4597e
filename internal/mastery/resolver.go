// Package mastery reconciles scripted mastery-proc requests against the
// qualifying buff expirations the engine actually observed. It is a guarded
// protocol: a declared expectation always resolves into an observable event,
// success or rejection, never a silent drop.
package mastery

import (
	"context"
	"fmt"
	"sort"

	"fireknight/sim/internal/battle"
	"fireknight/sim/internal/journal"
	"fireknight/sim/logging"
	logmastery "fireknight/sim/logging/mastery"
)

const (
	// RapidResponse is the one mastery with a built-in deterministic
	// effect: +10% of the meter gate per proc count.
	RapidResponse = "rapid_response"

	rapidResponseMeterShare = 0.10
)

const (
	ReasonNoQualifying  = "no_qualifying_expirations"
	ReasonCountMismatch = "requested_count_mismatch"
)

// Request is a scripted expectation: "this mastery should proc Count times
// for Holder at the step it is scoped to".
type Request struct {
	Holder  string
	Mastery string
	Count   int
}

// RequestProvider supplies the scripted requests scoped to one
// (holder, step) pair. A nil slice means no script exists for the pair.
type RequestProvider interface {
	RequestsFor(holder string, step int) []Request
}

// RequestProviderFunc adapts a function to the RequestProvider interface.
type RequestProviderFunc func(holder string, step int) []Request

func (f RequestProviderFunc) RequestsFor(holder string, step int) []Request {
	if f == nil {
		return nil
	}
	return f(holder, step)
}

type pairKey struct {
	holder string
	step   int
}

// Resolver accumulates qualifying expirations per (holder, step) for one
// simulation run and resolves declared requests against them at TURN_END
// boundaries. State resets with a fresh run.
type Resolver struct {
	provider RequestProvider
	counts   map[pairKey]int
	resolved map[pairKey]bool
	pub      logging.Publisher
}

// NewResolver constructs a resolver for one run. provider may be nil, in
// which case every boundary resolves silently.
func NewResolver(provider RequestProvider) *Resolver {
	return &Resolver{
		provider: provider,
		counts:   make(map[pairKey]int),
		resolved: make(map[pairKey]bool),
		pub:      logging.NopPublisher(),
	}
}

// SetPublisher routes guard verdicts to a diagnostic publisher.
func (r *Resolver) SetPublisher(pub logging.Publisher) {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	r.pub = pub
}

// NoteExpiration records a qualifying expiration: a BUFF whose placer
// resolves to a roster actor, keyed by that holder's current 1-based skill
// step. Non-buffs, unknown placers, and holders with no step yet do not
// qualify.
func (r *Resolver) NoteExpiration(roster *battle.Roster, inst *battle.EffectInstance) {
	if inst == nil || inst.EffectKind != battle.InstanceKindBuff {
		return
	}
	holder, _, ok := roster.Find(inst.PlacedBy)
	if !ok {
		return
	}
	step := holder.SkillStep()
	if step < 1 {
		return
	}
	r.counts[pairKey{holder: holder.Name, step: step}]++
}

// QualifyingCount reports the accumulated count for a (holder, step) pair.
func (r *Resolver) QualifyingCount(holder string, step int) int {
	return r.counts[pairKey{holder: holder, step: step}]
}

// ResolveTurnEnd runs the guard for one acting-actor TURN_END boundary,
// after all expirations for that boundary have been recorded.
//
// The evaluation set is every unresolved (holder, step) with qualifying
// expirations, plus the acting actor's own current pair so a request with
// zero qualifying expirations is rejected at the holder's own TURN_END
// instead of being dropped. Each pair resolves at most once per run.
func (r *Resolver) ResolveTurnEnd(log *journal.Journal, roster *battle.Roster, acting *battle.Actor, turnCounter int) error {
	pending := make(map[pairKey]bool)
	for key := range r.counts {
		if !r.resolved[key] {
			pending[key] = true
		}
	}
	if step := acting.SkillStep(); step >= 1 {
		key := pairKey{holder: acting.Name, step: step}
		if !r.resolved[key] {
			pending[key] = true
		}
	}
	if len(pending) == 0 {
		return nil
	}

	keys := make([]pairKey, 0, len(pending))
	for key := range pending {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].holder != keys[j].holder {
			return keys[i].holder < keys[j].holder
		}
		return keys[i].step < keys[j].step
	})

	for _, key := range keys {
		if err := r.resolvePair(log, roster, key, turnCounter); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) resolvePair(log *journal.Journal, roster *battle.Roster, key pairKey, turnCounter int) error {
	var requests []Request
	if r.provider != nil {
		requests = r.provider.RequestsFor(key.holder, key.step)
	}
	qualifying := r.counts[key]

	if len(requests) == 0 {
		// Absence of a script is not an error; resolve silently.
		if qualifying > 0 {
			r.resolved[key] = true
		}
		return nil
	}

	requestedTotal := 0
	for _, req := range requests {
		if req.Count <= 0 {
			return fmt.Errorf("mastery: request for (%s, %d) has non-positive count %d", key.holder, key.step, req.Count)
		}
		if req.Holder != key.holder {
			return fmt.Errorf("mastery: request holder %q does not match scope holder %q", req.Holder, key.holder)
		}
		requestedTotal += req.Count
	}

	r.resolved[key] = true

	if requestedTotal == qualifying {
		for _, req := range requests {
			if err := log.Append(journal.EventMasteryProc, req.Holder, journal.MasteryProcPayload{
				Holder:                    req.Holder,
				Mastery:                   req.Mastery,
				Count:                     req.Count,
				QualifyingExpirationCount: qualifying,
				ResolutionPhase:           journal.EventTurnEnd,
				ResolutionStep:            key.step,
				TurnCounter:               turnCounter,
			}); err != nil {
				return err
			}
			r.applyEffect(roster, req)
			logmastery.ProcResolved(context.Background(), r.pub, log.CurrentTick(), turnCounter, logmastery.ResolutionPayload{
				Holder:          req.Holder,
				Mastery:         req.Mastery,
				Step:            key.step,
				RequestedCount:  req.Count,
				QualifyingCount: qualifying,
			})
		}
		return nil
	}

	reason := ReasonCountMismatch
	if qualifying == 0 {
		reason = ReasonNoQualifying
	}
	for _, req := range requests {
		if err := log.Append(journal.EventMasteryProcRejected, req.Holder, journal.MasteryProcRejectedPayload{
			Holder:            req.Holder,
			Mastery:           req.Mastery,
			RequestedCount:    req.Count,
			QualifyingCount:   qualifying,
			SkillSequenceStep: key.step,
			TurnCounter:       turnCounter,
			Reason:            reason,
		}); err != nil {
			return err
		}
		logmastery.ProcRejected(context.Background(), r.pub, log.CurrentTick(), turnCounter, logmastery.ResolutionPayload{
			Holder:          req.Holder,
			Mastery:         req.Mastery,
			Step:            key.step,
			RequestedCount:  req.Count,
			QualifyingCount: qualifying,
			Reason:          reason,
		})
	}
	return nil
}

// applyEffect runs the mastery's deterministic effect plane. Unknown
// masteries resolve successfully with no state change.
func (r *Resolver) applyEffect(roster *battle.Roster, req Request) {
	if req.Mastery != RapidResponse {
		return
	}
	holder, _, ok := roster.Find(req.Holder)
	if !ok {
		return
	}
	holder.TurnMeter += battle.MeterGate * rapidResponseMeterShare * float64(req.Count)
}
