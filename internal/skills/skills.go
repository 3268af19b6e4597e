// Package skills turns a roster's declared skill sequences into per-turn
// hit contributions and buff placements. It advances each actor's cursor
// under the fail-fast sequence policy and records SKILL_CONSUMED facts.
package skills

import (
	"errors"
	"fmt"
	"strings"

	"fireknight/sim/internal/battle"
	"fireknight/sim/internal/battlespec"
	"fireknight/sim/internal/dataset"
	"fireknight/sim/internal/journal"
)

// ErrSequenceExhausted is the fail-fast policy violation: an actor's skill
// sequence ran out while the policy requires every turn to consume one.
var ErrSequenceExhausted = errors.New("skill sequence exhausted")

const (
	EffectIncreaseAtk  = "increase_atk"
	EffectIncreaseCDmg = "increase_c_dmg"
)

// Provider consumes skill sequences and resolves them to shield hits via
// the champion dataset, falling back to a static hits_by_actor table for
// actors without a sequence.
type Provider struct {
	roster   *battle.Roster
	log      *journal.Journal
	lookup   *dataset.Lookup
	policy   string
	fallback map[string]int
}

// NewProvider wires a skill provider for one run. lookup may be nil when no
// dataset is in play; fallback may be nil.
func NewProvider(roster *battle.Roster, log *journal.Journal, lookup *dataset.Lookup, policy string, fallback map[string]int) *Provider {
	return &Provider{
		roster:   roster,
		log:      log,
		lookup:   lookup,
		policy:   policy,
		fallback: fallback,
	}
}

// BaseHits implements the engine's hit-provider seam for the winning actor.
func (p *Provider) BaseHits(winner string) (map[string]int, error) {
	skillID, err := p.consumeNext(winner)
	if err != nil {
		return nil, err
	}

	var hits int
	if skillID != "" {
		if err := p.log.Append(journal.EventSkillConsumed, winner, journal.SkillConsumedPayload{SkillID: skillID}); err != nil {
			return nil, err
		}
		if err := p.applySideEffects(winner, skillID); err != nil {
			return nil, err
		}
		if p.lookup != nil {
			hits, err = p.lookup.HitsFor(winner, skillID)
			if err != nil {
				return nil, err
			}
		}
	} else {
		hits = p.fallback[winner]
	}

	if hits <= 0 {
		return nil, nil
	}
	return map[string]int{winner: hits}, nil
}

// consumeNext advances the winner's cursor and returns the consumed token.
// Empty string means no sequence applies to this turn.
func (p *Provider) consumeNext(winner string) (string, error) {
	if p.policy != battlespec.PolicyErrorIfExhausted {
		return "", nil
	}
	actor, _, ok := p.roster.Find(winner)
	if !ok || len(actor.SkillSequence) == 0 {
		return "", nil
	}
	if actor.SkillCursor >= len(actor.SkillSequence) {
		return "", fmt.Errorf("%w for %s (len=%d, cursor=%d)",
			ErrSequenceExhausted, actor.Name, len(actor.SkillSequence), actor.SkillCursor)
	}
	skillID := actor.SkillSequence[actor.SkillCursor]
	actor.SkillCursor++
	return skillID, nil
}

func isMikage(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mikage", "lady mikage":
		return true
	}
	return false
}

// applySideEffects models the skills that alter turn sequencing or buff
// state. Unknown skills do nothing; there is no combat math here.
func (p *Provider) applySideEffects(winner, skillID string) error {
	if !isMikage(winner) {
		return nil
	}
	actor, _, ok := p.roster.Find(winner)
	if !ok {
		return nil
	}

	token := strings.ToUpper(strings.TrimSpace(skillID))
	switch token {
	case "A_A4", "B_A4", "METAMORPH":
		// Metamorph grants an immediate extra turn; the scheduler
		// preempts the next tick's fill while ExtraTurns > 0.
		actor.ExtraTurns++
		return nil
	case "B_A3":
		return p.placeTeamBuffs(actor, token)
	case "B_A2":
		return p.extendAllyBuffs(actor, token)
	}
	return nil
}

// placeTeamBuffs puts Increase ATK and Increase C.DMG on every ally for two
// turns, stamped with the placement turn so the same-turn decrement guard
// holds.
func (p *Provider) placeTeamBuffs(holder *battle.Actor, token string) error {
	seqIndex := holder.SkillStep()
	appliedTurn := p.log.TurnCounter()

	for _, target := range p.roster.Allies() {
		for _, effectID := range []string{EffectIncreaseAtk, EffectIncreaseCDmg} {
			inst := &battle.EffectInstance{
				InstanceID:  fmt.Sprintf("fx_%s_%s_%d_%s_%s", holder.Name, token, seqIndex, target.Name, effectID),
				EffectID:    effectID,
				EffectKind:  battle.InstanceKindBuff,
				PlacedBy:    holder.Name,
				Duration:    2,
				AppliedTurn: appliedTurn,
			}
			target.ActiveEffects = append(target.ActiveEffects, inst)

			if err := p.log.Append(journal.EventEffectApplied, holder.Name, journal.EffectAppliedPayload{
				InstanceID:          inst.InstanceID,
				EffectID:            inst.EffectID,
				EffectKind:          inst.EffectKind,
				Owner:               target.Name,
				PlacedBy:            inst.PlacedBy,
				Duration:            inst.Duration,
				SourceSkillID:       token,
				SourceSequenceIndex: seqIndex,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// extendAllyBuffs adds one turn to every active ally BUFF.
func (p *Provider) extendAllyBuffs(holder *battle.Actor, token string) error {
	seqIndex := holder.SkillStep()

	for _, target := range p.roster.Allies() {
		for _, inst := range target.ActiveEffects {
			if inst == nil || inst.EffectKind != battle.InstanceKindBuff {
				continue
			}
			old := inst.Duration
			inst.Duration = old + 1

			if err := p.log.Append(journal.EventEffectDurationChanged, holder.Name, journal.EffectDurationChangedPayload{
				InstanceID:          inst.InstanceID,
				EffectID:            inst.EffectID,
				EffectKind:          inst.EffectKind,
				Owner:               target.Name,
				PlacedBy:            inst.PlacedBy,
				OldDuration:         old,
				NewDuration:         inst.Duration,
				Delta:               1,
				Reason:              token,
				SourceSkillID:       token,
				SourceSequenceIndex: seqIndex,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
