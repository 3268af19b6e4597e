// Package effects holds the pure effect-model computations consulted by the
// scheduler: speed multipliers from legacy countdown effects, the
// TURN_START poison trigger, and the TURN_END duration transitions for both
// the legacy model and structured effect instances.
package effects

import "fireknight/sim/internal/battle"

// SpeedMultiplier returns the multiplicative fill modifier from active
// DECREASE_SPD effects, 1.0 when none apply. Magnitudes are clamped to
// [0, 1] so a malformed effect can never invert the fill direction.
func SpeedMultiplier(list []battle.Effect) float64 {
	mult := 1.0
	for _, e := range list {
		if e.TurnsRemaining <= 0 {
			continue
		}
		if e.Kind == battle.EffectDecreaseSpd {
			mag := e.Magnitude
			if mag < 0 {
				mag = 0
			}
			if mag > 1 {
				mag = 1
			}
			mult *= 1 - mag
		}
	}
	return mult
}

// ApplyTurnStart isolates the TURN_START phase: POISON deals its magnitude
// as damage and decrements its own duration here, not at TURN_END. Every
// other kind passes through unchanged.
func ApplyTurnStart(list []battle.Effect) (remaining, expired []battle.Effect, poisonDamage float64) {
	remaining = make([]battle.Effect, 0, len(list))
	for _, e := range list {
		if e.Kind != battle.EffectPoison {
			remaining = append(remaining, e)
			continue
		}
		if e.TurnsRemaining <= 0 {
			expired = append(expired, e)
			continue
		}
		poisonDamage += e.Magnitude
		e.TurnsRemaining--
		if e.TurnsRemaining <= 0 {
			expired = append(expired, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	return remaining, expired, poisonDamage
}

// DecrementTurnEnd counts down every legacy effect except POISON, which
// already decremented at TURN_START. The returned slices partition the input
// into still-active and newly-expired effects.
func DecrementTurnEnd(list []battle.Effect) (remaining, expired []battle.Effect) {
	remaining = make([]battle.Effect, 0, len(list))
	for _, e := range list {
		if e.Kind == battle.EffectPoison {
			remaining = append(remaining, e)
			continue
		}
		if e.TurnsRemaining <= 0 {
			expired = append(expired, e)
			continue
		}
		e.TurnsRemaining--
		if e.TurnsRemaining <= 0 {
			expired = append(expired, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	return remaining, expired
}

// DecrementActiveInstances walks the owner's BUFF instances at TURN_END,
// skipping any instance placed on the current turn-bookmark value, and
// returns each instance's duration before this pass keyed by instance id.
// The before-map feeds expiration reporting and the mastery-proc guard.
func DecrementActiveInstances(owner *battle.Actor, currentTurn int) map[string]int {
	before := make(map[string]int, len(owner.ActiveEffects))
	for _, inst := range owner.ActiveEffects {
		if inst == nil || inst.EffectKind != battle.InstanceKindBuff {
			continue
		}
		before[inst.InstanceID] = inst.Duration
		if inst.AppliedTurn == currentTurn {
			continue
		}
		if inst.Duration > 0 {
			inst.Duration--
		}
	}
	return before
}

// ExpiredInstances removes every BUFF instance whose duration reached zero
// from the owner and returns them in carry order. An expired instance is
// never left present across a tick boundary.
func ExpiredInstances(owner *battle.Actor) []*battle.EffectInstance {
	var expired []*battle.EffectInstance
	kept := owner.ActiveEffects[:0]
	for _, inst := range owner.ActiveEffects {
		if inst != nil && inst.EffectKind == battle.InstanceKindBuff && inst.Duration <= 0 {
			expired = append(expired, inst)
			continue
		}
		kept = append(kept, inst)
	}
	owner.ActiveEffects = kept
	return expired
}
