package battle

// MeterGate is the turn-meter eligibility threshold. It is a trigger, not a
// cap: meters keep accumulating tick over tick until an actor wins a turn.
const MeterGate = 1430.0

// Eps absorbs float rounding when comparing meters against the gate.
const Eps = 1e-9

// EffectKind identifies a legacy countdown effect.
type EffectKind string

const (
	EffectDecreaseSpd EffectKind = "DECREASE_SPD"
	EffectPoison      EffectKind = "POISON"
)

// Effect is the legacy duration model: TurnsRemaining counts down at the
// affected actor's TURN_END, except POISON which triggers and counts down at
// TURN_START. TurnsRemaining <= 0 means inert and removable.
type Effect struct {
	Kind           EffectKind
	TurnsRemaining int
	Magnitude      float64
}

// InstanceKindBuff is the only structured effect kind that participates in
// engine-owned duration tracking.
const InstanceKindBuff = "BUFF"

// EffectInstance is a structured buff/debuff placed on an actor. Duration is
// decremented once per eligible TURN_END of the owner; an instance never
// decrements on the turn-bookmark value it was placed on.
type EffectInstance struct {
	InstanceID  string
	EffectID    string
	EffectKind  string
	PlacedBy    string
	Duration    int
	AppliedTurn int
}

// Blessing is contributor-level configuration consumed by the hit
// contribution resolver (e.g. phantom_touch, faultless_defense).
type Blessing struct {
	Cooldown int
	Rank     int
}

// Actor is mutable per-combatant state. Actors are owned by the caller; the
// engine mutates them in place and never creates or destroys one.
type Actor struct {
	Name            string
	Speed           float64
	SpeedMultiplier float64
	TurnMeter       float64
	ExtraTurns      int

	IsBoss    bool
	Shield    int
	ShieldMax int

	Faction string
	// Form selects between alternate skill kits for shapeshifting
	// champions ("base" when empty).
	Form string

	HP    float64
	MaxHP float64

	SkillSequence []string
	// SkillCursor counts consumed sequence entries. The mastery proc
	// protocol reads it as a 1-based "step".
	SkillCursor int

	Blessings map[string]Blessing

	Effects       []Effect
	ActiveEffects []*EffectInstance
}

// NewActor returns an actor with the neutral speed multiplier applied.
func NewActor(name string, speed float64) *Actor {
	return &Actor{Name: name, Speed: speed, SpeedMultiplier: 1.0}
}

// SkillStep reports the actor's current 1-based skill-sequence step: the
// number of sequence entries consumed so far. Zero means no step yet.
func (a *Actor) SkillStep() int {
	return a.SkillCursor
}

// HasBlessing reports whether the actor's configuration declares the named
// blessing.
func (a *Actor) HasBlessing(name string) bool {
	if a == nil || len(a.Blessings) == 0 {
		return false
	}
	_, ok := a.Blessings[name]
	return ok
}

// HasActiveBuff reports whether the actor carries an active BUFF instance
// with the given effect id.
func (a *Actor) HasActiveBuff(effectID string) bool {
	if a == nil {
		return false
	}
	for _, inst := range a.ActiveEffects {
		if inst != nil && inst.EffectKind == InstanceKindBuff && inst.EffectID == effectID {
			return true
		}
	}
	return false
}

// RemoveInstance detaches the instance with the given id from the actor and
// returns it, or nil when the actor does not carry it.
func (a *Actor) RemoveInstance(instanceID string) *EffectInstance {
	for i, inst := range a.ActiveEffects {
		if inst != nil && inst.InstanceID == instanceID {
			a.ActiveEffects = append(a.ActiveEffects[:i], a.ActiveEffects[i+1:]...)
			return inst
		}
	}
	return nil
}
