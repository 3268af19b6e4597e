package journal

// EventType enumerates the closed vocabulary the engine emits.
type EventType string

const (
	EventTickStart             EventType = "TICK_START"
	EventFillComplete          EventType = "FILL_COMPLETE"
	EventWinnerSelected        EventType = "WINNER_SELECTED"
	EventResetApplied          EventType = "RESET_APPLIED"
	EventTurnStart             EventType = "TURN_START"
	EventTurnEnd               EventType = "TURN_END"
	EventEffectTriggered       EventType = "EFFECT_TRIGGERED"
	EventEffectApplied         EventType = "EFFECT_APPLIED"
	EventEffectDurationChanged EventType = "EFFECT_DURATION_CHANGED"
	EventEffectExpired         EventType = "EFFECT_EXPIRED"
	EventMasteryProc           EventType = "MASTERY_PROC"
	EventMasteryProcRejected   EventType = "MASTERY_PROC_REJECTED"
	EventSkillConsumed         EventType = "SKILL_CONSUMED"
)

// Known reports whether the type belongs to the closed vocabulary.
func (t EventType) Known() bool {
	switch t {
	case EventTickStart, EventFillComplete, EventWinnerSelected,
		EventResetApplied, EventTurnStart, EventTurnEnd,
		EventEffectTriggered, EventEffectApplied,
		EventEffectDurationChanged, EventEffectExpired,
		EventMasteryProc, EventMasteryProcRejected, EventSkillConsumed:
		return true
	}
	return false
}

const (
	ShieldUp     = "UP"
	ShieldBroken = "BROKEN"
)

// Payload is the tagged union of per-event-type data. Consumers type-switch
// on the concrete payload instead of probing an open key/value map.
type Payload interface {
	eventPayload()
}

type TickStartPayload struct{}

// MeterReading captures one actor's turn meter after a simultaneous fill.
type MeterReading struct {
	Name      string  `json:"name"`
	TurnMeter float64 `json:"turn_meter"`
}

type FillCompletePayload struct {
	Meters []MeterReading `json:"meters"`
}

type WinnerSelectedPayload struct {
	ActorIndex int `json:"actor_index"`
	// PreResetMeter is the winning meter before the reset, kept for audit.
	PreResetMeter float64 `json:"pre_reset_tm"`
}

type ResetAppliedPayload struct {
	ActorIndex int `json:"actor_index"`
}

type TurnStartPayload struct {
	ActorIndex        int      `json:"actor_index"`
	BossShieldValue   *int     `json:"boss_shield_value,omitempty"`
	BossShieldStatus  string   `json:"boss_shield_status,omitempty"`
	JoinAttackJoiners []string `json:"join_attack_joiners,omitempty"`
}

type TurnEndPayload struct {
	ActorIndex       int    `json:"actor_index"`
	BossShieldValue  *int   `json:"boss_shield_value,omitempty"`
	BossShieldStatus string `json:"boss_shield_status,omitempty"`
}

type EffectTriggeredPayload struct {
	Effect string    `json:"effect"`
	Amount float64   `json:"amount"`
	Phase  EventType `json:"phase"`
}

type EffectAppliedPayload struct {
	InstanceID          string `json:"instance_id"`
	EffectID            string `json:"effect_id"`
	EffectKind          string `json:"effect_kind"`
	Owner               string `json:"owner"`
	PlacedBy            string `json:"placed_by"`
	Duration            int    `json:"duration"`
	SourceSkillID       string `json:"source_skill_id,omitempty"`
	SourceSequenceIndex int    `json:"source_sequence_index,omitempty"`
}

type EffectDurationChangedPayload struct {
	InstanceID          string `json:"instance_id"`
	EffectID            string `json:"effect_id"`
	EffectKind          string `json:"effect_kind"`
	Owner               string `json:"owner"`
	PlacedBy            string `json:"placed_by"`
	OldDuration         int    `json:"old_duration"`
	NewDuration         int    `json:"new_duration"`
	Delta               int    `json:"delta"`
	Reason              string `json:"reason,omitempty"`
	SourceSkillID       string `json:"source_skill_id,omitempty"`
	SourceSequenceIndex int    `json:"source_sequence_index,omitempty"`
}

// EffectExpiredPayload covers both structured instance expirations (the
// instance fields are set) and legacy countdown expirations (only Effect is
// set).
type EffectExpiredPayload struct {
	InstanceID  string    `json:"instance_id,omitempty"`
	EffectID    string    `json:"effect_id,omitempty"`
	EffectKind  string    `json:"effect_kind,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	PlacedBy    string    `json:"placed_by,omitempty"`
	Effect      string    `json:"effect,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Phase       EventType `json:"phase,omitempty"`
	TurnCounter int       `json:"turn_counter,omitempty"`
	ActingActor string    `json:"acting_actor,omitempty"`
}

type MasteryProcPayload struct {
	Holder                    string    `json:"holder"`
	Mastery                   string    `json:"mastery"`
	Count                     int       `json:"count"`
	QualifyingExpirationCount int       `json:"qualifying_expiration_count"`
	ResolutionPhase           EventType `json:"resolution_phase"`
	ResolutionStep            int       `json:"resolution_step"`
	TurnCounter               int       `json:"turn_counter"`
}

type MasteryProcRejectedPayload struct {
	Holder            string `json:"holder"`
	Mastery           string `json:"mastery"`
	RequestedCount    int    `json:"requested_count"`
	QualifyingCount   int    `json:"qualifying_count"`
	SkillSequenceStep int    `json:"skill_sequence_step"`
	TurnCounter       int    `json:"turn_counter"`
	Reason            string `json:"reason"`
}

type SkillConsumedPayload struct {
	SkillID string `json:"skill_id"`
}

func (TickStartPayload) eventPayload()             {}
func (FillCompletePayload) eventPayload()          {}
func (WinnerSelectedPayload) eventPayload()        {}
func (ResetAppliedPayload) eventPayload()          {}
func (TurnStartPayload) eventPayload()             {}
func (TurnEndPayload) eventPayload()               {}
func (EffectTriggeredPayload) eventPayload()       {}
func (EffectAppliedPayload) eventPayload()         {}
func (EffectDurationChangedPayload) eventPayload() {}
func (EffectExpiredPayload) eventPayload()         {}
func (MasteryProcPayload) eventPayload()           {}
func (MasteryProcRejectedPayload) eventPayload()   {}
func (SkillConsumedPayload) eventPayload()         {}

// Event is an immutable fact ordered by (Tick, Seq) across the whole log.
// Actor is empty when the fact is not attributed to a combatant.
type Event struct {
	Tick    int
	Seq     int
	Type    EventType
	Actor   string
	Payload Payload
}

// ShieldSnapshot is the derived boss-shield state stamped onto turn
// brackets.
type ShieldSnapshot struct {
	Value  int
	Status string
}

// Shield extracts the snapshot carried by a TURN_START payload, if any.
func (p TurnStartPayload) Shield() *ShieldSnapshot {
	if p.BossShieldValue == nil {
		return nil
	}
	return &ShieldSnapshot{Value: *p.BossShieldValue, Status: p.BossShieldStatus}
}

// Shield extracts the snapshot carried by a TURN_END payload, if any.
func (p TurnEndPayload) Shield() *ShieldSnapshot {
	if p.BossShieldValue == nil {
		return nil
	}
	return &ShieldSnapshot{Value: *p.BossShieldValue, Status: p.BossShieldStatus}
}
