// Package engine drives the simulation: one Step call advances the global
// tick, selects the acting actor, runs the TURN_START/TURN_END bracket, and
// appends every resulting fact to the journal.
package engine

import (
	"context"
	"errors"
	"fmt"

	"fireknight/sim/internal/battle"
	"fireknight/sim/internal/effects"
	"fireknight/sim/internal/hits"
	"fireknight/sim/internal/journal"
	"fireknight/sim/internal/mastery"
	"fireknight/sim/logging"
	logscheduler "fireknight/sim/logging/scheduler"
)

// ErrContractViolation marks a structurally invalid injected request: a
// caller/test bug, not user input. It is never swallowed.
var ErrContractViolation = errors.New("engine: contract violation")

// PhaseContext tells an expiration-request provider where in the turn it is
// being consulted.
type PhaseContext struct {
	Phase       journal.EventType
	ActingActor string
	ActingIndex int
	TurnCounter int
	Tick        int
}

// ExpireRequest asks the engine to expire one effect instance now.
type ExpireRequest struct {
	InstanceID string
	Reason     string
}

// HitProvider supplies the externally determined base shield hits for the
// winning actor's turn, keyed by contributor name.
type HitProvider interface {
	BaseHits(winner string) (map[string]int, error)
}

type HitProviderFunc func(winner string) (map[string]int, error)

func (f HitProviderFunc) BaseHits(winner string) (map[string]int, error) { return f(winner) }

// StaticHits adapts a fixed per-actor hit table (the legacy battle-spec
// form) to the HitProvider interface.
func StaticHits(table map[string]int) HitProvider {
	return HitProviderFunc(func(winner string) (map[string]int, error) {
		if len(table) == 0 {
			return nil, nil
		}
		out := make(map[string]int, len(table))
		for k, v := range table {
			out[k] = v
		}
		return out, nil
	})
}

// ExpirationRequestProvider injects expirations at turn boundaries.
type ExpirationRequestProvider interface {
	ExpirationRequests(ctx PhaseContext) []ExpireRequest
}

type ExpirationRequestProviderFunc func(ctx PhaseContext) []ExpireRequest

func (f ExpirationRequestProviderFunc) ExpirationRequests(ctx PhaseContext) []ExpireRequest {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// DamagedProvider declares which allies actually took damage on a boss
// turn, gating reflect contributions.
type DamagedProvider interface {
	DamagedOnBossTurn(boss string, step int) ([]string, bool)
}

type DamagedProviderFunc func(boss string, step int) ([]string, bool)

func (f DamagedProviderFunc) DamagedOnBossTurn(boss string, step int) ([]string, bool) {
	if f == nil {
		return nil, false
	}
	return f(boss, step)
}

// Scheduler owns one run's orchestration state. The roster and journal stay
// caller-owned; everything runs synchronously on the calling goroutine.
type Scheduler struct {
	roster      *battle.Roster
	log         *journal.Journal
	hitProvider HitProvider
	expirations ExpirationRequestProvider
	damaged     DamagedProvider
	resolver    *mastery.Resolver
	contrib     hits.Resolver
	pub         logging.Publisher
}

type Option func(*Scheduler)

func WithHitProvider(p HitProvider) Option {
	return func(s *Scheduler) { s.hitProvider = p }
}

func WithExpirationRequests(p ExpirationRequestProvider) Option {
	return func(s *Scheduler) { s.expirations = p }
}

func WithMasteryRequests(p mastery.RequestProvider) Option {
	return func(s *Scheduler) { s.resolver = mastery.NewResolver(p) }
}

func WithDamagedProvider(p DamagedProvider) Option {
	return func(s *Scheduler) { s.damaged = p }
}

func WithContributionResolver(r hits.Resolver) Option {
	return func(s *Scheduler) { s.contrib = r }
}

func WithPublisher(pub logging.Publisher) Option {
	return func(s *Scheduler) { s.pub = pub }
}

// New constructs a scheduler for one run.
func New(roster *battle.Roster, log *journal.Journal, opts ...Option) *Scheduler {
	s := &Scheduler{
		roster:   roster,
		log:      log,
		resolver: mastery.NewResolver(nil),
		contrib:  hits.Contributions,
		pub:      logging.NopPublisher(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver.SetPublisher(s.pub)
	return s
}

// Mastery exposes the run's proc resolver, mainly for tests inspecting
// qualifying counts.
func (s *Scheduler) Mastery() *mastery.Resolver { return s.resolver }

// Step advances the simulation by one global tick and returns the acting
// actor, or nil when nobody passed the gate.
//
// A normal step opens a new tick; resolving an extra turn re-uses the
// current tick (opening one only if none was ever opened), so an extra turn
// never advances the global battle clock.
func (s *Scheduler) Step() (*battle.Actor, error) {
	actors := s.roster.Actors()

	var winner *battle.Actor
	winnerIndex := -1
	extraTurn := false
	for i, a := range actors {
		if a.ExtraTurns > 0 {
			a.ExtraTurns--
			winner, winnerIndex = a, i
			extraTurn = true
			break
		}
	}

	if !extraTurn || s.log.CurrentTick() == 0 {
		s.log.StartTick()
		if err := s.log.Append(journal.EventTickStart, "", journal.TickStartPayload{}); err != nil {
			return nil, err
		}
	}

	if winner == nil {
		meters := make([]journal.MeterReading, 0, len(actors))
		for _, a := range actors {
			a.TurnMeter += a.Speed * a.SpeedMultiplier * effects.SpeedMultiplier(a.Effects)
			meters = append(meters, journal.MeterReading{Name: a.Name, TurnMeter: a.TurnMeter})
		}
		if err := s.log.Append(journal.EventFillComplete, "", journal.FillCompletePayload{Meters: meters}); err != nil {
			return nil, err
		}

		for i, a := range actors {
			if a.TurnMeter+battle.Eps < battle.MeterGate {
				continue
			}
			if winner == nil || beats(a, i, winner, winnerIndex) {
				winner, winnerIndex = a, i
			}
		}
		if winner == nil {
			logscheduler.IdleTick(context.Background(), s.pub, s.log.CurrentTick())
			return nil, nil
		}
	}

	preReset := winner.TurnMeter
	if err := s.log.Append(journal.EventWinnerSelected, winner.Name, journal.WinnerSelectedPayload{
		ActorIndex:    winnerIndex,
		PreResetMeter: preReset,
	}); err != nil {
		return nil, err
	}

	// Overflow above the gate is discarded, not carried forward.
	winner.TurnMeter = 0
	if err := s.log.Append(journal.EventResetApplied, winner.Name, journal.ResetAppliedPayload{ActorIndex: winnerIndex}); err != nil {
		return nil, err
	}

	// The boss shield refills at the start of the boss's own turn, before
	// the TURN_START snapshot is taken.
	if winner.IsBoss && winner.ShieldMax > 0 {
		winner.Shield = winner.ShieldMax
	}

	turn := s.log.NextTurn()

	if err := s.applyInjectedExpirations(journal.EventTurnStart, winner, winnerIndex, turn); err != nil {
		return nil, err
	}

	startPayload := journal.TurnStartPayload{ActorIndex: winnerIndex}
	if snap, ok := s.bossShieldSnapshot(); ok {
		value := snap.Value
		startPayload.BossShieldValue = &value
		startPayload.BossShieldStatus = snap.Status
	}
	if joiners := s.joinAttackJoiners(winner); joiners != nil {
		startPayload.JoinAttackJoiners = joiners
	}
	if err := s.log.Append(journal.EventTurnStart, winner.Name, startPayload); err != nil {
		return nil, err
	}

	if err := s.runTurnStartEffects(winner); err != nil {
		return nil, err
	}

	totalHits, err := s.applyShieldHits(winner, turn)
	if err != nil {
		return nil, err
	}

	if err := s.applyInjectedExpirations(journal.EventTurnEnd, winner, winnerIndex, turn); err != nil {
		return nil, err
	}

	if err := s.runTurnEndInstanceExpirations(winner, turn); err != nil {
		return nil, err
	}

	if err := s.resolver.ResolveTurnEnd(s.log, s.roster, winner, turn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContractViolation, err)
	}

	remaining, expired := effects.DecrementTurnEnd(winner.Effects)
	winner.Effects = remaining
	for _, e := range expired {
		if err := s.log.Append(journal.EventEffectExpired, winner.Name, journal.EffectExpiredPayload{
			Effect: string(e.Kind),
		}); err != nil {
			return nil, err
		}
	}

	endPayload := journal.TurnEndPayload{ActorIndex: winnerIndex}
	if snap, ok := s.bossShieldSnapshot(); ok {
		value := snap.Value
		endPayload.BossShieldValue = &value
		endPayload.BossShieldStatus = snap.Status
	}
	if err := s.log.Append(journal.EventTurnEnd, winner.Name, endPayload); err != nil {
		return nil, err
	}

	logscheduler.TurnResolved(context.Background(), s.pub, s.log.CurrentTick(), turn, logscheduler.TurnResolvedPayload{
		Winner:        winner.Name,
		ActorIndex:    winnerIndex,
		PreResetMeter: preReset,
		ExtraTurn:     extraTurn,
		ShieldHits:    totalHits,
	})
	return winner, nil
}

// beats implements the three-level tie-break: higher meter, then higher
// speed, then earlier list index. The index comparison is implicit: the
// scan visits actors in list order and a later actor must strictly beat the
// incumbent.
func beats(a *battle.Actor, _ int, incumbent *battle.Actor, _ int) bool {
	if a.TurnMeter != incumbent.TurnMeter {
		return a.TurnMeter > incumbent.TurnMeter
	}
	return a.Speed > incumbent.Speed
}

func (s *Scheduler) bossShieldSnapshot() (journal.ShieldSnapshot, bool) {
	boss, ok := s.roster.Boss()
	if !ok {
		return journal.ShieldSnapshot{}, false
	}
	status := journal.ShieldBroken
	if boss.Shield > 0 {
		status = journal.ShieldUp
	}
	return journal.ShieldSnapshot{Value: boss.Shield, Status: status}, true
}

// joinAttackJoiners is trace-only: allies sharing the winner's faction are
// reported as default-attack joiners without modeling the attacks.
func (s *Scheduler) joinAttackJoiners(winner *battle.Actor) []string {
	if winner.IsBoss || winner.Faction == "" {
		return nil
	}
	joiners := make([]string, 0)
	for _, a := range s.roster.Allies() {
		if a != winner && a.Faction == winner.Faction {
			joiners = append(joiners, a.Name)
		}
	}
	return joiners
}

func (s *Scheduler) runTurnStartEffects(winner *battle.Actor) error {
	remaining, expired, poisonDamage := effects.ApplyTurnStart(winner.Effects)
	winner.Effects = remaining
	if poisonDamage > 0 && winner.MaxHP > 0 {
		winner.HP -= poisonDamage
		if winner.HP < 0 {
			winner.HP = 0
		}
		if err := s.log.Append(journal.EventEffectTriggered, winner.Name, journal.EffectTriggeredPayload{
			Effect: string(battle.EffectPoison),
			Amount: poisonDamage,
			Phase:  journal.EventTurnStart,
		}); err != nil {
			return err
		}
	}
	for _, e := range expired {
		if err := s.log.Append(journal.EventEffectExpired, winner.Name, journal.EffectExpiredPayload{
			Effect: string(e.Kind),
			Phase:  journal.EventTurnStart,
		}); err != nil {
			return err
		}
	}
	return nil
}

// applyShieldHits merges base and reactive contributions and applies them
// against the boss shield. On the boss's own turn the boss's base
// contribution is discarded (its skill cannot hit its own shield) but
// reactive contributions from the team still land.
func (s *Scheduler) applyShieldHits(winner *battle.Actor, turn int) (int, error) {
	if s.hitProvider == nil {
		return 0, nil
	}
	base, err := s.hitProvider.BaseHits(winner.Name)
	if err != nil {
		return 0, err
	}

	ctx := hits.Context{BossTurn: winner.IsBoss, TurnCounter: turn}
	if winner.IsBoss && s.damaged != nil {
		if damaged, ok := s.damaged.DamagedOnBossTurn(winner.Name, turn); ok {
			ctx.Damaged = damaged
			ctx.HaveDamaged = true
		}
	}

	var extra map[string]int
	if s.contrib != nil {
		extra = s.contrib(winner, s.roster, base, ctx)
	}
	merged := hits.Merge(base, extra)
	if len(merged) == 0 {
		return 0, nil
	}

	boss, ok := s.roster.Boss()
	if !ok {
		return 0, nil
	}

	normal := 0
	for name, count := range merged {
		if name == hits.ReflectKey {
			continue
		}
		if winner.IsBoss && name == winner.Name {
			continue
		}
		normal += count
	}
	applied := 0
	if normal > 0 {
		boss.Shield = max(0, boss.Shield-normal)
		applied += normal
	}
	if reflect := merged[hits.ReflectKey]; reflect > 0 {
		boss.Shield = max(0, boss.Shield-reflect)
		applied += reflect
	}
	return applied, nil
}

func (s *Scheduler) applyInjectedExpirations(phase journal.EventType, winner *battle.Actor, winnerIndex, turn int) error {
	if s.expirations == nil {
		return nil
	}
	requests := s.expirations.ExpirationRequests(PhaseContext{
		Phase:       phase,
		ActingActor: winner.Name,
		ActingIndex: winnerIndex,
		TurnCounter: turn,
		Tick:        s.log.CurrentTick(),
	})
	for _, req := range requests {
		if req.InstanceID == "" {
			return fmt.Errorf("%w: expire request requires a non-empty instance id", ErrContractViolation)
		}
		if req.Reason == "" {
			return fmt.Errorf("%w: expire request for %s requires a reason", ErrContractViolation, req.InstanceID)
		}
		owner, inst, ok := s.roster.InstanceOwner(req.InstanceID)
		if !ok {
			return fmt.Errorf("%w: effect instance not found for instance id %q", ErrContractViolation, req.InstanceID)
		}
		owner.RemoveInstance(req.InstanceID)
		if err := s.log.Append(journal.EventEffectExpired, owner.Name, journal.EffectExpiredPayload{
			InstanceID:  inst.InstanceID,
			EffectID:    inst.EffectID,
			EffectKind:  inst.EffectKind,
			Owner:       owner.Name,
			PlacedBy:    inst.PlacedBy,
			Reason:      req.Reason,
			Phase:       phase,
			TurnCounter: turn,
			ActingActor: winner.Name,
		}); err != nil {
			return err
		}
		s.resolver.NoteExpiration(s.roster, inst)
	}
	return nil
}

func (s *Scheduler) runTurnEndInstanceExpirations(winner *battle.Actor, turn int) error {
	effects.DecrementActiveInstances(winner, turn)
	for _, inst := range effects.ExpiredInstances(winner) {
		if err := s.log.Append(journal.EventEffectExpired, winner.Name, journal.EffectExpiredPayload{
			InstanceID:  inst.InstanceID,
			EffectID:    inst.EffectID,
			EffectKind:  inst.EffectKind,
			Owner:       winner.Name,
			PlacedBy:    inst.PlacedBy,
			Reason:      "duration_elapsed",
			Phase:       journal.EventTurnEnd,
			TurnCounter: turn,
			ActingActor: winner.Name,
		}); err != nil {
			return err
		}
		s.resolver.NoteExpiration(s.roster, inst)
	}
	return nil
}
