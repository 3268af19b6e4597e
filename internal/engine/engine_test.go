package engine

import (
	"bytes"
	"errors"
	"testing"

	"fireknight/sim/internal/battle"
	"fireknight/sim/internal/journal"
	"fireknight/sim/internal/mastery"
	"fireknight/sim/internal/stream"
)

func mustRoster(t *testing.T, actors ...*battle.Actor) *battle.Roster {
	t.Helper()
	roster, err := battle.NewRoster(actors)
	if err != nil {
		t.Fatalf("unexpected roster error: %v", err)
	}
	return roster
}

func fkBoss(shield int) *battle.Actor {
	boss := battle.NewActor("Fire Knight", 250)
	boss.IsBoss = true
	boss.Shield = shield
	boss.ShieldMax = shield
	return boss
}

func TestTieBreakProducesFixedWinnerSequence(t *testing.T) {
	roster := mustRoster(t,
		battle.NewActor("A", 340),
		battle.NewActor("B", 282),
		battle.NewActor("C", 255),
		battle.NewActor("D", 253),
		battle.NewActor("E", 252),
		fkBoss(21),
	)
	log := journal.New()
	sched := New(roster, log)

	type turn struct {
		tick   int
		winner string
	}
	var turns []turn
	for i := 0; i < 10; i++ {
		winner, err := sched.Step()
		if err != nil {
			t.Fatalf("unexpected step error: %v", err)
		}
		if winner != nil {
			turns = append(turns, turn{tick: log.CurrentTick(), winner: winner.Name})
		}
	}

	want := []turn{
		{5, "A"}, {6, "B"}, {7, "C"}, {8, "D"}, {9, "E"}, {10, "Fire Knight"},
	}
	if len(turns) != len(want) {
		t.Fatalf("expected %d turns, got %d: %+v", len(want), len(turns), turns)
	}
	for i, w := range want {
		if turns[i] != w {
			t.Fatalf("turn[%d]: expected %s on tick %d, got %s on tick %d",
				i, w.winner, w.tick, turns[i].winner, turns[i].tick)
		}
	}
}

func TestGateIsATriggerNotACap(t *testing.T) {
	slow := battle.NewActor("Slow", 100)
	roster := mustRoster(t, slow, fkBoss(0))
	log := journal.New()
	sched := New(roster, log)

	// Neither actor reaches the gate for several ticks; meters keep
	// accumulating and no turn opens.
	for i := 0; i < 3; i++ {
		winner, err := sched.Step()
		if err != nil {
			t.Fatalf("unexpected step error: %v", err)
		}
		if winner != nil {
			t.Fatalf("expected no winner on tick %d, got %s", log.CurrentTick(), winner.Name)
		}
	}
	for _, e := range log.Events() {
		if e.Type == journal.EventTurnStart {
			t.Fatalf("no TURN_START may appear while everyone is below the gate")
		}
	}
	if slow.TurnMeter != 300 {
		t.Fatalf("expected meter to accumulate to 300, got %v", slow.TurnMeter)
	}
}

func TestWinnerMeterResetDiscardsOverflow(t *testing.T) {
	fast := battle.NewActor("Fast", 2000)
	roster := mustRoster(t, fast, fkBoss(0))
	log := journal.New()
	sched := New(roster, log)

	winner, err := sched.Step()
	if err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}
	if winner == nil || winner.Name != "Fast" {
		t.Fatalf("expected Fast to win the first tick")
	}
	if winner.TurnMeter != 0 {
		t.Fatalf("expected meter reset to exactly 0, got %v", winner.TurnMeter)
	}

	var sawWinner bool
	for _, e := range log.Events() {
		if e.Type == journal.EventWinnerSelected {
			sawWinner = true
			p := e.Payload.(journal.WinnerSelectedPayload)
			if p.PreResetMeter != 2000 {
				t.Fatalf("expected pre_reset_tm 2000, got %v", p.PreResetMeter)
			}
		}
	}
	if !sawWinner {
		t.Fatalf("expected a WINNER_SELECTED event")
	}
}

func TestExtraTurnDoesNotAdvanceTick(t *testing.T) {
	fast := battle.NewActor("Fast", 2000)
	roster := mustRoster(t, fast, fkBoss(0))
	log := journal.New()
	sched := New(roster, log)

	if _, err := sched.Step(); err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}
	tickBefore := log.CurrentTick()
	turnBefore := log.TurnCounter()

	fast.ExtraTurns = 1
	winner, err := sched.Step()
	if err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}
	if winner == nil || winner.Name != "Fast" {
		t.Fatalf("expected the extra turn to go to Fast")
	}
	if log.CurrentTick() != tickBefore {
		t.Fatalf("extra turn advanced the tick: %d -> %d", tickBefore, log.CurrentTick())
	}
	if log.TurnCounter() != turnBefore+1 {
		t.Fatalf("extra turn must advance the turn counter: %d -> %d", turnBefore, log.TurnCounter())
	}
	if fast.ExtraTurns != 0 {
		t.Fatalf("expected extra turn to be consumed, got %d", fast.ExtraTurns)
	}
}

func TestExtraTurnOpensTheVeryFirstTick(t *testing.T) {
	fast := battle.NewActor("Fast", 2000)
	fast.ExtraTurns = 1
	roster := mustRoster(t, fast, fkBoss(0))
	log := journal.New()
	sched := New(roster, log)

	winner, err := sched.Step()
	if err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}
	if winner == nil || winner.Name != "Fast" {
		t.Fatalf("expected Fast to take the pre-battle extra turn")
	}
	if log.CurrentTick() != 1 {
		t.Fatalf("a first extra turn must still open tick 1, got %d", log.CurrentTick())
	}
	// No fill happened, so the meter stays at zero through the reset.
	if fast.TurnMeter != 0 {
		t.Fatalf("expected no fill on an extra turn, meter=%v", fast.TurnMeter)
	}
}

func TestBossShieldResetsBeforeTurnStartSnapshot(t *testing.T) {
	ch := battle.NewActor("Coldheart", 2000)
	boss := fkBoss(10)
	roster := mustRoster(t, ch, boss)
	log := journal.New()
	sched := New(roster, log, WithHitProvider(StaticHits(map[string]int{"Coldheart": 4})))

	// Coldheart knocks the shield down to 6.
	if _, err := sched.Step(); err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}
	if boss.Shield != 6 {
		t.Fatalf("expected shield 6 after 4 hits, got %d", boss.Shield)
	}

	// Advance until the boss acts; its own TURN_START must snapshot the
	// refilled shield.
	for i := 0; i < 20; i++ {
		winner, err := sched.Step()
		if err != nil {
			t.Fatalf("unexpected step error: %v", err)
		}
		if winner != nil && winner.IsBoss {
			break
		}
	}

	var bossStart *journal.TurnStartPayload
	for _, e := range log.Events() {
		if e.Type == journal.EventTurnStart && e.Actor == "Fire Knight" {
			p := e.Payload.(journal.TurnStartPayload)
			bossStart = &p
		}
	}
	if bossStart == nil {
		t.Fatalf("expected the boss to take a turn")
	}
	snap := bossStart.Shield()
	if snap == nil || snap.Value != 10 || snap.Status != journal.ShieldUp {
		t.Fatalf("expected boss TURN_START snapshot 10 UP, got %+v", snap)
	}
}

func TestBossOwnBaseHitsAreSuppressed(t *testing.T) {
	martyr := battle.NewActor("Martyr", 100)
	martyr.ActiveEffects = append(martyr.ActiveEffects, &battle.EffectInstance{
		InstanceID: "fx_counter",
		EffectID:   "counterattack",
		EffectKind: battle.InstanceKindBuff,
		Duration:   3,
	})
	boss := fkBoss(10)
	boss.Speed = 2000
	roster := mustRoster(t, martyr, boss)
	log := journal.New()
	sched := New(roster, log, WithHitProvider(StaticHits(map[string]int{"Fire Knight": 5})))

	winner, err := sched.Step()
	if err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}
	if winner == nil || !winner.IsBoss {
		t.Fatalf("expected the boss to act first")
	}
	// The boss's 5 base hits are discarded; Martyr's counterattack lands 1.
	if boss.Shield != 9 {
		t.Fatalf("expected shield 9 after counterattack only, got %d", boss.Shield)
	}
}

func TestBossShieldFloorsAtZero(t *testing.T) {
	ch := battle.NewActor("Coldheart", 2000)
	boss := fkBoss(3)
	roster := mustRoster(t, ch, boss)
	log := journal.New()
	sched := New(roster, log, WithHitProvider(StaticHits(map[string]int{"Coldheart": 100})))

	if _, err := sched.Step(); err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}
	if boss.Shield != 0 {
		t.Fatalf("expected shield floored at 0, got %d", boss.Shield)
	}

	var end *journal.TurnEndPayload
	for _, e := range log.Events() {
		if e.Type == journal.EventTurnEnd {
			p := e.Payload.(journal.TurnEndPayload)
			end = &p
		}
	}
	if end == nil {
		t.Fatalf("expected a TURN_END event")
	}
	if snap := end.Shield(); snap == nil || snap.Value != 0 || snap.Status != journal.ShieldBroken {
		t.Fatalf("expected TURN_END snapshot 0 BROKEN, got %+v", end.Shield())
	}
}

func TestInjectedExpirationUnknownInstanceRaises(t *testing.T) {
	fast := battle.NewActor("Fast", 2000)
	roster := mustRoster(t, fast, fkBoss(0))
	log := journal.New()
	sched := New(roster, log, WithExpirationRequests(ExpirationRequestProviderFunc(
		func(ctx PhaseContext) []ExpireRequest {
			if ctx.Phase == journal.EventTurnStart {
				return []ExpireRequest{{InstanceID: "fx_missing", Reason: "injected"}}
			}
			return nil
		})))

	_, err := sched.Step()
	if err == nil {
		t.Fatalf("expected an unknown instance id to raise")
	}
	if !errors.Is(err, ErrContractViolation) {
		t.Fatalf("expected a contract violation, got %v", err)
	}
}

func TestInjectedExpirationEmitsFactAndCounts(t *testing.T) {
	mikage := battle.NewActor("Mikage", 2000)
	mikage.SkillCursor = 2
	martyr := battle.NewActor("Martyr", 100)
	martyr.ActiveEffects = append(martyr.ActiveEffects, &battle.EffectInstance{
		InstanceID: "fx_atk",
		EffectID:   "increase_atk",
		EffectKind: battle.InstanceKindBuff,
		PlacedBy:   "Mikage",
		Duration:   2,
	})
	roster := mustRoster(t, mikage, martyr, fkBoss(0))
	log := journal.New()
	sched := New(roster, log, WithExpirationRequests(ExpirationRequestProviderFunc(
		func(ctx PhaseContext) []ExpireRequest {
			if ctx.Phase == journal.EventTurnEnd && ctx.ActingActor == "Mikage" {
				return []ExpireRequest{{InstanceID: "fx_atk", Reason: "injected"}}
			}
			return nil
		})))

	if _, err := sched.Step(); err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}

	var expirations []journal.EffectExpiredPayload
	for _, e := range log.Events() {
		if e.Type == journal.EventEffectExpired {
			expirations = append(expirations, e.Payload.(journal.EffectExpiredPayload))
		}
	}
	if len(expirations) != 1 {
		t.Fatalf("expected exactly one expiration fact, got %d", len(expirations))
	}
	p := expirations[0]
	if p.InstanceID != "fx_atk" || p.Owner != "Martyr" || p.PlacedBy != "Mikage" {
		t.Fatalf("unexpected expiration payload: %+v", p)
	}
	if p.Reason != "injected" || p.Phase != journal.EventTurnEnd || p.ActingActor != "Mikage" {
		t.Fatalf("unexpected expiration causal fields: %+v", p)
	}
	if len(martyr.ActiveEffects) != 0 {
		t.Fatalf("expected the instance to be removed from its owner")
	}
	if got := sched.Mastery().QualifyingCount("Mikage", 2); got != 1 {
		t.Fatalf("expected 1 qualifying expiration for (Mikage, 2), got %d", got)
	}
}

func TestExpirationsResolveBeforeMasteryProcBeforeTurnEnd(t *testing.T) {
	mikage := battle.NewActor("Mikage", 2000)
	mikage.SkillCursor = 1
	mikage.ActiveEffects = append(mikage.ActiveEffects, &battle.EffectInstance{
		InstanceID:  "fx_self",
		EffectID:    "increase_atk",
		EffectKind:  battle.InstanceKindBuff,
		PlacedBy:    "Mikage",
		Duration:    1,
		AppliedTurn: 0,
	})
	roster := mustRoster(t, mikage, fkBoss(0))
	log := journal.New()
	sched := New(roster, log, WithMasteryRequests(mastery.RequestProviderFunc(
		func(holder string, step int) []mastery.Request {
			if holder == "Mikage" && step == 1 {
				return []mastery.Request{{Holder: "Mikage", Mastery: mastery.RapidResponse, Count: 1}}
			}
			return nil
		})))

	if _, err := sched.Step(); err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}

	expiredIdx, procIdx, endIdx := -1, -1, -1
	for i, e := range log.Events() {
		switch e.Type {
		case journal.EventEffectExpired:
			expiredIdx = i
		case journal.EventMasteryProc:
			procIdx = i
		case journal.EventTurnEnd:
			endIdx = i
		}
	}
	if expiredIdx < 0 || procIdx < 0 || endIdx < 0 {
		t.Fatalf("expected expiration, proc, and turn end events; got %d/%d/%d", expiredIdx, procIdx, endIdx)
	}
	if !(expiredIdx < procIdx && procIdx < endIdx) {
		t.Fatalf("expected EFFECT_EXPIRED < MASTERY_PROC < TURN_END, got %d/%d/%d", expiredIdx, procIdx, endIdx)
	}
}

func TestPlacementTurnGuardHoldsThroughOwnTurnEnd(t *testing.T) {
	fast := battle.NewActor("Fast", 2000)
	fast.ActiveEffects = append(fast.ActiveEffects, &battle.EffectInstance{
		InstanceID:  "fx_fresh",
		EffectID:    "increase_atk",
		EffectKind:  battle.InstanceKindBuff,
		PlacedBy:    "Fast",
		Duration:    2,
		AppliedTurn: 1,
	})
	roster := mustRoster(t, fast, fkBoss(0))
	log := journal.New()
	sched := New(roster, log)

	// Turn 1 is the placement turn; the duration must not move.
	if _, err := sched.Step(); err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}
	if fast.ActiveEffects[0].Duration != 2 {
		t.Fatalf("expected duration unchanged through the placement turn, got %d", fast.ActiveEffects[0].Duration)
	}

	// Advance to Fast's next turn; now it decrements.
	for i := 0; i < 20; i++ {
		winner, err := sched.Step()
		if err != nil {
			t.Fatalf("unexpected step error: %v", err)
		}
		if winner != nil && winner.Name == "Fast" {
			break
		}
	}
	if fast.ActiveEffects[0].Duration != 1 {
		t.Fatalf("expected duration 1 after the second turn, got %d", fast.ActiveEffects[0].Duration)
	}
}

func TestPoisonTriggersAndDecrementsAtTurnStart(t *testing.T) {
	// decrease_spd slows the fill to 0.7x, so the speed has to clear the
	// gate even when multiplied down.
	fast := battle.NewActor("Fast", 3000)
	fast.HP = 100
	fast.MaxHP = 100
	fast.Effects = []battle.Effect{
		{Kind: battle.EffectPoison, TurnsRemaining: 2, Magnitude: 40},
		{Kind: battle.EffectDecreaseSpd, TurnsRemaining: 2, Magnitude: 0.30},
	}
	roster := mustRoster(t, fast, fkBoss(0))
	log := journal.New()
	sched := New(roster, log)

	if _, err := sched.Step(); err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}
	if fast.HP != 60 {
		t.Fatalf("expected 40 poison damage, HP=%v", fast.HP)
	}

	var triggered *journal.EffectTriggeredPayload
	for _, e := range log.Events() {
		if e.Type == journal.EventEffectTriggered {
			p := e.Payload.(journal.EffectTriggeredPayload)
			triggered = &p
		}
	}
	if triggered == nil {
		t.Fatalf("expected an EFFECT_TRIGGERED fact")
	}
	if triggered.Effect != string(battle.EffectPoison) || triggered.Phase != journal.EventTurnStart {
		t.Fatalf("unexpected trigger payload: %+v", triggered)
	}

	// Poison decremented at TURN_START, decrease_spd at TURN_END.
	for _, e := range fast.Effects {
		if e.TurnsRemaining != 1 {
			t.Fatalf("expected both effects at 1 turn remaining, got %+v", fast.Effects)
		}
	}
}

func TestDecreaseSpdSlowsFill(t *testing.T) {
	slowed := battle.NewActor("Slowed", 2000)
	slowed.Effects = []battle.Effect{
		{Kind: battle.EffectDecreaseSpd, TurnsRemaining: 3, Magnitude: 0.30},
	}
	roster := mustRoster(t, slowed, fkBoss(0))
	log := journal.New()
	sched := New(roster, log)

	if _, err := sched.Step(); err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}

	for _, e := range log.Events() {
		if e.Type == journal.EventFillComplete {
			p := e.Payload.(journal.FillCompletePayload)
			if len(p.Meters) != 2 {
				t.Fatalf("expected 2 meter readings, got %d", len(p.Meters))
			}
			if got := p.Meters[0].TurnMeter; got < 1400-1e-6 || got > 1400+1e-6 {
				t.Fatalf("expected slowed fill 1400, got %v", got)
			}
			return
		}
	}
	t.Fatalf("expected a FILL_COMPLETE event")
}

func TestDeterministicReplayIsByteIdentical(t *testing.T) {
	run := func() []byte {
		mikage := battle.NewActor("Mikage", 340)
		mikage.SkillCursor = 1
		boss := fkBoss(21)
		roster := mustRoster(t,
			mikage,
			battle.NewActor("B", 282),
			battle.NewActor("C", 255),
			boss,
		)
		log := journal.New()
		sched := New(roster, log, WithHitProvider(StaticHits(map[string]int{"Mikage": 2, "B": 1})))
		for i := 0; i < 12; i++ {
			if _, err := sched.Step(); err != nil {
				t.Fatalf("unexpected step error: %v", err)
			}
		}
		raw, err := stream.Encode(log.Events())
		if err != nil {
			t.Fatalf("unexpected encode error: %v", err)
		}
		return raw
	}

	first := run()
	second := run()
	if !bytes.Equal(first, second) {
		t.Fatalf("expected byte-identical event streams across runs")
	}
}

func TestJoinAttackJoinersListedOnTurnStart(t *testing.T) {
	a := battle.NewActor("A", 2000)
	a.Faction = "shadowkin"
	b := battle.NewActor("B", 100)
	b.Faction = "shadowkin"
	c := battle.NewActor("C", 100)
	c.Faction = "banner_lords"
	roster := mustRoster(t, a, b, c, fkBoss(0))
	log := journal.New()
	sched := New(roster, log)

	if _, err := sched.Step(); err != nil {
		t.Fatalf("unexpected step error: %v", err)
	}

	for _, e := range log.Events() {
		if e.Type == journal.EventTurnStart {
			p := e.Payload.(journal.TurnStartPayload)
			if len(p.JoinAttackJoiners) != 1 || p.JoinAttackJoiners[0] != "B" {
				t.Fatalf("expected joiners [B], got %v", p.JoinAttackJoiners)
			}
			return
		}
	}
	t.Fatalf("expected a TURN_START event")
}
