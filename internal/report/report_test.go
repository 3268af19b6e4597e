package report

import (
	"strings"
	"testing"

	"fireknight/sim/internal/journal"
)

func intPtr(v int) *int { return &v }

func bracket(t *testing.T, log *journal.Journal, actor string, pre, post int, skill string) {
	t.Helper()
	preVal := pre
	start := journal.TurnStartPayload{BossShieldValue: &preVal, BossShieldStatus: shieldStatus(pre)}
	if err := log.Append(journal.EventTurnStart, actor, start); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if skill != "" {
		if err := log.Append(journal.EventSkillConsumed, actor, journal.SkillConsumedPayload{SkillID: skill}); err != nil {
			t.Fatalf("unexpected append error: %v", err)
		}
	}
	postVal := post
	end := journal.TurnEndPayload{BossShieldValue: &postVal, BossShieldStatus: shieldStatus(post)}
	if err := log.Append(journal.EventTurnEnd, actor, end); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
}

func shieldStatus(value int) string {
	if value > 0 {
		return journal.ShieldUp
	}
	return journal.ShieldBroken
}

func sampleEvents(t *testing.T) []journal.Event {
	t.Helper()
	log := journal.New()
	log.StartTick()
	bracket(t, log, "Mikage", 21, 20, "A1")
	bracket(t, log, "Coldheart", 20, 16, "A1")
	bracket(t, log, "Fire Knight", 21, 21, "")
	bracket(t, log, "Mikage", 21, 19, "B_A1")
	return log.Events()
}

func TestDeriveTurnRows(t *testing.T) {
	rows := DeriveTurnRows(sampleEvents(t))
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	first := rows[0]
	if first.Actor != "Mikage" {
		t.Fatalf("expected Mikage first, got %q", first.Actor)
	}
	if first.PreShield == nil || first.PreShield.Value != 21 {
		t.Fatalf("unexpected pre shield: %+v", first.PreShield)
	}
	if first.PostShield == nil || first.PostShield.Value != 20 {
		t.Fatalf("unexpected post shield: %+v", first.PostShield)
	}
	if got := first.SkillToken(); got != "A1" {
		t.Fatalf("expected skill token A1, got %q", got)
	}
	if got := rows[2].SkillToken(); got != "" {
		t.Fatalf("expected no token for the boss row, got %q", got)
	}
}

func TestDeriveTurnRowsDropsStrayEvents(t *testing.T) {
	log := journal.New()
	log.StartTick()
	// Events outside any bracket must not produce rows.
	if err := log.Append(journal.EventFillComplete, "", journal.FillCompletePayload{}); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	bracket(t, log, "Mikage", 21, 20, "")
	rows := DeriveTurnRows(log.Events())
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	// The stray event is not attached to the row.
	for _, e := range rows[0].Events {
		if e.Type == journal.EventFillComplete {
			t.Fatalf("stray events must not leak into a row")
		}
	}
}

func TestGroupBossFrames(t *testing.T) {
	rows := DeriveTurnRows(sampleEvents(t))
	frames := GroupBossFrames(rows, "Fire Knight")
	if len(frames) != 1 {
		t.Fatalf("expected 1 complete frame, got %d", len(frames))
	}
	frame := frames[0]
	if frame.BossTurnIndex != 1 {
		t.Fatalf("expected frame index 1, got %d", frame.BossTurnIndex)
	}
	if len(frame.Rows) != 3 {
		t.Fatalf("expected 3 rows in the frame, got %d", len(frame.Rows))
	}
	if frame.Rows[2].Actor != "Fire Knight" {
		t.Fatalf("expected the frame to close on the boss row, got %q", frame.Rows[2].Actor)
	}
}

func TestRenderTextLayout(t *testing.T) {
	text := RenderText(sampleEvents(t), "Fire Knight", RenderOptions{})
	if !strings.Contains(text, "Boss Turn #1") {
		t.Fatalf("expected a frame header, got:\n%s", text)
	}
	if !strings.Contains(text, "[21 UP]") {
		t.Fatalf("expected shield snapshots in brackets, got:\n%s", text)
	}
	if !strings.Contains(text, "{A1}") {
		t.Fatalf("expected the skill token cell, got:\n%s", text)
	}
	// The trailing incomplete Mikage row belongs to no frame and must not
	// render.
	if strings.Contains(text, "B_A1") {
		t.Fatalf("rows after the last boss turn must not render, got:\n%s", text)
	}
}

func TestRenderTextRowIndexing(t *testing.T) {
	text := RenderText(sampleEvents(t), "Fire Knight", RenderOptions{RowIndexStart: intPtr(7)})
	if !strings.Contains(text, "  7: ") || !strings.Contains(text, "  9: ") {
		t.Fatalf("expected row indices 7..9, got:\n%s", text)
	}
}

func TestRenderTextNoFrames(t *testing.T) {
	log := journal.New()
	log.StartTick()
	bracket(t, log, "Mikage", 21, 20, "")
	text := RenderText(log.Events(), "Fire Knight", RenderOptions{})
	if !strings.Contains(text, "No complete boss frames") {
		t.Fatalf("expected the empty-frame hint, got:\n%s", text)
	}
}
