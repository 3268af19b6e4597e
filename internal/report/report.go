// Package report replays an event log into human-facing turn rows and
// boss-relative frames. It is a pure consumer: nothing here feeds back into
// the simulation.
package report

import (
	"fmt"
	"strings"

	"fireknight/sim/internal/journal"
)

// TurnRow is one actor turn, the TURN_START to TURN_END span, with the boss
// shield snapshots from the bracket payloads when present.
type TurnRow struct {
	Actor      string
	PreShield  *journal.ShieldSnapshot
	PostShield *journal.ShieldSnapshot
	Events     []journal.Event
}

// SkillToken reports the skill id consumed during this row, if any.
func (r TurnRow) SkillToken() string {
	for _, e := range r.Events {
		if e.Type != journal.EventSkillConsumed {
			continue
		}
		if p, ok := e.Payload.(journal.SkillConsumedPayload); ok {
			if token := strings.TrimSpace(p.SkillID); token != "" {
				return token
			}
		}
	}
	return ""
}

// BossFrame groups consecutive rows up to and including a boss turn. Frame
// indices start at 1.
type BossFrame struct {
	BossTurnIndex int
	Rows          []TurnRow
}

// DeriveTurnRows walks an ordered event stream and cuts it into
// TURN_START/TURN_END spans. Events outside any bracket are dropped.
func DeriveTurnRows(events []journal.Event) []TurnRow {
	var rows []TurnRow
	var buffer []journal.Event
	var pre *journal.ShieldSnapshot
	actor := ""
	open := false

	for _, e := range events {
		if e.Type == journal.EventTurnStart {
			buffer = []journal.Event{e}
			actor = e.Actor
			open = true
			pre = nil
			if p, ok := e.Payload.(journal.TurnStartPayload); ok {
				pre = p.Shield()
			}
			continue
		}
		if !open {
			continue
		}
		buffer = append(buffer, e)

		if e.Type == journal.EventTurnEnd && e.Actor == actor {
			var post *journal.ShieldSnapshot
			if p, ok := e.Payload.(journal.TurnEndPayload); ok {
				post = p.Shield()
			}
			rows = append(rows, TurnRow{
				Actor:      actor,
				PreShield:  pre,
				PostShield: post,
				Events:     buffer,
			})
			buffer = nil
			actor = ""
			open = false
			pre = nil
		}
	}
	return rows
}

// GroupBossFrames closes a frame each time a row belonging to bossActor
// completes.
func GroupBossFrames(rows []TurnRow, bossActor string) []BossFrame {
	var frames []BossFrame
	var current []TurnRow
	index := 0

	for _, row := range rows {
		current = append(current, row)
		if row.Actor == bossActor {
			index++
			frames = append(frames, BossFrame{BossTurnIndex: index, Rows: current})
			current = nil
		}
	}
	return frames
}

func fmtShield(snap *journal.ShieldSnapshot) string {
	if snap == nil {
		return "--"
	}
	return fmt.Sprintf("%d %s", snap.Value, snap.Status)
}

// RenderOptions controls the text rendering of boss frames.
type RenderOptions struct {
	// RowIndexStart, when non-nil, prefixes each row with an incrementing
	// index starting at this value.
	RowIndexStart *int
}

// RenderText formats boss frames as fixed-column text. The skill token
// column is padded to the widest token within each frame so the post-shield
// column stays aligned.
func RenderText(events []journal.Event, bossActor string, opts RenderOptions) string {
	rows := DeriveTurnRows(events)
	frames := GroupBossFrames(rows, bossActor)

	var out []string
	if len(frames) == 0 {
		out = append(out, "(No complete boss frames were produced. Try increasing --ticks.)")
		return strings.Join(out, "\n")
	}

	var rowIdx *int
	if opts.RowIndexStart != nil {
		v := *opts.RowIndexStart
		rowIdx = &v
	}

	for _, frame := range frames {
		out = append(out, fmt.Sprintf("Boss Turn #%d", frame.BossTurnIndex))

		maxActorLen := 0
		maxTokenLen := 0
		tokens := make([]string, len(frame.Rows))
		for i, row := range frame.Rows {
			if len(row.Actor) > maxActorLen {
				maxActorLen = len(row.Actor)
			}
			if token := row.SkillToken(); token != "" {
				tokens[i] = "{" + token + "}"
				if len(tokens[i]) > maxTokenLen {
					maxTokenLen = len(tokens[i])
				}
			}
		}

		for i, row := range frame.Rows {
			pre := fmtShield(row.PreShield)
			post := fmtShield(row.PostShield)
			actorPadded := pad(row.Actor, maxActorLen)

			cells := []string{"[" + pre + "]", actorPadded}
			if maxTokenLen > 0 {
				cells = append(cells, pad(tokens[i], maxTokenLen))
			}
			cells = append(cells, "["+post+"]")

			line := "  " + strings.Join(cells, " ")
			if rowIdx != nil {
				line = fmt.Sprintf("  %d: %s", *rowIdx, strings.Join(cells, " "))
				*rowIdx++
			}
			out = append(out, line)
		}
		out = append(out, "")
	}

	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
