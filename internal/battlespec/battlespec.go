// Package battlespec loads and validates the JSON battle description: the
// roster, the sequence policy, and the scripted turn-override blocks the
// resolver seams consume.
package battlespec

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"fireknight/sim/internal/battle"
	"fireknight/sim/internal/mastery"
)

// PolicyErrorIfExhausted is the only sequence policy currently supported:
// consuming past the end of a skill sequence is a fail-fast error.
const PolicyErrorIfExhausted = "error_if_exhausted"

// FormatError is a user-facing input problem: malformed JSON, a missing
// field, an unsupported value. Callers report it and exit; it never crashes
// the process.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return e.Reason }

func formatErrf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// IsFormatError reports whether err is an input-format failure.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// BlessingSpec configures one blessing slot on a champion.
type BlessingSpec struct {
	Cooldown int `json:"cooldown,omitempty"`
	Rank     int `json:"rank,omitempty"`
}

// ProcDecl is one scripted mastery-proc expectation.
type ProcDecl struct {
	Holder  string `json:"holder"`
	Mastery string `json:"mastery"`
	Count   int    `json:"count"`
}

// ProcStep carries the proc declarations scoped to one skill-sequence step.
type ProcStep struct {
	MasteryProcs []ProcDecl `json:"mastery_procs,omitempty"`
}

// DamageStep declares which allies actually took damage at one step of the
// boss's sequence.
type DamageStep struct {
	Damaged []string `json:"damaged,omitempty"`
}

// ProcRequestBlock scripts mastery-proc expectations keyed by 1-based step.
type ProcRequestBlock struct {
	OnStep map[string]ProcStep `json:"on_step"`
}

// DamageReceivedBlock scripts damage-received overrides keyed by 1-based
// step of the boss's sequence.
type DamageReceivedBlock struct {
	OnStep map[string]DamageStep `json:"on_step"`
}

// TurnOverrides scripts resolver-seam inputs. Blocks may appear at the
// document root, on the boss, or on any champion; they merge.
type TurnOverrides struct {
	ProcRequest    *ProcRequestBlock    `json:"proc_request,omitempty"`
	DamageReceived *DamageReceivedBlock `json:"damage_received,omitempty"`
}

// Champion describes one roster entry. The boss reuses the same shape with
// shield fields populated.
type Champion struct {
	Name          string                  `json:"name"`
	Speed         float64                 `json:"speed"`
	Faction       string                  `json:"faction,omitempty"`
	Form          string                  `json:"form,omitempty"`
	SpeedByForm   map[string]float64      `json:"speed_by_form,omitempty"`
	ShieldMax     *int                    `json:"shield_max,omitempty"`
	SkillSequence []string                `json:"skill_sequence,omitempty"`
	Blessings     map[string]BlessingSpec `json:"blessings,omitempty"`
	TurnOverrides *TurnOverrides          `json:"turn_overrides,omitempty"`
}

// Options holds run-wide switches.
type Options struct {
	SequencePolicy string `json:"sequence_policy,omitempty"`
}

// Document is a parsed, validated battle spec.
type Document struct {
	Boss          Champion
	Champions     []Champion
	Options       Options
	HitsByActor   map[string]int
	TurnOverrides *TurnOverrides
}

type documentJSON struct {
	Boss          *Champion      `json:"boss"`
	Champions     []Champion     `json:"champions"`
	Actors        []Champion     `json:"actors"`
	Options       Options        `json:"options"`
	HitsByActor   map[string]int `json:"hits_by_actor"`
	TurnOverrides *TurnOverrides `json:"turn_overrides"`
}

// Load reads and validates a battle spec file.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, formatErrf("cannot read battle spec %s: %v", path, err)
	}
	return Parse(raw)
}

// Parse validates battle-spec JSON bytes.
func Parse(raw []byte) (*Document, error) {
	var dj documentJSON
	if err := json.Unmarshal(raw, &dj); err != nil {
		return nil, formatErrf("invalid battle spec JSON: %v", err)
	}

	if dj.Boss == nil {
		return nil, formatErrf("battle spec requires a boss block")
	}
	champions := dj.Champions
	if champions == nil {
		champions = dj.Actors
	}
	if len(champions) == 0 {
		return nil, formatErrf("battle spec requires a non-empty champions (or actors) array")
	}

	doc := &Document{
		Boss:          *dj.Boss,
		Champions:     champions,
		Options:       dj.Options,
		HitsByActor:   dj.HitsByActor,
		TurnOverrides: dj.TurnOverrides,
	}

	if err := validateChampion(&doc.Boss, "boss"); err != nil {
		return nil, err
	}
	for i := range doc.Champions {
		if err := validateChampion(&doc.Champions[i], fmt.Sprintf("champions[%d]", i)); err != nil {
			return nil, err
		}
	}
	switch doc.Options.SequencePolicy {
	case "", PolicyErrorIfExhausted:
	default:
		return nil, formatErrf("unsupported sequence_policy %q (only %q)", doc.Options.SequencePolicy, PolicyErrorIfExhausted)
	}
	for name, hits := range doc.HitsByActor {
		if strings.TrimSpace(name) == "" {
			return nil, formatErrf("hits_by_actor keys must be non-empty strings")
		}
		if hits < 0 {
			return nil, formatErrf("hits_by_actor[%q] must be >= 0", name)
		}
	}
	if _, err := doc.ProcRequests(); err != nil {
		return nil, err
	}
	if _, err := doc.damageSteps(); err != nil {
		return nil, err
	}
	return doc, nil
}

func validateChampion(c *Champion, where string) error {
	if strings.TrimSpace(c.Name) == "" {
		return formatErrf("%s: name must be a non-empty string", where)
	}
	if c.Speed <= 0 {
		return formatErrf("%s (%s): speed must be > 0", where, c.Name)
	}
	if c.ShieldMax != nil && *c.ShieldMax < 0 {
		return formatErrf("%s (%s): shield_max must be >= 0", where, c.Name)
	}
	if c.Form != "" && c.SpeedByForm != nil {
		if _, ok := c.SpeedByForm[c.Form]; !ok {
			return formatErrf("%s (%s): form %q missing from speed_by_form", where, c.Name, c.Form)
		}
	}
	return nil
}

// BuildRoster materializes actors from the document, champions in declared
// order with the boss appended last.
func (d *Document) BuildRoster() (*battle.Roster, error) {
	actors := make([]*battle.Actor, 0, len(d.Champions)+1)
	for i := range d.Champions {
		actors = append(actors, actorFromChampion(&d.Champions[i], false))
	}
	actors = append(actors, actorFromChampion(&d.Boss, true))

	roster, err := battle.NewRoster(actors)
	if err != nil {
		return nil, formatErrf("invalid roster: %v", err)
	}
	return roster, nil
}

func actorFromChampion(c *Champion, isBoss bool) *battle.Actor {
	speed := c.Speed
	if c.Form != "" && c.SpeedByForm != nil {
		if s, ok := c.SpeedByForm[c.Form]; ok {
			speed = s
		}
	}
	a := battle.NewActor(c.Name, speed)
	a.Faction = c.Faction
	a.Form = c.Form
	if len(c.SkillSequence) > 0 {
		a.SkillSequence = append([]string(nil), c.SkillSequence...)
	}
	for name, spec := range c.Blessings {
		if a.Blessings == nil {
			a.Blessings = make(map[string]battle.Blessing, len(c.Blessings))
		}
		a.Blessings[name] = battle.Blessing{Cooldown: spec.Cooldown, Rank: spec.Rank}
	}
	if isBoss {
		a.IsBoss = true
		if c.ShieldMax != nil {
			a.ShieldMax = *c.ShieldMax
			a.Shield = *c.ShieldMax
		}
	}
	return a
}

// ProcRequests merges every proc_request block in the document into a
// step-keyed table.
func (d *Document) ProcRequests() (map[int][]ProcDecl, error) {
	merged := make(map[int][]ProcDecl)
	blocks := []*TurnOverrides{d.TurnOverrides, d.Boss.TurnOverrides}
	for i := range d.Champions {
		blocks = append(blocks, d.Champions[i].TurnOverrides)
	}
	for _, block := range blocks {
		if block == nil || block.ProcRequest == nil {
			continue
		}
		for key, stepBlock := range block.ProcRequest.OnStep {
			step, err := strconv.Atoi(key)
			if err != nil || step < 1 {
				return nil, formatErrf("proc_request.on_step key %q must be a positive integer step", key)
			}
			for _, decl := range stepBlock.MasteryProcs {
				if strings.TrimSpace(decl.Holder) == "" || strings.TrimSpace(decl.Mastery) == "" {
					return nil, formatErrf("proc_request.on_step[%q]: mastery_procs entries require holder and mastery", key)
				}
				merged[step] = append(merged[step], decl)
			}
		}
	}
	return merged, nil
}

// RequestProvider builds the resolver seam from the merged proc_request
// blocks. ok is false when the document scripts no procs at all.
func (d *Document) RequestProvider() (mastery.RequestProvider, bool) {
	merged, err := d.ProcRequests()
	if err != nil || len(merged) == 0 {
		return nil, false
	}
	return mastery.RequestProviderFunc(func(holder string, step int) []mastery.Request {
		var out []mastery.Request
		for _, decl := range merged[step] {
			if decl.Holder != holder {
				continue
			}
			out = append(out, mastery.Request{Holder: decl.Holder, Mastery: decl.Mastery, Count: decl.Count})
		}
		return out
	}), true
}

func (d *Document) damageSteps() (map[int][]string, error) {
	merged := make(map[int][]string)
	blocks := []*TurnOverrides{d.TurnOverrides, d.Boss.TurnOverrides}
	for i := range d.Champions {
		blocks = append(blocks, d.Champions[i].TurnOverrides)
	}
	for _, block := range blocks {
		if block == nil || block.DamageReceived == nil {
			continue
		}
		for key, stepBlock := range block.DamageReceived.OnStep {
			step, err := strconv.Atoi(key)
			if err != nil || step < 1 {
				return nil, formatErrf("damage_received.on_step key %q must be a positive integer step", key)
			}
			merged[step] = append(merged[step], stepBlock.Damaged...)
		}
	}
	return merged, nil
}

// DamagedOnStep reports the scripted damage-received override for one boss
// step, with ok=false when the document declares none for that step.
func (d *Document) DamagedOnStep(step int) ([]string, bool) {
	merged, err := d.damageSteps()
	if err != nil {
		return nil, false
	}
	damaged, ok := merged[step]
	if !ok {
		return nil, false
	}
	out := append([]string(nil), damaged...)
	sort.Strings(out)
	return out, true
}
