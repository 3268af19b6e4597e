// Package dataset resolves skill tokens to shield-hit counts using the
// committed champion dataset. Unknown actors resolve to zero hits so generic
// rosters still run; unknown skills on known champions are input errors.
package dataset

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

//go:embed data/champions_fire_knight_team.json
var defaultPayload []byte

// FormatError is a user-facing dataset problem, reported and never
// swallowed into a crash.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return e.Reason }

func formatErrf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// IsFormatError reports whether err is a dataset-format failure.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

type skillEntry struct {
	Hits int `json:"hits"`
}

type formEntry struct {
	Skills map[string]skillEntry `json:"skills"`
}

type champion struct {
	ID       string                `json:"id"`
	Name     string                `json:"name"`
	Skills   map[string]skillEntry `json:"skills,omitempty"`
	Forms    map[string]formEntry  `json:"forms,omitempty"`
	Defaults struct {
		StartingForm string `json:"starting_form,omitempty"`
	} `json:"defaults,omitempty"`
}

type payload struct {
	Team      string     `json:"team,omitempty"`
	Champions []champion `json:"champions"`
}

// Lookup indexes the dataset by champion id and display name, both
// case-insensitive.
type Lookup struct {
	byID   map[string]*champion
	byName map[string]*champion
}

// Default parses the embedded fire-knight team dataset.
func Default() (*Lookup, error) {
	return Parse(defaultPayload)
}

// Parse builds a lookup from dataset JSON bytes.
func Parse(raw []byte) (*Lookup, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, formatErrf("invalid champion dataset JSON: %v", err)
	}
	if p.Champions == nil {
		return nil, formatErrf("champion dataset requires a champions array")
	}

	l := &Lookup{
		byID:   make(map[string]*champion, len(p.Champions)),
		byName: make(map[string]*champion, len(p.Champions)),
	}
	for i := range p.Champions {
		c := &p.Champions[i]
		if id := strings.ToLower(strings.TrimSpace(c.ID)); id != "" {
			l.byID[id] = c
		}
		if name := strings.ToLower(strings.TrimSpace(c.Name)); name != "" {
			l.byName[name] = c
		}
	}
	return l, nil
}

type resolvedSkill struct {
	form string
	key  string
}

// resolveSkill normalizes a consumed skill token to a dataset key. Tokens
// carrying a form prefix ("A_A1", "B_A3") select the base or alternate
// form; the "A4" ability maps to the dataset's METAMORPH entry.
func resolveSkill(skillID string) resolvedSkill {
	s := strings.ToUpper(strings.TrimSpace(skillID))
	prefix, rest, ok := strings.Cut(s, "_")
	if ok && (prefix == "A" || prefix == "B") {
		form := "base"
		if prefix == "B" {
			form = "alternate"
		}
		if rest == "A4" {
			return resolvedSkill{form: form, key: "METAMORPH"}
		}
		return resolvedSkill{form: form, key: rest}
	}
	return resolvedSkill{key: s}
}

func (l *Lookup) find(actorName string) *champion {
	key := strings.ToLower(strings.TrimSpace(actorName))
	if key == "" {
		return nil
	}
	if c, ok := l.byID[key]; ok {
		return c
	}
	if c, ok := l.byName[key]; ok {
		return c
	}
	// Unique name-prefix match, so "mikage" finds "Lady Mikage" only if no
	// other champion shares the prefix.
	var match *champion
	for name, c := range l.byName {
		if strings.HasPrefix(name, key) || strings.Contains(name, key) {
			if match != nil && match != c {
				return nil
			}
			match = c
		}
	}
	return match
}

// HitsFor reports the shield hits for one consumed skill. Actors absent
// from the dataset contribute zero hits without error.
func (l *Lookup) HitsFor(actorName, skillID string) (int, error) {
	c := l.find(actorName)
	if c == nil {
		return 0, nil
	}

	resolved := resolveSkill(skillID)

	var skills map[string]skillEntry
	if len(c.Forms) > 0 {
		form := resolved.form
		if form == "" {
			form = c.Defaults.StartingForm
			if form == "" {
				form = "base"
			}
		}
		block, ok := c.Forms[form]
		if !ok {
			return 0, formatErrf("unknown form %q for actor %q", form, actorName)
		}
		skills = block.Skills
	} else {
		skills = c.Skills
	}

	entry, ok := skills[resolved.key]
	if !ok {
		return 0, formatErrf("unknown skill %q (resolved key %q) for actor %q", skillID, resolved.key, actorName)
	}
	if entry.Hits < 0 {
		return 0, formatErrf("invalid hits for %q %q: must be >= 0", actorName, resolved.key)
	}
	return entry.Hits, nil
}
