// Package hits layers reactive shield-hit contributions on top of the base
// hits supplied by the caller. New reactive mechanics plug in here without
// touching the scheduler.
package hits

import "fireknight/sim/internal/battle"

// ReflectKey attributes shield hits that have no actor source.
const ReflectKey = "REFLECT"

const (
	// BlessingPhantomTouch marks a contributor whose attacks land one
	// bonus shield hit.
	BlessingPhantomTouch = "phantom_touch"

	// BuffCounterattack marks an ally that answers the boss turn with a
	// default attack.
	BuffCounterattack = "counterattack"

	// BuffFaultlessDefense is the defensive buff that reflects one hit
	// back at the boss shield on the boss's turn.
	BuffFaultlessDefense = "faultless_defense"
)

// Context carries the turn facts the resolver may condition on.
type Context struct {
	BossTurn    bool
	TurnCounter int
	// Damaged restricts reflect contributions to the actors that actually
	// took damage on the boss turn, when the caller declared that set.
	Damaged     []string
	HaveDamaged bool
}

// Resolver computes extra shield-hit contributions for one turn. It must be
// pure: same inputs, same map.
type Resolver func(acting *battle.Actor, roster *battle.Roster, base map[string]int, ctx Context) map[string]int

// Contributions is the default resolver. It models:
//   - phantom touch: +1 for any contributor whose configuration declares
//     the blessing and who already has at least one base hit this turn;
//   - counterattack: on the boss turn, +1 from every ally carrying the
//     qualifying buff;
//   - reflect: on the boss turn, +1 under REFLECT per ally carrying the
//     defensive buff, filtered by the damaged set when one was declared.
func Contributions(acting *battle.Actor, roster *battle.Roster, base map[string]int, ctx Context) map[string]int {
	extra := make(map[string]int)

	for name, count := range base {
		if name == ReflectKey || count < 1 {
			continue
		}
		contributor, _, ok := roster.Find(name)
		if !ok {
			continue
		}
		if contributor.HasBlessing(BlessingPhantomTouch) {
			extra[name]++
		}
	}

	if !ctx.BossTurn {
		return extra
	}

	for _, ally := range roster.Allies() {
		if ally.HasActiveBuff(BuffCounterattack) {
			extra[ally.Name]++
		}
		if ally.HasActiveBuff(BuffFaultlessDefense) && reflectAllowed(ally.Name, ctx) {
			extra[ReflectKey]++
		}
	}
	return extra
}

func reflectAllowed(name string, ctx Context) bool {
	if !ctx.HaveDamaged {
		return true
	}
	for _, damaged := range ctx.Damaged {
		if damaged == name {
			return true
		}
	}
	return false
}

// Merge adds the extra contributions into the base map by contributor key,
// leaving both inputs untouched.
func Merge(base, extra map[string]int) map[string]int {
	merged := make(map[string]int, len(base)+len(extra))
	for name, count := range base {
		merged[name] += count
	}
	for name, count := range extra {
		merged[name] += count
	}
	return merged
}
