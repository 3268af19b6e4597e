package battle

import "fmt"

// Roster wraps the caller-owned actor list with a name index so holders of
// effect instances resolve without repeated linear scans. The slice order is
// the tie-break order and never changes after construction.
type Roster struct {
	actors []*Actor
	byName map[string]*Actor
	index  map[string]int
}

// NewRoster indexes the given actors. Names must be unique and non-empty.
func NewRoster(actors []*Actor) (*Roster, error) {
	r := &Roster{
		actors: actors,
		byName: make(map[string]*Actor, len(actors)),
		index:  make(map[string]int, len(actors)),
	}
	for i, a := range actors {
		if a == nil {
			return nil, fmt.Errorf("roster: actor %d is nil", i)
		}
		if a.Name == "" {
			return nil, fmt.Errorf("roster: actor %d has an empty name", i)
		}
		if _, dup := r.byName[a.Name]; dup {
			return nil, fmt.Errorf("roster: duplicate actor name %q", a.Name)
		}
		r.byName[a.Name] = a
		r.index[a.Name] = i
	}
	return r, nil
}

// Actors returns the underlying slice in tie-break order. Callers must not
// reorder it.
func (r *Roster) Actors() []*Actor { return r.actors }

// Len reports the number of actors.
func (r *Roster) Len() int { return len(r.actors) }

// Find returns the actor with the given name and its list index.
func (r *Roster) Find(name string) (*Actor, int, bool) {
	a, ok := r.byName[name]
	if !ok {
		return nil, -1, false
	}
	return a, r.index[name], true
}

// Contains reports whether the name resolves to a roster actor.
func (r *Roster) Contains(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Boss returns the first actor flagged as the boss.
func (r *Roster) Boss() (*Actor, bool) {
	for _, a := range r.actors {
		if a.IsBoss {
			return a, true
		}
	}
	return nil, false
}

// Allies returns every non-boss actor in list order.
func (r *Roster) Allies() []*Actor {
	out := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		if !a.IsBoss {
			out = append(out, a)
		}
	}
	return out
}

// InstanceOwner locates the actor carrying the effect instance with the
// given id.
func (r *Roster) InstanceOwner(instanceID string) (*Actor, *EffectInstance, bool) {
	for _, a := range r.actors {
		for _, inst := range a.ActiveEffects {
			if inst != nil && inst.InstanceID == instanceID {
				return a, inst, true
			}
		}
	}
	return nil, nil, false
}
