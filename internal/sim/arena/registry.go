package arena

import "sort"

// Registry is the set of live agents keyed by display name.
type Registry struct {
	byName map[string]*Agent
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Agent{}}
}

func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

func (r *Registry) Get(name string) (*Agent, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Insert adds a and reports false if the name is already taken.
func (r *Registry) Insert(a *Agent) bool {
	if a == nil || a.Name == "" || r.Has(a.Name) {
		return false
	}
	r.byName[a.Name] = a
	return true
}

// Remove deletes name and returns the agent it held.
func (r *Registry) Remove(name string) (*Agent, bool) {
	a, ok := r.byName[name]
	if ok {
		delete(r.byName, name)
	}
	return a, ok
}

func (r *Registry) Len() int { return len(r.byName) }

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Agents returns the live agents ordered by spawn order.
func (r *Registry) Agents() []*Agent {
	out := make([]*Agent, 0, len(r.byName))
	for _, a := range r.byName {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sole returns the only live agent's name when exactly one remains.
func (r *Registry) Sole() (string, bool) {
	if len(r.byName) != 1 {
		return "", false
	}
	for n := range r.byName {
		return n, true
	}
	return "", false
}
