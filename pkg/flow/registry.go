package flow

import (
	"fmt"
	"strings"
)

// Registry holds the static set of dialog definitions. Matching precedence
// is explicit: exact-match flows are checked before substring flows, and
// within each group registration order breaks ties. Duplicate exact triggers
// are rejected at registration time since the second one could never win.
type Registry struct {
	flows   []*Flow
	byName  map[string]*Flow
	byExact map[string]*Flow
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Flow),
		byExact: make(map[string]*Flow),
	}
}

func (r *Registry) Register(f *Flow) error {
	if f.Name == "" {
		return fmt.Errorf("flow has no name")
	}
	if _, ok := r.byName[f.Name]; ok {
		return fmt.Errorf("flow %q already registered", f.Name)
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("flow %q has no steps", f.Name)
	}
	if f.Mode == MatchExact {
		for _, kw := range f.Keywords {
			norm := normalize(kw)
			if prev, ok := r.byExact[norm]; ok {
				return fmt.Errorf("flow %q: exact trigger %q already taken by %q", f.Name, kw, prev.Name)
			}
			r.byExact[norm] = f
		}
	}
	r.flows = append(r.flows, f)
	r.byName[f.Name] = f
	return nil
}

// Get looks a flow up by name, for goto transitions and management-plane
// dispatch.
func (r *Registry) Get(name string) (*Flow, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// Match returns the flow activated by the given inbound text, or nil.
func (r *Registry) Match(text string) *Flow {
	norm := normalize(text)
	if norm == "" {
		return nil
	}

	if f, ok := r.byExact[norm]; ok {
		return f
	}

	for _, f := range r.flows {
		if f.Mode != MatchSubstring {
			continue
		}
		for _, kw := range f.Keywords {
			if strings.Contains(norm, normalize(kw)) {
				return f
			}
		}
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
