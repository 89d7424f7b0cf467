package game

import (
	"sort"
	"strings"
)

// Labels is a set of string tags. The zero value is ready to use.
type Labels struct {
	labels map[string]struct{}
}

func (l *Labels) HasLabel(label string) bool {
	_, ok := l.labels[label]
	return ok
}

// AddLabels adds every label, ignoring blanks.
func (l *Labels) AddLabels(labels ...string) {
	if l.labels == nil {
		l.labels = make(map[string]struct{}, len(labels))
	}
	for _, s := range labels {
		if s = strings.TrimSpace(s); s != "" {
			l.labels[s] = struct{}{}
		}
	}
}

func (l *Labels) RemoveLabels(labels ...string) {
	for _, s := range labels {
		delete(l.labels, strings.TrimSpace(s))
	}
}

// SetLabels replaces the whole set.
func (l *Labels) SetLabels(labels ...string) {
	l.labels = nil
	l.AddLabels(labels...)
}

// LabelList returns the labels sorted.
func (l *Labels) LabelList() []string {
	out := make([]string, 0, len(l.labels))
	for s := range l.labels {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// RegionSet records region membership by name. Regions never own their
// members; a card or location may sit in any number of regions.
type RegionSet struct {
	regions map[string]struct{}
}

func (r *RegionSet) InRegion(name string) bool {
	_, ok := r.regions[name]
	return ok
}

func (r *RegionSet) JoinRegion(name string) {
	if r.regions == nil {
		r.regions = make(map[string]struct{})
	}
	r.regions[name] = struct{}{}
}

func (r *RegionSet) LeaveRegion(name string) {
	delete(r.regions, name)
}

func (r *RegionSet) RegionNames() []string {
	out := make([]string, 0, len(r.regions))
	for s := range r.regions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Variables holds arbitrary game attributes (suit, rank, face keys ...).
type Variables struct {
	vars map[string]any
}

func (v *Variables) Variable(key string) (any, bool) {
	val, ok := v.vars[key]
	return val, ok
}

func (v *Variables) SetVariable(key string, value any) {
	if v.vars == nil {
		v.vars = make(map[string]any)
	}
	v.vars[key] = value
}

func (v *Variables) DeleteVariable(key string) {
	delete(v.vars, key)
}

// VariableMap returns a copy of every variable.
func (v *Variables) VariableMap() map[string]any {
	out := make(map[string]any, len(v.vars))
	for k, val := range v.vars {
		out[k] = val
	}
	return out
}

// defaultVariables copies src into dst for keys dst has not set.
func defaultVariables(dst *Variables, src map[string]any) {
	for k, val := range src {
		if _, ok := dst.Variable(k); !ok {
			dst.SetVariable(k, val)
		}
	}
}

// forceVariables copies src into dst, overwriting.
func forceVariables(dst *Variables, src map[string]any) {
	for k, val := range src {
		dst.SetVariable(k, val)
	}
}
