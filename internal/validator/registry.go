package validator

// #region imports
import (
	"fmt"
	"sort"
)

// #endregion

// #region registry
// Registry holds the configured validator battery. Per-validator enable
// flags come from orchestrator configuration (enable_<name>).
type Registry struct {
	validators map[string]Validator
	enabled    map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		validators: make(map[string]Validator),
		enabled:    make(map[string]bool),
	}
}

// Register adds a validator, enabled by default. Duplicate names are
// rejected so report attribution stays unambiguous.
func (r *Registry) Register(v Validator) error {
	if _, ok := r.validators[v.Name()]; ok {
		return fmt.Errorf("validator %q already registered", v.Name())
	}
	r.validators[v.Name()] = v
	r.enabled[v.Name()] = true
	return nil
}

// SetEnabled toggles a validator by name. Unknown names are ignored;
// configuration may mention validators not wired into this run.
func (r *Registry) SetEnabled(name string, on bool) {
	if _, ok := r.validators[name]; ok {
		r.enabled[name] = on
	}
}

// Enabled returns the enabled validators in name order, so execution and
// logging are stable run to run.
func (r *Registry) Enabled() []Validator {
	var names []string
	for n := range r.validators {
		if r.enabled[n] {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	out := make([]Validator, 0, len(names))
	for _, n := range names {
		out = append(out, r.validators[n])
	}
	return out
}

// #endregion registry
