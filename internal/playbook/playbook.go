// Package playbook resolves the day-by-day operations template an asset
// runs under. Templates come from store config; the store kind limits
// which strategies may be chosen.
package playbook

import (
	"errors"
	"fmt"

	"launchline/internal/config"
	"launchline/internal/domain"
)

var ErrNoPlaybook = errors.New("no playbook for strategy")

// Template is an immutable day plan for one strategy.
type Template struct {
	Strategy domain.Strategy
	// Days[i] holds the task labels for day i+1.
	Days [][]string
}

// MaxDay is the last operable day of the template.
func (t Template) MaxDay() int { return len(t.Days) }

// Tasks returns the task labels for a 1-based day, or nil when out of range.
func (t Template) Tasks(day int) []string {
	if day < 1 || day > len(t.Days) {
		return nil
	}
	return t.Days[day-1]
}

// Registry looks up templates from a store config.
type Registry struct {
	Config *config.Config
}

// AllowedStrategies returns the strategies a store kind may choose from.
func (r Registry) AllowedStrategies(kind string) []domain.Strategy {
	if r.Config == nil {
		return nil
	}
	names := r.Config.Playbooks.Kinds[kind]
	out := make([]domain.Strategy, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Strategy(n))
	}
	return out
}

// Resolve returns the template for a store kind and strategy. The strategy
// must be one the kind allows and must exist in the catalog.
func (r Registry) Resolve(kind string, strategy domain.Strategy) (Template, error) {
	if r.Config == nil {
		return Template{}, errors.New("config not loaded")
	}
	if !strategy.Valid() {
		return Template{}, fmt.Errorf("%w: invalid strategy %q", ErrNoPlaybook, strategy)
	}
	allowed := false
	for _, s := range r.AllowedStrategies(kind) {
		if s == strategy {
			allowed = true
			break
		}
	}
	if !allowed {
		return Template{}, fmt.Errorf("%w: strategy %s not allowed for store kind %s", ErrNoPlaybook, strategy, kind)
	}
	pb, ok := r.Config.Playbooks.Catalog[string(strategy)]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrNoPlaybook, strategy)
	}
	return Template{Strategy: strategy, Days: pb.Days}, nil
}
