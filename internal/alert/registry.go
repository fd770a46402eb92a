// Package alert implements the alert rule registry, the expression
// compiler, and the evaluator that turns metric samples into alert events.
package alert

import (
	"sync"
	"time"

	"github.com/xtxerr/vigil/internal/errors"
	"github.com/xtxerr/vigil/internal/types"
	"github.com/xtxerr/vigil/internal/validation"
)

// CompiledRule pairs a rule definition with its compiled expression.
type CompiledRule struct {
	Rule types.AlertRule
	Expr *Expr
}

// RulePatch is a partial update for an existing rule. Nil fields are left
// unchanged; a non-nil Expression is recompiled before anything is applied.
type RulePatch struct {
	Expression           *string
	Severity             *types.Severity
	NotificationChannels *[]string
	Enabled              *bool
}

// Registry holds the alert rules keyed by name. Rule names are unique;
// expressions are compiled once at registration time so evaluation never
// re-parses text.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]*CompiledRule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]*CompiledRule)}
}

// Add registers a new rule. The expression is validated and compiled before
// the registry is touched, so a failed add leaves no trace.
func (r *Registry) Add(rule types.AlertRule) error {
	if err := validation.ValidateAlertRule(&rule); err != nil {
		return err
	}
	expr, err := Compile(rule.Expression)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.Name]; exists {
		return errors.NewRuleExists(rule.Name)
	}
	r.rules[rule.Name] = &CompiledRule{Rule: rule.Clone(), Expr: expr}
	return nil
}

// Update applies a patch to an existing rule. A patch carrying an invalid
// expression fails without modifying the rule.
func (r *Registry) Update(name string, patch RulePatch) (types.AlertRule, error) {
	var expr *Expr
	if patch.Expression != nil {
		var err error
		expr, err = Compile(*patch.Expression)
		if err != nil {
			return types.AlertRule{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.rules[name]
	if !ok {
		return types.AlertRule{}, errors.NewRuleNotFound(name)
	}

	if patch.Expression != nil {
		existing.Rule.Expression = *patch.Expression
		existing.Expr = expr
	}
	if patch.Severity != nil {
		existing.Rule.Severity = *patch.Severity
	}
	if patch.NotificationChannels != nil {
		existing.Rule.NotificationChannels = append([]string(nil), (*patch.NotificationChannels)...)
	}
	if patch.Enabled != nil {
		existing.Rule.Enabled = *patch.Enabled
	}
	return existing.Rule.Clone(), nil
}

// Delete removes a rule. Past alert events referencing the rule are history
// owned by the store and are not touched.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[name]; !ok {
		return errors.NewRuleNotFound(name)
	}
	delete(r.rules, name)
	return nil
}

// Get returns a copy of the named rule.
func (r *Registry) Get(name string) (types.AlertRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[name]
	if !ok {
		return types.AlertRule{}, errors.NewRuleNotFound(name)
	}
	return rule.Rule.Clone(), nil
}

// List returns copies of all rules, optionally only the enabled ones.
// Order is unspecified.
func (r *Registry) List(enabledOnly bool) []types.AlertRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.AlertRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if enabledOnly && !rule.Rule.Enabled {
			continue
		}
		out = append(out, rule.Rule.Clone())
	}
	return out
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// snapshotCompiled returns a copy of the compiled rules for evaluation.
// Rules are cloned under the read lock; Expr values are immutable once
// compiled (updates swap the pointer), so sharing them is safe.
func (r *Registry) snapshotCompiled(enabledOnly bool) []CompiledRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CompiledRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if enabledOnly && !rule.Rule.Enabled {
			continue
		}
		out = append(out, CompiledRule{Rule: rule.Rule.Clone(), Expr: rule.Expr})
	}
	return out
}

// MarkTriggered records the fire time of the most recent event on the rule.
// A rule deleted between fire and mark is ignored.
func (r *Registry) MarkTriggered(name string, firedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rule, ok := r.rules[name]; ok {
		t := firedAt
		rule.Rule.LastTriggered = &t
	}
}

// Restore bulk-loads rules from a snapshot, recompiling each expression.
// Rules whose stored expression no longer compiles are dropped and reported.
func (r *Registry) Restore(rules []types.AlertRule) (dropped []string) {
	for i := range rules {
		rule := rules[i].Clone()
		expr, err := Compile(rule.Expression)
		if err != nil {
			dropped = append(dropped, rule.Name)
			continue
		}
		r.mu.Lock()
		r.rules[rule.Name] = &CompiledRule{Rule: rule, Expr: expr}
		r.mu.Unlock()
	}
	return dropped
}
