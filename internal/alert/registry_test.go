package alert

import (
	"testing"
	"time"

	"github.com/xtxerr/vigil/internal/errors"
	"github.com/xtxerr/vigil/internal/types"
)

func testRule(name string) types.AlertRule {
	return types.AlertRule{
		Name:       name,
		Expression: "cpu_usage > 0.9",
		Severity:   types.SeverityWarning,
		Enabled:    true,
	}
}

func TestRegistry_AddAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(testRule("high-cpu")); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	got, err := r.Get("high-cpu")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Expression != "cpu_usage > 0.9" {
		t.Errorf("Expression = %q", got.Expression)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistry_AddDuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(testRule("dup")); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	err := r.Add(testRule("dup"))
	if !errors.IsAlreadyExists(err) {
		t.Errorf("second Add error = %v, want ErrRuleExists", err)
	}
}

func TestRegistry_AddInvalidExpressionLeavesNoTrace(t *testing.T) {
	r := NewRegistry()
	rule := testRule("broken")
	rule.Expression = "cpu >"

	err := r.Add(rule)
	if !errors.Is(err, errors.ErrInvalidExpression) {
		t.Fatalf("Add error = %v, want ErrInvalidExpression", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d after failed add, want 0", r.Len())
	}
}

func TestRegistry_UpdatePartial(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(testRule("r1")); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	enabled := false
	got, err := r.Update("r1", RulePatch{Enabled: &enabled})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.Enabled {
		t.Error("Enabled = true, want false")
	}
	// Untouched fields survive.
	if got.Expression != "cpu_usage > 0.9" {
		t.Errorf("Expression changed: %q", got.Expression)
	}
}

func TestRegistry_UpdateInvalidExpressionKeepsOld(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(testRule("r1")); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	bad := "cpu >"
	if _, err := r.Update("r1", RulePatch{Expression: &bad}); err == nil {
		t.Fatal("Update with bad expression succeeded, want error")
	}

	got, err := r.Get("r1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Expression != "cpu_usage > 0.9" {
		t.Errorf("Expression = %q, want original", got.Expression)
	}
}

func TestRegistry_UpdateMissing(t *testing.T) {
	r := NewRegistry()
	enabled := true
	_, err := r.Update("ghost", RulePatch{Enabled: &enabled})
	if !errors.IsNotFound(err) {
		t.Errorf("Update error = %v, want ErrRuleNotFound", err)
	}
}

func TestRegistry_Delete(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(testRule("r1")); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := r.Delete("r1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if !errors.IsNotFound(r.Delete("r1")) {
		t.Error("second Delete did not return ErrRuleNotFound")
	}
}

func TestRegistry_ListEnabledOnly(t *testing.T) {
	r := NewRegistry()
	on := testRule("on")
	off := testRule("off")
	off.Enabled = false
	if err := r.Add(on); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := r.Add(off); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	if got := r.List(false); len(got) != 2 {
		t.Errorf("List(false) = %d rules, want 2", len(got))
	}
	got := r.List(true)
	if len(got) != 1 || got[0].Name != "on" {
		t.Errorf("List(true) = %v, want just 'on'", got)
	}
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	rule := testRule("r1")
	rule.NotificationChannels = []string{"email"}
	if err := r.Add(rule); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	got, _ := r.Get("r1")
	got.NotificationChannels[0] = "mutated"

	again, _ := r.Get("r1")
	if again.NotificationChannels[0] != "email" {
		t.Error("registry state mutated through a returned copy")
	}
}

func TestRegistry_MarkTriggered(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(testRule("r1")); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	firedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.MarkTriggered("r1", firedAt)
	r.MarkTriggered("ghost", firedAt) // must not panic

	got, _ := r.Get("r1")
	if got.LastTriggered == nil || !got.LastTriggered.Equal(firedAt) {
		t.Errorf("LastTriggered = %v, want %v", got.LastTriggered, firedAt)
	}
}

func TestRegistry_RestoreDropsUncompilable(t *testing.T) {
	r := NewRegistry()
	rules := []types.AlertRule{
		testRule("good"),
		{Name: "bad", Expression: "cpu >", Severity: types.SeverityInfo},
	}

	dropped := r.Restore(rules)
	if len(dropped) != 1 || dropped[0] != "bad" {
		t.Errorf("dropped = %v, want [bad]", dropped)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}
