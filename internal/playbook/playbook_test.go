package playbook_test

import (
	"errors"
	"testing"

	"launchline/internal/config"
	"launchline/internal/domain"
	"launchline/internal/playbook"
)

func testRegistry() playbook.Registry {
	return playbook.Registry{Config: config.Default("store-1")}
}

func TestResolveByKind(t *testing.T) {
	r := testRegistry()
	tpl, err := r.Resolve("mall", domain.StrategyStandard)
	if err != nil {
		t.Fatalf("resolve standard: %v", err)
	}
	if tpl.MaxDay() != 14 {
		t.Fatalf("expected 14 days, got %d", tpl.MaxDay())
	}
	tpl, err = r.Resolve("factory", domain.StrategySprint3)
	if err != nil {
		t.Fatalf("resolve sprint3: %v", err)
	}
	if tpl.MaxDay() != 3 {
		t.Fatalf("expected 3 days, got %d", tpl.MaxDay())
	}
}

func TestResolveRejectsDisallowedStrategy(t *testing.T) {
	r := testRegistry()
	// mall stores only run the standard playbook
	if _, err := r.Resolve("mall", domain.StrategySprint3); !errors.Is(err, playbook.ErrNoPlaybook) {
		t.Fatalf("expected ErrNoPlaybook, got %v", err)
	}
	if _, err := r.Resolve("mall", domain.Strategy("bogus")); !errors.Is(err, playbook.ErrNoPlaybook) {
		t.Fatalf("expected ErrNoPlaybook for invalid strategy, got %v", err)
	}
}

func TestTasksOutOfRange(t *testing.T) {
	r := testRegistry()
	tpl, err := r.Resolve("factory", domain.StrategySprint3)
	if err != nil {
		t.Fatal(err)
	}
	if got := tpl.Tasks(1); len(got) == 0 {
		t.Fatalf("expected tasks on day 1")
	}
	if tpl.Tasks(0) != nil || tpl.Tasks(4) != nil {
		t.Fatalf("expected nil outside day range")
	}
}

func TestAllowedStrategies(t *testing.T) {
	r := testRegistry()
	got := r.AllowedStrategies("factory")
	if len(got) != 3 {
		t.Fatalf("expected 3 strategies for factory, got %v", got)
	}
	if len(r.AllowedStrategies("unknown")) != 0 {
		t.Fatalf("expected none for unknown kind")
	}
}
