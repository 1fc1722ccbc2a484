package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"launchline/internal/credit"
	"launchline/internal/db"
	"launchline/internal/domain"
	"launchline/internal/ledger"
	"launchline/internal/migrate"
	"launchline/internal/repo"
)

func newTestLedger(t *testing.T, score int) (*ledger.Store, repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	r := repo.Repo{DB: conn}
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if err := r.InsertStore(ctx, domain.Store{ID: "store-1", Kind: "mall", Status: "active", CreatedAt: now}); err != nil {
		t.Fatalf("insert store: %v", err)
	}
	if err := r.InsertMember(ctx, domain.Member{
		ID: "m1", StoreID: "store-1", Name: "Li Wen", Role: "operator",
		CreditScore: score, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("insert member: %v", err)
	}
	l := ledger.New(conn)
	l.Now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	return l, r, ctx
}

func TestTriggerSettlesOnce(t *testing.T) {
	l, r, ctx := newTestLedger(t, 100)
	trig := credit.Trigger{
		StoreID:       "store-1",
		MemberID:      "m1",
		Kind:          credit.TaskComplete,
		CorrelationID: "asset-d1-t0",
	}
	res, err := l.Trigger(ctx, trig)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if res.Skipped || res.Record == nil || res.Record.NewScore != 102 {
		t.Fatalf("expected settled record at 102, got %+v", res)
	}
	// same tuple again is a silent skip
	res, err = l.Trigger(ctx, trig)
	if err != nil {
		t.Fatalf("retrigger: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("expected duplicate skip")
	}
	m, err := r.GetMember(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if m.CreditScore != 102 {
		t.Fatalf("score %d, want 102", m.CreditScore)
	}
}

func TestTriggerDistinctCycleKeysSettleSeparately(t *testing.T) {
	l, r, ctx := newTestLedger(t, 100)
	for _, key := range []string{"W2024-2", "W2024-3"} {
		res, err := l.Trigger(ctx, credit.Trigger{
			StoreID:  "store-1",
			MemberID: "m1",
			Kind:     credit.WeeklyGoalCountShort,
			CycleKey: key,
		})
		if err != nil || res.Skipped {
			t.Fatalf("cycle %s: %v %+v", key, err, res)
		}
	}
	m, _ := r.GetMember(ctx, "m1")
	if m.CreditScore != 96 {
		t.Fatalf("score %d, want 96", m.CreditScore)
	}
}

func TestTriggerUnknownKindSkipped(t *testing.T) {
	l, _, ctx := newTestLedger(t, 100)
	res, err := l.Trigger(ctx, credit.Trigger{StoreID: "store-1", MemberID: "m1", Kind: "NOT_A_KIND"})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("expected skip for unknown kind")
	}
}

func TestTriggerMissingMember(t *testing.T) {
	l, _, ctx := newTestLedger(t, 100)
	_, err := l.Trigger(ctx, credit.Trigger{StoreID: "store-1", MemberID: "ghost", Kind: credit.TaskComplete})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestScoreClampsAtZero(t *testing.T) {
	l, r, ctx := newTestLedger(t, 2)
	res, err := l.Trigger(ctx, credit.Trigger{
		StoreID:       "store-1",
		MemberID:      "m1",
		Kind:          credit.AbandonWithoutLog,
		CorrelationID: "asset-1",
	})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if res.Record.NewScore != 0 {
		t.Fatalf("expected clamp to 0, got %d", res.Record.NewScore)
	}
	m, _ := r.GetMember(ctx, "m1")
	if m.CreditScore != 0 {
		t.Fatalf("score %d, want 0", m.CreditScore)
	}
}

func TestDayCompleteReasonCarriesDay(t *testing.T) {
	l, _, ctx := newTestLedger(t, 100)
	res, err := l.Trigger(ctx, credit.Trigger{
		StoreID:       "store-1",
		MemberID:      "m1",
		Kind:          credit.DayComplete,
		CorrelationID: "asset-1",
		CycleKey:      "day-2",
		Data:          map[string]any{"day": 2},
	})
	if err != nil || res.Skipped {
		t.Fatalf("trigger: %v %+v", err, res)
	}
	if res.Record.Reason != "Completed all operations for day 2" {
		t.Fatalf("unexpected reason %q", res.Record.Reason)
	}
}

func TestAdjustBypassesDedup(t *testing.T) {
	l, r, ctx := newTestLedger(t, 100)
	if _, err := l.Adjust(ctx, "store-1", "m1", -10, ""); err == nil {
		t.Fatalf("expected reason required")
	}
	for i := 0; i < 2; i++ {
		rec, err := l.Adjust(ctx, "store-1", "m1", -10, "policy violation")
		if err != nil {
			t.Fatalf("adjust %d: %v", i, err)
		}
		if rec.Kind != ledger.AdjustKind {
			t.Fatalf("unexpected kind %s", rec.Kind)
		}
	}
	m, _ := r.GetMember(ctx, "m1")
	if m.CreditScore != 80 {
		t.Fatalf("score %d, want 80", m.CreditScore)
	}
	records, err := r.ListCreditRecords(ctx, "m1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(records))
	}
}
