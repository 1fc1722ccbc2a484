package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"launchline/internal/config"
	"launchline/internal/db"
	"launchline/internal/domain"
	"launchline/internal/engine"
	"launchline/internal/migrate"
	"launchline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("store-1")
	cfg.Store.Kind = "factory"
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitStore(ctx, "store-1", "factory", "test", "tester"); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) addMember(t *testing.T, id string, score int) {
	t.Helper()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
	err := env.Engine.Repo.InsertMember(env.Ctx, domain.Member{
		ID: id, StoreID: "store-1", Name: id, Role: "operator",
		CreditScore: score, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("insert member %s: %v", id, err)
	}
}

func (env testEnv) creditCount(t *testing.T, memberID, kind string) int {
	t.Helper()
	var n int
	err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM credit_events WHERE member_id=? AND kind=?`, memberID, kind).Scan(&n)
	if err != nil {
		t.Fatalf("count credit events: %v", err)
	}
	return n
}

func (env testEnv) activeAsset(t *testing.T, member, strategy string) domain.Asset {
	t.Helper()
	a, err := env.Engine.CreateAsset(env.Ctx, engine.AssetCreateOptions{
		StoreID: "store-1", Title: "Kettle " + member + strategy, Strategy: strategy, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	a, err = env.Engine.Claim(env.Ctx, a.ID, member, "tester")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	return a
}

func (env testEnv) fillDay(t *testing.T, a domain.Asset, day, tasks int) {
	t.Helper()
	for i := 0; i < tasks; i++ {
		_, err := env.Engine.AttachEvidence(env.Ctx, engine.EvidenceOptions{
			AssetID: a.ID, Day: day, TaskIndex: i,
			Images:  []string{fmt.Sprintf("img-%d-%d.png", day, i)},
			ActorID: "tester",
		})
		if err != nil {
			t.Fatalf("attach day %d task %d: %v", day, i, err)
		}
	}
}

func TestCreateAssetStartsPending(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateAsset(env.Ctx, engine.AssetCreateOptions{
		StoreID: "store-1", Title: "Kettle", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Status != domain.StatusPending || a.DayIndex != 1 {
		t.Fatalf("expected pending day 1, got %s day %d", a.Status, a.DayIndex)
	}
	logs, err := env.Engine.Repo.ListAssetLogs(env.Ctx, a.ID)
	if err != nil || len(logs) != 1 || logs[0].Source != "system" {
		t.Fatalf("expected one system log, got %v %v", logs, err)
	}
}

func TestClaimFloor(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "low", 50)
	env.addMember(t, "ok", 100)
	a, err := env.Engine.CreateAsset(env.Ctx, engine.AssetCreateOptions{StoreID: "store-1", Title: "Pool item", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.Claim(env.Ctx, a.ID, "low", "low")
	var pe engine.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected permission error, got %v", err)
	}
	a, err = env.Engine.Claim(env.Ctx, a.ID, "ok", "ok")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if a.Status != domain.StatusActive || a.OperatorID != "ok" {
		t.Fatalf("expected active operated asset, got %+v", a)
	}
	if env.creditCount(t, "ok", "PUBLIC_POOL_TAKEN") != 1 {
		t.Fatalf("expected pool claim credit")
	}
	// claiming an active asset fails
	env.addMember(t, "other", 100)
	if _, err := env.Engine.Claim(env.Ctx, a.ID, "other", "other"); err == nil {
		t.Fatalf("expected claim rejection on active asset")
	}
}

func TestClaimRejectsForeignMember(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := env.Engine.InitStore(env.Ctx, "store-2", "mall", "", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.InsertMember(env.Ctx, domain.Member{
		ID: "outsider", StoreID: "store-2", Name: "outsider", Role: "operator",
		CreditScore: 100, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.CreateAsset(env.Ctx, engine.AssetCreateOptions{StoreID: "store-1", Title: "Local", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	var ve engine.ValidationError
	if _, err := env.Engine.Claim(env.Ctx, a.ID, "outsider", "outsider"); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStrategyIsOneWay(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	a := env.activeAsset(t, "m1", "sprint3")
	if _, err := env.Engine.SetStrategy(env.Ctx, a.ID, "sprint7", "tester", false); err == nil {
		t.Fatalf("expected rebind rejection")
	}
	a, err := env.Engine.SetStrategy(env.Ctx, a.ID, "sprint7", "tester", true)
	if err != nil {
		t.Fatalf("forced rebind: %v", err)
	}
	if a.Strategy != domain.StrategySprint7 {
		t.Fatalf("expected sprint7, got %s", a.Strategy)
	}
}

func TestAttachEvidenceScoresTaskOnce(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	a := env.activeAsset(t, "m1", "sprint3")

	slot, err := env.Engine.AttachEvidence(env.Ctx, engine.EvidenceOptions{
		AssetID: a.ID, Day: 1, TaskIndex: 0, Images: []string{"a.png"}, ActorID: "m1",
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if slot.CompletedAt == nil {
		t.Fatalf("expected completion timestamp")
	}
	// adding more proof to the same slot never scores again
	slot, err = env.Engine.AttachEvidence(env.Ctx, engine.EvidenceOptions{
		AssetID: a.ID, Day: 1, TaskIndex: 0, Images: []string{"b.png", "a.png"}, ActorID: "m1",
	})
	if err != nil {
		t.Fatalf("reattach: %v", err)
	}
	if len(slot.Images) != 2 {
		t.Fatalf("expected deduped images, got %v", slot.Images)
	}
	if n := env.creditCount(t, "m1", "TASK_COMPLETE"); n != 1 {
		t.Fatalf("expected 1 task credit, got %d", n)
	}
	// wrong day is rejected
	if _, err := env.Engine.AttachEvidence(env.Ctx, engine.EvidenceOptions{
		AssetID: a.ID, Day: 2, TaskIndex: 0, Images: []string{"c.png"}, ActorID: "m1",
	}); err == nil {
		t.Fatalf("expected day mismatch rejection")
	}
	// out of range task index
	if _, err := env.Engine.AttachEvidence(env.Ctx, engine.EvidenceOptions{
		AssetID: a.ID, Day: 1, TaskIndex: 9, Images: []string{"c.png"}, ActorID: "m1",
	}); err == nil {
		t.Fatalf("expected task index rejection")
	}
}

func TestDetachEvidenceKeepsCredit(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	a := env.activeAsset(t, "m1", "sprint3")
	env.fillDay(t, a, 1, 1)
	slot, err := env.Engine.DetachEvidence(env.Ctx, a.ID, 1, 0, "", "m1")
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if len(slot.Images) != 0 || slot.CompletedAt != nil {
		t.Fatalf("expected cleared slot, got %+v", slot)
	}
	if n := env.creditCount(t, "m1", "TASK_COMPLETE"); n != 1 {
		t.Fatalf("credit should stay settled, got %d rows", n)
	}
	// refilling the same slot does not score twice either
	env.fillDay(t, a, 1, 1)
	if n := env.creditCount(t, "m1", "TASK_COMPLETE"); n != 1 {
		t.Fatalf("expected still 1 task credit, got %d", n)
	}
}

func TestAdvanceDayGatedOnEvidence(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	a := env.activeAsset(t, "m1", "sprint3")

	var ve engine.ValidationError
	if _, err := env.Engine.AdvanceDay(env.Ctx, a.ID, "m1", false); !errors.As(err, &ve) {
		t.Fatalf("expected gating error, got %v", err)
	}
	env.fillDay(t, a, 1, 3)
	a, err := env.Engine.AdvanceDay(env.Ctx, a.ID, "m1", false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if a.DayIndex != 2 || a.Status != domain.StatusActive {
		t.Fatalf("expected day 2 active, got day %d %s", a.DayIndex, a.Status)
	}
	if n := env.creditCount(t, "m1", "DAY_COMPLETE"); n != 1 {
		t.Fatalf("expected day credit, got %d", n)
	}
	// force skips the gate
	a, err = env.Engine.AdvanceDay(env.Ctx, a.ID, "m1", true)
	if err != nil {
		t.Fatalf("forced advance: %v", err)
	}
	if a.DayIndex != 3 {
		t.Fatalf("expected day 3, got %d", a.DayIndex)
	}
}

func TestPlaybookFinishEntersMaintenance(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	a := env.activeAsset(t, "m1", "sprint3")
	for day := 1; day <= 3; day++ {
		env.fillDay(t, a, day, 3)
		var err error
		a, err = env.Engine.AdvanceDay(env.Ctx, a.ID, "m1", false)
		if err != nil {
			t.Fatalf("advance day %d: %v", day, err)
		}
	}
	if a.Status != domain.StatusMaintenance {
		t.Fatalf("expected maintenance, got %s", a.Status)
	}
	// the finishing advance still counts: the index ends up one past the playbook
	if a.DayIndex != 4 {
		t.Fatalf("expected day index 4 after finishing, got %d", a.DayIndex)
	}
	if n := env.creditCount(t, "m1", "ASSET_COMPLETE"); n != 1 {
		t.Fatalf("expected asset completion credit, got %d", n)
	}
	if n := env.creditCount(t, "m1", "DAY_COMPLETE"); n != 3 {
		t.Fatalf("expected 3 day credits, got %d", n)
	}
}

func TestEarlyMaintainNeedsFigures(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	a := env.activeAsset(t, "m1", "sprint7")
	if _, err := env.Engine.EarlyMaintain(env.Ctx, engine.EarlyMaintainOptions{
		AssetID: a.ID, DailyOrders: "12", ActorID: "m1",
	}); err == nil {
		t.Fatalf("expected missing profit rejection")
	}
	a, err := env.Engine.EarlyMaintain(env.Ctx, engine.EarlyMaintainOptions{
		AssetID: a.ID, DailyOrders: "12", DailyProfit: "340.50", ActorID: "m1",
	})
	if err != nil {
		t.Fatalf("maintain: %v", err)
	}
	if a.Status != domain.StatusMaintenance {
		t.Fatalf("expected maintenance, got %s", a.Status)
	}
	if n := env.creditCount(t, "m1", "EARLY_MAINTAIN"); n != 1 {
		t.Fatalf("expected early maintain credit, got %d", n)
	}
}

func TestAbandonPenaltyDependsOnLogs(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "diligent", 100)
	env.addMember(t, "silent", 100)

	logged := env.activeAsset(t, "diligent", "sprint3")
	if _, err := env.Engine.AppendLog(env.Ctx, logged.ID, "traffic flat, pausing", "diligent"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	logged, err := env.Engine.Abandon(env.Ctx, logged.ID, "diligent")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if logged.Status != domain.StatusAbandoned || logged.OperatorID != "" {
		t.Fatalf("expected unoperated abandoned asset, got %+v", logged)
	}

	bare := env.activeAsset(t, "silent", "sprint3")
	if _, err := env.Engine.Abandon(env.Ctx, bare.ID, "silent"); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	if n := env.creditCount(t, "diligent", "MANUAL_ABANDON"); n != 1 {
		t.Fatalf("expected documented abandon, got %d", n)
	}
	if n := env.creditCount(t, "silent", "ABANDON_WITHOUT_LOG"); n != 1 {
		t.Fatalf("expected undocumented abandon penalty, got %d", n)
	}
	// the system "Asset created" log must not count as documentation
	if n := env.creditCount(t, "silent", "MANUAL_ABANDON"); n != 0 {
		t.Fatalf("system log counted as operator log")
	}
}

func TestTrashRestorePurge(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	a := env.activeAsset(t, "m1", "sprint3")

	// purging a non-trashed asset needs force
	if err := env.Engine.Purge(env.Ctx, a.ID, "tester", false); err == nil {
		t.Fatalf("expected purge rejection")
	}
	a, err := env.Engine.Trash(env.Ctx, a.ID, "tester")
	if err != nil {
		t.Fatalf("trash: %v", err)
	}
	if n := env.creditCount(t, "m1", "ENTER_TRASH"); n != 1 {
		t.Fatalf("expected trash penalty for operator, got %d", n)
	}
	if _, err := env.Engine.Trash(env.Ctx, a.ID, "tester"); err == nil {
		t.Fatalf("expected double trash rejection")
	}
	a, err = env.Engine.Restore(env.Ctx, a.ID, "tester")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if a.Status != domain.StatusAbandoned || a.OperatorID != "" {
		t.Fatalf("expected abandoned unoperated asset, got %+v", a)
	}
	if _, err = env.Engine.Trash(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatalf("retrash: %v", err)
	}
	// no operator attached this time, so no second penalty
	if n := env.creditCount(t, "m1", "ENTER_TRASH"); n != 1 {
		t.Fatalf("expected single trash penalty, got %d", n)
	}
	if err := env.Engine.Purge(env.Ctx, a.ID, "tester", false); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := env.Engine.Repo.GetAsset(env.Ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected asset gone, got %v", err)
	}
}

func TestCurrentDayBoard(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	a := env.activeAsset(t, "m1", "sprint3")
	env.fillDay(t, a, 1, 1)
	board, err := env.Engine.CurrentDay(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if board.Day != 1 || len(board.Tasks) != 3 {
		t.Fatalf("expected 3 tasks on day 1, got %+v", board)
	}
	if !board.Tasks[0].Satisfied || board.Tasks[1].Satisfied {
		t.Fatalf("unexpected satisfaction state %+v", board.Tasks)
	}
}

func TestEventAppendOnLifecycleChanges(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	a := env.activeAsset(t, "m1", "sprint3")
	env.fillDay(t, a, 1, 3)
	if _, err := env.Engine.AdvanceDay(env.Ctx, a.ID, "m1", false); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "store-1", "", "asset", a.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	types := map[string]bool{}
	for _, e := range events {
		types[e.Type] = true
	}
	for _, want := range []string{"asset.created", "asset.claimed", "evidence.attached", "asset.day.advanced"} {
		if !types[want] {
			t.Fatalf("missing event %s in %v", want, types)
		}
	}
}
