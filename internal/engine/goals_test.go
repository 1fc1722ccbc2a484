package engine_test

import (
	"errors"
	"testing"
	"time"

	"launchline/internal/cycle"
	"launchline/internal/domain"
	"launchline/internal/engine"
)

func (env testEnv) addGoal(t *testing.T, member, title, deadline string) domain.Goal {
	t.Helper()
	g, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
		StoreID: "store-1", MemberID: member, Title: title, Deadline: deadline, ActorID: member,
	})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	return g
}

func TestCreateGoalValidation(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	if _, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
		StoreID: "store-1", MemberID: "m1", Title: "Launch kettle", Deadline: "next tuesday",
	}); err == nil {
		t.Fatalf("expected deadline parse rejection")
	}
	if _, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
		StoreID: "store-1", MemberID: "ghost", Title: "Launch kettle", Deadline: "2024-01-12T00:00:00Z",
	}); err == nil {
		t.Fatalf("expected unknown member rejection")
	}
	if _, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
		StoreID: "store-1", MemberID: "m1", Title: "Launch kettle", Deadline: "2024-01-12T00:00:00Z", Priority: "urgent",
	}); err == nil {
		t.Fatalf("expected priority rejection")
	}
	g := env.addGoal(t, "m1", "Launch kettle", "2024-01-12T00:00:00Z")
	if g.ID == "" || g.Completed() {
		t.Fatalf("expected open goal with id, got %+v", g)
	}
	if g.Priority != domain.PriorityMedium {
		t.Fatalf("expected default medium priority, got %q", g.Priority)
	}
	high, err := env.Engine.CreateGoal(env.Ctx, engine.GoalCreateOptions{
		StoreID: "store-1", MemberID: "m1", Title: "Clear backlog", Deadline: "2024-01-12T00:00:00Z", Priority: domain.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("create high priority: %v", err)
	}
	stored, err := env.Engine.Repo.GetGoal(env.Ctx, high.ID)
	if err != nil {
		t.Fatalf("reload goal: %v", err)
	}
	if stored.Priority != domain.PriorityHigh {
		t.Fatalf("expected stored high priority, got %q", stored.Priority)
	}
}

func TestCompleteGoalOnTimeVsLate(t *testing.T) {
	// clock is pinned to 2024-01-10 12:00 UTC
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)

	onTime := env.addGoal(t, "m1", "ship on time", "2024-01-10T08:00:00Z")
	late := env.addGoal(t, "m1", "ship late", "2024-01-05T08:00:00Z")

	if _, err := env.Engine.CompleteGoal(env.Ctx, engine.GoalCompleteOptions{ID: onTime.ID, ActorID: "m1"}); err == nil {
		t.Fatalf("expected note requirement")
	}
	g, err := env.Engine.CompleteGoal(env.Ctx, engine.GoalCompleteOptions{ID: onTime.ID, Note: "done", ActorID: "m1"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !g.Completed() {
		t.Fatalf("expected completion timestamp")
	}
	// finishing within the deadline day still counts as on time
	if n := env.creditCount(t, "m1", "GOAL_COMPLETE_ON_TIME"); n != 1 {
		t.Fatalf("expected on-time credit, got %d", n)
	}
	if _, err := env.Engine.CompleteGoal(env.Ctx, engine.GoalCompleteOptions{ID: late.ID, Note: "finally", ActorID: "m1"}); err != nil {
		t.Fatalf("complete late: %v", err)
	}
	if n := env.creditCount(t, "m1", "GOAL_COMPLETE_LATE"); n != 1 {
		t.Fatalf("expected late penalty, got %d", n)
	}
	var ve engine.ValidationError
	if _, err := env.Engine.CompleteGoal(env.Ctx, engine.GoalCompleteOptions{ID: onTime.ID, Note: "again", ActorID: "m1"}); !errors.As(err, &ve) {
		t.Fatalf("expected double completion rejection, got %v", err)
	}
}

func TestEvaluateFlagsShortPlanners(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "planner", 100)
	env.addMember(t, "slacker", 100)
	// planner meets the weekly minimum of 5, slacker plans nothing
	for i := 0; i < 5; i++ {
		env.addGoal(t, "planner", "goal", "2024-01-11T00:00:00Z")
	}
	report, err := env.Engine.EvaluateGoals(env.Ctx, engine.EvaluateOptions{StoreID: "store-1", ActorID: "tester"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(report.Short) != 1 || report.Short[0].MemberID != "slacker" || report.Short[0].Count != 0 {
		t.Fatalf("unexpected short list %+v", report.Short)
	}
	if n := env.creditCount(t, "slacker", "WEEKLY_GOAL_COUNT_INSUFFICIENT"); n != 1 {
		t.Fatalf("expected planning penalty, got %d", n)
	}
	if n := env.creditCount(t, "planner", "WEEKLY_GOAL_COUNT_INSUFFICIENT"); n != 0 {
		t.Fatalf("planner should not be penalized")
	}
	// rerunning the same week settles nothing new
	if _, err := env.Engine.EvaluateGoals(env.Ctx, engine.EvaluateOptions{StoreID: "store-1", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if n := env.creditCount(t, "slacker", "WEEKLY_GOAL_COUNT_INSUFFICIENT"); n != 1 {
		t.Fatalf("rerun must be idempotent, got %d rows", n)
	}
}

func TestEvaluateSkipsMinimumOutsideCurrentWeek(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	report, err := env.Engine.EvaluateGoals(env.Ctx, engine.EvaluateOptions{
		StoreID: "store-1", Grain: cycle.GrainWeek, Offset: -1, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(report.Short) != 0 {
		t.Fatalf("past weeks carry no planning minimum, got %+v", report.Short)
	}
	report, err = env.Engine.EvaluateGoals(env.Ctx, engine.EvaluateOptions{
		StoreID: "store-1", Grain: cycle.GrainMonth, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("evaluate month: %v", err)
	}
	if len(report.Short) != 0 {
		t.Fatalf("months carry no planning minimum, got %+v", report.Short)
	}
}

func TestEvaluateOverdueBuckets(t *testing.T) {
	env := newTestEnv(t)
	env.addMember(t, "m1", 100)
	// 5 calendar days past its deadline: bucket 1 with a 3 day interval
	deep := env.addGoal(t, "m1", "deep overdue", "2024-01-05T08:00:00Z")
	// one day past the deadline: bucket 0, penalized immediately
	fresh := env.addGoal(t, "m1", "fresh overdue", "2024-01-09T08:00:00Z")
	// not yet due
	env.addGoal(t, "m1", "future", "2024-01-20T08:00:00Z")

	report, err := env.Engine.EvaluateGoals(env.Ctx, engine.EvaluateOptions{StoreID: "store-1", ActorID: "tester"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(report.Overdue) != 2 {
		t.Fatalf("expected 2 overdue findings, got %+v", report.Overdue)
	}
	byGoal := map[string]engine.OverdueGoal{}
	for _, o := range report.Overdue {
		byGoal[o.GoalID] = o
	}
	if got := byGoal[deep.ID]; got.DaysOverdue != 5 || got.Bucket != 1 {
		t.Fatalf("expected 5 days bucket 1, got %+v", got)
	}
	if got := byGoal[fresh.ID]; got.DaysOverdue != 1 || got.Bucket != 0 {
		t.Fatalf("expected 1 day bucket 0, got %+v", got)
	}
	if n := env.creditCount(t, "m1", "GOAL_OVERDUE_PENALTY"); n != 2 {
		t.Fatalf("every overdue goal penalizes once per bucket, got %d rows", n)
	}
	// second run inside the same buckets is deduplicated
	if _, err := env.Engine.EvaluateGoals(env.Ctx, engine.EvaluateOptions{StoreID: "store-1", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if n := env.creditCount(t, "m1", "GOAL_OVERDUE_PENALTY"); n != 2 {
		t.Fatalf("rerun must be idempotent, got %d rows", n)
	}
	// three days later both goals cross into the next bucket and penalize again
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 13, 12, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.EvaluateGoals(env.Ctx, engine.EvaluateOptions{StoreID: "store-1", ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	if n := env.creditCount(t, "m1", "GOAL_OVERDUE_PENALTY"); n != 4 {
		t.Fatalf("expected new bucket penalties, got %d rows", n)
	}
}
