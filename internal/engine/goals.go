package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"launchline/internal/credit"
	"launchline/internal/cycle"
	"launchline/internal/domain"
	"launchline/internal/events"
	"launchline/internal/repo"
)

// GoalCreateOptions are parameters for planning a goal.
type GoalCreateOptions struct {
	ID       string
	StoreID  string
	MemberID string
	Title    string
	Deadline string
	Priority domain.GoalPriority
	ActorID  string
}

func (e Engine) CreateGoal(ctx context.Context, opts GoalCreateOptions) (domain.Goal, error) {
	if e.Config == nil {
		return domain.Goal{}, errors.New("config not loaded")
	}
	if opts.Title == "" {
		return domain.Goal{}, validationf("title is required")
	}
	if opts.MemberID == "" {
		return domain.Goal{}, validationf("member is required")
	}
	deadline, err := time.Parse(time.RFC3339, opts.Deadline)
	if err != nil {
		return domain.Goal{}, validationf("deadline must be RFC3339: %v", err)
	}
	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return domain.Goal{}, validationf("priority must be low, medium or high")
	}
	m, err := e.Repo.GetMember(ctx, opts.MemberID)
	if err != nil {
		return domain.Goal{}, err
	}
	if opts.StoreID == "" {
		opts.StoreID = m.StoreID
	}
	if m.StoreID != opts.StoreID {
		return domain.Goal{}, validationf("member %s not in store %s", opts.MemberID, opts.StoreID)
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	g := domain.Goal{
		ID:        id,
		StoreID:   opts.StoreID,
		MemberID:  opts.MemberID,
		Title:     opts.Title,
		Deadline:  deadline.UTC().Format(time.RFC3339),
		Priority:  priority,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return g, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertGoalTx(ctx, tx, g); err != nil {
		return g, err
	}
	if err := e.Events.Append(ctx, tx, "goal.created", g.StoreID, "goal", g.ID, opts.ActorID, events.EventPayload{
		"title":    g.Title,
		"deadline": g.Deadline,
		"priority": string(g.Priority),
		"member":   g.MemberID,
	}); err != nil {
		return g, err
	}
	if err := tx.Commit(); err != nil {
		return g, err
	}
	return g, nil
}

// GoalCompleteOptions carry the completion note and proof.
type GoalCompleteOptions struct {
	ID       string
	Note     string
	Evidence []string
	ActorID  string
}

// CompleteGoal marks a goal done. Completion needs a note; finishing past
// the end of the deadline day scores as late instead of on time.
func (e Engine) CompleteGoal(ctx context.Context, opts GoalCompleteOptions) (domain.Goal, error) {
	if opts.Note == "" {
		return domain.Goal{}, validationf("a completion note is required")
	}
	g, err := e.Repo.GetGoal(ctx, opts.ID)
	if err != nil {
		return g, err
	}
	if g.Completed() {
		return g, validationf("goal %s is already completed", g.ID)
	}
	deadline, err := time.Parse(time.RFC3339, g.Deadline)
	if err != nil {
		return g, fmt.Errorf("goal %s has malformed deadline: %w", g.ID, err)
	}
	now := e.now().UTC()
	late := now.After(cycle.EndOfDay(deadline))
	completedAt := now.Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return g, err
	}
	defer tx.Rollback()
	if err := e.Repo.CompleteGoalTx(ctx, tx, g.ID, opts.Note, opts.Evidence, completedAt); err != nil {
		return g, err
	}
	if err := e.Events.Append(ctx, tx, "goal.completed", g.StoreID, "goal", g.ID, opts.ActorID, events.EventPayload{
		"late":   late,
		"member": g.MemberID,
	}); err != nil {
		return g, err
	}
	if err := tx.Commit(); err != nil {
		return g, err
	}
	kind := credit.GoalCompleteOnTime
	if late {
		kind = credit.GoalCompleteLate
	}
	e.Credit.Dispatch(ctx, g.MemberID, kind, credit.Options{
		CorrelationID: g.ID,
		CycleKey:      "completion",
	})
	g.Note = opts.Note
	g.Evidence = opts.Evidence
	g.CompletedAt = &completedAt
	return g, nil
}

// EvaluateOptions select the store and window for a goal evaluation run.
type EvaluateOptions struct {
	StoreID string
	Grain   cycle.Grain
	Offset  int
	ActorID string
}

// ShortMember is one member below the weekly goal minimum.
type ShortMember struct {
	MemberID string `json:"member_id"`
	Count    int    `json:"count"`
	Required int    `json:"required"`
}

// OverdueGoal is one open goal past its deadline.
type OverdueGoal struct {
	GoalID      string `json:"goal_id"`
	MemberID    string `json:"member_id"`
	DaysOverdue int    `json:"days_overdue"`
	Bucket      int    `json:"bucket"`
}

// EvaluationReport summarizes one evaluation run. Every listed finding was
// offered to the ledger; the ledger's dedup keeps repeat runs harmless.
type EvaluationReport struct {
	StoreID     string        `json:"store_id"`
	WindowStart string        `json:"window_start" format:"date-time"`
	WindowEnd   string        `json:"window_end" format:"date-time"`
	Short       []ShortMember `json:"short,omitempty"`
	Overdue     []OverdueGoal `json:"overdue,omitempty"`
}

// EvaluateGoals runs the periodic goal checks for a store: members planning
// too few goals in the current week, and open goals past their deadline.
// Runs are idempotent per window and per penalty bucket.
func (e Engine) EvaluateGoals(ctx context.Context, opts EvaluateOptions) (EvaluationReport, error) {
	if e.Config == nil {
		return EvaluationReport{}, errors.New("config not loaded")
	}
	if opts.StoreID == "" {
		return EvaluationReport{}, validationf("store is required")
	}
	grain := opts.Grain
	if grain == "" {
		grain = cycle.GrainWeek
	}
	if !grain.Valid() {
		return EvaluationReport{}, validationf("grain must be week or month")
	}
	now := e.now().UTC()
	start, end := cycle.Window(now, grain, opts.Offset)
	report := EvaluationReport{
		StoreID:     opts.StoreID,
		WindowStart: start.Format(time.RFC3339),
		WindowEnd:   end.Format(time.RFC3339),
	}

	// The planning minimum only applies to the current week. Past windows
	// were already judged when they were current; months carry no minimum.
	if grain == cycle.GrainWeek && opts.Offset == 0 {
		members, err := e.Repo.ListMembers(ctx, opts.StoreID)
		if err != nil {
			return report, err
		}
		counts, err := e.Repo.CountGoalsPerMemberInWindow(ctx, opts.StoreID, report.WindowStart, report.WindowEnd)
		if err != nil {
			return report, err
		}
		minimum := e.Config.Credit.WeeklyGoalMinimum
		weekKey := cycle.WeekKey(start)
		for _, m := range members {
			n := counts[m.ID]
			if n >= minimum {
				continue
			}
			report.Short = append(report.Short, ShortMember{MemberID: m.ID, Count: n, Required: minimum})
			e.Credit.Dispatch(ctx, m.ID, credit.WeeklyGoalCountShort, credit.Options{
				CycleKey: weekKey,
				Data:     map[string]any{"count": n, "required": minimum},
			})
		}
	}

	open, err := e.Repo.ListGoals(ctx, repo.GoalFilters{StoreID: opts.StoreID, OpenOnly: true})
	if err != nil {
		return report, err
	}
	interval := e.Config.Credit.OverduePenaltyDays
	for _, g := range open {
		deadline, err := time.Parse(time.RFC3339, g.Deadline)
		if err != nil {
			continue
		}
		days, overdue := cycle.DaysOverdue(now, deadline)
		if !overdue {
			continue
		}
		bucket := cycle.PenaltyBucket(days, interval)
		report.Overdue = append(report.Overdue, OverdueGoal{
			GoalID:      g.ID,
			MemberID:    g.MemberID,
			DaysOverdue: days,
			Bucket:      bucket,
		})
		e.Credit.Dispatch(ctx, g.MemberID, credit.GoalOverduePenalty, credit.Options{
			CorrelationID: g.ID,
			CycleKey:      cycle.BucketKey(bucket),
			Data:          map[string]any{"days_overdue": days},
		})
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return report, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "goals.evaluated", opts.StoreID, "store", opts.StoreID, opts.ActorID, events.EventPayload{
		"grain":   string(grain),
		"offset":  opts.Offset,
		"short":   len(report.Short),
		"overdue": len(report.Overdue),
	}); err != nil {
		return report, err
	}
	if err := tx.Commit(); err != nil {
		return report, err
	}
	return report, nil
}
