// Package ledger is the local credit ledger: an at-most-once log of credit
// events with a per-member running score. Duplicate triggers are detected
// on the (member, kind, correlation, cycle key) tuple and skipped without
// error, which lets callers re-fire events freely.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"launchline/internal/credit"
	"launchline/internal/domain"
	"launchline/internal/repo"
)

// kindSpec fixes the score delta and ledger reason for one event kind.
type kindSpec struct {
	Points int
	Reason string
}

var kindConfig = map[credit.EventKind]kindSpec{
	credit.TaskComplete:         {Points: 2, Reason: "Completed an operation task"},
	credit.DayComplete:          {Points: 5, Reason: "Completed all operations for day %v"},
	credit.AssetComplete:        {Points: 5, Reason: "Carried an asset through its full cycle"},
	credit.EarlyMaintain:        {Points: 2, Reason: "Moved an asset to maintenance early on solid numbers"},
	credit.ManualAbandon:        {Points: -5, Reason: "Abandoned an asset"},
	credit.AbandonWithoutLog:    {Points: -8, Reason: "Abandoned an asset without any operation log"},
	credit.EnterTrash:           {Points: -3, Reason: "Asset moved to trash"},
	credit.PublicPoolTaken:      {Points: 1, Reason: "Claimed an asset from the public pool"},
	credit.GoalCompleteOnTime:   {Points: 3, Reason: "Completed a goal on time"},
	credit.GoalCompleteLate:     {Points: -1, Reason: "Completed a goal after its deadline"},
	credit.GoalOverduePenalty:   {Points: -3, Reason: "Goal overdue"},
	credit.WeeklyGoalCountShort: {Points: -2, Reason: "Too few goals planned this week"},
	credit.VisualAssetSaved:     {Points: 1, Reason: "Saved a visual asset"},
}

// AdjustKind marks manual score corrections made by an admin. Adjustments
// bypass dedup by carrying a fresh cycle key.
const AdjustKind = "MANUAL_ADJUST"

// Store is the sqlite-backed ledger implementation.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Trigger settles one credit event. Unknown kinds and duplicates are
// skipped, not errors; a missing member is an error.
func (s *Store) Trigger(ctx context.Context, t credit.Trigger) (credit.Result, error) {
	spec, known := kindConfig[t.Kind]
	if !known {
		return credit.Result{Skipped: true, Reason: fmt.Sprintf("unknown event kind %s", t.Kind)}, nil
	}
	cycleKey := t.CycleKey
	if cycleKey == "" {
		cycleKey = "default"
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return credit.Result{}, err
	}
	defer tx.Rollback()

	m, err := repo.Repo{DB: s.DB}.GetMemberTx(ctx, tx, t.MemberID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			err = fmt.Errorf("member %s: %w", t.MemberID, err)
		}
		return credit.Result{}, err
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM credit_events WHERE member_id=? AND kind=? AND correlation_id=? AND cycle_key=?`,
		t.MemberID, string(t.Kind), t.CorrelationID, cycleKey).Scan(&exists)
	if err == nil {
		return credit.Result{Skipped: true, Reason: "duplicate event"}, nil
	}
	if err != sql.ErrNoRows {
		return credit.Result{}, err
	}

	record, err := s.insert(ctx, tx, insertParams{
		StoreID:       t.StoreID,
		MemberID:      t.MemberID,
		Kind:          string(t.Kind),
		CorrelationID: t.CorrelationID,
		CycleKey:      cycleKey,
		Points:        spec.Points,
		Reason:        reasonFor(spec, t.Data),
		Data:          t.Data,
		CurrentScore:  m.CreditScore,
	})
	if err != nil {
		return credit.Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return credit.Result{}, err
	}
	return credit.Result{Record: &record}, nil
}

// Adjust applies a manual score change outside the event dedup.
func (s *Store) Adjust(ctx context.Context, storeID, memberID string, change int, reason string) (domain.CreditRecord, error) {
	if reason == "" {
		return domain.CreditRecord{}, fmt.Errorf("reason is required")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CreditRecord{}, err
	}
	defer tx.Rollback()

	m, err := repo.Repo{DB: s.DB}.GetMemberTx(ctx, tx, memberID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			err = fmt.Errorf("member %s: %w", memberID, err)
		}
		return domain.CreditRecord{}, err
	}
	record, err := s.insert(ctx, tx, insertParams{
		StoreID:      storeID,
		MemberID:     memberID,
		Kind:         AdjustKind,
		CycleKey:     uuid.New().String(),
		Points:       change,
		Reason:       reason,
		CurrentScore: m.CreditScore,
	})
	if err != nil {
		return domain.CreditRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CreditRecord{}, err
	}
	return record, nil
}

type insertParams struct {
	StoreID       string
	MemberID      string
	Kind          string
	CorrelationID string
	CycleKey      string
	Points        int
	Reason        string
	Data          map[string]any
	CurrentScore  int
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, p insertParams) (domain.CreditRecord, error) {
	newScore := p.CurrentScore + p.Points
	if newScore < 0 {
		newScore = 0
	}
	now := s.now().UTC().Format(time.RFC3339)
	record := domain.CreditRecord{
		ID:            uuid.New().String(),
		StoreID:       p.StoreID,
		MemberID:      p.MemberID,
		Kind:          p.Kind,
		CorrelationID: p.CorrelationID,
		CycleKey:      p.CycleKey,
		Points:        p.Points,
		Reason:        p.Reason,
		NewScore:      newScore,
		TS:            now,
	}
	if len(p.Data) > 0 {
		b, err := json.Marshal(p.Data)
		if err != nil {
			return record, err
		}
		record.DataJSON = string(b)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO credit_events(id,store_id,member_id,kind,correlation_id,cycle_key,points,reason,data_json,new_score,ts)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		record.ID, record.StoreID, record.MemberID, record.Kind, record.CorrelationID, record.CycleKey,
		record.Points, record.Reason, nullableString(record.DataJSON), record.NewScore, record.TS); err != nil {
		return record, fmt.Errorf("insert credit event: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE members SET credit_score=?, updated_at=? WHERE id=?`, newScore, now, p.MemberID); err != nil {
		return record, fmt.Errorf("update member score: %w", err)
	}
	return record, nil
}

func reasonFor(spec kindSpec, data map[string]any) string {
	if strings.Contains(spec.Reason, "%") {
		if day, ok := data["day"]; ok {
			return fmt.Sprintf(spec.Reason, day)
		}
		return fmt.Sprintf(spec.Reason, "?")
	}
	return spec.Reason
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
