package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"launchline/internal/domain"
)

const goalColumns = `id,store_id,member_id,title,deadline,priority,note,evidence_json,completed_at,created_at`

func scanGoal(scan func(dest ...any) error) (domain.Goal, error) {
	var g domain.Goal
	var note, evidence, completed sql.NullString
	err := scan(&g.ID, &g.StoreID, &g.MemberID, &g.Title, &g.Deadline, (*string)(&g.Priority), &note, &evidence, &completed, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	if note.Valid {
		g.Note = note.String
	}
	if evidence.Valid && evidence.String != "" {
		_ = json.Unmarshal([]byte(evidence.String), &g.Evidence)
	}
	if completed.Valid {
		g.CompletedAt = &completed.String
	}
	return g, nil
}

func (r Repo) InsertGoalTx(ctx context.Context, tx *sql.Tx, g domain.Goal) error {
	var evidence any
	if len(g.Evidence) > 0 {
		b, err := json.Marshal(g.Evidence)
		if err != nil {
			return err
		}
		evidence = string(b)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO goals(id,store_id,member_id,title,deadline,priority,note,evidence_json,completed_at,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		g.ID, g.StoreID, g.MemberID, g.Title, g.Deadline, string(g.Priority), nullable(g.Note), evidence, nullableStringPtr(g.CompletedAt), g.CreatedAt)
	return err
}

func (r Repo) GetGoal(ctx context.Context, id string) (domain.Goal, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id=?`, id)
	return scanGoal(row.Scan)
}

func (r Repo) CompleteGoalTx(ctx context.Context, tx *sql.Tx, id, note string, evidence []string, completedAt string) error {
	var evidenceJSON any
	if len(evidence) > 0 {
		b, err := json.Marshal(evidence)
		if err != nil {
			return err
		}
		evidenceJSON = string(b)
	}
	res, err := tx.ExecContext(ctx, `UPDATE goals SET note=?, evidence_json=?, completed_at=? WHERE id=? AND completed_at IS NULL`,
		note, evidenceJSON, completedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteGoal(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM goals WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type GoalFilters struct {
	StoreID  string
	MemberID string
	// OpenOnly selects goals without a completion timestamp.
	OpenOnly bool
	Limit    int
}

func (r Repo) ListGoals(ctx context.Context, f GoalFilters) ([]domain.Goal, error) {
	var clauses []string
	var args []any
	if f.StoreID != "" {
		clauses = append(clauses, "store_id=?")
		args = append(args, f.StoreID)
	}
	if f.MemberID != "" {
		clauses = append(clauses, "member_id=?")
		args = append(args, f.MemberID)
	}
	if f.OpenOnly {
		clauses = append(clauses, "completed_at IS NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + goalColumns + ` FROM goals ` + where + ` ORDER BY deadline, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, nil
}

// CountGoalsPerMemberInWindow counts each member's goals with a deadline inside
// [start, end] regardless of completion state.
func (r Repo) CountGoalsPerMemberInWindow(ctx context.Context, storeID, start, end string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT member_id, count(*) FROM goals WHERE store_id=? AND deadline >= ? AND deadline <= ? GROUP BY member_id`,
		storeID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var member string
		var n int
		if err := rows.Scan(&member, &n); err != nil {
			return nil, err
		}
		res[member] = n
	}
	return res, rows.Err()
}

// GoalCompletionStats returns total and completed goal counts for a store.
func (r Repo) GoalCompletionStats(ctx context.Context, storeID string) (total, completed int, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT count(*), count(completed_at) FROM goals WHERE store_id=?`, storeID).Scan(&total, &completed)
	return total, completed, err
}
