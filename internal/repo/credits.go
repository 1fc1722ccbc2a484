package repo

import (
	"context"
	"database/sql"

	"launchline/internal/domain"
)

const creditColumns = `id,store_id,member_id,kind,correlation_id,cycle_key,points,reason,data_json,new_score,ts`

func scanCreditRecord(scan func(dest ...any) error) (domain.CreditRecord, error) {
	var c domain.CreditRecord
	var data sql.NullString
	err := scan(&c.ID, &c.StoreID, &c.MemberID, &c.Kind, &c.CorrelationID, &c.CycleKey, &c.Points, &c.Reason, &data, &c.NewScore, &c.TS)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if data.Valid {
		c.DataJSON = data.String
	}
	return c, nil
}

// ListCreditRecords returns a member's ledger rows, newest first.
func (r Repo) ListCreditRecords(ctx context.Context, memberID string, limit int) ([]domain.CreditRecord, error) {
	query := `SELECT ` + creditColumns + ` FROM credit_events WHERE member_id=? ORDER BY ts DESC, id DESC`
	args := []any{memberID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CreditRecord
	for rows.Next() {
		c, err := scanCreditRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
