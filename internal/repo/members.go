package repo

import (
	"context"
	"database/sql"

	"launchline/internal/domain"
)

func scanMember(scan func(dest ...any) error) (domain.Member, error) {
	var m domain.Member
	var avatar, contact sql.NullString
	err := scan(&m.ID, &m.StoreID, &m.Name, &m.Role, &avatar, &contact, &m.CreditScore, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if avatar.Valid {
		m.AvatarURL = avatar.String
	}
	if contact.Valid {
		m.Contact = contact.String
	}
	return m, nil
}

const memberColumns = `id,store_id,name,role,avatar_url,contact,credit_score,created_at,updated_at`

func (r Repo) InsertMember(ctx context.Context, m domain.Member) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO members(id,store_id,name,role,avatar_url,contact,credit_score,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ID, m.StoreID, m.Name, m.Role, nullable(m.AvatarURL), nullable(m.Contact), m.CreditScore, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) InsertMemberTx(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO members(id,store_id,name,role,avatar_url,contact,credit_score,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ID, m.StoreID, m.Name, m.Role, nullable(m.AvatarURL), nullable(m.Contact), m.CreditScore, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetMember(ctx context.Context, id string) (domain.Member, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id=?`, id)
	return scanMember(row.Scan)
}

func (r Repo) GetMemberTx(ctx context.Context, tx *sql.Tx, id string) (domain.Member, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id=?`, id)
	return scanMember(row.Scan)
}

func (r Repo) ListMembers(ctx context.Context, storeID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+memberColumns+` FROM members WHERE store_id=? ORDER BY credit_score DESC, id`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		m, err := scanMember(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

func (r Repo) UpdateMember(ctx context.Context, m domain.Member) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE members SET name=?, role=?, avatar_url=?, contact=?, updated_at=? WHERE id=?`,
		m.Name, m.Role, nullable(m.AvatarURL), nullable(m.Contact), m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteMember(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM members WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreditStats aggregates credit scores across a store's members.
type CreditStats struct {
	Members int     `json:"members"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
	Avg     float64 `json:"avg"`
}

func (r Repo) MemberCreditStats(ctx context.Context, storeID string) (CreditStats, error) {
	var s CreditStats
	err := r.DB.QueryRowContext(ctx, `SELECT count(*), COALESCE(MIN(credit_score),0), COALESCE(MAX(credit_score),0), COALESCE(AVG(credit_score),0) FROM members WHERE store_id=?`, storeID).
		Scan(&s.Members, &s.Min, &s.Max, &s.Avg)
	return s, err
}
