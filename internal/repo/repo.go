package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"launchline/internal/config"
	"launchline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertStore(ctx context.Context, s domain.Store) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO stores(id,kind,status,description,created_at) VALUES (?,?,?,?,?)`,
		s.ID, s.Kind, s.Status, nullable(s.Description), s.CreatedAt)
	return err
}

func (r Repo) GetStore(ctx context.Context, id string) (domain.Store, error) {
	var s domain.Store
	err := r.DB.QueryRowContext(ctx, `SELECT id,kind,status,COALESCE(description,''),created_at FROM stores WHERE id=?`, id).
		Scan(&s.ID, &s.Kind, &s.Status, &s.Description, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) SingleStore(ctx context.Context) (domain.Store, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,kind,status,COALESCE(description,''),created_at FROM stores`)
	if err != nil {
		return domain.Store{}, err
	}
	defer rows.Close()
	var stores []domain.Store
	for rows.Next() {
		var s domain.Store
		if err := rows.Scan(&s.ID, &s.Kind, &s.Status, &s.Description, &s.CreatedAt); err != nil {
			return domain.Store{}, err
		}
		stores = append(stores, s)
	}
	if len(stores) == 0 {
		return domain.Store{}, ErrNotFound
	}
	if len(stores) > 1 {
		return domain.Store{}, fmt.Errorf("multiple stores exist; specify --store")
	}
	return stores[0], nil
}

func (r Repo) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,kind,status,COALESCE(description,''),created_at FROM stores ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Store
	for rows.Next() {
		var s domain.Store
		if err := rows.Scan(&s.ID, &s.Kind, &s.Status, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (r Repo) DeleteStore(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM stores WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertStoreConfig(ctx context.Context, storeID string, cfg *config.Config) error {
	return upsertStoreConfig(ctx, r.DB, nil, storeID, cfg)
}

func (r Repo) UpsertStoreConfigTx(ctx context.Context, tx *sql.Tx, storeID string, cfg *config.Config) error {
	return upsertStoreConfig(ctx, nil, tx, storeID, cfg)
}

func upsertStoreConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, storeID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Store.ID = storeID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO store_configs(store_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(store_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, storeID, string(payload), now, now)
	return err
}

func (r Repo) GetStoreConfig(ctx context.Context, storeID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM store_configs WHERE store_id=?`, storeID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Store.ID == "" {
		cfg.Store.ID = storeID
	}
	return &cfg, cfg.Validate()
}

// --- assets ---

func (r Repo) InsertAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assets(id,store_id,title,sku,status,strategy,day_index,operator_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.StoreID, a.Title, nullable(a.SKU), string(a.Status), nullable(string(a.Strategy)), a.DayIndex, nullable(a.OperatorID), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := tx.ExecContext(ctx, `UPDATE assets SET title=?, sku=?, status=?, strategy=?, day_index=?, operator_id=?, updated_at=? WHERE id=?`,
		a.Title, nullable(a.SKU), string(a.Status), nullable(string(a.Strategy)), a.DayIndex, nullable(a.OperatorID), a.UpdatedAt, a.ID)
	return err
}

func (r Repo) DeleteAsset(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAsset(scan func(dest ...any) error) (domain.Asset, error) {
	var a domain.Asset
	var sku, strategy, operator sql.NullString
	err := scan(&a.ID, &a.StoreID, &a.Title, &sku, (*string)(&a.Status), &strategy, &a.DayIndex, &operator, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if sku.Valid {
		a.SKU = sku.String
	}
	if strategy.Valid {
		a.Strategy = domain.Strategy(strategy.String)
	}
	if operator.Valid {
		a.OperatorID = operator.String
	}
	return a, nil
}

const assetColumns = `id,store_id,title,sku,status,strategy,day_index,operator_id,created_at,updated_at`

func (r Repo) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=?`, id)
	return scanAsset(row.Scan)
}

func (r Repo) GetAssetTx(ctx context.Context, tx *sql.Tx, id string) (domain.Asset, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=?`, id)
	return scanAsset(row.Scan)
}

type AssetFilters struct {
	StoreID         string
	Status          string
	OperatorID      string
	Strategy        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListAssets(ctx context.Context, f AssetFilters) ([]domain.Asset, error) {
	var clauses []string
	var args []any
	if f.StoreID != "" {
		clauses = append(clauses, "store_id=?")
		args = append(args, f.StoreID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.OperatorID != "" {
		clauses = append(clauses, "operator_id=?")
		args = append(args, f.OperatorID)
	}
	if f.Strategy != "" {
		clauses = append(clauses, "strategy=?")
		args = append(args, f.Strategy)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + assetColumns + ` FROM assets ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

func (r Repo) CountAssetsByStatus(ctx context.Context, storeID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM assets WHERE store_id=? GROUP BY status`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, nil
}

// --- evidence ---

func scanEvidence(scan func(dest ...any) error) (domain.EvidenceSlot, error) {
	var s domain.EvidenceSlot
	var images string
	var completed sql.NullString
	err := scan(&s.AssetID, &s.Day, &s.TaskIndex, &images, &completed)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(images), &s.Images); err != nil {
		return s, fmt.Errorf("decode evidence images: %w", err)
	}
	if completed.Valid {
		s.CompletedAt = &completed.String
	}
	return s, nil
}

func (r Repo) GetEvidenceTx(ctx context.Context, tx *sql.Tx, assetID string, day, taskIndex int) (domain.EvidenceSlot, error) {
	row := tx.QueryRowContext(ctx, `SELECT asset_id,day,task_index,images_json,completed_at FROM evidence WHERE asset_id=? AND day=? AND task_index=?`,
		assetID, day, taskIndex)
	return scanEvidence(row.Scan)
}

func (r Repo) UpsertEvidenceTx(ctx context.Context, tx *sql.Tx, s domain.EvidenceSlot) error {
	images, err := json.Marshal(s.Images)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO evidence(asset_id,day,task_index,images_json,completed_at) VALUES (?,?,?,?,?)
ON CONFLICT(asset_id,day,task_index) DO UPDATE SET images_json=excluded.images_json, completed_at=excluded.completed_at`,
		s.AssetID, s.Day, s.TaskIndex, string(images), nullableStringPtr(s.CompletedAt))
	return err
}

func (r Repo) ListEvidenceForDay(ctx context.Context, assetID string, day int) ([]domain.EvidenceSlot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT asset_id,day,task_index,images_json,completed_at FROM evidence WHERE asset_id=? AND day=? ORDER BY task_index`, assetID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EvidenceSlot
	for rows.Next() {
		s, err := scanEvidence(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (r Repo) ListEvidence(ctx context.Context, assetID string) ([]domain.EvidenceSlot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT asset_id,day,task_index,images_json,completed_at FROM evidence WHERE asset_id=? ORDER BY day, task_index`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EvidenceSlot
	for rows.Next() {
		s, err := scanEvidence(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

// --- asset logs ---

func (r Repo) InsertAssetLogTx(ctx context.Context, tx *sql.Tx, l domain.AssetLog) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO asset_logs(asset_id,actor_id,source,body,ts) VALUES (?,?,?,?,?)`,
		l.AssetID, nullable(l.ActorID), l.Source, l.Body, l.TS)
	return err
}

func (r Repo) ListAssetLogs(ctx context.Context, assetID string) ([]domain.AssetLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,asset_id,COALESCE(actor_id,''),source,body,ts FROM asset_logs WHERE asset_id=? ORDER BY id`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AssetLog
	for rows.Next() {
		var l domain.AssetLog
		if err := rows.Scan(&l.ID, &l.AssetID, &l.ActorID, &l.Source, &l.Body, &l.TS); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, nil
}

// CountOperatorLogsTx counts log entries written by operators, ignoring
// system-authored rows.
func (r Repo) CountOperatorLogsTx(ctx context.Context, tx *sql.Tx, assetID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM asset_logs WHERE asset_id=? AND source='operator'`, assetID).Scan(&n)
	return n, err
}

// --- events journal ---

func (r Repo) LatestEvents(ctx context.Context, limit int, storeID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, storeID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, storeID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if storeID != "" {
		clauses = append(clauses, "store_id=?")
		args = append(args, storeID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,store_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, storeID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if storeID != "" {
		clauses = append(clauses, "store_id=?")
		args = append(args, storeID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,store_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var storeID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &storeID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if storeID.Valid {
			e.StoreID = storeID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a store.
func (r Repo) LatestEventID(ctx context.Context, storeID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE store_id=?`, storeID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
