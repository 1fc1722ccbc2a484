package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"launchline/internal/config"
	"launchline/internal/credit"
	"launchline/internal/domain"
	"launchline/internal/events"
	"launchline/internal/ledger"
	"launchline/internal/playbook"
	"launchline/internal/repo"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Credit    credit.Dispatcher
	Playbooks playbook.Registry
	Config    *config.Config
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
	if cfg != nil {
		e.Playbooks = playbook.Registry{Config: cfg}
		var l credit.Ledger = ledger.New(db)
		if cfg.Credit.RemoteLedgerURL != "" {
			l = credit.NewRemoteLedger(cfg.Credit.RemoteLedgerURL)
		}
		e.Credit = credit.Dispatcher{StoreID: cfg.Store.ID, Ledger: l}
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// InitStore initializes a new store with migrations already run.
func (e Engine) InitStore(ctx context.Context, storeID, kind, description, actorID string) (domain.Store, error) {
	if kind == "" {
		kind = "mall"
	}
	seedCfg := config.Default(storeID)
	seedCfg.Store.Kind = kind
	if err := seedCfg.Validate(); err != nil {
		return domain.Store{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Store{}, err
	}
	defer tx.Rollback()

	s := domain.Store{
		ID:          storeID,
		Kind:        kind,
		Status:      "active",
		Description: description,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO stores(id,kind,status,description,created_at) VALUES (?,?,?,?,?)`,
		s.ID, s.Kind, s.Status, nullable(s.Description), s.CreatedAt); err != nil {
		return domain.Store{}, fmt.Errorf("insert store: %w", err)
	}
	if err := e.Repo.UpsertStoreConfigTx(ctx, tx, s.ID, seedCfg); err != nil {
		return domain.Store{}, fmt.Errorf("insert store config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "store.init", s.ID, "store", s.ID, actorID, events.EventPayload{"kind": s.Kind}); err != nil {
		return domain.Store{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Store{}, err
	}
	return s, nil
}

// AssetCreateOptions are parameters for creating an asset.
type AssetCreateOptions struct {
	ID       string
	StoreID  string
	Title    string
	SKU      string
	Strategy string
	ActorID  string
}

// CreateAsset inserts a new asset in the pending pool. A strategy may be
// chosen at creation time or later with SetStrategy.
func (e Engine) CreateAsset(ctx context.Context, opts AssetCreateOptions) (domain.Asset, error) {
	if e.Config == nil {
		return domain.Asset{}, errors.New("config not loaded")
	}
	if opts.Title == "" {
		return domain.Asset{}, validationf("title is required")
	}
	if opts.StoreID == "" {
		return domain.Asset{}, validationf("store is required")
	}
	store, err := e.Repo.GetStore(ctx, opts.StoreID)
	if err != nil {
		return domain.Asset{}, err
	}
	strategy := domain.Strategy(opts.Strategy)
	if strategy != domain.StrategyUnset {
		if _, err := e.Playbooks.Resolve(store.Kind, strategy); err != nil {
			return domain.Asset{}, ValidationError{Message: err.Error()}
		}
	}
	id := opts.ID
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.StoreID+"|"+opts.Title+"|"+now)).String()
	}
	a := domain.Asset{
		ID:        id,
		StoreID:   opts.StoreID,
		Title:     opts.Title,
		SKU:       opts.SKU,
		Status:    domain.StatusPending,
		Strategy:  strategy,
		DayIndex:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAsset(ctx, tx, a); err != nil {
		return domain.Asset{}, err
	}
	if err := e.systemLog(ctx, tx, a.ID, "Asset created"); err != nil {
		return domain.Asset{}, err
	}
	if err := e.Events.Append(ctx, tx, "asset.created", a.StoreID, "asset", a.ID, opts.ActorID, events.EventPayload{"title": a.Title, "status": string(a.Status)}); err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

// SetStrategy binds an asset to a playbook. The binding is one-way: once a
// strategy is chosen it cannot be changed without force.
func (e Engine) SetStrategy(ctx context.Context, assetID, strategy, actorID string, force bool) (domain.Asset, error) {
	if e.Config == nil {
		return domain.Asset{}, errors.New("config not loaded")
	}
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return a, err
	}
	next := domain.Strategy(strategy)
	if a.Strategy != domain.StrategyUnset && a.Strategy != next && !force {
		return a, validationf("asset %s already runs strategy %s", a.ID, a.Strategy)
	}
	store, err := e.Repo.GetStore(ctx, a.StoreID)
	if err != nil {
		return a, err
	}
	if _, err := e.Playbooks.Resolve(store.Kind, next); err != nil {
		return a, ValidationError{Message: err.Error()}
	}
	old := a.Strategy
	a.Strategy = next
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "asset.strategy.set", a.StoreID, "asset", a.ID, actorID, events.EventPayload{
		"from": string(old),
		"to":   string(next),
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// EvidenceOptions identify one evidence slot and the images to attach.
type EvidenceOptions struct {
	AssetID   string
	Day       int
	TaskIndex int
	Images    []string
	ActorID   string
}

// AttachEvidence appends images to a task's evidence slot for the asset's
// current day. The first image landing in an empty slot marks the task
// complete and scores it for the operator; re-attaching never scores twice.
func (e Engine) AttachEvidence(ctx context.Context, opts EvidenceOptions) (domain.EvidenceSlot, error) {
	if e.Config == nil {
		return domain.EvidenceSlot{}, errors.New("config not loaded")
	}
	if len(opts.Images) == 0 {
		return domain.EvidenceSlot{}, validationf("at least one image is required")
	}
	a, err := e.Repo.GetAsset(ctx, opts.AssetID)
	if err != nil {
		return domain.EvidenceSlot{}, err
	}
	template, err := e.activePlaybook(ctx, a)
	if err != nil {
		return domain.EvidenceSlot{}, err
	}
	if opts.Day != a.DayIndex {
		return domain.EvidenceSlot{}, validationf("asset %s is on day %d, not day %d", a.ID, a.DayIndex, opts.Day)
	}
	tasks := template.Tasks(opts.Day)
	if opts.TaskIndex < 0 || opts.TaskIndex >= len(tasks) {
		return domain.EvidenceSlot{}, validationf("day %d has %d tasks; index %d out of range", opts.Day, len(tasks), opts.TaskIndex)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.EvidenceSlot{}, err
	}
	defer tx.Rollback()

	slot, err := e.Repo.GetEvidenceTx(ctx, tx, a.ID, opts.Day, opts.TaskIndex)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return slot, err
	}
	wasEmpty := len(slot.Images) == 0
	slot.AssetID = a.ID
	slot.Day = opts.Day
	slot.TaskIndex = opts.TaskIndex
	slot.Images = appendUnique(slot.Images, opts.Images)
	if slot.CompletedAt == nil && len(slot.Images) > 0 {
		now := e.now().UTC().Format(time.RFC3339)
		slot.CompletedAt = &now
	}
	if err := e.Repo.UpsertEvidenceTx(ctx, tx, slot); err != nil {
		return slot, err
	}
	if err := e.Events.Append(ctx, tx, "evidence.attached", a.StoreID, "asset", a.ID, opts.ActorID, events.EventPayload{
		"day":        opts.Day,
		"task_index": opts.TaskIndex,
		"task":       tasks[opts.TaskIndex],
		"images":     len(slot.Images),
	}); err != nil {
		return slot, err
	}
	if err := tx.Commit(); err != nil {
		return slot, err
	}
	if wasEmpty && len(slot.Images) > 0 {
		e.Credit.Dispatch(ctx, a.OperatorID, credit.TaskComplete, credit.Options{
			CorrelationID: taskCorrelation(a.ID, opts.Day, opts.TaskIndex),
			Data:          map[string]any{"day": opts.Day, "task": tasks[opts.TaskIndex]},
		})
	}
	return slot, nil
}

// DetachEvidence removes one image from a slot, or clears the slot when
// image is empty. Credit already earned for the task stays settled.
func (e Engine) DetachEvidence(ctx context.Context, assetID string, day, taskIndex int, image, actorID string) (domain.EvidenceSlot, error) {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return domain.EvidenceSlot{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.EvidenceSlot{}, err
	}
	defer tx.Rollback()

	slot, err := e.Repo.GetEvidenceTx(ctx, tx, assetID, day, taskIndex)
	if err != nil {
		return slot, err
	}
	if image == "" {
		slot.Images = nil
	} else {
		kept := slot.Images[:0]
		for _, img := range slot.Images {
			if img != image {
				kept = append(kept, img)
			}
		}
		slot.Images = kept
	}
	if len(slot.Images) == 0 {
		slot.CompletedAt = nil
	}
	if err := e.Repo.UpsertEvidenceTx(ctx, tx, slot); err != nil {
		return slot, err
	}
	if err := e.Events.Append(ctx, tx, "evidence.detached", a.StoreID, "asset", a.ID, actorID, events.EventPayload{
		"day":        day,
		"task_index": taskIndex,
		"images":     len(slot.Images),
	}); err != nil {
		return slot, err
	}
	if err := tx.Commit(); err != nil {
		return slot, err
	}
	return slot, nil
}

// AdvanceDay moves an active asset to the next playbook day once every task
// of the current day holds evidence. Advancing past the final day parks the
// asset in maintenance.
func (e Engine) AdvanceDay(ctx context.Context, assetID, actorID string, force bool) (domain.Asset, error) {
	if e.Config == nil {
		return domain.Asset{}, errors.New("config not loaded")
	}
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return a, err
	}
	template, err := e.activePlaybook(ctx, a)
	if err != nil {
		return a, err
	}
	day := a.DayIndex
	if !force {
		if err := e.ensureDaySatisfied(ctx, a.ID, day, template); err != nil {
			return a, err
		}
	}
	finished := day >= template.MaxDay()
	operator := a.OperatorID
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	a.DayIndex = day + 1
	if finished {
		// the day index runs past the final day so the finish is visible
		a.Status = domain.StatusMaintenance
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	logLine := fmt.Sprintf("Day %d complete; advanced to day %d", day, a.DayIndex)
	if finished {
		logLine = fmt.Sprintf("Day %d complete; playbook finished, entering maintenance", day)
	}
	if err := e.systemLog(ctx, tx, a.ID, logLine); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "asset.day.advanced", a.StoreID, "asset", a.ID, actorID, events.EventPayload{
		"day":      day,
		"next_day": a.DayIndex,
		"status":   string(a.Status),
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.Credit.Dispatch(ctx, operator, credit.DayComplete, credit.Options{
		CorrelationID: a.ID,
		CycleKey:      fmt.Sprintf("day-%d", day),
		Data:          map[string]any{"day": day},
	})
	if finished {
		e.Credit.Dispatch(ctx, operator, credit.AssetComplete, credit.Options{CorrelationID: a.ID})
	}
	return a, nil
}

// EarlyMaintainOptions carry the trading numbers justifying an early exit.
type EarlyMaintainOptions struct {
	AssetID     string
	DailyOrders string
	DailyProfit string
	ActorID     string
}

// EarlyMaintain parks an active asset in maintenance before its playbook
// ends. Both daily figures must be recorded or the request is rejected.
func (e Engine) EarlyMaintain(ctx context.Context, opts EarlyMaintainOptions) (domain.Asset, error) {
	a, err := e.Repo.GetAsset(ctx, opts.AssetID)
	if err != nil {
		return a, err
	}
	if a.Status != domain.StatusActive {
		return a, validationf("asset %s is %s, not active", a.ID, a.Status)
	}
	if opts.DailyOrders == "" || opts.DailyProfit == "" {
		return a, validationf("daily orders and daily profit are required for early maintenance")
	}
	operator := a.OperatorID
	a.Status = domain.StatusMaintenance
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.systemLog(ctx, tx, a.ID, fmt.Sprintf("Early maintenance: %s orders/day, %s profit/day", opts.DailyOrders, opts.DailyProfit)); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "asset.maintained", a.StoreID, "asset", a.ID, opts.ActorID, events.EventPayload{
		"daily_orders": opts.DailyOrders,
		"daily_profit": opts.DailyProfit,
		"early":        true,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.Credit.Dispatch(ctx, operator, credit.EarlyMaintain, credit.Options{CorrelationID: a.ID})
	return a, nil
}

// Abandon drops an active asset back out of operation. Abandoning without a
// single operator log entry costs more than a documented abandon.
func (e Engine) Abandon(ctx context.Context, assetID, actorID string) (domain.Asset, error) {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return a, err
	}
	if a.Status != domain.StatusActive {
		return a, validationf("asset %s is %s, not active", a.ID, a.Status)
	}
	operator := a.OperatorID
	a.Status = domain.StatusAbandoned
	a.OperatorID = ""
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	logged, err := e.Repo.CountOperatorLogsTx(ctx, tx, a.ID)
	if err != nil {
		return a, err
	}
	if err := e.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.systemLog(ctx, tx, a.ID, "Asset abandoned"); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "asset.abandoned", a.StoreID, "asset", a.ID, actorID, events.EventPayload{
		"operator": operator,
		"logged":   logged > 0,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	kind := credit.ManualAbandon
	if logged == 0 {
		kind = credit.AbandonWithoutLog
	}
	e.Credit.Dispatch(ctx, operator, kind, credit.Options{CorrelationID: a.ID})
	return a, nil
}

// Claim takes an asset from the public pool. The claiming member must sit
// at or above the configured credit floor.
func (e Engine) Claim(ctx context.Context, assetID, memberID, actorID string) (domain.Asset, error) {
	if e.Config == nil {
		return domain.Asset{}, errors.New("config not loaded")
	}
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return a, err
	}
	if a.Status != domain.StatusPending && a.Status != domain.StatusAbandoned {
		return a, validationf("asset %s is %s; only pending or abandoned assets can be claimed", a.ID, a.Status)
	}
	m, err := e.Repo.GetMember(ctx, memberID)
	if err != nil {
		return a, err
	}
	if m.StoreID != a.StoreID {
		return a, validationf("member %s not in store %s", memberID, a.StoreID)
	}
	if m.CreditScore < e.Config.Credit.ClaimFloor {
		return a, permissionf("credit score %d below claim floor %d", m.CreditScore, e.Config.Credit.ClaimFloor)
	}
	a.Status = domain.StatusActive
	a.OperatorID = memberID
	a.DayIndex = 1
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.systemLog(ctx, tx, a.ID, fmt.Sprintf("Claimed by %s", m.Name)); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "asset.claimed", a.StoreID, "asset", a.ID, actorID, events.EventPayload{"member": memberID}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	e.Credit.Dispatch(ctx, memberID, credit.PublicPoolTaken, credit.Options{CorrelationID: a.ID})
	return a, nil
}

// Trash moves an asset to the trash. An operated asset entering the trash
// costs its operator credit.
func (e Engine) Trash(ctx context.Context, assetID, actorID string) (domain.Asset, error) {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return a, err
	}
	if a.Status == domain.StatusTrashed {
		return a, validationf("asset %s is already trashed", a.ID)
	}
	operator := a.OperatorID
	a.Status = domain.StatusTrashed
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.systemLog(ctx, tx, a.ID, "Asset moved to trash"); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "asset.trashed", a.StoreID, "asset", a.ID, actorID, events.EventPayload{"operator": operator}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	if operator != "" {
		e.Credit.Dispatch(ctx, operator, credit.EnterTrash, credit.Options{CorrelationID: a.ID})
	}
	return a, nil
}

// Restore pulls an asset out of the trash into the abandoned pool with no
// operator attached.
func (e Engine) Restore(ctx context.Context, assetID, actorID string) (domain.Asset, error) {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return a, err
	}
	if a.Status != domain.StatusTrashed {
		return a, validationf("asset %s is %s, not trashed", a.ID, a.Status)
	}
	a.Status = domain.StatusAbandoned
	a.OperatorID = ""
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.systemLog(ctx, tx, a.ID, "Asset restored from trash"); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "asset.restored", a.StoreID, "asset", a.ID, actorID, events.EventPayload{}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// Purge permanently deletes a trashed asset along with its evidence and logs.
func (e Engine) Purge(ctx context.Context, assetID, actorID string, force bool) error {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if a.Status != domain.StatusTrashed && !force {
		return validationf("asset %s is %s; only trashed assets can be purged", a.ID, a.Status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAsset(ctx, tx, a.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "asset.purged", a.StoreID, "asset", a.ID, actorID, events.EventPayload{"title": a.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendLog adds an operator entry to an asset's history.
func (e Engine) AppendLog(ctx context.Context, assetID, body, actorID string) (domain.AssetLog, error) {
	if body == "" {
		return domain.AssetLog{}, validationf("log body is required")
	}
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return domain.AssetLog{}, err
	}
	l := domain.AssetLog{
		AssetID: a.ID,
		ActorID: actorID,
		Source:  "operator",
		Body:    body,
		TS:      e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return l, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAssetLogTx(ctx, tx, l); err != nil {
		return l, err
	}
	if err := e.Events.Append(ctx, tx, "asset.log.appended", a.StoreID, "asset", a.ID, actorID, events.EventPayload{}); err != nil {
		return l, err
	}
	if err := tx.Commit(); err != nil {
		return l, err
	}
	return l, nil
}

// DayBoard describes the current day's tasks and their evidence state.
type DayBoard struct {
	Day   int       `json:"day"`
	Tasks []DayTask `json:"tasks"`
}

type DayTask struct {
	Index     int      `json:"index"`
	Label     string   `json:"label"`
	Images    []string `json:"images,omitempty"`
	Satisfied bool     `json:"satisfied"`
}

// CurrentDay returns the task board for an asset's current playbook day.
func (e Engine) CurrentDay(ctx context.Context, assetID string) (DayBoard, error) {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return DayBoard{}, err
	}
	template, err := e.activePlaybook(ctx, a)
	if err != nil {
		return DayBoard{}, err
	}
	slots, err := e.Repo.ListEvidenceForDay(ctx, a.ID, a.DayIndex)
	if err != nil {
		return DayBoard{}, err
	}
	byIndex := map[int]domain.EvidenceSlot{}
	for _, s := range slots {
		byIndex[s.TaskIndex] = s
	}
	board := DayBoard{Day: a.DayIndex}
	for i, label := range template.Tasks(a.DayIndex) {
		slot := byIndex[i]
		board.Tasks = append(board.Tasks, DayTask{
			Index:     i,
			Label:     label,
			Images:    slot.Images,
			Satisfied: len(slot.Images) > 0,
		})
	}
	return board, nil
}

func (e Engine) activePlaybook(ctx context.Context, a domain.Asset) (playbook.Template, error) {
	if a.Status != domain.StatusActive {
		return playbook.Template{}, validationf("asset %s is %s, not active", a.ID, a.Status)
	}
	if a.Strategy == domain.StrategyUnset {
		return playbook.Template{}, validationf("asset %s has no strategy; set one first", a.ID)
	}
	store, err := e.Repo.GetStore(ctx, a.StoreID)
	if err != nil {
		return playbook.Template{}, err
	}
	template, err := e.Playbooks.Resolve(store.Kind, a.Strategy)
	if err != nil {
		return playbook.Template{}, ValidationError{Message: err.Error()}
	}
	return template, nil
}

func (e Engine) ensureDaySatisfied(ctx context.Context, assetID string, day int, template playbook.Template) error {
	slots, err := e.Repo.ListEvidenceForDay(ctx, assetID, day)
	if err != nil {
		return err
	}
	satisfied := map[int]bool{}
	for _, s := range slots {
		if len(s.Images) > 0 {
			satisfied[s.TaskIndex] = true
		}
	}
	for i, label := range template.Tasks(day) {
		if !satisfied[i] {
			return validationf("day %d task %d (%s) has no evidence", day, i, label)
		}
	}
	return nil
}

func (e Engine) systemLog(ctx context.Context, tx *sql.Tx, assetID, body string) error {
	return e.Repo.InsertAssetLogTx(ctx, tx, domain.AssetLog{
		AssetID: assetID,
		Source:  "system",
		Body:    body,
		TS:      e.now().UTC().Format(time.RFC3339),
	})
}

func taskCorrelation(assetID string, day, taskIndex int) string {
	return fmt.Sprintf("%s-d%d-t%d", assetID, day, taskIndex)
}

func appendUnique(existing, add []string) []string {
	seen := map[string]bool{}
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range add {
		if v != "" && !seen[v] {
			existing = append(existing, v)
			seen[v] = true
		}
	}
	return existing
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
