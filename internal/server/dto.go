package server

import (
	"encoding/json"

	"launchline/internal/config"
	"launchline/internal/domain"
)

// --- requests ---

type CreateStoreRequest struct {
	ID          string  `json:"id" example:"store-7"`
	Kind        string  `json:"kind,omitempty" enum:"mall,factory" example:"mall"`
	Description *string `json:"description,omitempty"`
}

type CreateMemberRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name" example:"Li Wen"`
	Role      string `json:"role,omitempty" example:"operator"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Contact   string `json:"contact,omitempty"`
}

type UpdateMemberRequest struct {
	Name      *string `json:"name,omitempty"`
	Role      *string `json:"role,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Contact   *string `json:"contact,omitempty"`
}

type CreateAssetRequest struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title" example:"Ceramic pour-over kettle"`
	SKU      string `json:"sku,omitempty"`
	Strategy string `json:"strategy,omitempty" enum:"standard,sprint3,sprint7"`
}

type SetStrategyRequest struct {
	Strategy string `json:"strategy" enum:"standard,sprint3,sprint7"`
	Force    bool   `json:"force,omitempty"`
}

type ClaimRequest struct {
	MemberID string `json:"member_id"`
}

type AttachEvidenceRequest struct {
	Day       int      `json:"day" minimum:"1"`
	TaskIndex int      `json:"task_index" minimum:"0"`
	Images    []string `json:"images"`
}

type DetachEvidenceRequest struct {
	Day       int    `json:"day" minimum:"1"`
	TaskIndex int    `json:"task_index" minimum:"0"`
	Image     string `json:"image,omitempty"`
}

type EarlyMaintainRequest struct {
	DailyOrders string `json:"daily_orders" example:"12"`
	DailyProfit string `json:"daily_profit" example:"340.50"`
}

type AppendLogRequest struct {
	Body string `json:"body"`
}

type CreateGoalRequest struct {
	ID       string `json:"id,omitempty"`
	MemberID string `json:"member_id"`
	Title    string `json:"title"`
	Deadline string `json:"deadline" format:"date-time"`
	Priority string `json:"priority,omitempty" enum:"low,medium,high" default:"medium"`
}

type CompleteGoalRequest struct {
	Note     string   `json:"note"`
	Evidence []string `json:"evidence,omitempty"`
}

type EvaluateGoalsRequest struct {
	Grain  string `json:"grain,omitempty" enum:"week,month" default:"week"`
	Offset int    `json:"offset,omitempty"`
}

type AdjustCreditRequest struct {
	Change int    `json:"change"`
	Reason string `json:"reason"`
}

// --- responses ---

type StoreResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type MemberResponse struct {
	ID          string `json:"id"`
	StoreID     string `json:"store_id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Contact     string `json:"contact,omitempty"`
	CreditScore int    `json:"credit_score"`
	CreditLevel string `json:"credit_level" enum:"danger,normal,main,core,ace"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type AssetResponse struct {
	ID         string `json:"id"`
	StoreID    string `json:"store_id"`
	Title      string `json:"title"`
	SKU        string `json:"sku,omitempty"`
	Status     string `json:"status" enum:"pending,active,abandoned,maintenance,trashed"`
	Strategy   string `json:"strategy,omitempty"`
	DayIndex   int    `json:"day_index"`
	OperatorID string `json:"operator_id,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type EvidenceResponse struct {
	AssetID     string   `json:"asset_id"`
	Day         int      `json:"day"`
	TaskIndex   int      `json:"task_index"`
	Images      []string `json:"images"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
}

type AssetLogResponse struct {
	ID      int64  `json:"id"`
	AssetID string `json:"asset_id"`
	ActorID string `json:"actor_id,omitempty"`
	Source  string `json:"source"`
	Body    string `json:"body"`
	TS      string `json:"ts" format:"date-time"`
}

type GoalResponse struct {
	ID          string   `json:"id"`
	StoreID     string   `json:"store_id"`
	MemberID    string   `json:"member_id"`
	Title       string   `json:"title"`
	Deadline    string   `json:"deadline" format:"date-time"`
	Priority    string   `json:"priority" enum:"low,medium,high"`
	Note        string   `json:"note,omitempty"`
	Evidence    []string `json:"evidence,omitempty"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type CreditRecordResponse struct {
	ID            string         `json:"id"`
	MemberID      string         `json:"member_id"`
	Kind          string         `json:"kind"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	CycleKey      string         `json:"cycle_key"`
	Points        int            `json:"points"`
	Reason        string         `json:"reason"`
	Data          map[string]any `json:"data,omitempty"`
	NewScore      int            `json:"new_score"`
	TS            string         `json:"ts" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	StoreID    string         `json:"store_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type StoreConfigResponse struct {
	Store struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
	} `json:"store"`
	Playbooks map[string][][]string `json:"playbooks"`
	Kinds     map[string][]string   `json:"kinds"`
	Credit    struct {
		ClaimFloor         int `json:"claim_floor"`
		WeeklyGoalMinimum  int `json:"weekly_goal_minimum"`
		OverduePenaltyDays int `json:"overdue_penalty_days"`
	} `json:"credit"`
}

// --- mappers ---

func storeResponse(s domain.Store) StoreResponse {
	return StoreResponse(s)
}

func memberResponse(m domain.Member) MemberResponse {
	return MemberResponse{
		ID:          m.ID,
		StoreID:     m.StoreID,
		Name:        m.Name,
		Role:        m.Role,
		AvatarURL:   m.AvatarURL,
		Contact:     m.Contact,
		CreditScore: m.CreditScore,
		CreditLevel: domain.CreditLevel(m.CreditScore),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func assetResponse(a domain.Asset) AssetResponse {
	return AssetResponse{
		ID:         a.ID,
		StoreID:    a.StoreID,
		Title:      a.Title,
		SKU:        a.SKU,
		Status:     string(a.Status),
		Strategy:   string(a.Strategy),
		DayIndex:   a.DayIndex,
		OperatorID: a.OperatorID,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func evidenceResponse(s domain.EvidenceSlot) EvidenceResponse {
	return EvidenceResponse{
		AssetID:     s.AssetID,
		Day:         s.Day,
		TaskIndex:   s.TaskIndex,
		Images:      nonNilSlice(s.Images),
		CompletedAt: s.CompletedAt,
	}
}

func assetLogResponse(l domain.AssetLog) AssetLogResponse {
	return AssetLogResponse(l)
}

func goalResponse(g domain.Goal) GoalResponse {
	return GoalResponse{
		ID:          g.ID,
		StoreID:     g.StoreID,
		MemberID:    g.MemberID,
		Title:       g.Title,
		Deadline:    g.Deadline,
		Priority:    string(g.Priority),
		Note:        g.Note,
		Evidence:    g.Evidence,
		CompletedAt: g.CompletedAt,
		CreatedAt:   g.CreatedAt,
	}
}

func creditRecordResponse(c domain.CreditRecord) CreditRecordResponse {
	return CreditRecordResponse{
		ID:            c.ID,
		MemberID:      c.MemberID,
		Kind:          c.Kind,
		CorrelationID: c.CorrelationID,
		CycleKey:      c.CycleKey,
		Points:        c.Points,
		Reason:        c.Reason,
		Data:          decodeJSONMap(c.DataJSON),
		NewScore:      c.NewScore,
		TS:            c.TS,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		StoreID:    e.StoreID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func configResponse(cfg *config.Config) StoreConfigResponse {
	var out StoreConfigResponse
	if cfg == nil {
		return out
	}
	out.Store.ID = cfg.Store.ID
	out.Store.Kind = cfg.Store.Kind
	out.Playbooks = map[string][][]string{}
	for name, pb := range cfg.Playbooks.Catalog {
		out.Playbooks[name] = pb.Days
	}
	out.Kinds = cfg.Playbooks.Kinds
	out.Credit.ClaimFloor = cfg.Credit.ClaimFloor
	out.Credit.WeeklyGoalMinimum = cfg.Credit.WeeklyGoalMinimum
	out.Credit.OverduePenaltyDays = cfg.Credit.OverduePenaltyDays
	return out
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func mapStores(items []domain.Store) []StoreResponse {
	out := make([]StoreResponse, 0, len(items))
	for _, s := range items {
		out = append(out, storeResponse(s))
	}
	return out
}

func mapMembers(items []domain.Member) []MemberResponse {
	out := make([]MemberResponse, 0, len(items))
	for _, m := range items {
		out = append(out, memberResponse(m))
	}
	return out
}

func mapAssets(items []domain.Asset) []AssetResponse {
	out := make([]AssetResponse, 0, len(items))
	for _, a := range items {
		out = append(out, assetResponse(a))
	}
	return out
}

func mapGoals(items []domain.Goal) []GoalResponse {
	out := make([]GoalResponse, 0, len(items))
	for _, g := range items {
		out = append(out, goalResponse(g))
	}
	return out
}

func mapCreditRecords(items []domain.CreditRecord) []CreditRecordResponse {
	out := make([]CreditRecordResponse, 0, len(items))
	for _, c := range items {
		out = append(out, creditRecordResponse(c))
	}
	return out
}

func mapAssetLogs(items []domain.AssetLog) []AssetLogResponse {
	out := make([]AssetLogResponse, 0, len(items))
	for _, l := range items {
		out = append(out, assetLogResponse(l))
	}
	return out
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse(e))
	}
	return out
}
