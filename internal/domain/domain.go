package domain

// AssetStatus is the lifecycle state of a listing asset.
type AssetStatus string

const (
	StatusPending     AssetStatus = "pending"
	StatusActive      AssetStatus = "active"
	StatusAbandoned   AssetStatus = "abandoned"
	StatusMaintenance AssetStatus = "maintenance"
	StatusTrashed     AssetStatus = "trashed"
)

func (s AssetStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusAbandoned, StatusMaintenance, StatusTrashed:
		return true
	}
	return false
}

// Strategy selects the operations playbook an asset runs under.
// The empty value means no strategy has been chosen yet.
type Strategy string

const (
	StrategyUnset    Strategy = ""
	StrategyStandard Strategy = "standard"
	StrategySprint3  Strategy = "sprint3"
	StrategySprint7  Strategy = "sprint7"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyStandard, StrategySprint3, StrategySprint7:
		return true
	}
	return false
}

type Store struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Member struct {
	ID          string `json:"id"`
	StoreID     string `json:"store_id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Contact     string `json:"contact,omitempty"`
	CreditScore int    `json:"credit_score"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// CreditLevel buckets a score into the reputation bands shown in CLI and API output.
func CreditLevel(score int) string {
	switch {
	case score < 60:
		return "danger"
	case score < 100:
		return "normal"
	case score < 150:
		return "main"
	case score < 180:
		return "core"
	default:
		return "ace"
	}
}

type Asset struct {
	ID         string      `json:"id"`
	StoreID    string      `json:"store_id"`
	Title      string      `json:"title"`
	SKU        string      `json:"sku,omitempty"`
	Status     AssetStatus `json:"status" enum:"pending,active,abandoned,maintenance,trashed"`
	Strategy   Strategy    `json:"strategy,omitempty" enum:"standard,sprint3,sprint7"`
	DayIndex   int         `json:"day_index"`
	OperatorID string      `json:"operator_id,omitempty"`
	CreatedAt  string      `json:"created_at" format:"date-time"`
	UpdatedAt  string      `json:"updated_at" format:"date-time"`
}

// AssetLog is one append-only history entry on an asset.
// Source is "operator" for entries written by a person and "system"
// for entries written by lifecycle transitions.
type AssetLog struct {
	ID      int64  `json:"id"`
	AssetID string `json:"asset_id"`
	ActorID string `json:"actor_id,omitempty"`
	Source  string `json:"source" enum:"operator,system"`
	Body    string `json:"body"`
	TS      string `json:"ts" format:"date-time"`
}

// EvidenceSlot holds the attachments proving one task of one day.
// A slot is satisfied while Images is non-empty.
type EvidenceSlot struct {
	AssetID     string   `json:"asset_id"`
	Day         int      `json:"day"`
	TaskIndex   int      `json:"task_index"`
	Images      []string `json:"images"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
}

// GoalPriority ranks a goal for filtering and display.
type GoalPriority string

const (
	PriorityLow    GoalPriority = "low"
	PriorityMedium GoalPriority = "medium"
	PriorityHigh   GoalPriority = "high"
)

func (p GoalPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Goal struct {
	ID          string       `json:"id"`
	StoreID     string       `json:"store_id"`
	MemberID    string       `json:"member_id"`
	Title       string       `json:"title"`
	Deadline    string       `json:"deadline" format:"date-time"`
	Priority    GoalPriority `json:"priority" enum:"low,medium,high"`
	Note        string       `json:"note,omitempty"`
	Evidence    []string     `json:"evidence,omitempty"`
	CompletedAt *string      `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
}

func (g Goal) Completed() bool { return g.CompletedAt != nil }

// CreditRecord is one settled row in the credit ledger.
type CreditRecord struct {
	ID            string `json:"id"`
	StoreID       string `json:"store_id"`
	MemberID      string `json:"member_id"`
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CycleKey      string `json:"cycle_key"`
	Points        int    `json:"points"`
	Reason        string `json:"reason"`
	DataJSON      string `json:"data_json,omitempty"`
	NewScore      int    `json:"new_score"`
	TS            string `json:"ts" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	StoreID    string `json:"store_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
