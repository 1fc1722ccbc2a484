package credit

// EventKind is the closed set of credit-bearing events the ledger accepts.
type EventKind string

const (
	TaskComplete              EventKind = "TASK_COMPLETE"
	DayComplete               EventKind = "DAY_COMPLETE"
	AssetComplete             EventKind = "ASSET_COMPLETE"
	EarlyMaintain             EventKind = "EARLY_MAINTAIN"
	ManualAbandon             EventKind = "MANUAL_ABANDON"
	AbandonWithoutLog         EventKind = "ABANDON_WITHOUT_LOG"
	EnterTrash                EventKind = "ENTER_TRASH"
	PublicPoolTaken           EventKind = "PUBLIC_POOL_TAKEN"
	GoalCompleteOnTime        EventKind = "GOAL_COMPLETE_ON_TIME"
	GoalCompleteLate          EventKind = "GOAL_COMPLETE_LATE"
	GoalOverduePenalty        EventKind = "GOAL_OVERDUE_PENALTY"
	WeeklyGoalCountShort      EventKind = "WEEKLY_GOAL_COUNT_INSUFFICIENT"
	VisualAssetSaved          EventKind = "VISUAL_ASSET_SAVED"
)

func (k EventKind) Valid() bool {
	switch k {
	case TaskComplete, DayComplete, AssetComplete, EarlyMaintain,
		ManualAbandon, AbandonWithoutLog, EnterTrash, PublicPoolTaken,
		GoalCompleteOnTime, GoalCompleteLate, GoalOverduePenalty,
		WeeklyGoalCountShort, VisualAssetSaved:
		return true
	}
	return false
}
