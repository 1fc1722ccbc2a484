package credit

import (
	"context"

	"github.com/charmbracelet/log"

	"launchline/internal/domain"
)

// Trigger is one credit event offered to a ledger. The ledger deduplicates
// on (member, kind, correlation, cycle key); the dispatcher must therefore
// supply a distinct cycle key whenever the same event may legitimately
// recur for the same correlation.
type Trigger struct {
	StoreID       string         `json:"store_id"`
	MemberID      string         `json:"member_id"`
	Kind          EventKind      `json:"kind"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	CycleKey      string         `json:"cycle_key,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// Result reports how the ledger settled a trigger.
type Result struct {
	Skipped bool
	Reason  string
	Record  *domain.CreditRecord
}

// Ledger settles credit triggers at most once per dedup tuple.
type Ledger interface {
	Trigger(ctx context.Context, t Trigger) (Result, error)
}

// Options carry the optional trigger fields.
type Options struct {
	CorrelationID string
	CycleKey      string
	Data          map[string]any
}

// Dispatcher sends credit events to the ledger. Ledger failures are logged
// and swallowed: the lifecycle transition that produced the event has
// already committed and must not roll back over a scoring problem.
type Dispatcher struct {
	StoreID string
	Ledger  Ledger
	Log     *log.Logger
}

func (d Dispatcher) logger() *log.Logger {
	if d.Log != nil {
		return d.Log
	}
	return log.Default()
}

func (d Dispatcher) Dispatch(ctx context.Context, memberID string, kind EventKind, opts Options) {
	if d.Ledger == nil || memberID == "" {
		return
	}
	if !kind.Valid() {
		d.logger().Warn("dropping unknown credit event kind", "kind", kind, "member", memberID)
		return
	}
	res, err := d.Ledger.Trigger(ctx, Trigger{
		StoreID:       d.StoreID,
		MemberID:      memberID,
		Kind:          kind,
		CorrelationID: opts.CorrelationID,
		CycleKey:      opts.CycleKey,
		Data:          opts.Data,
	})
	if err != nil {
		d.logger().Warn("credit dispatch failed", "kind", kind, "member", memberID, "err", err)
		return
	}
	if res.Skipped {
		d.logger().Debug("credit event skipped", "kind", kind, "member", memberID, "reason", res.Reason)
	}
}
