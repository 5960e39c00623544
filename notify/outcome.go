package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer abstracts pgxpool.Pool for testability.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// OutcomeRecorder folds the aggregate delivery outcome onto the history
// row's two mutable fields. It never blocks or rolls back the transition.
type OutcomeRecorder struct {
	db  Execer
	now func() time.Time
}

func NewOutcomeRecorder(db Execer) *OutcomeRecorder {
	return &OutcomeRecorder{
		db:  db,
		now: time.Now,
	}
}

// WithClock overrides the timestamp source, for tests.
func (r *OutcomeRecorder) WithClock(now func() time.Time) *OutcomeRecorder {
	r.now = now
	return r
}

// Record applies the outcome set to the history entry. When nothing was
// attempted, or every attempt failed, the entry keeps its creation-time
// values: notified_customer already reflects whether delivery was expected,
// and a null notification_sent_at lets the timeline distinguish "attempted
// but undelivered" from "delivered". The update is idempotent.
func (r *OutcomeRecorder) Record(ctx context.Context, historyEntryID string, set OutcomeSet) error {
	if !set.Attempted() || !set.AnyDelivered() {
		return nil
	}

	const updateSQL = `
		UPDATE stage_history
		SET notified_customer = TRUE,
		    notification_sent_at = COALESCE(notification_sent_at, $2)
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, updateSQL, historyEntryID, r.now().UTC()); err != nil {
		return fmt.Errorf("notify: record outcome: %w", err)
	}
	return nil
}
