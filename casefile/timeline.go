package casefile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// unknownStageLabel replaces stage names that no longer resolve, so a
// deleted or deactivated stage never breaks the timeline query.
const unknownStageLabel = "Unknown"

// TimelineReader is the read-only query contract consumed by the UI.
type TimelineReader interface {
	ListHistory(ctx context.Context, tenantID, caseID string) ([]TimelineEntry, error)
}

// TimelineRepository projects the stage history joined with stage labels.
type TimelineRepository struct {
	pool *pgxpool.Pool
}

func NewTimelineRepository(pool *pgxpool.Pool) *TimelineRepository {
	return &TimelineRepository{pool: pool}
}

// ListHistory returns every history row for the case, newest first, each
// joined with its stage's name/color and the previous stage's name/color.
func (r *TimelineRepository) ListHistory(ctx context.Context, tenantID, caseID string) ([]TimelineEntry, error) {
	const query = `
		SELECT h.id, h.tenant_id, h.case_id, h.stage_id, h.previous_stage_id,
		       h.updated_by, h.notes, h.notification_type, h.notified_customer,
		       h.notification_sent_at, h.created_at,
		       COALESCE(s.name, $3) AS stage_name,
		       COALESCE(s.color, '') AS stage_color,
		       p.name AS previous_stage_name,
		       p.color AS previous_stage_color
		FROM stage_history h
		LEFT JOIN workflow_stages s ON s.id = h.stage_id
		LEFT JOIN workflow_stages p ON p.id = h.previous_stage_id
		WHERE h.case_id = $1 AND h.tenant_id = $2
		ORDER BY h.created_at DESC, h.id DESC
	`

	rows, err := r.pool.Query(ctx, query, caseID, tenantID, unknownStageLabel)
	if err != nil {
		return nil, fmt.Errorf("casefile: list history: %w", err)
	}
	defer rows.Close()

	entries := make([]TimelineEntry, 0, 8)
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&e.CaseID,
			&e.StageID,
			&e.PreviousStageID,
			&e.UpdatedBy,
			&e.Notes,
			&e.NotificationType,
			&e.NotifiedCustomer,
			&e.NotificationSentAt,
			&e.CreatedAt,
			&e.StageName,
			&e.StageColor,
			&e.PreviousStageName,
			&e.PreviousStageColor,
		); err != nil {
			return nil, fmt.Errorf("casefile: scan history: %w", err)
		}
		// A recorded previous stage whose catalog row is gone still needs a label.
		if e.PreviousStageID != nil && e.PreviousStageName == nil {
			label := unknownStageLabel
			e.PreviousStageName = &label
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("casefile: iterate history: %w", err)
	}

	return entries, nil
}
