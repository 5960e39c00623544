package casefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrCaseNotFound is returned when no case row exists for the identifier
	// within the tenant.
	ErrCaseNotFound = errors.New("casefile: case not found")
	// ErrStageNotFound is returned when the target stage is not in the
	// tenant's active catalog.
	ErrStageNotFound = errors.New("casefile: stage not found")
	// ErrWriteConflict signals a concurrent transition won the race; the
	// caller should re-read the case and retry.
	ErrWriteConflict = errors.New("casefile: concurrent stage update")
	// ErrInvalidNotificationType is returned for a notification type outside
	// the known set. Caller error, not an internal failure.
	ErrInvalidNotificationType = errors.New("casefile: invalid notification type")
	// ErrHistoryWriteFailed signals the audit insert failed. The enclosing
	// transaction rolls back, so the case pointer is never left without its
	// history row, but the condition must be surfaced loudly.
	ErrHistoryWriteFailed = errors.New("casefile: history write failed")
)

// Repository defines the transaction-scoped data access required by the
// transition recorder.
type Repository interface {
	ResolveActiveStage(ctx context.Context, tx pgx.Tx, tenantID, stageID string) (stageName string, err error)
	GetCaseStage(ctx context.Context, tx pgx.Tx, tenantID, caseID string) (*string, error)
	UpdateCaseStage(ctx context.Context, tx pgx.Tx, tenantID, caseID string, previous *string, next string) error
	InsertHistory(ctx context.Context, tx pgx.Tx, params HistoryParams) (HistoryEntry, error)
	EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// HistoryParams enumerates the immutable fields of a new history row.
type HistoryParams struct {
	ID               string
	TenantID         string
	CaseID           string
	StageID          string
	PreviousStageID  *string
	UpdatedBy        string
	Notes            *string
	NotificationType NotificationType
}

// PGRepository implements Repository against PostgreSQL.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

// ResolveActiveStage confirms the stage belongs to the tenant's active
// catalog and returns its name.
func (r *PGRepository) ResolveActiveStage(ctx context.Context, tx pgx.Tx, tenantID, stageID string) (string, error) {
	const query = `
		SELECT name
		FROM workflow_stages
		WHERE id = $1 AND tenant_id = $2 AND is_active
	`

	var name string
	if err := tx.QueryRow(ctx, query, stageID, tenantID).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrStageNotFound
		}
		return "", fmt.Errorf("casefile: resolve stage: %w", err)
	}
	return name, nil
}

// GetCaseStage reads the case's current stage pointer. The read is
// deliberately unlocked: the subsequent guarded update detects lost races.
func (r *PGRepository) GetCaseStage(ctx context.Context, tx pgx.Tx, tenantID, caseID string) (*string, error) {
	const query = `
		SELECT current_stage_id
		FROM repair_cases
		WHERE id = $1 AND tenant_id = $2
	`

	var current *string
	if err := tx.QueryRow(ctx, query, caseID, tenantID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("casefile: read case stage: %w", err)
	}
	return current, nil
}

// UpdateCaseStage moves the case pointer with an optimistic check against the
// previously read value. A writer that raced against another transition finds
// zero matching rows once the competing commit lands and gets ErrWriteConflict.
func (r *PGRepository) UpdateCaseStage(ctx context.Context, tx pgx.Tx, tenantID, caseID string, previous *string, next string) error {
	const updateSQL = `
		UPDATE repair_cases
		SET current_stage_id = $1,
		    updated_at = now()
		WHERE id = $2
		  AND tenant_id = $3
		  AND current_stage_id IS NOT DISTINCT FROM $4
	`

	tag, err := tx.Exec(ctx, updateSQL, next, caseID, tenantID, previous)
	if err != nil {
		return fmt.Errorf("casefile: update case stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWriteConflict
	}
	return nil
}

// InsertHistory appends the audit row for a transition.
func (r *PGRepository) InsertHistory(ctx context.Context, tx pgx.Tx, params HistoryParams) (HistoryEntry, error) {
	const insertSQL = `
		INSERT INTO stage_history (id, tenant_id, case_id, stage_id, previous_stage_id, updated_by, notes, notification_type, notified_customer)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	entry := HistoryEntry{
		ID:               params.ID,
		TenantID:         params.TenantID,
		CaseID:           params.CaseID,
		StageID:          params.StageID,
		PreviousStageID:  params.PreviousStageID,
		UpdatedBy:        params.UpdatedBy,
		Notes:            params.Notes,
		NotificationType: params.NotificationType,
		NotifiedCustomer: params.NotificationType != NotificationNone,
	}

	err := tx.QueryRow(ctx, insertSQL,
		entry.ID,
		entry.TenantID,
		entry.CaseID,
		entry.StageID,
		entry.PreviousStageID,
		entry.UpdatedBy,
		entry.Notes,
		entry.NotificationType,
		entry.NotifiedCustomer,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("%w: %v", ErrHistoryWriteFailed, err)
	}

	return entry, nil
}

// EnqueueOutbox appends a transactional outbox message.
func (r *PGRepository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("casefile: marshal outbox payload: %w", err)
	}

	const insertSQL = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, insertSQL, topic, body); err != nil {
		return fmt.Errorf("casefile: enqueue outbox: %w", err)
	}
	return nil
}
