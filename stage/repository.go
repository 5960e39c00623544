package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the stage does not exist in the tenant's catalog.
	ErrNotFound = errors.New("stage: not found")
	// ErrDuplicateOrder signals another active stage already holds the order index.
	ErrDuplicateOrder = errors.New("stage: order index already in use")
)

const selectColumns = `id, tenant_id, name, description, order_index, color, is_active, notification_template, notify_customer, created_at, updated_at`

// Repository provides access to the tenant-scoped stage catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActive returns the tenant's active stages in workflow order.
func (r *Repository) ListActive(ctx context.Context, tenantID string) ([]WorkflowStage, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM workflow_stages
		WHERE tenant_id = $1 AND is_active
		ORDER BY order_index ASC
	`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("stage: list active: %w", err)
	}
	defer rows.Close()

	stages := make([]WorkflowStage, 0, 8)
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("stage: scan: %w", err)
		}
		stages = append(stages, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stage: iterate: %w", err)
	}
	return stages, nil
}

// GetActive resolves a single active stage by id within the tenant.
func (r *Repository) GetActive(ctx context.Context, tenantID, stageID string) (WorkflowStage, error) {
	const query = `
		SELECT ` + selectColumns + `
		FROM workflow_stages
		WHERE id = $1 AND tenant_id = $2 AND is_active
	`

	s, err := scanStage(r.pool.QueryRow(ctx, query, stageID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkflowStage{}, ErrNotFound
		}
		return WorkflowStage{}, fmt.Errorf("stage: get active: %w", err)
	}
	return s, nil
}

// Create inserts a new stage into the tenant's catalog.
func (r *Repository) Create(ctx context.Context, params CreateParams) (WorkflowStage, error) {
	if params.TenantID == "" {
		return WorkflowStage{}, fmt.Errorf("stage: tenant id required")
	}
	if strings.TrimSpace(params.Name) == "" {
		return WorkflowStage{}, fmt.Errorf("stage: name required")
	}
	if params.OrderIndex < 0 {
		return WorkflowStage{}, fmt.Errorf("stage: invalid order index")
	}

	const insertSQL = `
		INSERT INTO workflow_stages (tenant_id, name, description, order_index, color, notification_template, notify_customer)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + selectColumns

	s, err := scanStage(r.pool.QueryRow(ctx, insertSQL,
		params.TenantID,
		strings.TrimSpace(params.Name),
		params.Description,
		params.OrderIndex,
		params.Color,
		params.NotificationTemplate,
		params.NotifyCustomer,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return WorkflowStage{}, ErrDuplicateOrder
		}
		return WorkflowStage{}, fmt.Errorf("stage: create: %w", err)
	}
	return s, nil
}

// Update patches the editable fields of a stage.
func (r *Repository) Update(ctx context.Context, tenantID, stageID string, params UpdateParams) (WorkflowStage, error) {
	const updateSQL = `
		UPDATE workflow_stages
		SET name = COALESCE($3, name),
		    description = COALESCE($4, description),
		    order_index = COALESCE($5, order_index),
		    color = COALESCE($6, color),
		    is_active = COALESCE($7, is_active),
		    notification_template = COALESCE($8, notification_template),
		    notify_customer = COALESCE($9, notify_customer),
		    updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING ` + selectColumns

	s, err := scanStage(r.pool.QueryRow(ctx, updateSQL,
		stageID,
		tenantID,
		params.Name,
		params.Description,
		params.OrderIndex,
		params.Color,
		params.IsActive,
		params.NotificationTemplate,
		params.NotifyCustomer,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkflowStage{}, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return WorkflowStage{}, ErrDuplicateOrder
		}
		return WorkflowStage{}, fmt.Errorf("stage: update: %w", err)
	}
	return s, nil
}

func scanStage(row pgx.Row) (WorkflowStage, error) {
	var s WorkflowStage
	err := row.Scan(
		&s.ID,
		&s.TenantID,
		&s.Name,
		&s.Description,
		&s.OrderIndex,
		&s.Color,
		&s.IsActive,
		&s.NotificationTemplate,
		&s.NotifyCustomer,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return WorkflowStage{}, err
	}
	return s, nil
}
