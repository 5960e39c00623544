package stage

import "time"

// WorkflowStage is one step in a tenant's repair workflow. Stages are
// administrator-editable data, not a compiled state machine: the set of
// stages and their order differ per tenant.
type WorkflowStage struct {
	ID                   string
	TenantID             string
	Name                 string
	Description          *string
	OrderIndex           int
	Color                string
	IsActive             bool
	NotificationTemplate *string
	NotifyCustomer       bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CreateParams enumerates the fields an administrator supplies for a new stage.
type CreateParams struct {
	TenantID             string
	Name                 string
	Description          *string
	OrderIndex           int
	Color                string
	NotificationTemplate *string
	NotifyCustomer       bool
}

// UpdateParams carries the editable fields of an existing stage. Nil pointers
// leave the current value untouched.
type UpdateParams struct {
	Name                 *string
	Description          *string
	OrderIndex           *int
	Color                *string
	IsActive             *bool
	NotificationTemplate *string
	NotifyCustomer       *bool
}
