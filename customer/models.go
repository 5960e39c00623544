package customer

import "time"

// Customer mirrors the customers table columns used by the workflow core.
type Customer struct {
	ID             string
	TenantID       string
	FullName       string
	Email          *string
	Phone          *string
	WhatsAppNumber *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Vehicle mirrors the vehicles table columns used by the workflow core.
type Vehicle struct {
	ID           string
	TenantID     string
	CustomerID   *string
	Registration string
	Make         string
	Model        string
	Year         *int
	CreatedAt    time.Time
}

// CaseParties bundles the customer and vehicle linked to a repair case.
// Either side may be absent: many cases are opened before a customer record
// is captured.
type CaseParties struct {
	Customer *Customer
	Vehicle  *Vehicle
}
