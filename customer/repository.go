package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested customer does not exist.
var ErrNotFound = errors.New("customer: not found")

// Repository provides read access to customers and their vehicles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a customer by its primary key within the tenant.
func (r *Repository) GetByID(ctx context.Context, tenantID, customerID string) (Customer, error) {
	const query = `
		SELECT id, tenant_id, full_name, email, phone, whatsapp_number, created_at, updated_at
		FROM customers
		WHERE id = $1 AND tenant_id = $2
	`

	var c Customer
	err := r.pool.QueryRow(ctx, query, customerID, tenantID).Scan(
		&c.ID,
		&c.TenantID,
		&c.FullName,
		&c.Email,
		&c.Phone,
		&c.WhatsAppNumber,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("customer: query by id: %w", err)
	}

	return c, nil
}

// PartiesForCase loads the customer and vehicle referenced by a repair case.
// Absent links come back as nil pointers, not errors.
func (r *Repository) PartiesForCase(ctx context.Context, tenantID, caseID string) (CaseParties, error) {
	const query = `
		SELECT c.id, c.full_name, c.email, c.phone, c.whatsapp_number,
		       v.id, v.registration, v.make, v.model, v.year
		FROM repair_cases rc
		LEFT JOIN customers c ON c.id = rc.customer_id
		LEFT JOIN vehicles v ON v.id = rc.vehicle_id
		WHERE rc.id = $1 AND rc.tenant_id = $2
	`

	var (
		parties   CaseParties
		custID    *string
		custName  *string
		email     *string
		phone     *string
		whatsapp  *string
		vehicleID *string
		reg       *string
		vmake     *string
		vmodel    *string
		vyear     *int
	)
	err := r.pool.QueryRow(ctx, query, caseID, tenantID).Scan(
		&custID, &custName, &email, &phone, &whatsapp,
		&vehicleID, &reg, &vmake, &vmodel, &vyear,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CaseParties{}, ErrNotFound
		}
		return CaseParties{}, fmt.Errorf("customer: load case parties: %w", err)
	}

	if custID != nil {
		parties.Customer = &Customer{
			ID:             *custID,
			TenantID:       tenantID,
			FullName:       deref(custName),
			Email:          email,
			Phone:          phone,
			WhatsAppNumber: whatsapp,
		}
	}
	if vehicleID != nil {
		parties.Vehicle = &Vehicle{
			ID:           *vehicleID,
			TenantID:     tenantID,
			Registration: deref(reg),
			Make:         deref(vmake),
			Model:        deref(vmodel),
			Year:         vyear,
		}
	}

	return parties, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
