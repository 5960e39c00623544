package auth

import "time"

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleServiceAdvisor Role = "service_advisor"
	RoleTechnician     Role = "technician"
	RoleViewer         Role = "viewer"
)

// User is the domain representation of a shop staff account.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	TenantID     string
	Email        string
	FullName     string
	PasswordHash string
	Phone        *string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains staff registration data supplied by callers.
type RegisterRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains staff login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Identity is the verified actor extracted from a token.
type Identity struct {
	UserID   string
	TenantID string
	Role     Role
}
