package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrAccountDisabled signals the staff account has been deactivated.
	ErrAccountDisabled = errors.New("auth: account disabled")
	// ErrInvalidRegistration signals missing or malformed registration fields.
	ErrInvalidRegistration = errors.New("auth: invalid registration")
)

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token string
	User  User
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new staff account under a tenant.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrInvalidRegistration)
	}
	if req.Email == "" || req.FullName == "" {
		return nil, fmt.Errorf("%w: email and full_name are required", ErrInvalidRegistration)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleTechnician
	}
	if !isValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRegistration, role)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		TenantID:     req.TenantID,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(passwordHash),
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates a staff account and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return LoginResult{}, ErrAccountDisabled
	}

	token, err := s.generateToken(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token: token,
		User:  user,
	}, nil
}

// GetUserByID retrieves staff account information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyToken validates a JWT token and returns the actor identity.
func (s *Service) VerifyToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("auth: invalid token")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("auth: invalid user_id in token")
	}
	tenantID, ok := claims["tenant_id"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("auth: invalid tenant_id in token")
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("auth: invalid role in token")
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return Identity{}, fmt.Errorf("auth: invalid role %q in token", roleStr)
	}

	return Identity{UserID: userID, TenantID: tenantID, Role: role}, nil
}

// generateToken creates a JWT token for the staff account.
func (s *Service) generateToken(user User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":   user.ID,
		"tenant_id": user.TenantID,
		"role":      user.Role,
		"exp":       time.Now().Add(24 * time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleServiceAdvisor, RoleTechnician, RoleViewer:
		return true
	default:
		return false
	}
}
