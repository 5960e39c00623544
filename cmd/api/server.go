package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopflow/auth"
	"shopflow/casefile"
	"shopflow/customer"
	"shopflow/stage"
)

type ctxKey int

const ctxKeyIdentity ctxKey = iota

// CaseService is the workflow surface consumed by the handlers.
type CaseService interface {
	RecordTransition(ctx context.Context, params casefile.TransitionParams) (casefile.HistoryEntry, error)
	History(ctx context.Context, tenantID, caseID string) ([]casefile.TimelineEntry, error)
}

// StageCatalog is the stage-catalog surface consumed by the handlers.
type StageCatalog interface {
	ListActive(ctx context.Context, tenantID string) ([]stage.WorkflowStage, error)
	Create(ctx context.Context, params stage.CreateParams) (stage.WorkflowStage, error)
	Update(ctx context.Context, tenantID, stageID string, params stage.UpdateParams) (stage.WorkflowStage, error)
}

// PartiesReader loads the customer and vehicle linked to a case.
type PartiesReader interface {
	PartiesForCase(ctx context.Context, tenantID, caseID string) (customer.CaseParties, error)
}

// Server carries the wired services and exposes the HTTP API.
type Server struct {
	log         *zap.Logger
	authService *auth.Service
	stageRepo   StageCatalog
	caseService CaseService
	partyReader PartiesReader
}

func (s *Server) logger() *zap.Logger {
	if s.log == nil {
		return zap.NewNop()
	}
	return s.log
}

// Routes assembles the mux with authentication applied to everything
// except login and registration.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/stages", s.withIdentity(s.handleStages))
	mux.HandleFunc("/api/stages/", s.withIdentity(s.handleStageDetail))
	mux.HandleFunc("/api/cases/", s.withIdentity(s.handleCase))
	return mux
}

// withIdentity resolves the Bearer token into the actor identity.
func (s *Server) withIdentity(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		ident, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyIdentity, ident)))
	}
}

func identityFrom(r *http.Request) (auth.Identity, bool) {
	ident, ok := r.Context().Value(ctxKeyIdentity).(auth.Identity)
	return ident, ok
}

type loginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrAccountDisabled) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger().Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:    result.Token,
		UserID:   result.User.ID,
		TenantID: result.User.TenantID,
		Role:     string(result.User.Role),
		FullName: result.User.FullName,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword),
			errors.Is(err, auth.ErrDuplicateEmail),
			errors.Is(err, auth.ErrInvalidRegistration):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger().Error("register failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID})
}

type stageResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	OrderIndex     int    `json:"order_index"`
	Color          string `json:"color"`
	NotifyCustomer bool   `json:"notify_customer"`
}

type createStageRequest struct {
	Name                 string  `json:"name"`
	Description          *string `json:"description"`
	OrderIndex           int     `json:"order_index"`
	Color                string  `json:"color"`
	NotificationTemplate *string `json:"notification_template"`
	NotifyCustomer       bool    `json:"notify_customer"`
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	ident, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	switch r.Method {
	case http.MethodGet:
		stages, err := s.stageRepo.ListActive(r.Context(), ident.TenantID)
		if err != nil {
			s.logger().Error("list stages failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		items := make([]stageResponse, 0, len(stages))
		for _, st := range stages {
			items = append(items, stageResponse{
				ID:             st.ID,
				Name:           st.Name,
				OrderIndex:     st.OrderIndex,
				Color:          st.Color,
				NotifyCustomer: st.NotifyCustomer,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})

	case http.MethodPost:
		if !auth.CanManageStages(ident.Role) {
			writeError(w, http.StatusForbidden, "stage management requires admin role")
			return
		}
		var req createStageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		st, err := s.stageRepo.Create(r.Context(), stage.CreateParams{
			TenantID:             ident.TenantID,
			Name:                 req.Name,
			Description:          req.Description,
			OrderIndex:           req.OrderIndex,
			Color:                req.Color,
			NotificationTemplate: req.NotificationTemplate,
			NotifyCustomer:       req.NotifyCustomer,
		})
		if err != nil {
			if errors.Is(err, stage.ErrDuplicateOrder) {
				writeError(w, http.StatusConflict, "order index already in use")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid stage")
			return
		}
		writeJSON(w, http.StatusCreated, stageResponse{
			ID:             st.ID,
			Name:           st.Name,
			OrderIndex:     st.OrderIndex,
			Color:          st.Color,
			NotifyCustomer: st.NotifyCustomer,
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type updateStageRequest struct {
	Name                 *string `json:"name"`
	Description          *string `json:"description"`
	OrderIndex           *int    `json:"order_index"`
	Color                *string `json:"color"`
	IsActive             *bool   `json:"is_active"`
	NotificationTemplate *string `json:"notification_template"`
	NotifyCustomer       *bool   `json:"notify_customer"`
}

func (s *Server) handleStageDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ident, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	if !auth.CanManageStages(ident.Role) {
		writeError(w, http.StatusForbidden, "stage management requires admin role")
		return
	}

	stageID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/stages/"), "/")
	if stageID == "" || strings.Contains(stageID, "/") {
		writeError(w, http.StatusBadRequest, "stage id required")
		return
	}

	var req updateStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	st, err := s.stageRepo.Update(r.Context(), ident.TenantID, stageID, stage.UpdateParams{
		Name:                 req.Name,
		Description:          req.Description,
		OrderIndex:           req.OrderIndex,
		Color:                req.Color,
		IsActive:             req.IsActive,
		NotificationTemplate: req.NotificationTemplate,
		NotifyCustomer:       req.NotifyCustomer,
	})
	if err != nil {
		switch {
		case errors.Is(err, stage.ErrNotFound):
			writeError(w, http.StatusNotFound, "stage not found")
		case errors.Is(err, stage.ErrDuplicateOrder):
			writeError(w, http.StatusConflict, "order index already in use")
		default:
			writeError(w, http.StatusBadRequest, "invalid stage")
		}
		return
	}

	writeJSON(w, http.StatusOK, stageResponse{
		ID:             st.ID,
		Name:           st.Name,
		OrderIndex:     st.OrderIndex,
		Color:          st.Color,
		NotifyCustomer: st.NotifyCustomer,
	})
}

// handleCase routes /api/cases/{id}, /api/cases/{id}/transitions and
// /api/cases/{id}/history.
func (s *Server) handleCase(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/cases/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "case id required")
		return
	}
	caseID := parts[0]

	switch {
	case len(parts) == 1:
		s.handleCaseDetail(w, r, caseID)
	case len(parts) == 2 && parts[1] == "transitions":
		s.handleTransition(w, r, caseID)
	case len(parts) == 2 && parts[1] == "history":
		s.handleHistory(w, r, caseID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type caseDetailResponse struct {
	CustomerName string `json:"customer_name,omitempty"`
	VehicleReg   string `json:"vehicle_reg,omitempty"`
	VehicleMake  string `json:"vehicle_make,omitempty"`
	VehicleModel string `json:"vehicle_model,omitempty"`
}

func (s *Server) handleCaseDetail(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ident, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	parties, err := s.partyReader.PartiesForCase(r.Context(), ident.TenantID, caseID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			writeError(w, http.StatusNotFound, "case not found")
			return
		}
		s.logger().Error("case detail failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var resp caseDetailResponse
	if parties.Customer != nil {
		resp.CustomerName = parties.Customer.FullName
	}
	if parties.Vehicle != nil {
		resp.VehicleReg = parties.Vehicle.Registration
		resp.VehicleMake = parties.Vehicle.Make
		resp.VehicleModel = parties.Vehicle.Model
	}
	writeJSON(w, http.StatusOK, resp)
}

type transitionRequest struct {
	StageID          string  `json:"stage_id"`
	Notes            *string `json:"notes"`
	NotificationType string  `json:"notification_type"`
}

type historyEntryResponse struct {
	ID                 string  `json:"id"`
	StageID            string  `json:"stage_id"`
	PreviousStageID    *string `json:"previous_stage_id"`
	UpdatedBy          string  `json:"updated_by"`
	Notes              *string `json:"notes"`
	NotificationType   string  `json:"notification_type"`
	NotifiedCustomer   bool    `json:"notified_customer"`
	NotificationSentAt *string `json:"notification_sent_at"`
	CreatedAt          string  `json:"created_at"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ident, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	// Permission is decided here, outside the recorder.
	if !auth.CanTransitionCases(ident.Role) {
		writeError(w, http.StatusForbidden, "role may not transition cases")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	notificationType := casefile.NotificationType(req.NotificationType)
	if notificationType == "" {
		notificationType = casefile.NotificationNone
	}

	entry, err := s.caseService.RecordTransition(r.Context(), casefile.TransitionParams{
		TenantID:         ident.TenantID,
		CaseID:           caseID,
		NewStageID:       req.StageID,
		ActorID:          ident.UserID,
		Notes:            req.Notes,
		NotificationType: notificationType,
	})
	if err != nil {
		switch {
		case errors.Is(err, casefile.ErrInvalidNotificationType):
			writeError(w, http.StatusBadRequest, "invalid notification type")
		case errors.Is(err, casefile.ErrStageNotFound):
			writeError(w, http.StatusUnprocessableEntity, "stage not found")
		case errors.Is(err, casefile.ErrCaseNotFound):
			writeError(w, http.StatusNotFound, "case not found")
		case errors.Is(err, casefile.ErrWriteConflict):
			writeError(w, http.StatusConflict, "case was updated concurrently, retry")
		default:
			s.logger().Error("transition failed",
				zap.String("case_id", caseID),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, historyEntryToResponse(entry))
}

type timelineEntryResponse struct {
	historyEntryResponse
	StageName          string  `json:"stage_name"`
	StageColor         string  `json:"stage_color"`
	PreviousStageName  *string `json:"previous_stage_name"`
	PreviousStageColor *string `json:"previous_stage_color"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ident, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	entries, err := s.caseService.History(r.Context(), ident.TenantID, caseID)
	if err != nil {
		s.logger().Error("history query failed",
			zap.String("case_id", caseID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	items := make([]timelineEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, timelineEntryResponse{
			historyEntryResponse: historyEntryToResponse(e.HistoryEntry),
			StageName:            e.StageName,
			StageColor:           e.StageColor,
			PreviousStageName:    e.PreviousStageName,
			PreviousStageColor:   e.PreviousStageColor,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func historyEntryToResponse(e casefile.HistoryEntry) historyEntryResponse {
	resp := historyEntryResponse{
		ID:               e.ID,
		StageID:          e.StageID,
		PreviousStageID:  e.PreviousStageID,
		UpdatedBy:        e.UpdatedBy,
		Notes:            e.Notes,
		NotificationType: string(e.NotificationType),
		NotifiedCustomer: e.NotifiedCustomer,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
	}
	if e.NotificationSentAt != nil {
		sentAt := e.NotificationSentAt.Format(time.RFC3339)
		resp.NotificationSentAt = &sentAt
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
