package casefile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Notifier receives committed transitions for best-effort customer delivery.
// Implementations must never report back into the transition path.
type Notifier interface {
	StageChanged(ctx context.Context, evt StageChangedEvent)
}

// Service is the only component allowed to move a case between stages. It
// owns the atomicity of the pointer update and the history append, and it
// hands committed transitions to the notifier outside the transaction.
type Service struct {
	pool     TxBeginner
	repo     Repository
	timeline TimelineReader
	notifier Notifier
	log      *zap.Logger
	idGen    func() string
	spawn    func(func())
}

// TransitionParams carries one stage-change request. Permission to request
// the transition is established by the caller; the recorder trusts it.
type TransitionParams struct {
	TenantID         string
	CaseID           string
	NewStageID       string
	ActorID          string
	Notes            *string
	NotificationType NotificationType
}

func NewService(pool TxBeginner, repo Repository, notifier Notifier, log *zap.Logger) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		pool:     pool,
		repo:     repo,
		notifier: notifier,
		log:      log,
		idGen:    func() string { return uuid.NewString() },
		spawn:    func(fn func()) { go fn() },
	}
	if p, ok := pool.(*pgxpool.Pool); ok {
		s.timeline = NewTimelineRepository(p)
	}
	return s
}

// WithIDGenerator overrides history id generation, for tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// WithSpawn overrides how the dispatch goroutine is launched, for tests.
func (s *Service) WithSpawn(spawn func(func())) *Service {
	s.spawn = spawn
	return s
}

// WithTimeline overrides the history read path, for tests.
func (s *Service) WithTimeline(reader TimelineReader) *Service {
	s.timeline = reader
	return s
}

// RecordTransition moves the case to the new stage and appends the audit
// row in a single transaction. Re-affirming the current stage is valid and
// still produces a history entry. On success, customer notification runs
// detached; its outcome never affects the returned result.
func (s *Service) RecordTransition(ctx context.Context, params TransitionParams) (HistoryEntry, error) {
	if params.TenantID == "" {
		return HistoryEntry{}, fmt.Errorf("casefile: missing tenant id")
	}
	if params.CaseID == "" {
		return HistoryEntry{}, fmt.Errorf("casefile: missing case id")
	}
	if params.NewStageID == "" {
		return HistoryEntry{}, fmt.Errorf("casefile: missing stage id")
	}
	if params.ActorID == "" {
		return HistoryEntry{}, fmt.Errorf("casefile: missing actor id")
	}
	if params.NotificationType == "" {
		params.NotificationType = NotificationNone
	}
	if !params.NotificationType.Valid() {
		return HistoryEntry{}, fmt.Errorf("%w: %q", ErrInvalidNotificationType, params.NotificationType)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("casefile: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stageName, err := s.repo.ResolveActiveStage(ctx, tx, params.TenantID, params.NewStageID)
	if err != nil {
		return HistoryEntry{}, err
	}

	previous, err := s.repo.GetCaseStage(ctx, tx, params.TenantID, params.CaseID)
	if err != nil {
		return HistoryEntry{}, err
	}

	if err := s.repo.UpdateCaseStage(ctx, tx, params.TenantID, params.CaseID, previous, params.NewStageID); err != nil {
		return HistoryEntry{}, err
	}

	entry, err := s.repo.InsertHistory(ctx, tx, HistoryParams{
		ID:               s.idGen(),
		TenantID:         params.TenantID,
		CaseID:           params.CaseID,
		StageID:          params.NewStageID,
		PreviousStageID:  previous,
		UpdatedBy:        params.ActorID,
		Notes:            params.Notes,
		NotificationType: params.NotificationType,
	})
	if err != nil {
		if errors.Is(err, ErrHistoryWriteFailed) {
			s.log.Error("stage history insert failed, transition rolled back",
				zap.String("tenant_id", params.TenantID),
				zap.String("case_id", params.CaseID),
				zap.String("stage_id", params.NewStageID),
				zap.Error(err))
		}
		return HistoryEntry{}, err
	}

	payload := map[string]any{
		"case_id":  params.CaseID,
		"stage_id": params.NewStageID,
		"stage":    stageName,
		"actor_id": params.ActorID,
	}
	if previous != nil {
		payload["previous_stage_id"] = *previous
	}
	if err := s.repo.EnqueueOutbox(ctx, tx, OutboxTopicStageChanged, payload); err != nil {
		return HistoryEntry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return HistoryEntry{}, fmt.Errorf("casefile: commit transition: %w", err)
	}

	if params.NotificationType != NotificationNone && s.notifier != nil {
		evt := StageChangedEvent{
			TenantID:         params.TenantID,
			CaseID:           params.CaseID,
			StageID:          params.NewStageID,
			HistoryEntryID:   entry.ID,
			NotificationType: params.NotificationType,
		}
		// Detached from the request context: provider latency must never
		// block or fail the recorded transition.
		s.spawn(func() {
			s.notifier.StageChanged(context.WithoutCancel(ctx), evt)
		})
	}

	return entry, nil
}

// History returns the case's timeline, newest first.
func (s *Service) History(ctx context.Context, tenantID, caseID string) ([]TimelineEntry, error) {
	if s.timeline == nil {
		return nil, fmt.Errorf("casefile: timeline reader not configured")
	}
	return s.timeline.ListHistory(ctx, tenantID, caseID)
}
