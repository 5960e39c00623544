package casefile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func newTestService(pool *fakePool, repo *fakeRepo, notifier Notifier) *Service {
	svc := NewService(pool, repo, notifier, nil)
	svc.WithIDGenerator(func() string { return "entry-1" })
	// Run the dispatch inline so the test can observe it.
	svc.WithSpawn(func(fn func()) { fn() })
	return svc
}

func TestRecordTransition_Success(t *testing.T) {
	previous := "stage-old"
	pool := &fakePool{}
	repo := &fakeRepo{currentStage: &previous}
	notifier := &fakeNotifier{}
	svc := newTestService(pool, repo, notifier)

	entry, err := svc.RecordTransition(context.Background(), TransitionParams{
		TenantID:         "tenant-1",
		CaseID:           "case-1",
		NewStageID:       "stage-new",
		ActorID:          "user-1",
		NotificationType: NotificationEmail,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if pool.tx == nil || !pool.tx.committed {
		t.Fatalf("expected transaction to be committed")
	}
	if repo.updatedTo != "stage-new" {
		t.Errorf("expected case pointer moved to stage-new, got %q", repo.updatedTo)
	}
	if repo.history == nil {
		t.Fatalf("expected history row to be inserted")
	}
	if repo.history.PreviousStageID == nil || *repo.history.PreviousStageID != previous {
		t.Errorf("expected previous stage %q captured in history", previous)
	}
	if repo.outboxTopic != OutboxTopicStageChanged {
		t.Errorf("expected outbox topic %q, got %q", OutboxTopicStageChanged, repo.outboxTopic)
	}
	if entry.ID != "entry-1" {
		t.Errorf("expected generated entry id, got %q", entry.ID)
	}
	if !entry.NotifiedCustomer {
		t.Errorf("expected notified_customer true when a channel was requested")
	}

	if notifier.evt == nil {
		t.Fatalf("expected notifier to receive the event")
	}
	if notifier.evt.HistoryEntryID != "entry-1" || notifier.evt.StageID != "stage-new" {
		t.Errorf("unexpected event %+v", notifier.evt)
	}
}

func TestRecordTransition_ReaffirmSameStage(t *testing.T) {
	current := "stage-a"
	pool := &fakePool{}
	repo := &fakeRepo{currentStage: &current}
	svc := newTestService(pool, repo, &fakeNotifier{})

	entry, err := svc.RecordTransition(context.Background(), TransitionParams{
		TenantID:         "tenant-1",
		CaseID:           "case-1",
		NewStageID:       "stage-a",
		ActorID:          "user-1",
		NotificationType: NotificationNone,
	})
	if err != nil {
		t.Fatalf("expected re-affirming the current stage to succeed, got %v", err)
	}
	if entry.StageID != "stage-a" {
		t.Errorf("expected history entry for stage-a, got %q", entry.StageID)
	}
	if entry.PreviousStageID == nil || *entry.PreviousStageID != "stage-a" {
		t.Errorf("expected previous stage recorded even when unchanged")
	}
}

func TestRecordTransition_FirstStageFromNil(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{currentStage: nil}
	svc := newTestService(pool, repo, &fakeNotifier{})

	entry, err := svc.RecordTransition(context.Background(), TransitionParams{
		TenantID:         "tenant-1",
		CaseID:           "case-1",
		NewStageID:       "stage-first",
		ActorID:          "user-1",
		NotificationType: NotificationNone,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if entry.PreviousStageID != nil {
		t.Errorf("expected nil previous stage on first assignment, got %q", *entry.PreviousStageID)
	}
}

func TestRecordTransition_StageNotFound(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{resolveErr: ErrStageNotFound}
	notifier := &fakeNotifier{}
	svc := newTestService(pool, repo, notifier)

	_, err := svc.RecordTransition(context.Background(), TransitionParams{
		TenantID:   "tenant-1",
		CaseID:     "case-1",
		NewStageID: "stage-missing",
		ActorID:    "user-1",
	})
	if !errors.Is(err, ErrStageNotFound) {
		t.Fatalf("expected ErrStageNotFound, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
	if !pool.tx.rolled {
		t.Errorf("expected rollback")
	}
	if notifier.evt != nil {
		t.Errorf("expected no dispatch on failed transition")
	}
}

func TestRecordTransition_WriteConflict(t *testing.T) {
	current := "stage-a"
	pool := &fakePool{}
	repo := &fakeRepo{currentStage: &current, updateErr: ErrWriteConflict}
	svc := newTestService(pool, repo, &fakeNotifier{})

	_, err := svc.RecordTransition(context.Background(), TransitionParams{
		TenantID:   "tenant-1",
		CaseID:     "case-1",
		NewStageID: "stage-b",
		ActorID:    "user-1",
	})
	if !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected losing writer not to commit")
	}
	if repo.history != nil {
		t.Errorf("expected no history row from the losing writer")
	}
}

func TestRecordTransition_HistoryWriteFailureRollsBack(t *testing.T) {
	current := "stage-a"
	pool := &fakePool{}
	repo := &fakeRepo{currentStage: &current, insertErr: ErrHistoryWriteFailed}
	notifier := &fakeNotifier{}
	svc := newTestService(pool, repo, notifier)

	_, err := svc.RecordTransition(context.Background(), TransitionParams{
		TenantID:         "tenant-1",
		CaseID:           "case-1",
		NewStageID:       "stage-b",
		ActorID:          "user-1",
		NotificationType: NotificationBoth,
	})
	if !errors.Is(err, ErrHistoryWriteFailed) {
		t.Fatalf("expected ErrHistoryWriteFailed, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected pointer update to roll back with the failed history insert")
	}
	if !pool.tx.rolled {
		t.Errorf("expected rollback")
	}
	if notifier.evt != nil {
		t.Errorf("expected no dispatch when the transition failed")
	}
}

func TestRecordTransition_NoneSkipsDispatch(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	svc := newTestService(pool, repo, notifier)

	entry, err := svc.RecordTransition(context.Background(), TransitionParams{
		TenantID:         "tenant-1",
		CaseID:           "case-1",
		NewStageID:       "stage-b",
		ActorID:          "user-1",
		NotificationType: NotificationNone,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if entry.NotifiedCustomer {
		t.Errorf("expected notified_customer false for none")
	}
	if notifier.evt != nil {
		t.Errorf("expected notifier to stay idle for none")
	}
}

func TestRecordTransition_InvalidNotificationType(t *testing.T) {
	pool := &fakePool{}
	svc := newTestService(pool, &fakeRepo{}, &fakeNotifier{})

	_, err := svc.RecordTransition(context.Background(), TransitionParams{
		TenantID:         "tenant-1",
		CaseID:           "case-1",
		NewStageID:       "stage-b",
		ActorID:          "user-1",
		NotificationType: "carrier-pigeon",
	})
	if !errors.Is(err, ErrInvalidNotificationType) {
		t.Fatalf("expected ErrInvalidNotificationType, got %v", err)
	}
	if pool.tx != nil {
		t.Errorf("expected no transaction for rejected input")
	}
}

func TestRecordTransition_MissingFields(t *testing.T) {
	svc := newTestService(&fakePool{}, &fakeRepo{}, &fakeNotifier{})

	cases := []TransitionParams{
		{CaseID: "c", NewStageID: "s", ActorID: "u"},
		{TenantID: "t", NewStageID: "s", ActorID: "u"},
		{TenantID: "t", CaseID: "c", ActorID: "u"},
		{TenantID: "t", CaseID: "c", NewStageID: "s"},
	}
	for i, params := range cases {
		if _, err := svc.RecordTransition(context.Background(), params); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

type fakeNotifier struct {
	evt *StageChangedEvent
}

func (f *fakeNotifier) StageChanged(ctx context.Context, evt StageChangedEvent) {
	f.evt = &evt
}

type fakeRepo struct {
	currentStage *string
	resolveErr   error
	getErr       error
	updateErr    error
	insertErr    error
	outboxErr    error

	updatedTo   string
	history     *HistoryEntry
	outboxTopic string
}

func (f *fakeRepo) ResolveActiveStage(ctx context.Context, tx pgx.Tx, tenantID, stageID string) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return "Stage " + stageID, nil
}

func (f *fakeRepo) GetCaseStage(ctx context.Context, tx pgx.Tx, tenantID, caseID string) (*string, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.currentStage, nil
}

func (f *fakeRepo) UpdateCaseStage(ctx context.Context, tx pgx.Tx, tenantID, caseID string, previous *string, next string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedTo = next
	return nil
}

func (f *fakeRepo) InsertHistory(ctx context.Context, tx pgx.Tx, params HistoryParams) (HistoryEntry, error) {
	if f.insertErr != nil {
		return HistoryEntry{}, f.insertErr
	}
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
		CreatedAt:        time.Now(),
	}
	f.history = &entry
	return entry, nil
}

func (f *fakeRepo) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if f.outboxErr != nil {
		return f.outboxErr
	}
	f.outboxTopic = topic
	return nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
