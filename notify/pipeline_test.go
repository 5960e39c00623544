package notify

import (
	"context"
	"testing"
	"time"

	"shopflow/casefile"
)

func TestPipeline_StageChangedFoldsOutcome(t *testing.T) {
	email := &fakeEmailSender{configured: true}
	dispatcher := newTestDispatcher(
		&fakeParties{parties: testParties()},
		&fakeStages{stage: testStage()},
		email,
		&fakeTextSender{},
	)
	db := &fakeExecer{}
	pipeline := NewPipeline(dispatcher, NewOutcomeRecorder(db), nil)

	pipeline.StageChanged(context.Background(), casefile.StageChangedEvent{
		TenantID:         "tenant-1",
		CaseID:           "case-1",
		StageID:          "stage-1",
		HistoryEntryID:   "entry-1",
		NotificationType: casefile.NotificationEmail,
	})

	if email.calls != 1 {
		t.Fatalf("expected one email attempt, got %d", email.calls)
	}
	if db.calls != 1 {
		t.Fatalf("expected outcome folded onto history row, got %d updates", db.calls)
	}
	if db.args[0] != "entry-1" {
		t.Errorf("expected history entry id, got %v", db.args[0])
	}
}

func TestPipeline_UndeliveredLeavesHistoryUntouched(t *testing.T) {
	dispatcher := newTestDispatcher(
		&fakeParties{parties: testParties()},
		&fakeStages{stage: testStage()},
		&fakeEmailSender{configured: false},
		&fakeTextSender{configured: false},
	)
	db := &fakeExecer{}
	pipeline := NewPipeline(dispatcher, NewOutcomeRecorder(db).WithClock(func() time.Time { return time.Unix(0, 0) }), nil)

	pipeline.StageChanged(context.Background(), casefile.StageChangedEvent{
		TenantID:         "tenant-1",
		CaseID:           "case-1",
		StageID:          "stage-1",
		HistoryEntryID:   "entry-1",
		NotificationType: casefile.NotificationBoth,
	})

	if db.calls != 0 {
		t.Fatalf("expected no history update when nothing was delivered")
	}
}
