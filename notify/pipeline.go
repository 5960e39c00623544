package notify

import (
	"context"

	"go.uber.org/zap"

	"shopflow/casefile"
)

// Pipeline ties dispatch and outcome recording together behind the
// recorder's Notifier contract. It runs after the transition has committed;
// nothing here can fail the transition.
type Pipeline struct {
	dispatcher *Dispatcher
	outcomes   *OutcomeRecorder
	log        *zap.Logger
}

func NewPipeline(dispatcher *Dispatcher, outcomes *OutcomeRecorder, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		dispatcher: dispatcher,
		outcomes:   outcomes,
		log:        log,
	}
}

// StageChanged delivers the stage-change message and folds the result onto
// the history entry.
func (p *Pipeline) StageChanged(ctx context.Context, evt casefile.StageChangedEvent) {
	set := p.dispatcher.Dispatch(ctx, DispatchRequest{
		TenantID:  evt.TenantID,
		CaseID:    evt.CaseID,
		StageID:   evt.StageID,
		WantEmail: evt.NotificationType.WantsEmail(),
		WantText:  evt.NotificationType.WantsWhatsApp(),
	})

	if err := p.outcomes.Record(ctx, evt.HistoryEntryID, set); err != nil {
		p.log.Warn("failed to record notification outcome",
			zap.String("history_entry_id", evt.HistoryEntryID),
			zap.Error(err))
	}
}
