package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shopflow/customer"
	"shopflow/stage"
)

const reasonNotConfigured = "channel not configured"

// PartiesLoader supplies the customer and vehicle linked to a case.
// Satisfied by customer.Repository.
type PartiesLoader interface {
	PartiesForCase(ctx context.Context, tenantID, caseID string) (customer.CaseParties, error)
}

// StageLoader resolves the target stage's template and name.
// Satisfied by stage.Repository.
type StageLoader interface {
	GetActive(ctx context.Context, tenantID, stageID string) (stage.WorkflowStage, error)
}

// EmailSender is the transactional-email provider contract.
type EmailSender interface {
	Configured() bool
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// TextSender is the plain-text messaging provider contract.
type TextSender interface {
	Configured() bool
	Send(ctx context.Context, to, body string) error
}

// Dispatcher performs best-effort delivery of stage-change messages. It
// never reports failure to the transition path: every provider error is
// converted into a per-channel outcome and a logged warning.
type Dispatcher struct {
	parties PartiesLoader
	stages  StageLoader
	email   EmailSender
	text    TextSender
	log     *zap.Logger
	timeout time.Duration
}

// DispatchRequest identifies the transition whose message should go out.
type DispatchRequest struct {
	TenantID  string
	CaseID    string
	StageID   string
	WantEmail bool
	WantText  bool
}

func NewDispatcher(parties PartiesLoader, stages StageLoader, email EmailSender, text TextSender, log *zap.Logger, timeout time.Duration) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		parties: parties,
		stages:  stages,
		email:   email,
		text:    text,
		log:     log,
		timeout: timeout,
	}
}

// Dispatch composes the stage-change message and attempts each requested
// channel independently. The returned set lists only channels that were
// actually attempted; a case without a linked customer yields an empty set.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) OutcomeSet {
	if !req.WantEmail && !req.WantText {
		return nil
	}

	st, err := d.stages.GetActive(ctx, req.TenantID, req.StageID)
	if err != nil {
		d.log.Warn("dispatch skipped: stage unavailable",
			zap.String("case_id", req.CaseID),
			zap.String("stage_id", req.StageID),
			zap.Error(err))
		return nil
	}

	parties, err := d.parties.PartiesForCase(ctx, req.TenantID, req.CaseID)
	if err != nil {
		d.log.Warn("dispatch skipped: case parties unavailable",
			zap.String("case_id", req.CaseID),
			zap.Error(err))
		return nil
	}
	cust := parties.Customer
	if cust == nil {
		// Many cases exist before a customer record is captured.
		return nil
	}

	data := MessageData{
		CustomerName: cust.FullName,
		StageName:    st.Name,
	}
	if v := parties.Vehicle; v != nil {
		data.VehicleReg = v.Registration
		data.VehicleMake = v.Make
		data.VehicleModel = v.Model
	}
	body := RenderMessage(st.NotificationTemplate, data)
	subject := fmt.Sprintf("Vehicle update: %s", st.Name)

	emailTo := strValue(cust.Email)
	textTo := strValue(cust.WhatsAppNumber)
	if textTo == "" {
		textTo = strValue(cust.Phone)
	}

	var (
		mu  sync.Mutex
		set OutcomeSet
	)
	record := func(o Outcome) {
		mu.Lock()
		set = append(set, o)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	if req.WantEmail && emailTo != "" {
		g.Go(func() error {
			record(d.attemptEmail(gctx, req.CaseID, emailTo, subject, body))
			return nil
		})
	}
	if req.WantText && textTo != "" {
		g.Go(func() error {
			record(d.attemptText(gctx, req.CaseID, normalizeMSISDN(textTo), body))
			return nil
		})
	}
	_ = g.Wait()

	return set
}

func (d *Dispatcher) attemptEmail(ctx context.Context, caseID, to, subject, body string) Outcome {
	if d.email == nil || !d.email.Configured() {
		d.log.Warn("email channel not configured", zap.String("case_id", caseID))
		return Outcome{Channel: ChannelEmail, Reason: reasonNotConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	htmlBody := "<p>" + html.EscapeString(body) + "</p>"
	if err := d.email.Send(ctx, to, subject, htmlBody); err != nil {
		d.log.Warn("email delivery failed",
			zap.String("case_id", caseID),
			zap.Error(err))
		return Outcome{Channel: ChannelEmail, Reason: err.Error()}
	}
	return Outcome{Channel: ChannelEmail, Delivered: true}
}

func (d *Dispatcher) attemptText(ctx context.Context, caseID, to, body string) Outcome {
	if d.text == nil || !d.text.Configured() {
		d.log.Warn("whatsapp channel not configured", zap.String("case_id", caseID))
		return Outcome{Channel: ChannelWhatsApp, Reason: reasonNotConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.text.Send(ctx, to, body); err != nil {
		d.log.Warn("whatsapp delivery failed",
			zap.String("case_id", caseID),
			zap.Error(err))
		return Outcome{Channel: ChannelWhatsApp, Reason: err.Error()}
	}
	return Outcome{Channel: ChannelWhatsApp, Delivered: true}
}

// normalizeMSISDN prefixes the international marker when it is missing.
func normalizeMSISDN(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "+") {
		return number
	}
	return "+" + number
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
