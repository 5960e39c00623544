package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shopflow/customer"
	"shopflow/stage"
)

type fakeParties struct {
	parties customer.CaseParties
	err     error
}

func (f *fakeParties) PartiesForCase(ctx context.Context, tenantID, caseID string) (customer.CaseParties, error) {
	return f.parties, f.err
}

type fakeStages struct {
	stage stage.WorkflowStage
	err   error
}

func (f *fakeStages) GetActive(ctx context.Context, tenantID, stageID string) (stage.WorkflowStage, error) {
	return f.stage, f.err
}

type fakeEmailSender struct {
	mu         sync.Mutex
	configured bool
	err        error
	to         string
	subject    string
	body       string
	calls      int
}

func (f *fakeEmailSender) Configured() bool { return f.configured }

func (f *fakeEmailSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.to = to
	f.subject = subject
	f.body = htmlBody
	return f.err
}

type fakeTextSender struct {
	mu         sync.Mutex
	configured bool
	err        error
	to         string
	body       string
	calls      int
}

func (f *fakeTextSender) Configured() bool { return f.configured }

func (f *fakeTextSender) Send(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.to = to
	f.body = body
	return f.err
}

func testParties() customer.CaseParties {
	email := "jane@example.com"
	phone := "27821234567"
	return customer.CaseParties{
		Customer: &customer.Customer{
			ID:       "cust-1",
			FullName: "Jane Doe",
			Email:    &email,
			Phone:    &phone,
		},
		Vehicle: &customer.Vehicle{
			ID:           "veh-1",
			Registration: "CA123456",
			Make:         "Toyota",
			Model:        "Corolla",
		},
	}
}

func testStage() stage.WorkflowStage {
	return stage.WorkflowStage{
		ID:   "stage-1",
		Name: "Ready for Collection",
	}
}

func newTestDispatcher(parties *fakeParties, stages *fakeStages, email *fakeEmailSender, text *fakeTextSender) *Dispatcher {
	return NewDispatcher(parties, stages, email, text, nil, time.Second)
}

func TestDispatch_BothChannelsDelivered(t *testing.T) {
	email := &fakeEmailSender{configured: true}
	text := &fakeTextSender{configured: true}
	d := newTestDispatcher(
		&fakeParties{parties: testParties()},
		&fakeStages{stage: testStage()},
		email, text,
	)

	set := d.Dispatch(context.Background(), DispatchRequest{
		TenantID:  "tenant-1",
		CaseID:    "case-1",
		StageID:   "stage-1",
		WantEmail: true,
		WantText:  true,
	})

	if len(set) != 2 {
		t.Fatalf("expected two outcomes, got %d", len(set))
	}
	if !set.AnyDelivered() {
		t.Errorf("expected delivery")
	}
	if o, ok := set.Get(ChannelEmail); !ok || !o.Delivered {
		t.Errorf("expected email delivered, got %+v", o)
	}
	if o, ok := set.Get(ChannelWhatsApp); !ok || !o.Delivered {
		t.Errorf("expected whatsapp delivered, got %+v", o)
	}
	if email.to != "jane@example.com" {
		t.Errorf("unexpected email recipient %q", email.to)
	}
	if text.to != "+27821234567" {
		t.Errorf("expected normalized msisdn, got %q", text.to)
	}
}

func TestDispatch_ChannelFailuresAreIndependent(t *testing.T) {
	email := &fakeEmailSender{configured: true, err: errors.New("smtp refused")}
	text := &fakeTextSender{configured: true}
	d := newTestDispatcher(
		&fakeParties{parties: testParties()},
		&fakeStages{stage: testStage()},
		email, text,
	)

	set := d.Dispatch(context.Background(), DispatchRequest{
		TenantID:  "tenant-1",
		CaseID:    "case-1",
		StageID:   "stage-1",
		WantEmail: true,
		WantText:  true,
	})

	o, ok := set.Get(ChannelEmail)
	if !ok || o.Delivered {
		t.Errorf("expected failed email outcome, got %+v", o)
	}
	if o.Reason == "" {
		t.Errorf("expected failure reason recorded")
	}
	if o, ok := set.Get(ChannelWhatsApp); !ok || !o.Delivered {
		t.Errorf("expected whatsapp unaffected by email failure, got %+v", o)
	}
}

func TestDispatch_UnconfiguredChannelRecordedAsFailure(t *testing.T) {
	email := &fakeEmailSender{configured: true}
	text := &fakeTextSender{configured: false}
	d := newTestDispatcher(
		&fakeParties{parties: testParties()},
		&fakeStages{stage: testStage()},
		email, text,
	)

	set := d.Dispatch(context.Background(), DispatchRequest{
		TenantID:  "tenant-1",
		CaseID:    "case-1",
		StageID:   "stage-1",
		WantEmail: true,
		WantText:  true,
	})

	o, ok := set.Get(ChannelWhatsApp)
	if !ok {
		t.Fatalf("expected whatsapp outcome to be recorded")
	}
	if o.Delivered || o.Reason != "channel not configured" {
		t.Errorf("expected not-configured failure, got %+v", o)
	}
	if o, ok := set.Get(ChannelEmail); !ok || !o.Delivered {
		t.Errorf("expected email still attempted, got %+v", o)
	}
	if text.calls != 0 {
		t.Errorf("expected no send on unconfigured channel")
	}
}

func TestDispatch_NoCustomerYieldsEmptySet(t *testing.T) {
	d := newTestDispatcher(
		&fakeParties{parties: customer.CaseParties{}},
		&fakeStages{stage: testStage()},
		&fakeEmailSender{configured: true},
		&fakeTextSender{configured: true},
	)

	set := d.Dispatch(context.Background(), DispatchRequest{
		TenantID:  "tenant-1",
		CaseID:    "case-1",
		StageID:   "stage-1",
		WantEmail: true,
		WantText:  true,
	})

	if set.Attempted() {
		t.Errorf("expected empty outcome set without a customer, got %+v", set)
	}
}

func TestDispatch_StageLookupFailureYieldsEmptySet(t *testing.T) {
	email := &fakeEmailSender{configured: true}
	d := newTestDispatcher(
		&fakeParties{parties: testParties()},
		&fakeStages{err: stage.ErrNotFound},
		email,
		&fakeTextSender{configured: true},
	)

	set := d.Dispatch(context.Background(), DispatchRequest{
		TenantID:  "tenant-1",
		CaseID:    "case-1",
		StageID:   "stage-gone",
		WantEmail: true,
	})

	if set.Attempted() {
		t.Errorf("expected empty outcome set when stage is unavailable")
	}
	if email.calls != 0 {
		t.Errorf("expected no send attempt")
	}
}

func TestDispatch_WhatsAppNumberPreferredOverPhone(t *testing.T) {
	parties := testParties()
	wa := "+27829999999"
	parties.Customer.WhatsAppNumber = &wa

	text := &fakeTextSender{configured: true}
	d := newTestDispatcher(
		&fakeParties{parties: parties},
		&fakeStages{stage: testStage()},
		&fakeEmailSender{},
		text,
	)

	d.Dispatch(context.Background(), DispatchRequest{
		TenantID: "tenant-1",
		CaseID:   "case-1",
		StageID:  "stage-1",
		WantText: true,
	})

	if text.to != "+27829999999" {
		t.Errorf("expected whatsapp number used, got %q", text.to)
	}
}

func TestDispatch_MissingAddressSkipsChannel(t *testing.T) {
	parties := testParties()
	parties.Customer.Email = nil

	email := &fakeEmailSender{configured: true}
	text := &fakeTextSender{configured: true}
	d := newTestDispatcher(
		&fakeParties{parties: parties},
		&fakeStages{stage: testStage()},
		email, text,
	)

	set := d.Dispatch(context.Background(), DispatchRequest{
		TenantID:  "tenant-1",
		CaseID:    "case-1",
		StageID:   "stage-1",
		WantEmail: true,
		WantText:  true,
	})

	if _, ok := set.Get(ChannelEmail); ok {
		t.Errorf("expected no email outcome without an address")
	}
	if o, ok := set.Get(ChannelWhatsApp); !ok || !o.Delivered {
		t.Errorf("expected whatsapp attempted, got %+v", o)
	}
	if email.calls != 0 {
		t.Errorf("expected no email send without an address")
	}
}

func TestDispatch_MessageUsesStageTemplate(t *testing.T) {
	st := testStage()
	tpl := "Hi {customer_name}, {vehicle_reg} reached {stage_name}"
	st.NotificationTemplate = &tpl

	text := &fakeTextSender{configured: true}
	d := newTestDispatcher(
		&fakeParties{parties: testParties()},
		&fakeStages{stage: st},
		&fakeEmailSender{},
		text,
	)

	d.Dispatch(context.Background(), DispatchRequest{
		TenantID: "tenant-1",
		CaseID:   "case-1",
		StageID:  "stage-1",
		WantText: true,
	})

	want := "Hi Jane Doe, CA123456 reached Ready for Collection"
	if text.body != want {
		t.Errorf("got body %q, want %q", text.body, want)
	}
}
