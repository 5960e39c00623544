package casefile

import "time"

// NotificationType selects the channels requested for a transition.
type NotificationType string

const (
	NotificationEmail    NotificationType = "email"
	NotificationWhatsApp NotificationType = "whatsapp"
	NotificationBoth     NotificationType = "both"
	NotificationNone     NotificationType = "none"
)

// Valid reports whether the value is one of the four known types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationEmail, NotificationWhatsApp, NotificationBoth, NotificationNone:
		return true
	default:
		return false
	}
}

// WantsEmail reports whether the email channel was requested.
func (t NotificationType) WantsEmail() bool {
	return t == NotificationEmail || t == NotificationBoth
}

// WantsWhatsApp reports whether the whatsapp channel was requested.
func (t NotificationType) WantsWhatsApp() bool {
	return t == NotificationWhatsApp || t == NotificationBoth
}

// Case mirrors the repair_cases table columns touched by the workflow core.
// A nil CurrentStageID means the case has not been assigned a stage yet.
type Case struct {
	ID             string
	TenantID       string
	CurrentStageID *string
	CustomerID     *string
	VehicleID      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HistoryEntry is one append-only row of a case's stage audit trail.
// After creation only NotifiedCustomer and NotificationSentAt may change,
// exactly once, when the delivery outcome is recorded.
type HistoryEntry struct {
	ID                 string
	TenantID           string
	CaseID             string
	StageID            string
	PreviousStageID    *string
	UpdatedBy          string
	Notes              *string
	NotificationType   NotificationType
	NotifiedCustomer   bool
	NotificationSentAt *time.Time
	CreatedAt          time.Time
}

// TimelineEntry is a history row joined with its stage labels for display.
// Stage references that no longer resolve carry the "Unknown" label.
type TimelineEntry struct {
	HistoryEntry
	StageName          string
	StageColor         string
	PreviousStageName  *string
	PreviousStageColor *string
}

// StageChangedEvent describes a committed transition handed to the notifier.
type StageChangedEvent struct {
	TenantID         string
	CaseID           string
	StageID          string
	HistoryEntryID   string
	NotificationType NotificationType
}

const (
	// OutboxTopicStageChanged is enqueued whenever a case changes stage.
	OutboxTopicStageChanged = "case.stage_changed"
)
