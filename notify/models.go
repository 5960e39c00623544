package notify

// Channel names a delivery route for stage-change messages.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Outcome is the result of one channel attempt. It is transient: the
// aggregate is folded onto the history row, never stored per channel.
type Outcome struct {
	Channel   Channel
	Delivered bool
	Reason    string
}

// OutcomeSet collects the outcomes of the channels actually attempted.
// An empty set means no channel was attempted (no customer, or nothing
// requested) and is a normal, non-error result.
type OutcomeSet []Outcome

// Attempted reports whether any channel was attempted.
func (s OutcomeSet) Attempted() bool {
	return len(s) > 0
}

// AnyDelivered reports whether at least one attempted channel succeeded.
func (s OutcomeSet) AnyDelivered() bool {
	for _, o := range s {
		if o.Delivered {
			return true
		}
	}
	return false
}

// Get returns the outcome for the channel, if it was attempted.
func (s OutcomeSet) Get(ch Channel) (Outcome, bool) {
	for _, o := range s {
		if o.Channel == ch {
			return o, true
		}
	}
	return Outcome{}, false
}
