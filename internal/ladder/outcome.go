package ladder

import "errors"

// Outcome is what Process did with a message.
type Outcome int

const (
	// OutcomeIgnored: no command, or a confirmation that matches nothing.
	OutcomeIgnored Outcome = iota
	// OutcomeDuplicate: report already pending or done, or a repeated confirmation.
	OutcomeDuplicate
	// OutcomeRejected: winner and loser are the same participant.
	OutcomeRejected
	// OutcomePending: new report registered, waiting for confirmations.
	OutcomePending
	// OutcomeConfirmed: one slot confirmed, the other still outstanding.
	OutcomeConfirmed
	// OutcomeCommitted: both confirmed, ratings updated and persisted.
	OutcomeCommitted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRejected:
		return "rejected"
	case OutcomePending:
		return "pending"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeCommitted:
		return "committed"
	default:
		return "ignored"
	}
}

// ErrPersist wraps store failures. The caller must treat it as fatal.
var ErrPersist = errors.New("ladder: persist failed")
