// Package platform is the narrow boundary between the ladder core and the
// chat/forum platform that delivers messages and displays replies and labels.
package platform

import (
	"context"
	"errors"
)

// ErrNotPermitted is returned by a Labeler when the bot lacks the privilege to
// change a participant's label.
var ErrNotPermitted = errors.New("platform: not permitted")

// Message is the only part of a platform message the core depends on.
type Message struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	ParentID string `json:"parent_id"`
	Body     string `json:"body"`
}

// Source yields recently observed messages. Batches may overlap across calls.
type Source interface {
	FetchRecentMessages(ctx context.Context) ([]Message, error)
}

// Replier posts a reply to the message identified by targetID.
type Replier interface {
	Reply(ctx context.Context, targetID, text string) error
}

// Labeler sets the human-visible label of a participant.
type Labeler interface {
	SetLabel(ctx context.Context, participant, text string) error
}

// Outbound is what the ladder needs to talk back to the platform.
type Outbound interface {
	Replier
	Labeler
}
