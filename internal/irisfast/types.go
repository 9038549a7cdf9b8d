package irisfast

import "github.com/park285/cheese-elo-bot/internal/platform"

// Message is a board message as the gateway delivers it, over HTTP or
// WebSocket.
type Message struct {
	ID       string `json:"id"`
	Board    string `json:"board,omitempty"`
	Author   string `json:"author"`
	ParentID string `json:"parent_id,omitempty"`
	Body     string `json:"body"`
}

func (m *Message) toPlatform() platform.Message {
	return platform.Message{ID: m.ID, Author: m.Author, ParentID: m.ParentID, Body: m.Body}
}

// MessagesResponse is the body of GET /messages.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// ReplyRequest posts text as a reply to TargetID. Type is "reply" on
// WebSocket frames and empty over HTTP.
type ReplyRequest struct {
	Type     string `json:"type,omitempty"`
	TargetID string `json:"target_id"`
	Text     string `json:"text"`
}

// LabelRequest sets the per-user label shown next to User's name.
type LabelRequest struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type WebSocketState int

const (
	WSStateDisconnected WebSocketState = iota
	WSStateConnecting
	WSStateConnected
	WSStateReconnecting
	WSStateFailed
)

func (s WebSocketState) String() string {
	switch s {
	case WSStateConnecting:
		return "connecting"
	case WSStateConnected:
		return "connected"
	case WSStateReconnecting:
		return "reconnecting"
	case WSStateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}
