package irisfast

import "context"

type MessageCallback func(message *Message)

type StateCallback func(state WebSocketState)

// WSClient is the push side of the gateway.
type WSClient interface {
	Connect(ctx context.Context) error
	OnMessage(cb MessageCallback) int
	OnStateChange(cb StateCallback) int
	State() WebSocketState
	WriteJSON(ctx context.Context, v any) error
	Close(ctx context.Context) error
}
