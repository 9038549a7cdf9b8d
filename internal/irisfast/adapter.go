package irisfast

import (
	"context"
	"sync"

	"github.com/park285/cheese-elo-bot/internal/platform"
	"go.uber.org/zap"
)

// recentFetcher is the polling half of Client.
type recentFetcher interface {
	Recent(ctx context.Context, board string, limit int) ([]Message, error)
}

type labeler interface {
	SetLabel(ctx context.Context, user, text string) error
}

// AdapterOptions wires the gateway pieces. Poll and WS may each be nil;
// with both nil the adapter never yields messages.
type AdapterOptions struct {
	Poll   recentFetcher
	Board  string
	Limit  int
	WS     WSClient
	Egress platform.Replier
	Labels labeler
	// InboxSize bounds messages buffered from the WebSocket between fetches.
	InboxSize int
	Logger    *zap.Logger
}

// Adapter presents the gateway as platform.Source and platform.Outbound.
type Adapter struct {
	ws     WSClient
	poll   recentFetcher
	board  string
	limit  int
	egress platform.Replier
	labels labeler
	logger *zap.Logger

	mu       sync.Mutex
	inbox    []Message
	inboxCap int
}

func NewAdapter(opts AdapterOptions) *Adapter {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1024
	}
	a := &Adapter{
		ws:       opts.WS,
		poll:     opts.Poll,
		board:    opts.Board,
		limit:    opts.Limit,
		egress:   opts.Egress,
		labels:   opts.Labels,
		logger:   opts.Logger,
		inboxCap: opts.InboxSize,
	}
	if opts.WS != nil {
		opts.WS.OnMessage(a.push)
	}
	return a
}

// Connect opens the WebSocket, if any. The push handler is registered by
// NewAdapter, so frames arriving right after the handshake reach the inbox.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.ws == nil {
		return nil
	}
	return a.ws.Connect(ctx)
}

// Close shuts the WebSocket, if any.
func (a *Adapter) Close(ctx context.Context) error {
	if a.ws == nil {
		return nil
	}
	return a.ws.Close(ctx)
}

func (a *Adapter) push(m *Message) {
	if m == nil || m.ID == "" {
		return
	}
	if a.board != "" && m.Board != "" && m.Board != a.board {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.inbox) >= a.inboxCap {
		a.logger.Warn("iris_inbox_full", zap.String("dropped_id", a.inbox[0].ID))
		a.inbox = a.inbox[1:]
	}
	a.inbox = append(a.inbox, *m)
}

// FetchRecentMessages drains pushed messages, then appends the polled batch,
// keeping the first occurrence of each id. A poll failure is returned only
// when nothing was pushed; pushed messages are never lost to it.
func (a *Adapter) FetchRecentMessages(ctx context.Context) ([]platform.Message, error) {
	a.mu.Lock()
	pushed := a.inbox
	a.inbox = nil
	a.mu.Unlock()

	seen := make(map[string]struct{}, len(pushed))
	out := make([]platform.Message, 0, len(pushed))
	add := func(m *Message) {
		if _, dup := seen[m.ID]; dup || m.ID == "" {
			return
		}
		seen[m.ID] = struct{}{}
		out = append(out, m.toPlatform())
	}
	for i := range pushed {
		add(&pushed[i])
	}

	if a.poll == nil || a.board == "" {
		return out, nil
	}
	polled, err := a.poll.Recent(ctx, a.board, a.limit)
	if err != nil {
		if len(out) > 0 {
			a.logger.Warn("iris_poll_error", zap.String("board", a.board), zap.Error(err))
			return out, nil
		}
		return nil, err
	}
	for i := range polled {
		add(&polled[i])
	}
	return out, nil
}

func (a *Adapter) Reply(ctx context.Context, targetID, text string) error {
	return a.egress.Reply(ctx, targetID, text)
}

func (a *Adapter) SetLabel(ctx context.Context, participant, text string) error {
	if a.labels == nil {
		return platform.ErrNotPermitted
	}
	return a.labels.SetLabel(ctx, participant, text)
}

var (
	_ platform.Source   = (*Adapter)(nil)
	_ platform.Outbound = (*Adapter)(nil)
)
