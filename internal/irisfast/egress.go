package irisfast

import (
	"context"
	"errors"

	"github.com/park285/cheese-elo-bot/internal/platform"
	"go.uber.org/zap"
)

// Egress modes for replies.
const (
	EgressHTTP = "http"
	EgressWS   = "ws"
	EgressAuto = "auto"
)

// NewEgress builds the reply path. In auto mode the WebSocket is preferred
// while connected and a failed frame falls back to HTTP once. With dryrun
// set, WebSocket replies are logged instead of sent.
func NewEgress(mode string, dryrun bool, c *Client, ws WSClient, logger *zap.Logger) platform.Replier {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch mode {
	case EgressWS:
		return &wsEgress{ws: ws, dryrun: dryrun, logger: logger}
	case EgressAuto:
		return &autoEgress{ws: &wsEgress{ws: ws, dryrun: dryrun, logger: logger}, http: &httpEgress{c: c}, logger: logger}
	default:
		return &httpEgress{c: c}
	}
}

type httpEgress struct{ c *Client }

func (h *httpEgress) Reply(ctx context.Context, targetID, text string) error {
	if h == nil || h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.Reply(ctx, targetID, text)
}

// wsEgress writes ReplyRequest frames over the WebSocket.
type wsEgress struct {
	ws     WSClient
	dryrun bool
	logger *zap.Logger
}

func (w *wsEgress) Reply(ctx context.Context, targetID, text string) error {
	if w == nil || w.ws == nil {
		return errors.New("ws egress not available")
	}
	if w.dryrun {
		w.logger.Info("ws_egress_dryrun", zap.String("target_id", targetID))
		return nil
	}
	return w.ws.WriteJSON(ctx, &ReplyRequest{Type: "reply", TargetID: targetID, Text: text})
}

func (w *wsEgress) connected() bool {
	return w != nil && w.ws != nil && w.ws.State() == WSStateConnected
}

type autoEgress struct {
	ws     *wsEgress
	http   *httpEgress
	logger *zap.Logger
}

func (a *autoEgress) Reply(ctx context.Context, targetID, text string) error {
	if a.ws.connected() {
		err := a.ws.Reply(ctx, targetID, text)
		if err == nil {
			return nil
		}
		a.logger.Warn("egress_fallback", zap.String("target_id", targetID), zap.Error(err))
	}
	return a.http.Reply(ctx, targetID, text)
}
