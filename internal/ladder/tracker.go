// Package ladder runs the report/confirm protocol over the rating table.
//
// A report registers a pending game between two participants. Each
// participant other than the reporter must reply to the report with a
// confirmation; once both slots are confirmed the ratings are adjusted,
// labels refreshed, the result announced and the state persisted.
package ladder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/park285/cheese-elo-bot/internal/command"
	"github.com/park285/cheese-elo-bot/internal/domain"
	"github.com/park285/cheese-elo-bot/internal/elo"
	"github.com/park285/cheese-elo-bot/internal/metrics"
	"github.com/park285/cheese-elo-bot/internal/msgcat"
	"github.com/park285/cheese-elo-bot/internal/platform"
	"github.com/park285/cheese-elo-bot/internal/store"
	"go.uber.org/zap"
)

// Options carries the collaborators a Tracker needs besides state and store.
type Options struct {
	Parser  *command.Parser
	Catalog *msgcat.Catalog
	Engine  elo.Engine
	// Initial seeds participants on first appearance.
	Initial int
	// Mention is prepended to participant names in replies, e.g. "/u/".
	Mention string
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// Tracker owns the ladder state. One mutex covers ratings, pending and done.
type Tracker struct {
	mu    sync.Mutex
	state *domain.State
	store store.Store
	out   platform.Outbound

	parser  *command.Parser
	cat     *msgcat.Catalog
	engine  elo.Engine
	initial int
	mention string
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// New builds a Tracker over a previously loaded state.
func New(st *domain.State, s store.Store, out platform.Outbound, opts Options) (*Tracker, error) {
	if st == nil {
		st = domain.NewState()
	}
	if s == nil || out == nil {
		return nil, errors.New("ladder: store and outbound are required")
	}
	if opts.Parser == nil || opts.Catalog == nil {
		return nil, errors.New("ladder: parser and catalog are required")
	}
	if err := opts.Catalog.Require(msgcat.LadderKeys...); err != nil {
		return nil, err
	}
	if opts.Engine.MaxDifference <= 0 || opts.Engine.MaxAdjustment <= 0 {
		opts.Engine = elo.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Tracker{
		state:   st,
		store:   s,
		out:     out,
		parser:  opts.Parser,
		cat:     opts.Catalog,
		engine:  opts.Engine,
		initial: opts.Initial,
		mention: opts.Mention,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Process interprets one message. The error is non-nil only when persisting
// a committed result failed.
func (t *Tracker) Process(ctx context.Context, msg platform.Message) (Outcome, error) {
	cmd := t.parser.Parse(msg.Body)
	var (
		out Outcome
		err error
	)
	switch cmd.Kind {
	case command.KindReport:
		out, err = t.report(ctx, msg, cmd)
	case command.KindConfirm:
		out, err = t.confirm(ctx, msg)
	default:
		out = OutcomeIgnored
	}
	t.metrics.Message(out.String())
	return out, err
}

func (t *Tracker) report(ctx context.Context, msg platform.Message, cmd command.Command) (Outcome, error) {
	t.mu.Lock()
	if t.state.Known(msg.ID) {
		t.mu.Unlock()
		return OutcomeDuplicate, nil
	}
	if cmd.Winner.ID == cmd.Loser.ID {
		t.state.MarkDone(msg.ID)
		t.mu.Unlock()
		t.logger.Info("ladder_same_user", zap.String("report_id", msg.ID), zap.String("user", cmd.Winner.ID))
		t.reply(ctx, msg.ID, msgcat.KeySameUser, nil)
		return OutcomeRejected, nil
	}

	rep := domain.NewReport(msg.ID, cmd.Winner.ID, cmd.Loser.ID, msg.Author)
	t.state.Pending[msg.ID] = rep
	if rep.Complete() {
		// not reachable while winner != loser; kept on the commit path
		c, err := t.commitLocked(ctx, rep)
		t.mu.Unlock()
		return t.announce(ctx, c, err)
	}
	display := [2]string{cmd.Winner.Display, cmd.Loser.Display}
	var ask []string
	for i, slot := range rep.Slots {
		if !slot.Confirmed {
			ask = append(ask, display[i])
		}
	}
	t.mu.Unlock()

	t.logger.Info("ladder_report",
		zap.String("report_id", msg.ID),
		zap.String("author", msg.Author),
		zap.String("winner", rep.Winner()),
		zap.String("loser", rep.Loser()),
	)
	for _, name := range ask {
		t.reply(ctx, msg.ID, msgcat.KeyPleaseConfirm, map[string]any{"Name": name})
	}
	return OutcomePending, nil
}

func (t *Tracker) confirm(ctx context.Context, msg platform.Message) (Outcome, error) {
	t.mu.Lock()
	rep, ok := t.state.Pending[msg.ParentID]
	if !ok || msg.ParentID == "" {
		t.mu.Unlock()
		return OutcomeIgnored, nil
	}
	before := rep.Slots
	if rep.Confirm(msg.Author) == 0 {
		t.mu.Unlock()
		return OutcomeIgnored, nil
	}
	if rep.Slots == before {
		t.mu.Unlock()
		return OutcomeDuplicate, nil
	}
	t.logger.Info("ladder_confirm", zap.String("report_id", rep.ID), zap.String("user", domain.Canonical(msg.Author)))
	if !rep.Complete() {
		t.mu.Unlock()
		return OutcomeConfirmed, nil
	}
	c, err := t.commitLocked(ctx, rep)
	t.mu.Unlock()
	return t.announce(ctx, c, err)
}

type commit struct {
	reportID      string
	winner, loser string
	wr, lr        int
}

// commitLocked applies the result and persists. Caller holds t.mu.
func (t *Tracker) commitLocked(ctx context.Context, rep *domain.Report) (commit, error) {
	c := commit{reportID: rep.ID, winner: rep.Winner(), loser: rep.Loser()}
	c.wr, c.lr = t.engine.Adjust(t.state.Rating(c.winner, t.initial), t.state.Rating(c.loser, t.initial))
	t.state.Ratings[c.winner] = c.wr
	t.state.Ratings[c.loser] = c.lr
	t.state.MarkDone(rep.ID)
	t.metrics.Commit()
	return c, t.saveLocked(ctx)
}

// announce publishes a committed result. Nothing is announced when the
// result could not be made durable.
func (t *Tracker) announce(ctx context.Context, c commit, persistErr error) (Outcome, error) {
	t.logger.Info("ladder_commit",
		zap.String("report_id", c.reportID),
		zap.String("winner", c.winner),
		zap.Int("winner_rating", c.wr),
		zap.String("loser", c.loser),
		zap.Int("loser_rating", c.lr),
	)
	if persistErr != nil {
		return OutcomeCommitted, persistErr
	}
	t.label(ctx, c.winner, c.wr)
	t.label(ctx, c.loser, c.lr)
	t.reply(ctx, c.reportID, msgcat.KeyConfirmation, map[string]any{
		"Winner":       c.winner,
		"WinnerRating": c.wr,
		"Loser":        c.loser,
		"LoserRating":  c.lr,
	})
	return OutcomeCommitted, nil
}

// Flush persists the three tables together.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked(ctx)
}

func (t *Tracker) saveLocked(ctx context.Context) error {
	start := time.Now()
	err := t.store.Save(ctx, t.state)
	t.metrics.Flush(time.Since(start), err)
	t.metrics.Sizes(len(t.state.Pending), len(t.state.Ratings))
	if err != nil {
		t.logger.Error("ladder_persist_error", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (t *Tracker) templateData(extra map[string]any) map[string]any {
	report, confirm := t.parser.Actions()
	data := map[string]any{
		"Mention": t.mention,
		"Call":    t.parser.Call(),
		"Report":  report,
		"Confirm": confirm,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// reply posts a rendered notice plus signature. Failures are logged only.
func (t *Tracker) reply(ctx context.Context, targetID, key string, extra map[string]any) {
	data := t.templateData(extra)
	body, err := t.cat.Render(key, data)
	if err == nil {
		var sig string
		sig, err = t.cat.Render(msgcat.KeySignature, data)
		body += sig
	}
	if err != nil {
		t.logger.Error("ladder_render_error", zap.String("key", key), zap.Error(err))
		return
	}
	if err := t.out.Reply(ctx, targetID, body); err != nil {
		t.metrics.PlatformFailure("reply")
		t.logger.Warn("ladder_reply_error", zap.String("target_id", targetID), zap.String("key", key), zap.Error(err))
	}
}

func (t *Tracker) label(ctx context.Context, user string, rating int) {
	text, err := t.cat.Render(msgcat.KeyLabel, t.templateData(map[string]any{"Rating": rating}))
	if err != nil {
		t.logger.Error("ladder_render_error", zap.String("key", msgcat.KeyLabel), zap.Error(err))
		return
	}
	if err := t.out.SetLabel(ctx, user, text); err != nil {
		t.metrics.PlatformFailure("label")
		if errors.Is(err, platform.ErrNotPermitted) {
			t.logger.Warn("ladder_label_not_permitted", zap.String("user", user))
			return
		}
		t.logger.Warn("ladder_label_error", zap.String("user", user), zap.Error(err))
	}
}

// Ratings returns a copy of the rating table.
func (t *Tracker) Ratings() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.state.Ratings))
	for k, v := range t.state.Ratings {
		out[k] = v
	}
	return out
}

// Pending returns copies of the pending reports ordered by id.
func (t *Tracker) Pending() []domain.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Report, 0, len(t.state.Pending))
	for _, rep := range t.state.Pending {
		out = append(out, *rep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Done reports whether id has been processed.
func (t *Tracker) Done(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.state.Done[id]
	return ok
}
