// Package bot drives the ladder from a message source: poll, process each
// message in order, flush periodically, flush once more on shutdown.
package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-elo-bot/internal/ladder"
	"github.com/park285/cheese-elo-bot/internal/metrics"
	"github.com/park285/cheese-elo-bot/internal/platform"
	"go.uber.org/zap"
)

// Processor is the ladder as the loop sees it.
type Processor interface {
	Process(ctx context.Context, msg platform.Message) (ladder.Outcome, error)
	Flush(ctx context.Context) error
}

type Options struct {
	// BotName is skipped as an author, compared case-insensitively.
	BotName       string
	PollInterval  time.Duration
	FlushInterval time.Duration
	FetchRetries  int
	// RetryDelay is the first fetch backoff; it doubles per attempt.
	RetryDelay time.Duration
	// FlushTimeout bounds the shutdown flush.
	FlushTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Recorder
}

type Runner struct {
	src  platform.Source
	proc Processor
	opts Options
	log  *zap.Logger
}

func NewRunner(src platform.Source, proc Processor, opts Options) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 60 * time.Second
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Minute
	}
	if opts.FetchRetries < 1 {
		opts.FetchRetries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{src: src, proc: proc, opts: opts, log: opts.Logger}
}

// Run polls until ctx is cancelled or persisting fails. The first cycle runs
// immediately. A nil return means a clean shutdown including the final flush.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("bot_start",
		zap.Duration("poll_interval", r.opts.PollInterval),
		zap.Duration("flush_interval", r.opts.FlushInterval),
	)
	poll := time.NewTicker(r.opts.PollInterval)
	defer poll.Stop()
	flush := time.NewTicker(r.opts.FlushInterval)
	defer flush.Stop()

	if err := r.Cycle(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return r.shutdown(ctx)
		case <-poll.C:
			if err := r.Cycle(ctx); err != nil {
				return err
			}
		case <-flush.C:
			if err := r.proc.Flush(ctx); err != nil {
				if ctx.Err() != nil {
					return r.shutdown(ctx)
				}
				return err
			}
		}
	}
}

func (r *Runner) shutdown(ctx context.Context) error {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.FlushTimeout)
	defer cancel()
	if err := r.proc.Flush(fctx); err != nil {
		r.log.Error("bot_final_flush_error", zap.Error(err))
		return err
	}
	r.log.Info("bot_stop")
	return nil
}

// Cycle fetches one batch and processes it in delivered order. Fetch
// failures are logged and end the cycle; persistence failures are returned.
func (r *Runner) Cycle(ctx context.Context) error {
	log := r.log.With(zap.String("cycle_id", uuid.NewString()))
	msgs, err := r.fetch(ctx, log)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("bot_fetch_failed", zap.Int("attempts", r.opts.FetchRetries), zap.Error(err))
			r.opts.Metrics.Cycle("fetch_error")
		}
		return nil
	}
	log.Debug("bot_cycle", zap.Int("messages", len(msgs)))

	// an in-flight message completes even if shutdown starts meanwhile
	work := context.WithoutCancel(ctx)
	for _, msg := range msgs {
		if ctx.Err() != nil {
			log.Info("bot_cycle_interrupted", zap.String("next_id", msg.ID))
			break
		}
		if r.opts.BotName != "" && strings.EqualFold(msg.Author, r.opts.BotName) {
			continue
		}
		out, err := r.proc.Process(work, msg)
		if err != nil {
			log.Error("bot_persist_failed", zap.String("message_id", msg.ID), zap.Error(err))
			r.opts.Metrics.Cycle("persist_error")
			return err
		}
		if out != ladder.OutcomeIgnored {
			log.Debug("bot_message", zap.String("message_id", msg.ID), zap.Stringer("outcome", out))
		}
	}
	r.opts.Metrics.Cycle("ok")
	return nil
}

func (r *Runner) fetch(ctx context.Context, log *zap.Logger) ([]platform.Message, error) {
	var lastErr error
	delay := r.opts.RetryDelay
	for attempt := 1; attempt <= r.opts.FetchRetries; attempt++ {
		msgs, err := r.src.FetchRecentMessages(ctx)
		if err == nil {
			return msgs, nil
		}
		lastErr = err
		r.opts.Metrics.PlatformFailure("fetch")
		log.Warn("bot_fetch_error", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == r.opts.FetchRetries {
			break
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(lastErr, ctx.Err())
		case <-t.C:
		}
		delay *= 2
	}
	return nil, lastErr
}
