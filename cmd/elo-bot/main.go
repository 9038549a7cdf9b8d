package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/cheese-elo-bot/internal/bot"
	"github.com/park285/cheese-elo-bot/internal/command"
	"github.com/park285/cheese-elo-bot/internal/config"
	"github.com/park285/cheese-elo-bot/internal/irisfast"
	"github.com/park285/cheese-elo-bot/internal/ladder"
	"github.com/park285/cheese-elo-bot/internal/metrics"
	"github.com/park285/cheese-elo-bot/internal/msgcat"
	"github.com/park285/cheese-elo-bot/internal/obslog"
	"github.com/park285/cheese-elo-bot/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log.Options()); err != nil {
		log.Fatalf("log init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bot_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) error {
	st, err := store.Open(ctx, cfg.Store.Options(), logger.Named("store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	state, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	logger.Info("state_loaded",
		zap.String("backend", cfg.Store.Backend),
		zap.Int("ratings", len(state.Ratings)),
		zap.Int("pending", len(state.Pending)),
		zap.Int("done", len(state.Done)),
	)

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("message catalog: %w", err)
	}
	parser, err := command.NewParser(command.Grammar{Call: cfg.Call, Actions: cfg.Actions, MentionPrefix: cfg.MentionPrefix})
	if err != nil {
		return fmt.Errorf("command grammar: %w", err)
	}

	rec := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, rec, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	client := irisfast.NewClient(cfg.Iris.BaseURL,
		irisfast.WithHeaderProvider(cfg.Iris.Headers),
		irisfast.WithTimeout(cfg.Iris.Timeout),
		irisfast.WithRetry(cfg.Iris.Retry),
	)

	var wsc irisfast.WSClient
	if cfg.Iris.WSURL != "" {
		ws := irisfast.NewWebSocket(cfg.Iris.WSURL, 5, logger.Named("ws"))
		ws.SetHeaderProvider(cfg.Iris.Headers)
		ws.OnStateChange(func(s irisfast.WebSocketState) {
			logger.Info("ws_state", zap.Stringer("state", s))
		})
		wsc = ws
	}

	adapter := irisfast.NewAdapter(irisfast.AdapterOptions{
		Poll:   client,
		Board:  cfg.Iris.Board,
		Limit:  cfg.Iris.FetchLimit,
		WS:     wsc,
		Egress: irisfast.NewEgress(cfg.Iris.Egress, cfg.Iris.DryRun, client, wsc, logger.Named("egress")),
		Labels: client,
		Logger: logger.Named("iris"),
	})
	if err := adapter.Connect(ctx); err != nil {
		// reconnect keeps trying in the background
		logger.Warn("ws_connect_deferred", zap.Error(err))
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = adapter.Close(cctx)
	}()

	tracker, err := ladder.New(state, st, adapter, ladder.Options{
		Parser:  parser,
		Catalog: cat,
		Engine:  cfg.Rating.Engine(),
		Initial: cfg.Rating.Initial,
		Mention: cfg.MentionPrefix,
		Logger:  logger.Named("ladder"),
		Metrics: rec,
	})
	if err != nil {
		return err
	}

	runner := bot.NewRunner(adapter, tracker, bot.Options{
		BotName:       cfg.BotName,
		PollInterval:  cfg.PollInterval,
		FlushInterval: cfg.FlushInterval,
		FetchRetries:  cfg.FetchRetries,
		Logger:        logger.Named("bot"),
		Metrics:       rec,
	})
	return runner.Run(ctx)
}

func serveMetrics(addr string, rec *metrics.Recorder, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_error", zap.Error(err))
		}
	}()
	logger.Info("metrics_listen", zap.String("addr", addr))
	return srv
}
