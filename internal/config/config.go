// Package config builds the bot configuration once at startup. Components get
// the parts they need passed in explicitly; nothing reads it from globals.
package config

import (
	"time"

	"github.com/park285/cheese-elo-bot/internal/elo"
	"github.com/park285/cheese-elo-bot/internal/obslog"
	"github.com/park285/cheese-elo-bot/internal/store"
)

type AppConfig struct {
	// BotName is the bot's own account; its messages are never processed.
	BotName string `koanf:"bot_name"`

	Call          string   `koanf:"call"`
	Actions       []string `koanf:"actions"`
	MentionPrefix string   `koanf:"mention_prefix"`

	Rating RatingConfig `koanf:"rating"`
	Store  StoreConfig  `koanf:"store"`
	Iris   IrisConfig   `koanf:"iris"`
	Log    LogConfig    `koanf:"log"`

	PollInterval  time.Duration `koanf:"poll_interval"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	FetchRetries  int           `koanf:"fetch_retries"`

	// MessagesDir optionally overrides reply templates.
	MessagesDir string `koanf:"messages_dir"`
	// MetricsAddr enables the Prometheus endpoint when set, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`
}

type RatingConfig struct {
	Initial       int `koanf:"initial"`
	MaxDifference int `koanf:"max_difference"`
	MaxAdjustment int `koanf:"max_adjustment"`
}

type StoreConfig struct {
	Backend     string `koanf:"backend"`
	Dir         string `koanf:"dir"`
	RatingFile  string `koanf:"rating_file"`
	PendingFile string `koanf:"pending_file"`
	DoneFile    string `koanf:"done_file"`
	RedisURL    string `koanf:"redis_url"`
	RedisPrefix string `koanf:"redis_prefix"`
	DatabaseURL string `koanf:"database_url"`
	SQLitePath  string `koanf:"sqlite_path"`
}

type IrisConfig struct {
	BaseURL string `koanf:"base_url"`
	WSURL   string `koanf:"ws_url"`
	// Board is the forum/room polled over HTTP; empty disables polling.
	Board      string        `koanf:"board"`
	FetchLimit int           `koanf:"fetch_limit"`
	Timeout    time.Duration `koanf:"timeout"`
	Retry      int           `koanf:"retry"`

	// Egress selects the reply path: http, ws or auto.
	Egress string `koanf:"egress"`
	DryRun bool   `koanf:"dry_run"`

	XUserID    string `koanf:"x_user_id"`
	XUserEmail string `koanf:"x_user_email"`
	XSessionID string `koanf:"x_session_id"`
}

// Headers returns the identity headers sent on every gateway request.
func (i IrisConfig) Headers() map[string]string {
	h := map[string]string{}
	if i.XUserID != "" {
		h["X-User-Id"] = i.XUserID
	}
	if i.XUserEmail != "" {
		h["X-User-Email"] = i.XUserEmail
	}
	if i.XSessionID != "" {
		h["X-Session-Id"] = i.XSessionID
	}
	return h
}

type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Console    bool   `koanf:"console"`
	File       string `koanf:"file"`
	MaxBytes   int64  `koanf:"max_bytes"`
	MaxBackups int    `koanf:"max_backups"`
	Caller     bool   `koanf:"caller"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *AppConfig {
	return &AppConfig{
		Call:          "!elo",
		Actions:       []string{"game", "confirm"},
		MentionPrefix: "/u/",
		Rating: RatingConfig{
			Initial:       elo.DefaultInitial,
			MaxDifference: elo.DefaultMaxDifference,
			MaxAdjustment: elo.DefaultMaxAdjustment,
		},
		Store: StoreConfig{
			Backend:     "file",
			Dir:         ".",
			RatingFile:  "elo.txt",
			PendingFile: "progress.txt",
			DoneFile:    "done.txt",
			RedisPrefix: "elo",
			SQLitePath:  "ladder.db",
		},
		Iris: IrisConfig{
			FetchLimit: 100,
			Timeout:    10 * time.Second,
			Retry:      3,
			Egress:     "http",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "legacy",
			Console:    true,
			File:       "bot.log",
			MaxBytes:   obslog.DefaultMaxBytes,
			MaxBackups: obslog.DefaultMaxBackups,
		},
		PollInterval:  60 * time.Second,
		FlushInterval: 5 * time.Minute,
		FetchRetries:  3,
	}
}

// Engine returns the rating engine configured by r.
func (r RatingConfig) Engine() elo.Engine {
	return elo.Engine{MaxDifference: r.MaxDifference, MaxAdjustment: r.MaxAdjustment}
}

// Options converts the log section for obslog.
func (l LogConfig) Options() obslog.Options {
	return obslog.Options{
		Level:      l.Level,
		Format:     l.Format,
		Console:    l.Console,
		File:       l.File,
		MaxBytes:   l.MaxBytes,
		MaxBackups: l.MaxBackups,
		Caller:     l.Caller,
	}
}

// Options converts the store section for store.Open.
func (s StoreConfig) Options() store.Options {
	return store.Options{
		Backend:     s.Backend,
		Dir:         s.Dir,
		RatingFile:  s.RatingFile,
		PendingFile: s.PendingFile,
		DoneFile:    s.DoneFile,
		RedisURL:    s.RedisURL,
		RedisPrefix: s.RedisPrefix,
		DatabaseURL: s.DatabaseURL,
		SQLitePath:  s.SQLitePath,
	}
}
