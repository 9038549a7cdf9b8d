// Package store persists the ladder state: the rating table, the pending
// reports and the set of processed report ids. The three tables are always
// loaded and saved together.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/cheese-elo-bot/internal/domain"
	"go.uber.org/zap"
)

// Store is a durable home for the ladder state.
type Store interface {
	// Load returns the persisted state; an empty store yields an empty state.
	Load(ctx context.Context) (*domain.State, error)
	// Save replaces the persisted state with st as one unit.
	Save(ctx context.Context, st *domain.State) error
	Close() error
}

var (
	ErrUnknownBackend = errors.New("store: unknown backend")
	ErrCorrupt        = errors.New("store: corrupt record")
)

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	Dir         string
	RatingFile  string
	PendingFile string
	DoneFile    string

	RedisURL    string
	RedisPrefix string

	DatabaseURL string
	SQLitePath  string
}

// Open builds the backend named by opts.Backend.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendFile:
		return NewFileStore(opts.Dir, FileNames{Ratings: opts.RatingFile, Pending: opts.PendingFile, Done: opts.DoneFile}, logger), nil
	case BackendRedis:
		return NewRedisStoreFromURL(ctx, opts.RedisURL, opts.RedisPrefix)
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case BackendSQLite:
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
