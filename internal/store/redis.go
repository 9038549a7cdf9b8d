package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/park285/cheese-elo-bot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the ladder in three keys:
//
//	<prefix>:ratings  hash  identifier -> rating
//	<prefix>:pending  hash  report id  -> "winner \t bool \t loser \t bool"
//	<prefix>:done     set   report ids
//
// Save replaces all three inside one MULTI/EXEC.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "elo"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// NewRedisStoreFromURL dials redis://[:password@]host[:port][/db] and pings it.
func NewRedisStoreFromURL(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required for redis store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, prefix), nil
}

func (s *RedisStore) keyRatings() string { return s.prefix + ":ratings" }
func (s *RedisStore) keyPending() string { return s.prefix + ":pending" }
func (s *RedisStore) keyDone() string    { return s.prefix + ":done" }

func (s *RedisStore) Load(ctx context.Context) (*domain.State, error) {
	var (
		ratingsCmd *redis.MapStringStringCmd
		pendingCmd *redis.MapStringStringCmd
		doneCmd    *redis.StringSliceCmd
	)
	// read all three at one point in time
	if _, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ratingsCmd = pipe.HGetAll(ctx, s.keyRatings())
		pendingCmd = pipe.HGetAll(ctx, s.keyPending())
		doneCmd = pipe.SMembers(ctx, s.keyDone())
		return nil
	}); err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}

	st := domain.NewState()
	for id, raw := range ratingsCmd.Val() {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: rating %s: %v", ErrCorrupt, id, err)
		}
		st.Ratings[id] = v
	}
	for id, raw := range pendingCmd.Val() {
		rep, err := ParsePendingFields(id, raw)
		if err != nil {
			return nil, err
		}
		st.Pending[id] = rep
	}
	for _, id := range doneCmd.Val() {
		if strings.TrimSpace(id) == "" {
			continue
		}
		st.Done[id] = struct{}{}
	}
	return st, nil
}

func (s *RedisStore) Save(ctx context.Context, st *domain.State) error {
	ratings := make(map[string]any, len(st.Ratings))
	for id, v := range st.Ratings {
		ratings[id] = v
	}
	pending := make(map[string]any, len(st.Pending))
	for id, rep := range st.Pending {
		pending[id] = PendingFields(rep)
	}
	done := make([]any, 0, len(st.Done))
	for id := range st.Done {
		if id != "" {
			done = append(done, id)
		}
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keyRatings(), s.keyPending(), s.keyDone())
		if len(ratings) > 0 {
			pipe.HSet(ctx, s.keyRatings(), ratings)
		}
		if len(pending) > 0 {
			pipe.HSet(ctx, s.keyPending(), pending)
		}
		if len(done) > 0 {
			pipe.SAdd(ctx, s.keyDone(), done...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
