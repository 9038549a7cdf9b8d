package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/cheese-elo-bot/internal/domain"
	_ "modernc.org/sqlite"
)

const ladderSchema = `
CREATE TABLE IF NOT EXISTS elo_ratings (
	identifier TEXT PRIMARY KEY,
	rating     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS elo_pending (
	report_id        TEXT PRIMARY KEY,
	winner_id        TEXT NOT NULL,
	winner_confirmed BOOLEAN NOT NULL,
	loser_id         TEXT NOT NULL,
	loser_confirmed  BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS elo_done (
	report_id TEXT PRIMARY KEY
);`

// dialect holds what differs between the SQL backends.
type dialect struct {
	name     string
	clear    []string
	bind     func(n int) string
	loadOpts *sql.TxOptions
}

var postgresDialect = dialect{
	name:     "postgres",
	clear:    []string{`TRUNCATE elo_ratings, elo_pending, elo_done`},
	bind:     func(n int) string { return fmt.Sprintf("$%d", n) },
	loadOpts: &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead},
}

var sqliteDialect = dialect{
	name:  "sqlite",
	clear: []string{`DELETE FROM elo_ratings`, `DELETE FROM elo_pending`, `DELETE FROM elo_done`},
	bind:  func(int) string { return "?" },
}

func (d dialect) insert(table string, cols ...string) string {
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = d.bind(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// SQLStore keeps the ladder in three tables, replaced inside one transaction.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewPostgresStore connects with lib/pq and creates the tables if missing.
func NewPostgresStore(ctx context.Context, databaseURL string) (*SQLStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url required for postgres store")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return openSQL(ctx, db, postgresDialect)
}

// NewSQLiteStore opens (or creates) a single-file database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer; also keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)
	return openSQL(ctx, db, sqliteDialect)
}

func openSQL(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ladderSchema); err != nil {
		return fmt.Errorf("create ladder tables: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (*domain.State, error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.loadOpts)
	if err != nil {
		return nil, fmt.Errorf("begin load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	st := domain.NewState()

	rows, err := tx.QueryContext(ctx, `SELECT identifier, rating FROM elo_ratings`)
	if err != nil {
		return nil, fmt.Errorf("select ratings: %w", err)
	}
	for rows.Next() {
		var id string
		var rating int
		if err := rows.Scan(&id, &rating); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		st.Ratings[id] = rating
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select ratings: %w", err)
	}

	rows, err = tx.QueryContext(ctx, `SELECT report_id, winner_id, winner_confirmed, loser_id, loser_confirmed FROM elo_pending`)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	for rows.Next() {
		rep := &domain.Report{}
		if err := rows.Scan(&rep.ID, &rep.Slots[0].ID, &rep.Slots[0].Confirmed, &rep.Slots[1].ID, &rep.Slots[1].Confirmed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		st.Pending[rep.ID] = rep
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}

	rows, err = tx.QueryContext(ctx, `SELECT report_id FROM elo_done`)
	if err != nil {
		return nil, fmt.Errorf("select done: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan done: %w", err)
		}
		st.Done[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select done: %w", err)
	}
	return st, nil
}

func (s *SQLStore) Save(ctx context.Context, st *domain.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range s.dialect.clear {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear ladder: %w", err)
		}
	}
	insRating := s.dialect.insert("elo_ratings", "identifier", "rating")
	for _, id := range sortedKeys(st.Ratings) {
		if _, err := tx.ExecContext(ctx, insRating, id, st.Ratings[id]); err != nil {
			return fmt.Errorf("insert rating %s: %w", id, err)
		}
	}
	insPending := s.dialect.insert("elo_pending", "report_id", "winner_id", "winner_confirmed", "loser_id", "loser_confirmed")
	for _, id := range sortedKeys(st.Pending) {
		rep := st.Pending[id]
		if _, err := tx.ExecContext(ctx, insPending,
			id, rep.Slots[0].ID, rep.Slots[0].Confirmed, rep.Slots[1].ID, rep.Slots[1].Confirmed,
		); err != nil {
			return fmt.Errorf("insert pending %s: %w", id, err)
		}
	}
	insDone := s.dialect.insert("elo_done", "report_id")
	for _, id := range sortedKeys(st.Done) {
		if id == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, insDone, id); err != nil {
			return fmt.Errorf("insert done %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
