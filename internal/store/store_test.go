package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-elo-bot/internal/domain"
	"github.com/redis/go-redis/v9"
)

func sampleState() *domain.State {
	st := domain.NewState()
	st.Ratings["alice"] = 1010
	st.Ratings["bob"] = 990
	st.Ratings["carol"] = -15
	st.Pending["t1_m1"] = &domain.Report{ID: "t1_m1", Slots: [2]domain.Slot{{ID: "alice", Confirmed: true}, {ID: "dave"}}}
	st.Pending["t1_m2"] = &domain.Report{ID: "t1_m2", Slots: [2]domain.Slot{{ID: "erin"}, {ID: "bob", Confirmed: true}}}
	st.Done["t1_m0"] = struct{}{}
	st.Done["t1_m9"] = struct{}{}
	return st
}

func assertSameState(t *testing.T, got, want *domain.State) {
	t.Helper()
	if !reflect.DeepEqual(got.Ratings, want.Ratings) {
		t.Fatalf("ratings mismatch: got %v want %v", got.Ratings, want.Ratings)
	}
	if !reflect.DeepEqual(got.Done, want.Done) {
		t.Fatalf("done mismatch: got %v want %v", got.Done, want.Done)
	}
	if len(got.Pending) != len(want.Pending) {
		t.Fatalf("pending size: got %d want %d", len(got.Pending), len(want.Pending))
	}
	for id, w := range want.Pending {
		g, ok := got.Pending[id]
		if !ok || *g != *w {
			t.Fatalf("pending %s: got %+v want %+v", id, g, w)
		}
	}
}

func TestLineFormats(t *testing.T) {
	st := sampleState()
	var b strings.Builder
	if err := WritePending(&b, st.Pending); err != nil { t.Fatalf("WritePending: %v", err) }
	want := "t1_m1\talice\ttrue\tdave\tfalse\nt1_m2\terin\tfalse\tbob\ttrue\n"
	if b.String() != want { t.Fatalf("pending format: got %q want %q", b.String(), want) }

	b.Reset()
	if err := WriteRatings(&b, map[string]int{"bob": 990, "alice": -3}); err != nil { t.Fatalf("WriteRatings: %v", err) }
	if b.String() != "alice\t-3\nbob\t990\n" { t.Fatalf("ratings format: got %q", b.String()) }
}

func TestReadToleratesBlankLinesAndCase(t *testing.T) {
	done, err := ReadDone(strings.NewReader("a\n\n  \nb\r\n"))
	if err != nil { t.Fatalf("ReadDone: %v", err) }
	if len(done) != 2 { t.Fatalf("expected 2 done ids, got %v", done) }

	pending, err := ReadPending(strings.NewReader("\nm1\talice\tTrue\tbob\tFALSE\n"))
	if err != nil { t.Fatalf("ReadPending: %v", err) }
	if rep := pending["m1"]; rep == nil || !rep.Slots[0].Confirmed || rep.Slots[1].Confirmed {
		t.Fatalf("unexpected pending: %+v", rep)
	}

	ratings, err := ReadRatings(strings.NewReader("alice\t1000\n\nbob\t 990 \n"))
	if err != nil { t.Fatalf("ReadRatings: %v", err) }
	if ratings["bob"] != 990 { t.Fatalf("unexpected ratings: %v", ratings) }
}

func TestReadRejectsCorruptRecords(t *testing.T) {
	if _, err := ReadRatings(strings.NewReader("alice\tlots\n")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for bad rating, got %v", err)
	}
	if _, err := ReadPending(strings.NewReader("m1\talice\ttrue\n")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for short pending, got %v", err)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir, FileNames{}, nil)

	want := sampleState()
	if err := s.Save(ctx, want); err != nil { t.Fatalf("Save: %v", err) }
	got, err := NewFileStore(dir, FileNames{}, nil).Load(ctx)
	if err != nil { t.Fatalf("Load: %v", err) }
	assertSameState(t, got, want)

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") { t.Fatalf("leftover temp file %s", e.Name()) }
	}
	for _, name := range []string{"elo.txt", "progress.txt", "done.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil { t.Fatalf("expected %s: %v", name, err) }
	}
}

func TestFileStore_SavedFilesKeepPlainMode(t *testing.T) {
	if runtime.GOOS == "windows" { t.Skip("unix permissions") }
	dir := t.TempDir()
	if err := NewFileStore(dir, FileNames{}, nil).Save(context.Background(), sampleState()); err != nil { t.Fatalf("Save: %v", err) }
	for _, name := range []string{"elo.txt", "progress.txt", "done.txt"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil { t.Fatalf("stat %s: %v", name, err) }
		if perm := info.Mode().Perm(); perm != 0o644 { t.Fatalf("%s mode=%o want 644", name, perm) }
	}
}

func TestFileStore_MissingFilesLoadEmpty(t *testing.T) {
	st, err := NewFileStore(t.TempDir(), FileNames{}, nil).Load(context.Background())
	if err != nil { t.Fatalf("Load: %v", err) }
	if len(st.Ratings)+len(st.Pending)+len(st.Done) != 0 { t.Fatalf("expected empty state, got %+v", st) }
}

func TestFileStore_FailedSaveKeepsPreviousFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir, FileNames{}, nil)
	want := sampleState()
	if err := s.Save(ctx, want); err != nil { t.Fatalf("Save: %v", err) }

	// the pending file cannot be staged, so nothing may be renamed into place
	broken := NewFileStore(dir, FileNames{Pending: "sub/progress.txt"}, nil)
	if err := broken.Save(ctx, domain.NewState()); err == nil { t.Fatalf("expected save error") }

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") { t.Fatalf("leftover temp file %s", e.Name()) }
	}
	got, err := s.Load(ctx)
	if err != nil { t.Fatalf("Load: %v", err) }
	assertSameState(t, got, want)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil { t.Fatalf("miniredis: %v", err) }
	t.Cleanup(mr.Close)
	ctx := context.Background()

	s, err := NewRedisStoreFromURL(ctx, "redis://"+mr.Addr()+"/0", "test")
	if err != nil { t.Fatalf("NewRedisStoreFromURL: %v", err) }
	t.Cleanup(func() { _ = s.Close() })

	empty, err := s.Load(ctx)
	if err != nil { t.Fatalf("Load empty: %v", err) }
	if len(empty.Ratings) != 0 { t.Fatalf("expected empty ratings") }

	want := sampleState()
	if err := s.Save(ctx, want); err != nil { t.Fatalf("Save: %v", err) }
	got, err := s.Load(ctx)
	if err != nil { t.Fatalf("Load: %v", err) }
	assertSameState(t, got, want)

	// save replaces, never merges
	next := domain.NewState()
	next.Ratings["zed"] = 1000
	if err := s.Save(ctx, next); err != nil { t.Fatalf("Save next: %v", err) }
	got, err = s.Load(ctx)
	if err != nil { t.Fatalf("Load next: %v", err) }
	assertSameState(t, got, next)
	if mr.Exists("test:pending") { t.Fatalf("expected pending key removed") }
}

func TestRedisStore_CorruptRating(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil { t.Fatalf("miniredis: %v", err) }
	t.Cleanup(mr.Close)
	mr.HSet("elo:ratings", "alice", "many")
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	if _, err := s.Load(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	url := os.Getenv("ELO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ELO_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url)
	if err != nil { t.Fatalf("NewPostgresStore: %v", err) }
	t.Cleanup(func() { _ = s.Close() })

	want := sampleState()
	if err := s.Save(ctx, want); err != nil { t.Fatalf("Save: %v", err) }
	got, err := s.Load(ctx)
	if err != nil { t.Fatalf("Load: %v", err) }
	assertSameState(t, got, want)
}

func TestSQLiteStore_RoundTripAndReplace(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ladder.db")
	s, err := Open(ctx, Options{Backend: "sqlite", SQLitePath: path}, nil)
	if err != nil { t.Fatalf("Open sqlite: %v", err) }
	t.Cleanup(func() { _ = s.Close() })

	empty, err := s.Load(ctx)
	if err != nil { t.Fatalf("Load empty: %v", err) }
	assertSameState(t, empty, domain.NewState())

	want := sampleState()
	if err := s.Save(ctx, want); err != nil { t.Fatalf("Save: %v", err) }
	got, err := s.Load(ctx)
	if err != nil { t.Fatalf("Load: %v", err) }
	assertSameState(t, got, want)

	// a later save replaces, never merges
	next := domain.NewState()
	next.Ratings["dave"] = 1005
	if err := s.Save(ctx, next); err != nil { t.Fatalf("Save next: %v", err) }
	got, err = s.Load(ctx)
	if err != nil { t.Fatalf("Load next: %v", err) }
	assertSameState(t, got, next)
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "etcd"}, nil); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	s, err := Open(context.Background(), Options{Backend: "memory"}, nil)
	if err != nil { t.Fatalf("Open memory: %v", err) }
	if _, ok := s.(*MemoryStore); !ok { t.Fatalf("expected *MemoryStore, got %T", s) }
}
