package ladder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/park285/cheese-elo-bot/internal/command"
	"github.com/park285/cheese-elo-bot/internal/domain"
	"github.com/park285/cheese-elo-bot/internal/elo"
	"github.com/park285/cheese-elo-bot/internal/msgcat"
	"github.com/park285/cheese-elo-bot/internal/platform"
	"github.com/park285/cheese-elo-bot/internal/store"
)

type sent struct{ target, text string }

type fakeOutbound struct {
	mu       sync.Mutex
	replies  []sent
	labels   map[string]string
	labelErr error
	replyErr error
}

func (f *fakeOutbound) Reply(_ context.Context, targetID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, sent{targetID, text})
	return nil
}

func (f *fakeOutbound) SetLabel(_ context.Context, user, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.labelErr != nil {
		return f.labelErr
	}
	if f.labels == nil {
		f.labels = map[string]string{}
	}
	f.labels[user] = text
	return nil
}

func newTracker(t *testing.T, st *domain.State) (*Tracker, *fakeOutbound, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	tr, out := newTrackerOn(t, st, ms)
	return tr, out, ms
}

func newTrackerOn(t *testing.T, st *domain.State, s store.Store) (*Tracker, *fakeOutbound) {
	t.Helper()
	p, err := command.NewParser(command.Grammar{Call: "!elo", Actions: []string{"game", "confirm"}, MentionPrefix: "/u/"})
	if err != nil {
		t.Fatalf("parser: %v", err)
	}
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	out := &fakeOutbound{}
	tr, err := New(st, s, out, Options{Parser: p, Catalog: cat, Engine: elo.Default(), Initial: elo.DefaultInitial, Mention: "/u/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr, out
}

func process(t *testing.T, tr *Tracker, msg platform.Message, want Outcome) {
	t.Helper()
	got, err := tr.Process(context.Background(), msg)
	if err != nil {
		t.Fatalf("Process(%s): %v", msg.ID, err)
	}
	if got != want {
		t.Fatalf("Process(%s)=%v want %v", msg.ID, got, want)
	}
}

func TestReportConfirmCommit(t *testing.T) {
	tr, out, ms := newTracker(t, nil)

	process(t, tr, platform.Message{ID: "r1", Author: "carol", Body: "gg! !elo game /u/Alice bob"}, OutcomePending)
	if len(out.replies) != 2 {
		t.Fatalf("want 2 confirmation requests, got %d", len(out.replies))
	}
	for _, r := range out.replies {
		if r.target != "r1" {
			t.Fatalf("request posted on %q", r.target)
		}
		if !strings.Contains(r.text, `"!elo confirm"`) || !strings.Contains(r.text, "I'm ^a ^bot") {
			t.Fatalf("unexpected request text: %q", r.text)
		}
	}
	if !strings.HasPrefix(out.replies[0].text, "/u/Alice, please confirm") || !strings.HasPrefix(out.replies[1].text, "/u/bob, please confirm") {
		t.Fatalf("requests not addressed by display name: %q / %q", out.replies[0].text, out.replies[1].text)
	}

	process(t, tr, platform.Message{ID: "c1", Author: "ALICE", ParentID: "r1", Body: "!elo confirm"}, OutcomeConfirmed)
	if len(out.replies) != 2 {
		t.Fatalf("partial confirmation must not reply")
	}
	process(t, tr, platform.Message{ID: "c2", Author: "Bob", ParentID: "r1", Body: "!ELO CONFIRM"}, OutcomeCommitted)

	r := tr.Ratings()
	if r["alice"] != 1010 || r["bob"] != 990 {
		t.Fatalf("ratings=%v", r)
	}
	if len(out.replies) != 3 || out.replies[2].target != "r1" {
		t.Fatalf("want one confirmation notice on r1, got %+v", out.replies)
	}
	if !strings.Contains(out.replies[2].text, "/u/alice: 1010") || !strings.Contains(out.replies[2].text, "/u/bob: 990") {
		t.Fatalf("notice text: %q", out.replies[2].text)
	}
	if out.labels["alice"] != "rating: 1010" || out.labels["bob"] != "rating: 990" {
		t.Fatalf("labels=%v", out.labels)
	}
	if !tr.Done("r1") || len(tr.Pending()) != 0 {
		t.Fatalf("r1 should move to done")
	}
	if ms.Saves() != 1 {
		t.Fatalf("want one save on commit, got %d", ms.Saves())
	}

	// late confirmation on a finished report
	process(t, tr, platform.Message{ID: "c3", Author: "bob", ParentID: "r1", Body: "!elo confirm"}, OutcomeIgnored)
}

func TestReporterIsParticipant(t *testing.T) {
	tr, out, _ := newTracker(t, nil)
	process(t, tr, platform.Message{ID: "r1", Author: "Alice", Body: "!elo game alice bob"}, OutcomePending)
	if len(out.replies) != 1 || !strings.HasPrefix(out.replies[0].text, "/u/bob,") {
		t.Fatalf("only bob should be asked: %+v", out.replies)
	}
	p := tr.Pending()
	if len(p) != 1 || !p[0].Slots[0].Confirmed || p[0].Slots[1].Confirmed {
		t.Fatalf("pending=%+v", p)
	}
	process(t, tr, platform.Message{ID: "c1", Author: "bob", ParentID: "r1", Body: "!elo confirm"}, OutcomeCommitted)
}

func TestSameUserRejected(t *testing.T) {
	tr, out, ms := newTracker(t, nil)
	process(t, tr, platform.Message{ID: "r1", Author: "carol", Body: "!elo game Bob /u/BOB"}, OutcomeRejected)
	if len(out.replies) != 1 || !strings.HasPrefix(out.replies[0].text, "You can't play with yourself.") {
		t.Fatalf("replies=%+v", out.replies)
	}
	if !tr.Done("r1") || len(tr.Ratings()) != 0 || len(tr.Pending()) != 0 {
		t.Fatalf("same-user report must only mark done")
	}
	if ms.Saves() != 0 {
		t.Fatalf("rejection waits for the next flush")
	}
	process(t, tr, platform.Message{ID: "r1", Author: "carol", Body: "!elo game Bob /u/BOB"}, OutcomeDuplicate)
	if len(out.replies) != 1 {
		t.Fatalf("duplicate must not reply again")
	}
}

func TestDuplicateReport(t *testing.T) {
	tr, out, _ := newTracker(t, nil)
	msg := platform.Message{ID: "r1", Author: "carol", Body: "!elo game alice bob"}
	process(t, tr, msg, OutcomePending)
	process(t, tr, msg, OutcomeDuplicate)
	if len(out.replies) != 2 {
		t.Fatalf("replies=%d", len(out.replies))
	}
}

func TestRepeatedConfirmationIsIdempotent(t *testing.T) {
	tr, out, _ := newTracker(t, nil)
	process(t, tr, platform.Message{ID: "r1", Author: "carol", Body: "!elo game alice bob"}, OutcomePending)
	process(t, tr, platform.Message{ID: "c1", Author: "alice", ParentID: "r1", Body: "!elo confirm"}, OutcomeConfirmed)
	process(t, tr, platform.Message{ID: "c2", Author: "alice", ParentID: "r1", Body: "!elo confirm"}, OutcomeDuplicate)
	if len(out.replies) != 2 || len(tr.Ratings()) != 0 {
		t.Fatalf("repeat confirm changed something")
	}
}

func TestConfirmationIgnored(t *testing.T) {
	tr, out, _ := newTracker(t, nil)
	process(t, tr, platform.Message{ID: "r1", Author: "carol", Body: "!elo game alice bob"}, OutcomePending)
	process(t, tr, platform.Message{ID: "c1", Author: "mallory", ParentID: "r1", Body: "!elo confirm"}, OutcomeIgnored)
	process(t, tr, platform.Message{ID: "c2", Author: "alice", ParentID: "nope", Body: "!elo confirm"}, OutcomeIgnored)
	process(t, tr, platform.Message{ID: "c3", Author: "alice", Body: "!elo confirm"}, OutcomeIgnored)
	process(t, tr, platform.Message{ID: "m1", Author: "alice", Body: "nice game"}, OutcomeIgnored)
	process(t, tr, platform.Message{ID: "m2", Author: "alice", Body: "!elo game alice"}, OutcomeIgnored)
	if len(out.replies) != 2 {
		t.Fatalf("ignored messages must not reply: %+v", out.replies)
	}
	p := tr.Pending()
	if len(p) != 1 || p[0].Slots[0].Confirmed || p[0].Slots[1].Confirmed {
		t.Fatalf("pending mutated: %+v", p)
	}
}

func TestCommitUsesExistingRatings(t *testing.T) {
	st := domain.NewState()
	st.Ratings["alice"] = 1000
	st.Ratings["bob"] = 1400
	tr, _, _ := newTracker(t, st)
	process(t, tr, platform.Message{ID: "r1", Author: "alice", Body: "!elo game alice bob"}, OutcomePending)
	process(t, tr, platform.Message{ID: "c1", Author: "bob", ParentID: "r1", Body: "!elo confirm"}, OutcomeCommitted)
	r := tr.Ratings()
	if r["alice"] != 1018 || r["bob"] != 1381 {
		t.Fatalf("ratings=%v", r)
	}
}

func TestLabelFailureIsSwallowed(t *testing.T) {
	tr, out, ms := newTracker(t, nil)
	out.labelErr = platform.ErrNotPermitted
	process(t, tr, platform.Message{ID: "r1", Author: "alice", Body: "!elo game alice bob"}, OutcomePending)
	process(t, tr, platform.Message{ID: "c1", Author: "bob", ParentID: "r1", Body: "!elo confirm"}, OutcomeCommitted)
	if tr.Ratings()["alice"] != 1010 || ms.Saves() != 1 {
		t.Fatalf("commit must survive label failure")
	}
	if len(out.replies) != 2 {
		t.Fatalf("confirmation notice still expected: %+v", out.replies)
	}
}

func TestReplyFailureIsSwallowed(t *testing.T) {
	tr, out, _ := newTracker(t, nil)
	out.replyErr = errors.New("503")
	process(t, tr, platform.Message{ID: "r1", Author: "carol", Body: "!elo game alice bob"}, OutcomePending)
	if len(tr.Pending()) != 1 {
		t.Fatalf("report must be registered even when replies fail")
	}
}

func TestPersistFailureIsReturned(t *testing.T) {
	tr, out, ms := newTracker(t, nil)
	ms.FailWith(errors.New("disk full"))
	process(t, tr, platform.Message{ID: "r1", Author: "alice", Body: "!elo game alice bob"}, OutcomePending)

	got, err := tr.Process(context.Background(), platform.Message{ID: "c1", Author: "bob", ParentID: "r1", Body: "!elo confirm"})
	if got != OutcomeCommitted || !errors.Is(err, ErrPersist) {
		t.Fatalf("got %v, %v", got, err)
	}
	if len(out.replies) != 1 || len(out.labels) != 0 {
		t.Fatalf("nothing may be announced before the result is durable")
	}
	if err := tr.Flush(context.Background()); !errors.Is(err, ErrPersist) {
		t.Fatalf("Flush: %v", err)
	}
}

func TestFlushPersistsState(t *testing.T) {
	tr, _, ms := newTracker(t, nil)
	process(t, tr, platform.Message{ID: "r1", Author: "carol", Body: "!elo game alice bob"}, OutcomePending)
	if err := tr.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	st, _ := ms.Load(context.Background())
	if _, ok := st.Pending["r1"]; !ok {
		t.Fatalf("pending report not persisted")
	}
}

func TestQuotedConfirmationCommits(t *testing.T) {
	tr, _, _ := newTracker(t, nil)
	process(t, tr, platform.Message{ID: "r1", Author: "carol", Body: `"!elo game alice /u/bob"`}, OutcomePending)
	process(t, tr, platform.Message{ID: "c1", Author: "alice", ParentID: "r1", Body: `"!elo confirm"`}, OutcomeConfirmed)
	process(t, tr, platform.Message{ID: "c2", Author: "bob", ParentID: "r1", Body: "ok (!elo confirm), gg."}, OutcomeCommitted)

	r := tr.Ratings()
	if r["alice"] != 1010 || r["bob"] != 990 {
		t.Fatalf("ratings=%v", r)
	}
}

func TestPartialConfirmationSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fs := store.NewFileStore(dir, store.DefaultFileNames, nil)
	tr, _ := newTrackerOn(t, nil, fs)
	process(t, tr, platform.Message{ID: "r1", Author: "carol", Body: "!elo game alice bob"}, OutcomePending)
	process(t, tr, platform.Message{ID: "c1", Author: "alice", ParentID: "r1", Body: "!elo confirm"}, OutcomeConfirmed)
	if err := tr.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	fs = store.NewFileStore(dir, store.DefaultFileNames, nil)
	st, err := fs.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rep := st.Pending["r1"]; rep == nil || !rep.Slots[0].Confirmed || rep.Slots[1].Confirmed {
		t.Fatalf("reloaded pending=%+v", st.Pending["r1"])
	}

	tr, _ = newTrackerOn(t, st, fs)
	process(t, tr, platform.Message{ID: "c1", Author: "alice", ParentID: "r1", Body: "!elo confirm"}, OutcomeDuplicate)
	process(t, tr, platform.Message{ID: "c2", Author: "bob", ParentID: "r1", Body: "!elo confirm"}, OutcomeCommitted)

	r := tr.Ratings()
	if r["alice"] != 1010 || r["bob"] != 990 {
		t.Fatalf("ratings=%v", r)
	}
	if !tr.Done("r1") || len(tr.Pending()) != 0 {
		t.Fatalf("r1 should move to done after restart")
	}

	st, err = store.NewFileStore(dir, store.DefaultFileNames, nil).Load(ctx)
	if err != nil {
		t.Fatalf("Load after commit: %v", err)
	}
	if _, ok := st.Done["r1"]; !ok || st.Ratings["alice"] != 1010 {
		t.Fatalf("commit not durable: %+v", st)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(nil, nil, &fakeOutbound{}, Options{}); err == nil {
		t.Fatalf("missing store accepted")
	}
	if _, err := New(nil, store.NewMemoryStore(), &fakeOutbound{}, Options{}); err == nil {
		t.Fatalf("missing parser accepted")
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeCommitted.String() != "committed" || Outcome(99).String() != "ignored" {
		t.Fatalf("Outcome strings")
	}
}
