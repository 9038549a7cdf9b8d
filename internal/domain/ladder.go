package domain

import "strings"

// Slot is one participant record of a pending report.
type Slot struct {
	ID        string
	Confirmed bool
}

// Report is a game result awaiting confirmation from both participants.
// Slots[0] is the declared winner, Slots[1] the declared loser.
type Report struct {
	ID    string
	Slots [2]Slot
}

// Winner returns the declared winner's identifier.
func (r *Report) Winner() string { return r.Slots[0].ID }

// Loser returns the declared loser's identifier.
func (r *Report) Loser() string { return r.Slots[1].ID }

// Complete reports whether both slots are confirmed.
func (r *Report) Complete() bool { return r.Slots[0].Confirmed && r.Slots[1].Confirmed }

// Confirm marks every slot held by user as confirmed and returns how many matched.
func (r *Report) Confirm(user string) int {
	user = Canonical(user)
	n := 0
	for i := range r.Slots {
		if r.Slots[i].ID == user {
			r.Slots[i].Confirmed = true
			n++
		}
	}
	return n
}

// NewReport builds a pending report, pre-confirming slots held by the reporting author.
func NewReport(id, winner, loser, author string) *Report {
	w, l, a := Canonical(winner), Canonical(loser), Canonical(author)
	return &Report{
		ID: id,
		Slots: [2]Slot{
			{ID: w, Confirmed: w == a},
			{ID: l, Confirmed: l == a},
		},
	}
}

// Canonical is the identity form of a participant identifier.
func Canonical(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// State is the full ladder: ratings, pending reports and processed report ids.
// The three tables are always persisted together.
type State struct {
	Ratings map[string]int
	Pending map[string]*Report
	Done    map[string]struct{}
}

func NewState() *State {
	return &State{
		Ratings: make(map[string]int),
		Pending: make(map[string]*Report),
		Done:    make(map[string]struct{}),
	}
}

// Known reports whether id is pending or already processed.
func (s *State) Known(id string) bool {
	if _, ok := s.Pending[id]; ok {
		return true
	}
	_, ok := s.Done[id]
	return ok
}

// MarkDone moves id out of pending into the done set.
func (s *State) MarkDone(id string) {
	delete(s.Pending, id)
	s.Done[id] = struct{}{}
}

// Rating returns the rating for id, seeding it with initial on first appearance.
func (s *State) Rating(id string, initial int) int {
	if r, ok := s.Ratings[id]; ok {
		return r
	}
	s.Ratings[id] = initial
	return initial
}

// Clone returns a deep copy, safe to hand to a store while the original keeps mutating.
func (s *State) Clone() *State {
	out := &State{
		Ratings: make(map[string]int, len(s.Ratings)),
		Pending: make(map[string]*Report, len(s.Pending)),
		Done:    make(map[string]struct{}, len(s.Done)),
	}
	for k, v := range s.Ratings {
		out.Ratings[k] = v
	}
	for k, v := range s.Pending {
		cp := *v
		out.Pending[k] = &cp
	}
	for k := range s.Done {
		out.Done[k] = struct{}{}
	}
	return out
}
