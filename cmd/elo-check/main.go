package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/park285/cheese-elo-bot/internal/config"
	"github.com/park285/cheese-elo-bot/internal/domain"
	"github.com/park285/cheese-elo-bot/internal/store"
	"go.uber.org/zap"
)

func main() {
	pendingOnly := flag.Bool("pending", false, "only list pending reports")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := store.Open(ctx, cfg.Store.Options(), zap.NewNop())
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	state, err := st.Load(ctx)
	if err != nil {
		log.Fatalf("load state: %v", err)
	}
	if !*pendingOnly {
		printLadder(os.Stdout, state)
		fmt.Println()
	}
	printPending(os.Stdout, state)
}

type standing struct {
	id     string
	rating int
}

// ladder orders by rating descending, ties by id.
func ladder(ratings map[string]int) []standing {
	out := make([]standing, 0, len(ratings))
	for id, r := range ratings {
		out = append(out, standing{id, r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].rating != out[j].rating {
			return out[i].rating > out[j].rating
		}
		return out[i].id < out[j].id
	})
	return out
}

func printLadder(w io.Writer, st *domain.State) {
	fmt.Fprintf(w, "ladder (%d players, %d games done)\n", len(st.Ratings), len(st.Done))
	for i, s := range ladder(st.Ratings) {
		fmt.Fprintf(w, "%3d. %-24s %5d\n", i+1, s.id, s.rating)
	}
}

func printPending(w io.Writer, st *domain.State) {
	ids := make([]string, 0, len(st.Pending))
	for id := range st.Pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintf(w, "pending (%d)\n", len(ids))
	for _, id := range ids {
		rep := st.Pending[id]
		fmt.Fprintf(w, "  %s  %s%s beat %s%s\n", id, rep.Winner(), mark(rep.Slots[0]), rep.Loser(), mark(rep.Slots[1]))
	}
}

func mark(s domain.Slot) string {
	if s.Confirmed {
		return " [ok]"
	}
	return " [?]"
}
