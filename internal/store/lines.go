package store

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/park285/cheese-elo-bot/internal/domain"
)

// Line formats shared by the file and redis backends:
//
//	ratings: identifier \t rating
//	pending: report_id \t winner \t winner_confirmed \t loser \t loser_confirmed
//	done:    report_id

// WriteRatings writes one record per line, sorted by identifier.
func WriteRatings(w io.Writer, ratings map[string]int) error {
	bw := bufio.NewWriter(w)
	for _, id := range sortedKeys(ratings) {
		if _, err := fmt.Fprintf(bw, "%s\t%d\n", id, ratings[id]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadRatings parses the rating store, skipping blank lines.
func ReadRatings(r io.Reader) (map[string]int, error) {
	out := make(map[string]int)
	err := eachLine(r, func(n int, line string) error {
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			return fmt.Errorf("%w: ratings line %d: want 2 fields", ErrCorrupt, n)
		}
		v, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return fmt.Errorf("%w: ratings line %d: %v", ErrCorrupt, n, err)
		}
		out[strings.TrimSpace(parts[0])] = v
		return nil
	})
	return out, err
}

// WritePending writes one record per line, sorted by report id.
func WritePending(w io.Writer, pending map[string]*domain.Report) error {
	bw := bufio.NewWriter(w)
	for _, id := range sortedKeys(pending) {
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", id, PendingFields(pending[id])); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadPending parses the pending store, skipping blank lines.
func ReadPending(r io.Reader) (map[string]*domain.Report, error) {
	out := make(map[string]*domain.Report)
	err := eachLine(r, func(n int, line string) error {
		id, rest, ok := strings.Cut(line, "\t")
		if !ok {
			return fmt.Errorf("%w: pending line %d: want 5 fields", ErrCorrupt, n)
		}
		rep, err := ParsePendingFields(strings.TrimSpace(id), rest)
		if err != nil {
			return fmt.Errorf("pending line %d: %w", n, err)
		}
		out[rep.ID] = rep
		return nil
	})
	return out, err
}

// PendingFields encodes a report's slots without its id.
func PendingFields(rep *domain.Report) string {
	return fmt.Sprintf("%s\t%t\t%s\t%t",
		rep.Slots[0].ID, rep.Slots[0].Confirmed,
		rep.Slots[1].ID, rep.Slots[1].Confirmed)
}

// ParsePendingFields decodes the output of PendingFields.
func ParsePendingFields(id, fields string) (*domain.Report, error) {
	parts := strings.Split(strings.TrimSpace(fields), "\t")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: pending %s: want 4 slot fields, got %d", ErrCorrupt, id, len(parts))
	}
	return &domain.Report{
		ID: id,
		Slots: [2]domain.Slot{
			{ID: strings.TrimSpace(parts[0]), Confirmed: parseBool(parts[1])},
			{ID: strings.TrimSpace(parts[2]), Confirmed: parseBool(parts[3])},
		},
	}, nil
}

// WriteDone writes one report id per line, skipping empty ids.
func WriteDone(w io.Writer, done map[string]struct{}) error {
	bw := bufio.NewWriter(w)
	for _, id := range sortedKeys(done) {
		if id == "" {
			continue
		}
		if _, err := bw.WriteString(id + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadDone parses the done store, skipping blank lines.
func ReadDone(r io.Reader) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := eachLine(r, func(_ int, line string) error {
		out[strings.TrimSpace(line)] = struct{}{}
		return nil
	})
	return out, err
}

func eachLine(r io.Reader, fn func(n int, line string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func parseBool(s string) bool { return strings.EqualFold(strings.TrimSpace(s), "true") }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
