// Package command recognises the ladder protocol embedded in free text.
//
// A command is the first "<call> <action>" pair found in a message,
// followed by as many participant tokens as the action requires. The action
// set is ordered: the first action reports a game, the second confirms one.
package command

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/park285/cheese-elo-bot/internal/domain"
)

// Kind classifies a parsed message.
type Kind int

const (
	KindNone Kind = iota
	KindReport
	KindConfirm
)

func (k Kind) String() string {
	switch k {
	case KindReport:
		return "report"
	case KindConfirm:
		return "confirm"
	default:
		return "none"
	}
}

// Participant is a player named in a report.
type Participant struct {
	// Display is the token as typed, mention prefix removed.
	Display string
	// ID is the canonical (lower-case) identifier.
	ID string
}

// Command is the result of parsing one message.
type Command struct {
	Kind   Kind
	Action string
	Winner Participant
	Loser  Participant
}

// Grammar configures the trigger token, the ordered action keywords and the
// optional user-mention prefix stripped from participant tokens.
type Grammar struct {
	Call          string
	Actions       []string
	MentionPrefix string
}

var (
	ErrEmptyCall       = errors.New("command: call token is empty")
	ErrActionCount     = errors.New("command: exactly two actions required (report, confirm)")
	ErrEmptyAction     = errors.New("command: action keyword is empty")
	ErrDuplicateAction = errors.New("command: action keywords must differ")
)

type rule struct {
	kind  Kind
	arity int
}

// Parser matches messages against a fixed grammar table.
type Parser struct {
	call    string
	mention string
	actions map[string]string // lower-case keyword -> keyword as configured
	ordered [2]string
	table   map[string]rule
}

// NewParser validates the grammar and builds its table.
func NewParser(g Grammar) (*Parser, error) {
	call := strings.ToLower(strings.TrimSpace(g.Call))
	if call == "" || strings.ContainsAny(call, " \t\r\n") {
		return nil, ErrEmptyCall
	}
	if len(g.Actions) != 2 {
		return nil, ErrActionCount
	}
	p := &Parser{
		call:    call,
		mention: strings.ToLower(strings.TrimSpace(g.MentionPrefix)),
		actions: make(map[string]string, 2),
		table:   make(map[string]rule, 2),
	}
	rules := [2]rule{{kind: KindReport, arity: 2}, {kind: KindConfirm, arity: 0}}
	for i, a := range g.Actions {
		kw := strings.ToLower(strings.TrimSpace(a))
		if kw == "" {
			return nil, ErrEmptyAction
		}
		if _, dup := p.table[kw]; dup {
			return nil, ErrDuplicateAction
		}
		p.table[kw] = rules[i]
		p.actions[kw] = strings.TrimSpace(a)
		p.ordered[i] = strings.TrimSpace(a)
	}
	return p, nil
}

// Parse returns the first command found in text. Reports missing a
// participant come back as KindNone so no partial report is ever created.
//
// The call may close a longer token ("(!elo", "x!elo") and the action token
// only has to start with a keyword followed by a non-word character, so
// quoted and punctuated forms such as `"!elo confirm."` still match.
func (p *Parser) Parse(text string) Command {
	tokens := strings.Fields(text)
	for i := 0; i+1 < len(tokens); i++ {
		if !strings.HasSuffix(strings.ToLower(tokens[i]), p.call) {
			continue
		}
		kw, ok := p.keyword(tokens[i+1])
		if !ok {
			continue
		}
		// first <call> <action> pair wins, even when it turns out malformed
		return p.build(p.table[kw], kw, tokens[i+2:])
	}
	return Command{Kind: KindNone}
}

// keyword reports which action tok opens, if any. The longer keyword wins
// when both match.
func (p *Parser) keyword(tok string) (string, bool) {
	low := strings.ToLower(strings.TrimLeft(tok, quotes))
	best := ""
	for _, kw := range p.ordered {
		kw = strings.ToLower(kw)
		if !strings.HasPrefix(low, kw) || len(kw) <= len(best) {
			continue
		}
		rest := low[len(kw):]
		if r, _ := utf8.DecodeRuneInString(rest); rest == "" || !isWord(r) {
			best = kw
		}
	}
	return best, best != ""
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// quotes wrap a command when it is copied from the bot's own prompt.
const quotes = "\"'`()[]{}<>\u201c\u201d\u2018\u2019"

func (p *Parser) build(r rule, kw string, rest []string) Command {
	cmd := Command{Kind: r.kind, Action: p.actions[kw]}
	if r.arity == 0 {
		return cmd
	}
	if len(rest) < r.arity {
		return Command{Kind: KindNone}
	}
	w, l := p.participant(rest[0]), p.participant(rest[1])
	if w.ID == "" || l.ID == "" {
		return Command{Kind: KindNone}
	}
	cmd.Winner, cmd.Loser = w, l
	return cmd
}

// participant drops wrapping quotes and the mention prefix. Other
// punctuation is kept, so "bob." names a different player than "bob".
func (p *Parser) participant(tok string) Participant {
	tok = strings.Trim(tok, quotes)
	if p.mention != "" && len(tok) >= len(p.mention) && strings.EqualFold(tok[:len(p.mention)], p.mention) {
		tok = tok[len(p.mention):]
	}
	return Participant{Display: tok, ID: domain.Canonical(tok)}
}

// Call returns the normalised trigger token.
func (p *Parser) Call() string { return p.call }

// Actions returns the report and confirm keywords as configured.
func (p *Parser) Actions() (report, confirm string) { return p.ordered[0], p.ordered[1] }
