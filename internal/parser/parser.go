package parser

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/neurospark/internal/domain"
)

const separator = "---"

type field int

const (
	none field = iota
	question
	answer
	context
	tags
)

var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", question},
	{"A:", answer},
	{"C:", context},
	{"T:", tags},
}

// ParseFile reads a markdown file and extracts its cards. The deck is the
// file name without its extension.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file, DeckName(path))
}

// DeckName derives a deck name from a card file path.
func DeckName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parse extracts all cards from r and assigns them to deck.
func Parse(r io.Reader, deck string) ([]domain.Card, error) {
	p := &cardBuilder{deck: deck}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if line == separator {
			p.finishCard()
			continue
		}

		if f, rest, ok := cutPrefix(line); ok {
			p.flush()
			if f == question && p.current != none {
				// A new question always starts a new card.
				p.finishCard()
			}
			p.current = f
			p.block = append(p.block, rest)
			continue
		}

		if p.current != none {
			p.block = append(p.block, line)
		}
	}
	p.finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.cards, nil
}

func cutPrefix(line string) (field, string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.field, strings.TrimPrefix(rest, " "), true
		}
	}
	return none, "", false
}

type cardBuilder struct {
	deck    string
	cards   []domain.Card
	card    domain.Card
	block   []string
	current field
}

// flush stores the accumulated block into the field being read.
func (b *cardBuilder) flush() {
	if len(b.block) == 0 {
		return
	}
	content := strings.Join(b.block, "\n")
	switch b.current {
	case question:
		b.card.Question = content
	case answer:
		b.card.Answer = content
	case context:
		b.card.Context = content
	case tags:
		b.card.Tags = parseTags(content)
	}
	b.block = nil
}

func (b *cardBuilder) finishCard() {
	b.flush()
	if b.card.Question != "" {
		b.card.Question = strings.TrimRight(b.card.Question, "\n ")
		b.card.Answer = strings.TrimRight(b.card.Answer, "\n ")
		b.card.Context = strings.TrimRight(b.card.Context, "\n ")
		b.card.Deck = b.deck
		b.cards = append(b.cards, b.card)
	}
	b.card = domain.Card{}
	b.current = none
}

func parseTags(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' }) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
