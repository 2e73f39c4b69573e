package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/neurospark/internal/domain"
)

// Normalize renders the parts of a card that define its identity: question,
// answer and context, each lower-cased with whitespace runs collapsed, one per
// line. Deck and tags are metadata and do not change a card's hash.
func Normalize(card domain.Card) string {
	return strings.Join([]string{
		normalizeField(card.Question),
		normalizeField(card.Answer),
		normalizeField(card.Context),
	}, "\n")
}

func normalizeField(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "\r\n", "\n")
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}

// Hash returns the hex SHA-256 of the normalized card. It is the card's id.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}
