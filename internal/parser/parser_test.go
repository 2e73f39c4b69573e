package parser

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedCards int
		expectedQ     string
		expectedA     string
		expectedC     string
		expectedTags  []string
	}{
		{
			name:          "Simple Q&A",
			input:         "Q: What is the capital of France?\nA: Paris",
			expectedCards: 1,
			expectedQ:     "What is the capital of France?",
			expectedA:     "Paris",
		},
		{
			name:          "Simple Q, A, and C",
			input:         "Q: What is 1+1?\nA: 2\nC: Basic arithmetic",
			expectedCards: 1,
			expectedQ:     "What is 1+1?",
			expectedA:     "2",
			expectedC:     "Basic arithmetic",
		},
		{
			name: "Multiline Answer",
			input: `
Q: What are the primary colors?
A: Red
Blue
Yellow
`,
			expectedCards: 1,
			expectedQ:     "What are the primary colors?",
			expectedA:     "Red\nBlue\nYellow",
		},
		{
			name: "Two Cards",
			input: `
Q: First question
A: First answer

Q: Second question
A: Second answer
`,
			expectedCards: 2,
		},
		{
			name: "Tags are split and de-duplicated",
			input: `Q: What is Go?
A: A language.
T: Programming, go,  GO`,
			expectedCards: 1,
			expectedQ:     "What is Go?",
			expectedA:     "A language.",
			expectedTags:  []string{"programming", "go"},
		},
		{
			name:          "Separator ends a card",
			input:         "Q: One\nA: 1\n---\nstray text\nQ: Two\nA: 2",
			expectedCards: 2,
		},
		{
			name:          "No cards, just text",
			input:         "This is a file with no questions.",
			expectedCards: 0,
		},
		{
			name:          "Answer without question is dropped",
			input:         "A: orphan answer",
			expectedCards: 0,
		},
		{
			name:          "Prefixes with no space",
			input:         "Q:Question\nA:Answer",
			expectedCards: 1,
			expectedQ:     "Question",
			expectedA:     "Answer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input), "deck")
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != tc.expectedCards {
				t.Fatalf("Expected %d cards, but got %d", tc.expectedCards, len(cards))
			}

			for _, card := range cards {
				if card.Deck != "deck" {
					t.Errorf("Expected deck 'deck', got '%s'", card.Deck)
				}
			}

			if tc.expectedCards == 1 {
				card := cards[0]
				if card.Question != tc.expectedQ {
					t.Errorf("Expected Question to be '%s', but got '%s'", tc.expectedQ, card.Question)
				}
				if card.Answer != tc.expectedA {
					t.Errorf("Expected Answer to be '%s', but got '%s'", tc.expectedA, card.Answer)
				}
				if card.Context != tc.expectedC {
					t.Errorf("Expected Context to be '%s', but got '%s'", tc.expectedC, card.Context)
				}
				if !reflect.DeepEqual(card.Tags, tc.expectedTags) {
					t.Errorf("Expected Tags %v, but got %v", tc.expectedTags, card.Tags)
				}
			}
		})
	}
}

func TestParseTwoCardsTrimsTrailingBlankLines(t *testing.T) {
	cards, err := Parse(strings.NewReader("Q: First\nA: One\n\n\nQ: Second\nA: Two"), "")
	if err != nil {
		t.Fatalf("Parse() returned an unexpected error: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("Expected 2 cards, got %d", len(cards))
	}
	if cards[0].Answer != "One" {
		t.Errorf("Expected trailing blank lines trimmed, got %q", cards[0].Answer)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capitals.md")
	if err := os.WriteFile(path, []byte("Q: Capital of Peru?\nA: Lima\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cards, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() returned an unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].Deck != "capitals" {
		t.Fatalf("Expected one card in deck 'capitals', got %+v", cards)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.md")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}
