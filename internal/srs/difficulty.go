package srs

import (
	"encoding"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDifficulty is returned for any value outside Again..Easy.
var ErrInvalidDifficulty = errors.New("srs: invalid difficulty")

// Difficulty is the user's self-reported recall of a card, worst to best.
type Difficulty int

const (
	Again Difficulty = iota + 1 // failed to recall
	Hard
	Good
	Easy
)

var difficultyNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

var (
	_ fmt.Stringer             = Difficulty(0)
	_ encoding.TextMarshaler   = Difficulty(0)
	_ encoding.TextUnmarshaler = (*Difficulty)(nil)
)

// Difficulties lists every valid difficulty in order.
func Difficulties() []Difficulty {
	return []Difficulty{Again, Hard, Good, Easy}
}

// IsValid reports whether d is one of the four difficulties.
func (d Difficulty) IsValid() bool {
	return d >= Again && d <= Easy
}

func (d Difficulty) String() string {
	if d.IsValid() {
		return difficultyNames[d]
	}
	return fmt.Sprintf("Difficulty(%d)", int(d))
}

// Correct reports whether the card was recalled at all.
func (d Difficulty) Correct() bool {
	return d.IsValid() && d != Again
}

// ParseDifficulty accepts the lower-case names, case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "again":
		return Again, nil
	case "hard":
		return Hard, nil
	case "good":
		return Good, nil
	case "easy":
		return Easy, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDifficulty, s)
}

// MarshalText implements encoding.TextMarshaler.
func (d Difficulty) MarshalText() ([]byte, error) {
	if !d.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDifficulty, int(d))
	}
	return []byte(difficultyNames[d]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Difficulty) UnmarshalText(text []byte) error {
	v, err := ParseDifficulty(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
