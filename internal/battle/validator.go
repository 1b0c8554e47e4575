package battle

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/crosticlab/crostic-battle-backend/internal/puzzle"
)

var (
	ErrUnknownMapping = errors.New("unknown clue/letter position")
	ErrInvalidLetter  = errors.New("letter must be a single character")
)

// ValidLetter reports whether letter is acceptable cell content: empty,
// which clears the cell, or exactly one letter.
func ValidLetter(letter string) bool {
	if letter == "" {
		return true
	}
	r, size := utf8.DecodeRuneInString(letter)
	return size == len(letter) && unicode.IsLetter(r)
}

// Status is the derived correctness of one clue for one player.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusCorrect    Status = "correct"
	StatusIncorrect  Status = "incorrect"
)

// AnswerState holds one player's in-progress letters, keyed by clue cell.
// Letters are stored uppercase; a cell is either one letter or absent.
type AnswerState map[puzzle.Key]string

// Set writes a letter at k, last write wins. An empty letter clears the cell.
func (a AnswerState) Set(k puzzle.Key, letter string) {
	if letter == "" {
		delete(a, k)
		return
	}
	a[k] = strings.ToUpper(letter)
}

// Wire renders the state in the canonical wire form.
func (a AnswerState) Wire() map[string]string {
	out := make(map[string]string, len(a))
	for k, letter := range a {
		out[k.String()] = letter
	}
	return out
}

// Validate classifies every clue against the state. Pure: it never mutates
// its inputs and the same inputs always yield the same map.
func Validate(a AnswerState, clues []puzzle.Clue) map[int]Status {
	statuses := make(map[int]Status, len(clues))
	for _, c := range clues {
		statuses[c.ClueID] = clueStatus(a, c)
	}
	return statuses
}

func clueStatus(a AnswerState, c puzzle.Clue) Status {
	var b strings.Builder
	for i := 0; i < len(c.Answer); i++ {
		letter, ok := a[puzzle.Key{ClueID: c.ClueID, LetterPosition: i}]
		if !ok {
			return StatusIncomplete
		}
		b.WriteString(letter)
	}
	if strings.EqualFold(b.String(), c.Answer) {
		return StatusCorrect
	}
	return StatusIncorrect
}

// Completion returns the fraction of clues that are correct.
func Completion(statuses map[int]Status) float64 {
	if len(statuses) == 0 {
		return 0
	}
	correct := 0
	for _, s := range statuses {
		if s == StatusCorrect {
			correct++
		}
	}
	return float64(correct) / float64(len(statuses))
}

// Solved reports whether every clue is correct. This is the win predicate.
func Solved(statuses map[int]Status) bool {
	return len(statuses) > 0 && Completion(statuses) == 1.0
}
