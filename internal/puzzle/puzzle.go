package puzzle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("puzzle not found")

// Accessor is the read-only source of published puzzles. Implementations
// return ErrNotFound (possibly wrapped) on a miss.
type Accessor interface {
	Puzzle(ctx context.Context, id string) (*Puzzle, error)
}

// Clue is one clue of a crostic. Answer is stored uppercase.
type Clue struct {
	ClueID    int    `json:"clue_id"`
	ClueOrder int    `json:"clue_order"`
	ClueText  string `json:"clue_text"`
	Answer    string `json:"answer"`
}

// Mapping ties one letter of a clue's answer to one cell of the quote grid.
// LetterPosition indexes into the answer, GridPosition into the quote's
// non-space characters. Immutable once the puzzle is published.
type Mapping struct {
	ClueID         int `json:"clue_id"`
	LetterPosition int `json:"letter_position"`
	GridPosition   int `json:"grid_position"`
}

// Puzzle is the read model served to clients and consulted by the battle
// validator. Quote stays uppercase with spaces preserved.
type Puzzle struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Quote    string    `json:"quote"`
	Clues    []Clue    `json:"clues"`
	Mappings []Mapping `json:"mappings"`
}

// Clue returns the clue with the given id.
func (p *Puzzle) Clue(clueID int) (Clue, bool) {
	for _, c := range p.Clues {
		if c.ClueID == clueID {
			return c, true
		}
	}
	return Clue{}, false
}

// HasMapping reports whether (clueID, letterPosition) exists in the mapping
// table. Player actions referencing unknown cells are rejected with this.
func (p *Puzzle) HasMapping(k Key) bool {
	for _, m := range p.Mappings {
		if m.ClueID == k.ClueID && m.LetterPosition == k.LetterPosition {
			return true
		}
	}
	return false
}

// Validate checks the published-puzzle invariant: every clue's letter
// positions are exactly 0..len(answer)-1 mapping to distinct grid positions,
// and the grid positions across all clues cover exactly the non-space
// characters of the quote.
func (p *Puzzle) Validate() error {
	byClue := make(map[int]map[int]bool)
	grid := make(map[int]bool)
	for _, m := range p.Mappings {
		if _, ok := p.Clue(m.ClueID); !ok {
			return fmt.Errorf("mapping references unknown clue %d", m.ClueID)
		}
		if byClue[m.ClueID] == nil {
			byClue[m.ClueID] = make(map[int]bool)
		}
		if byClue[m.ClueID][m.LetterPosition] {
			return fmt.Errorf("clue %d maps letter position %d twice", m.ClueID, m.LetterPosition)
		}
		byClue[m.ClueID][m.LetterPosition] = true
		if grid[m.GridPosition] {
			return fmt.Errorf("grid position %d mapped twice", m.GridPosition)
		}
		grid[m.GridPosition] = true
	}

	for _, c := range p.Clues {
		positions := byClue[c.ClueID]
		if len(positions) != len(c.Answer) {
			return fmt.Errorf("clue %d: %d positions mapped, answer has %d letters", c.ClueID, len(positions), len(c.Answer))
		}
		for i := 0; i < len(c.Answer); i++ {
			if !positions[i] {
				return fmt.Errorf("clue %d: letter position %d unmapped", c.ClueID, i)
			}
		}
	}

	cells := len(strings.ReplaceAll(p.Quote, " ", ""))
	if len(grid) != cells {
		return fmt.Errorf("%d grid positions mapped, quote has %d cells", len(grid), cells)
	}
	for i := 0; i < cells; i++ {
		if !grid[i] {
			return fmt.Errorf("grid position %d unmapped", i)
		}
	}
	return nil
}

// Key identifies one letter cell of one clue. It is the only answer-key
// representation inside the server; the delimited string forms exist at the
// wire edge only.
type Key struct {
	ClueID         int
	LetterPosition int
}

// String renders the canonical wire form, "clueId_letterPosition".
func (k Key) String() string {
	return strconv.Itoa(k.ClueID) + "_" + strconv.Itoa(k.LetterPosition)
}

// ParseKey reads a wire answer key. Historically both "12_3" and "12-3" occur
// across producers, so both separators are accepted.
func ParseKey(s string) (Key, error) {
	sep := strings.IndexAny(s, "_-")
	if sep < 0 {
		return Key{}, fmt.Errorf("answer key %q: no separator", s)
	}
	clueID, err := strconv.Atoi(s[:sep])
	if err != nil {
		return Key{}, fmt.Errorf("answer key %q: bad clue id", s)
	}
	pos, err := strconv.Atoi(s[sep+1:])
	if err != nil {
		return Key{}, fmt.Errorf("answer key %q: bad letter position", s)
	}
	return Key{ClueID: clueID, LetterPosition: pos}, nil
}
