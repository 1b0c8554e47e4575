package puzzle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPuzzle() *Puzzle {
	return &Puzzle{
		ID:    "pz1",
		Title: "Animals",
		Quote: "CAT DOG",
		Clues: []Clue{
			{ClueID: 1, ClueOrder: 1, ClueText: "Feline", Answer: "CAT"},
			{ClueID: 2, ClueOrder: 2, ClueText: "Canine", Answer: "DOG"},
		},
		Mappings: []Mapping{
			{ClueID: 1, LetterPosition: 0, GridPosition: 0},
			{ClueID: 1, LetterPosition: 1, GridPosition: 1},
			{ClueID: 1, LetterPosition: 2, GridPosition: 2},
			{ClueID: 2, LetterPosition: 0, GridPosition: 3},
			{ClueID: 2, LetterPosition: 1, GridPosition: 4},
			{ClueID: 2, LetterPosition: 2, GridPosition: 5},
		},
	}
}

func TestParseKey_BothSeparators(t *testing.T) {
	for _, raw := range []string{"12_3", "12-3"} {
		k, err := ParseKey(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, Key{ClueID: 12, LetterPosition: 3}, k)
	}
}

func TestParseKey_Rejects(t *testing.T) {
	for _, raw := range []string{"", "12", "a_b", "12_", "_3"} {
		_, err := ParseKey(raw)
		assert.Error(t, err, raw)
	}
}

func TestKey_WritesCanonicalForm(t *testing.T) {
	k := Key{ClueID: 7, LetterPosition: 0}
	assert.Equal(t, "7_0", k.String())

	// Round trip through the legacy separator still lands on the same key.
	parsed, err := ParseKey("7-0")
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
}

func TestPuzzle_Validate(t *testing.T) {
	require.NoError(t, testPuzzle().Validate())
}

func TestPuzzle_Validate_MissingLetterPosition(t *testing.T) {
	pz := testPuzzle()
	pz.Mappings = pz.Mappings[:len(pz.Mappings)-1]
	assert.Error(t, pz.Validate())
}

func TestPuzzle_Validate_DuplicateGridPosition(t *testing.T) {
	pz := testPuzzle()
	pz.Mappings[5].GridPosition = 4
	assert.Error(t, pz.Validate())
}

func TestPuzzle_Validate_GridMismatch(t *testing.T) {
	pz := testPuzzle()
	pz.Quote = "CAT DOGS"
	assert.Error(t, pz.Validate())
}

func TestPuzzle_HasMapping(t *testing.T) {
	pz := testPuzzle()
	assert.True(t, pz.HasMapping(Key{ClueID: 2, LetterPosition: 2}))
	assert.False(t, pz.HasMapping(Key{ClueID: 2, LetterPosition: 3}))
	assert.False(t, pz.HasMapping(Key{ClueID: 9, LetterPosition: 0}))
}
