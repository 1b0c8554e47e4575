package battle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosticlab/crostic-battle-backend/internal/puzzle"
)

var clues = []puzzle.Clue{
	{ClueID: 1, ClueOrder: 1, Answer: "CAT"},
	{ClueID: 2, ClueOrder: 2, Answer: "DOG"},
}

func key(clueID, pos int) puzzle.Key {
	return puzzle.Key{ClueID: clueID, LetterPosition: pos}
}

func TestValidate_ClueCompletesOnlyOnLastLetter(t *testing.T) {
	a := AnswerState{}

	a.Set(key(1, 0), "C")
	assert.Equal(t, StatusIncomplete, Validate(a, clues)[1])

	a.Set(key(1, 1), "A")
	assert.Equal(t, StatusIncomplete, Validate(a, clues)[1])

	a.Set(key(1, 2), "T")
	statuses := Validate(a, clues)
	assert.Equal(t, StatusCorrect, statuses[1])
	assert.Equal(t, StatusIncomplete, statuses[2])
}

func TestValidate_WrongLettersAreIncorrect(t *testing.T) {
	a := AnswerState{}
	a.Set(key(1, 0), "C")
	a.Set(key(1, 1), "O")
	a.Set(key(1, 2), "T")
	assert.Equal(t, StatusIncorrect, Validate(a, clues)[1])
}

func TestValidate_CaseInsensitiveStorage(t *testing.T) {
	a := AnswerState{}
	a.Set(key(2, 0), "d")
	a.Set(key(2, 1), "o")
	a.Set(key(2, 2), "g")
	assert.Equal(t, StatusCorrect, Validate(a, clues)[2])
	assert.Equal(t, "D", a[key(2, 0)])
}

func TestSet_RepeatedWriteIsIdempotent(t *testing.T) {
	a := AnswerState{}
	a.Set(key(1, 0), "C")
	once := Validate(a, clues)

	a.Set(key(1, 0), "C")
	require.Len(t, a, 1)
	assert.Equal(t, once, Validate(a, clues))
}

func TestSet_LastWriteWins(t *testing.T) {
	a := AnswerState{}
	a.Set(key(1, 0), "X")
	a.Set(key(1, 0), "C")
	assert.Equal(t, "C", a[key(1, 0)])
}

func TestSet_EmptyLetterClearsCell(t *testing.T) {
	a := AnswerState{}
	a.Set(key(1, 0), "X")
	a.Set(key(1, 0), "")
	_, ok := a[key(1, 0)]
	assert.False(t, ok)
	assert.Equal(t, StatusIncomplete, Validate(a, clues)[1])
}

func TestValidate_PureAndDeterministic(t *testing.T) {
	a := AnswerState{}
	a.Set(key(1, 0), "C")
	a.Set(key(1, 1), "A")
	a.Set(key(1, 2), "T")

	first := Validate(a, clues)
	// A no-op change must not move the result.
	a.Set(key(1, 2), "T")
	second := Validate(a, clues)
	assert.Equal(t, first, second)
	require.Len(t, a, 3)
}

func TestCompletion_AndSolved(t *testing.T) {
	a := AnswerState{}
	a.Set(key(1, 0), "C")
	a.Set(key(1, 1), "A")
	a.Set(key(1, 2), "T")

	statuses := Validate(a, clues)
	assert.InDelta(t, 0.5, Completion(statuses), 1e-9)
	assert.False(t, Solved(statuses), "partial correctness must never count as a win")

	a.Set(key(2, 0), "D")
	a.Set(key(2, 1), "O")
	a.Set(key(2, 2), "G")
	statuses = Validate(a, clues)
	assert.Equal(t, 1.0, Completion(statuses))
	assert.True(t, Solved(statuses))
}

func TestValidLetter(t *testing.T) {
	for _, ok := range []string{"", "a", "Z", "é"} {
		assert.True(t, ValidLetter(ok), ok)
	}
	for _, bad := range []string{"AB", "CAT", "1", " ", "-", "A "} {
		assert.False(t, ValidLetter(bad), bad)
	}
}

func TestSolved_EmptyClueSetIsNotAWin(t *testing.T) {
	assert.False(t, Solved(map[int]Status{}))
}
