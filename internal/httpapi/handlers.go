package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/crosticlab/crostic-battle-backend/internal/battle"
	"github.com/crosticlab/crostic-battle-backend/internal/puzzle"
	"github.com/crosticlab/crostic-battle-backend/internal/store"
)

// ProgressStore is the solo-mode persistence the handlers need; *store.Store
// satisfies it, tests use a fake.
type ProgressStore interface {
	Progress(ctx context.Context, userID, puzzleID string) (*store.Progress, error)
	SaveProgress(ctx context.Context, userID, puzzleID string, p *store.Progress) error
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// userID pulls the caller's identity. Auth proper lives upstream; by the
// time requests reach this service the gateway has set this header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Message string `json:"message"`
	}{Message: msg})
}

// GetPuzzle serves the full puzzle definition: quote, clues (answers
// included, clients validate locally) and the mapping table.
func GetPuzzle(puzzles puzzle.Accessor, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		pz, err := puzzles.Puzzle(r.Context(), id)
		if err != nil {
			if errors.Is(err, puzzle.ErrNotFound) {
				writeMessage(w, http.StatusNotFound, "puzzle not found")
				return
			}
			log.Error("load puzzle", zap.String("id", id), zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "could not load puzzle")
			return
		}
		writeJSON(w, http.StatusOK, pz)
	}
}

func GetProgress(progress ProgressStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			writeMessage(w, http.StatusUnauthorized, "missing user")
			return
		}
		p, err := progress.Progress(r.Context(), uid, chi.URLParam(r, "id"))
		if err != nil {
			log.Error("load progress", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "could not load progress")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Progress *store.Progress `json:"progress"`
		}{Progress: p})
	}
}

func SaveProgress(progress ProgressStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			writeMessage(w, http.StatusUnauthorized, "missing user")
			return
		}
		var body struct {
			CurrentState map[string]string `json:"currentState"`
			TimeSpent    int               `json:"timeSpent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeMessage(w, http.StatusBadRequest, "malformed body")
			return
		}

		puzzleID := chi.URLParam(r, "id")
		prev, err := progress.Progress(r.Context(), uid, puzzleID)
		if err != nil {
			log.Error("load progress", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "could not save progress")
			return
		}
		next := &store.Progress{
			CurrentState: body.CurrentState,
			TimeSpent:    body.TimeSpent,
			Completed:    prev.Completed, // saving never un-completes
		}
		if next.CurrentState == nil {
			next.CurrentState = map[string]string{}
		}
		if err := progress.SaveProgress(r.Context(), uid, puzzleID, next); err != nil {
			log.Error("save progress", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "could not save progress")
			return
		}
		writeMessage(w, http.StatusOK, "progress saved")
	}
}

// Hint reveals the first unset letter of the requested clue, based on the
// caller's saved solo progress. The client applies it and saves as usual.
func Hint(puzzles puzzle.Accessor, progress ProgressStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			writeMessage(w, http.StatusUnauthorized, "missing user")
			return
		}
		var body struct {
			ClueID int `json:"clueId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeMessage(w, http.StatusBadRequest, "malformed body")
			return
		}

		puzzleID := chi.URLParam(r, "id")
		pz, err := puzzles.Puzzle(r.Context(), puzzleID)
		if err != nil {
			if errors.Is(err, puzzle.ErrNotFound) {
				writeMessage(w, http.StatusNotFound, "puzzle not found")
				return
			}
			log.Error("load puzzle", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "could not load puzzle")
			return
		}
		clue, ok := pz.Clue(body.ClueID)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "unknown clue")
			return
		}

		p, err := progress.Progress(r.Context(), uid, puzzleID)
		if err != nil {
			log.Error("load progress", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "could not load progress")
			return
		}
		answers, err := parseAnswers(p.CurrentState)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "corrupt answer state")
			return
		}

		for i := 0; i < len(clue.Answer); i++ {
			k := puzzle.Key{ClueID: clue.ClueID, LetterPosition: i}
			if _, set := answers[k]; set {
				continue
			}
			writeJSON(w, http.StatusOK, struct {
				ClueID   int    `json:"clueId"`
				Position int    `json:"position"`
				Letter   string `json:"letter"`
			}{ClueID: clue.ClueID, Position: i, Letter: strings.ToUpper(string(clue.Answer[i]))})
			return
		}
		writeMessage(w, http.StatusConflict, "clue already filled in")
	}
}

// Complete marks the puzzle solved, but only after the server re-validates
// the saved answers; the completed flag is never client-asserted.
func Complete(puzzles puzzle.Accessor, progress ProgressStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			writeMessage(w, http.StatusUnauthorized, "missing user")
			return
		}
		var body struct {
			TimeSpent int `json:"timeSpent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeMessage(w, http.StatusBadRequest, "malformed body")
			return
		}

		puzzleID := chi.URLParam(r, "id")
		pz, err := puzzles.Puzzle(r.Context(), puzzleID)
		if err != nil {
			if errors.Is(err, puzzle.ErrNotFound) {
				writeMessage(w, http.StatusNotFound, "puzzle not found")
				return
			}
			log.Error("load puzzle", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "could not load puzzle")
			return
		}

		p, err := progress.Progress(r.Context(), uid, puzzleID)
		if err != nil {
			log.Error("load progress", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "could not load progress")
			return
		}
		answers, err := parseAnswers(p.CurrentState)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "corrupt answer state")
			return
		}
		if !battle.Solved(battle.Validate(answers, pz.Clues)) {
			writeMessage(w, http.StatusBadRequest, "puzzle is not solved yet")
			return
		}

		p.TimeSpent = body.TimeSpent
		p.Completed = true
		if err := progress.SaveProgress(r.Context(), uid, puzzleID, p); err != nil {
			log.Error("save progress", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, "could not save progress")
			return
		}
		writeMessage(w, http.StatusOK, "puzzle completed")
	}
}

// parseAnswers converts a wire answer map (either separator form) into the
// validator's structured state.
func parseAnswers(state map[string]string) (battle.AnswerState, error) {
	answers := battle.AnswerState{}
	for raw, letter := range state {
		k, err := puzzle.ParseKey(raw)
		if err != nil {
			return nil, err
		}
		answers.Set(k, letter)
	}
	return answers, nil
}
