package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/crosticlab/crostic-battle-backend/internal/puzzle"
	"github.com/crosticlab/crostic-battle-backend/internal/ws"
)

// SetupRoutes builds the router with all collaborators injected.
func SetupRoutes(gateway *ws.Gateway, puzzles puzzle.Accessor, progress ProgressStore, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", gateway.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/crostics/{id}", GetPuzzle(puzzles, log))
		r.Route("/game/{id}", func(r chi.Router) {
			r.Get("/progress", GetProgress(progress, log))
			r.Post("/progress", SaveProgress(progress, log))
			r.Post("/hint", Hint(puzzles, progress, log))
			r.Post("/complete", Complete(puzzles, progress, log))
		})
	})
	return r
}
