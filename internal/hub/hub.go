package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crosticlab/crostic-battle-backend/internal/puzzle"
	"github.com/crosticlab/crostic-battle-backend/internal/session"
)

type HubMsg interface{ isHubMsg() }

// Ensure returns the session for the puzzle, creating it if absent. The
// caller fetches the puzzle beforehand so no I/O happens on the hub loop.
type Ensure struct {
	Puzzle *puzzle.Puzzle
	Reply  chan *session.Session
}

type Get struct {
	PuzzleID string
	Reply    chan *session.Session
}

type Remove struct {
	PuzzleID string
}

type ShutdownHub struct{}

func (Ensure) isHubMsg()      {}
func (Get) isHubMsg()         {}
func (Remove) isHubMsg()      {}
func (ShutdownHub) isHubMsg() {}

// Hub owns the table of live battle sessions, keyed by puzzle id. Like the
// sessions themselves it is an actor: one goroutine, one inbox.
type Hub struct {
	inbox       chan HubMsg
	sessions    map[string]*session.Session
	idleTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	log         *zap.Logger
}

func NewHub(parent context.Context, idleTimeout time.Duration, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:       make(chan HubMsg, 64),
		sessions:    make(map[string]*session.Session),
		idleTimeout: idleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Ensure:
				id := msg.Puzzle.ID
				if s := h.sessions[id]; s != nil {
					msg.Reply <- s
					break
				}
				s := session.New(h.ctx, msg.Puzzle, h.idleTimeout, func() {
					h.inbox <- Remove{PuzzleID: id}
				}, h.log)
				h.sessions[id] = s
				h.log.Info("session created", zap.String("puzzle", id))
				msg.Reply <- s

			case Get:
				msg.Reply <- h.sessions[msg.PuzzleID] // May be nil

			case Remove:
				if _, ok := h.sessions[msg.PuzzleID]; ok {
					delete(h.sessions, msg.PuzzleID)
					h.log.Info("session removed", zap.String("puzzle", msg.PuzzleID))
				}

			case ShutdownHub:
				for _, s := range h.sessions {
					s.Inbox() <- session.Shutdown{}
				}
				clear(h.sessions)
				h.cancel()
			}
		}
	}
}
