package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/crosticlab/crostic-battle-backend/internal/battle"
	"github.com/crosticlab/crostic-battle-backend/internal/hub"
	"github.com/crosticlab/crostic-battle-backend/internal/invite"
	"github.com/crosticlab/crostic-battle-backend/internal/presence"
	"github.com/crosticlab/crostic-battle-backend/internal/puzzle"
	"github.com/crosticlab/crostic-battle-backend/internal/session"
	"github.com/crosticlab/crostic-battle-backend/internal/types"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
	replyTimeout = 3 * time.Second
)

// Gateway bridges websocket connections to the presence registry, the
// invitation broker and the session hub. It is pure routing: every inbound
// event becomes a component call, every component broadcast flows back out
// through the connection's outbox.
type Gateway struct {
	hub      *hub.Hub
	registry *presence.Registry
	broker   *invite.Broker
	puzzles  puzzle.Accessor
	log      *zap.Logger
}

func NewGateway(h *hub.Hub, registry *presence.Registry, broker *invite.Broker, puzzles puzzle.Accessor, log *zap.Logger) *Gateway {
	return &Gateway{hub: h, registry: registry, broker: broker, puzzles: puzzles, log: log}
}

// conn is the per-socket state: who authenticated on it and which sessions
// it joined. Only the reader goroutine touches it.
type conn struct {
	user   *types.User
	outbox chan types.ServerMessage
	joined map[string]*session.Session // puzzle id -> session
}

func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sock, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer sock.Close(websocket.StatusNormalClosure, "bye")

		c := &conn{
			outbox: make(chan types.ServerMessage, outboxSize),
			joined: make(map[string]*session.Session),
		}
		defer g.teardown(c)

		// Writer goroutine: drains the outbox onto the socket. The outbox is
		// never closed (presence, sessions and the gateway all produce into
		// it); the writer exits via the context and the channel is dropped.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case msg := <-c.outbox:
					payload, err := json.Marshal(msg)
					if err != nil {
						g.log.Error("marshal outbound", zap.Error(err))
						continue
					}
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					_ = sock.Write(ctx, websocket.MessageText, payload)
					cancel()
				}
			}
		}()

		// Reader loop.
		for {
			_, data, err := sock.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Any other read failure degrades to a disconnect; teardown
				// in the defers handles leave + unregister.
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				g.sendError(c, "bad_json", "malformed message")
				continue
			}
			g.dispatch(r.Context(), c, cm)
		}
	}
}

// teardown runs on disconnect: leave every joined session, drop outstanding
// invitations, unregister from presence. Disconnection is not an error.
func (g *Gateway) teardown(c *conn) {
	if c.user != nil {
		for _, s := range c.joined {
			s.Inbox() <- session.Leave{UserID: c.user.UserID}
		}
		g.broker.DiscardFrom(c.user.UserID)
		g.registry.Unregister(c.user.UserID)
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *conn, cm types.ClientMessage) {
	switch cm.Type {
	case types.EvtUserConnected:
		if cm.User == nil || cm.User.UserID == "" {
			g.sendError(c, "bad_request", "userConnected requires a user")
			return
		}
		u := *cm.User
		c.user = &u
		g.registry.Register(u, c.outbox)

	case types.EvtSendInvitation:
		if c.user == nil {
			g.sendError(c, "not_connected", "connect before inviting")
			return
		}
		err := g.broker.Invite(*c.user, cm.RecipientID, cm.PuzzleID, cm.PuzzleTitle)
		if errors.Is(err, invite.ErrRecipientOffline) {
			g.sendError(c, "recipient_offline", "that player is no longer online")
		}

	case types.EvtAcceptInvitation:
		if c.user == nil {
			g.sendError(c, "not_connected", "connect before accepting")
			return
		}
		if err := g.broker.Accept(cm.InviterID, *c.user, cm.PuzzleID); err != nil {
			g.sendError(c, "no_pending_invitation", "that invitation is gone")
		}

	case types.EvtJoinBattle:
		g.joinBattle(ctx, c, cm)

	case types.EvtLeaveBattle:
		if c.user == nil {
			return
		}
		if s, ok := c.joined[cm.PuzzleID]; ok {
			s.Inbox() <- session.Leave{UserID: c.user.UserID}
			delete(c.joined, cm.PuzzleID)
		}

	case types.EvtPlayerAction:
		g.playerAction(c, cm)

	case types.EvtSendChatMessage:
		g.sendChat(c, cm)

	default:
		g.sendError(c, "unknown_type", "unknown event type")
	}
}

func (g *Gateway) joinBattle(ctx context.Context, c *conn, cm types.ClientMessage) {
	if cm.User == nil || cm.User.UserID == "" || cm.PuzzleID == "" {
		g.sendError(c, "bad_request", "joinBattle requires user and puzzleId")
		return
	}
	if c.user == nil {
		u := *cm.User
		c.user = &u
	}

	// Two attempts: the first can race a session that is destroying itself,
	// in which case its Remove is already queued ahead of our re-Ensure.
	for attempt := 0; attempt < 2; attempt++ {
		s, err := g.ensureSession(ctx, cm.PuzzleID)
		if err != nil {
			if errors.Is(err, puzzle.ErrNotFound) {
				g.sendError(c, "puzzle_not_found", "no such puzzle")
			} else {
				g.log.Error("ensure session", zap.String("puzzle", cm.PuzzleID), zap.Error(err))
				g.sendError(c, "internal", "could not open battle")
			}
			return
		}

		reply := make(chan error, 1)
		s.Inbox() <- session.Join{User: *cm.User, Outbox: c.outbox, Reply: reply}
		select {
		case err := <-reply:
			if errors.Is(err, session.ErrSessionFull) {
				g.sendError(c, "session_full", "battle already has two players")
				return
			}
			if err != nil {
				g.sendError(c, "internal", "could not join battle")
				return
			}
			c.joined[cm.PuzzleID] = s
			return
		case <-s.Done():
			// Session died under us; try once more against a fresh one.
		case <-time.After(replyTimeout):
			g.sendError(c, "internal", "battle did not respond")
			return
		}
	}

	g.log.Warn("join lost to repeated session teardown", zap.String("puzzle", cm.PuzzleID))
	g.sendError(c, "internal", "could not join battle")
}

func (g *Gateway) ensureSession(ctx context.Context, puzzleID string) (*session.Session, error) {
	// Fast path: session already live, no puzzle fetch.
	getReply := make(chan *session.Session, 1)
	g.hub.Inbox() <- hub.Get{PuzzleID: puzzleID, Reply: getReply}
	if s := <-getReply; s != nil {
		return s, nil
	}

	// Fetch happens here, on the connection goroutine, so the hub and the
	// sessions never block on puzzle I/O.
	pz, err := g.puzzles.Puzzle(ctx, puzzleID)
	if err != nil {
		return nil, err
	}

	reply := make(chan *session.Session, 1)
	g.hub.Inbox() <- hub.Ensure{Puzzle: pz, Reply: reply}
	return <-reply, nil
}

func (g *Gateway) playerAction(c *conn, cm types.ClientMessage) {
	s, ok := g.memberOf(c, cm.PuzzleID)
	if !ok {
		g.sendError(c, "not_a_member", "join the battle before acting")
		return
	}

	reply := make(chan error, 1)
	s.Inbox() <- session.Action{
		UserID: c.user.UserID,
		Key:    puzzle.Key{ClueID: cm.ClueID, LetterPosition: cm.LetterPosition},
		Letter: cm.Letter,
		Reply:  reply,
	}
	g.awaitReply(c, s, reply, map[error]string{
		battle.ErrUnknownMapping: "unknown_mapping",
		battle.ErrInvalidLetter:  "invalid_letter",
		session.ErrNotActive:     "not_active",
		session.ErrNotAMember:    "not_a_member",
	})
}

func (g *Gateway) sendChat(c *conn, cm types.ClientMessage) {
	s, ok := g.memberOf(c, cm.PuzzleID)
	if !ok {
		g.sendError(c, "not_a_member", "join the battle before chatting")
		return
	}

	reply := make(chan error, 1)
	s.Inbox() <- session.Chat{Sender: *c.user, Text: cm.Message, Reply: reply}
	g.awaitReply(c, s, reply, map[error]string{
		session.ErrNotAMember: "not_a_member",
	})
}

// memberOf enforces the gateway invariant: a socket that never joined
// session X cannot reach session X at all.
func (g *Gateway) memberOf(c *conn, puzzleID string) (*session.Session, bool) {
	if c.user == nil {
		return nil, false
	}
	s, ok := c.joined[puzzleID]
	return s, ok
}

// awaitReply reports a recoverable rejection back to this connection only.
// Anything unexpected is a logged no-op; the other player's session state is
// never affected.
func (g *Gateway) awaitReply(c *conn, s *session.Session, reply chan error, codes map[error]string) {
	select {
	case err := <-reply:
		if err == nil {
			return
		}
		for known, code := range codes {
			if errors.Is(err, known) {
				g.sendError(c, code, err.Error())
				return
			}
		}
		g.log.Warn("session rejected request", zap.Error(err))
	case <-s.Done():
	case <-time.After(replyTimeout):
		g.log.Warn("session reply timeout")
	}
}

func (g *Gateway) sendError(c *conn, code, message string) {
	select {
	case c.outbox <- types.ServerMessage{Type: types.EvtError, Code: code, Error: message}:
	default:
	}
}
