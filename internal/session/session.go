package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/crosticlab/crostic-battle-backend/internal/battle"
	"github.com/crosticlab/crostic-battle-backend/internal/puzzle"
	"github.com/crosticlab/crostic-battle-backend/internal/types"
)

var (
	ErrSessionFull = errors.New("session already has two players")
	ErrNotAMember  = errors.New("not a member of this session")
	ErrNotActive   = errors.New("session is not active")
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

const maxPlayers = 2

type Msg interface{ isSessionMsg() }

// Join adds a player, or resyncs an existing member's new connection.
type Join struct {
	User   types.User
	Outbox chan types.ServerMessage
	Reply  chan error
}

func (Join) isSessionMsg() {}

type Leave struct{ UserID string }

func (Leave) isSessionMsg() {}

// Action writes one letter into the acting player's answer state.
// An empty Letter clears the cell.
type Action struct {
	UserID string
	Key    puzzle.Key
	Letter string
	Reply  chan error
}

func (Action) isSessionMsg() {}

// Chat appends to the session log and fans out to every member.
type Chat struct {
	Sender types.User
	Text   string
	Reply  chan error
}

func (Chat) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// GetView reflects internal state without data races; used by tests.
type GetView struct {
	Reply chan View
}

func (GetView) isSessionMsg() {}

type View struct {
	Status    Status
	Players   []types.User
	StartTime time.Time
	Winner    *types.User
	ChatLen   int
}

// Session is one battle between at most two players over one puzzle. All
// state is owned by a single goroutine; everything reaches it through the
// inbox, so two players' actions never interleave a read-modify-write.
// Different sessions never share anything and proceed independently.
type Session struct {
	inbox    chan Msg
	puzzle   *puzzle.Puzzle
	status   Status
	players  []types.User
	outboxes map[string]chan types.ServerMessage
	answers  map[string]battle.AnswerState
	chatLog  []ChatMessage
	start    time.Time
	winner   *types.User

	idleTimeout time.Duration
	onEmpty     func()

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

// New starts a session actor for the given puzzle. onEmpty is invoked once,
// from the actor goroutine, when the session destroys itself (all players
// gone, or idle past the timeout); the owner uses it to drop its reference.
func New(parent context.Context, pz *puzzle.Puzzle, idleTimeout time.Duration, onEmpty func(), log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		inbox:       make(chan Msg, 64),
		puzzle:      pz,
		status:      StatusWaiting,
		outboxes:    make(map[string]chan types.ServerMessage),
		answers:     make(map[string]battle.AnswerState),
		idleTimeout: idleTimeout,
		onEmpty:     onEmpty,
		ctx:         ctx,
		cancel:      cancel,
		log:         log.With(zap.String("puzzle", pz.ID)),
	}

	go s.loop()
	return s
}

// Inbox is where the gateway (and tests) send messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the actor has stopped; senders waiting on a Reply must
// also select on it so a session dying mid-request cannot strand them.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) loop() {
	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case <-idle.C:
			s.log.Info("session idle, reaping")
			s.destroy()
			return

		case m := <-s.inbox:
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(s.idleTimeout)

			switch msg := m.(type) {
			case Join:
				reply(msg.Reply, s.join(msg.User, msg.Outbox))

			case Leave:
				if s.leave(msg.UserID) {
					s.destroy()
					return
				}

			case Action:
				reply(msg.Reply, s.apply(msg.UserID, msg.Key, msg.Letter))

			case Chat:
				reply(msg.Reply, s.chat(msg.Sender, msg.Text))

			case GetView:
				msg.Reply <- View{
					Status:    s.status,
					Players:   append([]types.User(nil), s.players...),
					StartTime: s.start,
					Winner:    s.winner,
					ChatLen:   len(s.chatLog),
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func reply(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

func (s *Session) join(u types.User, outbox chan types.ServerMessage) error {
	if s.member(u.UserID) {
		// Reconnect: swap in the new outbox and resync this client only.
		s.outboxes[u.UserID] = outbox
		s.send(u.UserID, s.snapshotFor(u.UserID))
		return nil
	}
	if s.status == StatusFinished || len(s.players) >= maxPlayers {
		return ErrSessionFull
	}

	s.players = append(s.players, u)
	s.outboxes[u.UserID] = outbox
	if s.answers[u.UserID] == nil {
		s.answers[u.UserID] = battle.AnswerState{}
	}

	// Second distinct player starts the clock, exactly once.
	if s.status == StatusWaiting && len(s.players) == maxPlayers {
		s.status = StatusActive
		s.start = time.Now()
		s.log.Info("battle active",
			zap.String("player1", s.players[0].UserID),
			zap.String("player2", s.players[1].UserID))
	}

	s.broadcastState()
	return nil
}

// leave removes the player; reports whether the session is now empty.
// The remaining player is not declared winner by forfeit.
func (s *Session) leave(userID string) bool {
	if !s.member(userID) {
		return false
	}
	for i, p := range s.players {
		if p.UserID == userID {
			s.players = append(s.players[:i], s.players[i+1:]...)
			break
		}
	}
	delete(s.outboxes, userID)
	// Answers are kept so a dropped connection can rejoin mid-battle.
	return len(s.players) == 0
}

func (s *Session) apply(userID string, key puzzle.Key, letter string) error {
	if s.status != StatusActive {
		return ErrNotActive
	}
	if !s.member(userID) {
		return ErrNotAMember
	}
	if !s.puzzle.HasMapping(key) {
		return battle.ErrUnknownMapping
	}
	if !battle.ValidLetter(letter) {
		return battle.ErrInvalidLetter
	}

	s.answers[userID].Set(key, letter)

	statuses := battle.Validate(s.answers[userID], s.puzzle.Clues)
	if battle.Solved(statuses) {
		s.status = StatusFinished
		for _, p := range s.players {
			if p.UserID == userID {
				w := p
				s.winner = &w
				break
			}
		}
		s.log.Info("battle won", zap.String("winner", userID))
	}

	s.broadcastState()
	if s.status == StatusFinished {
		s.broadcast(types.ServerMessage{Type: types.EvtGameWon, Winner: s.winner})
	}
	return nil
}

// broadcastState sends each member their own projection of the session.
func (s *Session) broadcastState() {
	for _, p := range s.players {
		s.send(p.UserID, s.snapshotFor(p.UserID))
	}
}

// snapshotFor builds the battleUpdate view for one recipient. The recipient
// always sees their own letters; an opponent's raw letters are withheld until
// that opponent's clue set is fully correct, so progress is visible only
// through the derived statuses.
func (s *Session) snapshotFor(recipientID string) types.ServerMessage {
	gameState := make(map[string]map[string]string, len(s.players))
	clueStatuses := make(map[string]map[string]string, len(s.players))

	for _, p := range s.players {
		statuses := battle.Validate(s.answers[p.UserID], s.puzzle.Clues)
		clueStatuses[p.UserID] = wireStatuses(statuses)
		if p.UserID == recipientID || battle.Solved(statuses) {
			gameState[p.UserID] = s.answers[p.UserID].Wire()
		}
	}

	var startMillis int64
	if !s.start.IsZero() {
		startMillis = s.start.UnixMilli()
	}

	return types.ServerMessage{
		Type:         types.EvtBattleUpdate,
		Players:      append([]types.User(nil), s.players...),
		GameState:    gameState,
		ClueStatuses: clueStatuses,
		StartTime:    startMillis,
	}
}

func wireStatuses(statuses map[int]battle.Status) map[string]string {
	out := make(map[string]string, len(statuses))
	for clueID, st := range statuses {
		out[strconv.Itoa(clueID)] = string(st)
	}
	return out
}

func (s *Session) broadcast(msg types.ServerMessage) {
	for _, p := range s.players {
		s.send(p.UserID, msg)
	}
}

func (s *Session) send(userID string, msg types.ServerMessage) {
	out, ok := s.outboxes[userID]
	if !ok {
		return
	}
	select {
	case out <- msg:
	default:
		// Slow client; drop the message, a later snapshot supersedes it.
		s.log.Warn("session send dropped, outbox full", zap.String("user_id", userID), zap.String("type", msg.Type))
	}
}

func (s *Session) member(userID string) bool {
	for _, p := range s.players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (s *Session) destroy() {
	if s.onEmpty != nil {
		s.onEmpty()
	}
	s.shutdown()
}

func (s *Session) shutdown() {
	s.players = nil
	clear(s.outboxes)
	s.cancel()
}
