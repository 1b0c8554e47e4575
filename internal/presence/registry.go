package presence

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/crosticlab/crostic-battle-backend/internal/types"
)

type entry struct {
	user   types.User
	outbox chan<- types.ServerMessage
}

// Registry is the process-wide table of connected users. Every change
// broadcasts the full online list to everyone; targeted Send carries
// invitation traffic. It holds its own lock and never touches session state,
// so it cannot participate in a lock-ordering cycle with the session actors.
type Registry struct {
	mu     sync.RWMutex
	online map[string]entry
	log    *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		online: make(map[string]entry),
		log:    log,
	}
}

// Register adds a user, or refreshes their outbox if already present (a
// second tab replaces the first). Always rebroadcasts the full list.
func (r *Registry) Register(u types.User, outbox chan<- types.ServerMessage) {
	r.mu.Lock()
	r.online[u.UserID] = entry{user: u, outbox: outbox}
	r.broadcastLocked()
	r.mu.Unlock()
	r.log.Info("user connected", zap.String("user_id", u.UserID), zap.String("name", u.Name))
}

// Unregister removes a user and rebroadcasts. Unknown ids are a no-op.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	_, ok := r.online[userID]
	if ok {
		delete(r.online, userID)
		r.broadcastLocked()
	}
	r.mu.Unlock()
	if ok {
		r.log.Info("user disconnected", zap.String("user_id", userID))
	}
}

// List returns the current online set, ordered by name for stable output.
func (r *Registry) List() []types.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

// Online reports whether the user is currently connected.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[userID]
	return ok
}

// User looks up a connected user's identity.
func (r *Registry) User(userID string) (types.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.online[userID]
	return e.user, ok
}

// Send delivers a message to one connected user. Returns false if the user is
// offline. A full outbox drops the message rather than blocking the caller.
func (r *Registry) Send(userID string, msg types.ServerMessage) bool {
	r.mu.RLock()
	e, ok := r.online[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case e.outbox <- msg:
	default:
		r.log.Warn("presence send dropped, outbox full", zap.String("user_id", userID), zap.String("type", msg.Type))
	}
	return true
}

func (r *Registry) listLocked() []types.User {
	users := make([]types.User, 0, len(r.online))
	for _, e := range r.online {
		users = append(users, e.user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users
}

func (r *Registry) broadcastLocked() {
	msg := types.ServerMessage{Type: types.EvtUpdateOnlineUsers, Users: r.listLocked()}
	for id, e := range r.online {
		select {
		case e.outbox <- msg:
		default:
			// Slow client; skip, the next change resends the full list anyway.
			r.log.Warn("presence broadcast dropped", zap.String("user_id", id))
		}
	}
}
