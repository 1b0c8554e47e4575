package invite

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crosticlab/crostic-battle-backend/internal/presence"
	"github.com/crosticlab/crostic-battle-backend/internal/types"
)

var (
	ErrRecipientOffline = errors.New("recipient is not online")
	ErrNoPending        = errors.New("no pending invitation")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Invitation is a proposal from one user to another to battle on a puzzle.
// Terminal once accepted or rejected; pending ones expire after the TTL or
// when the inviter disconnects.
type Invitation struct {
	ID          string
	Inviter     types.User
	RecipientID string
	PuzzleID    string
	PuzzleTitle string
	Status      Status
	CreatedAt   time.Time
}

// Broker tracks outstanding invitations. One pending invitation per
// (inviter, recipient) pair; a re-invite supersedes the previous one.
type Broker struct {
	mu       sync.Mutex
	pending  map[pairKey]*Invitation
	registry *presence.Registry
	ttl      time.Duration
	log      *zap.Logger
}

type pairKey struct {
	inviterID   string
	recipientID string
}

// NewBroker starts the broker and its expiry sweep, which stops when ctx is
// cancelled. A non-positive ttl disables expiry: invitations then live until
// accepted, rejected, or the inviter disconnects.
func NewBroker(ctx context.Context, registry *presence.Registry, ttl time.Duration, log *zap.Logger) *Broker {
	b := &Broker{
		pending:  make(map[pairKey]*Invitation),
		registry: registry,
		ttl:      ttl,
		log:      log,
	}
	if ttl > 0 {
		go b.sweep(ctx)
	} else {
		log.Warn("invitation expiry disabled", zap.Duration("ttl", ttl))
	}
	return b
}

// Invite records a pending invitation and delivers it to the recipient only.
// Fails with ErrRecipientOffline before creating any record.
func (b *Broker) Invite(inviter types.User, recipientID, puzzleID, puzzleTitle string) error {
	if !b.registry.Online(recipientID) {
		return ErrRecipientOffline
	}

	inv := &Invitation{
		ID:          uuid.NewString(),
		Inviter:     inviter,
		RecipientID: recipientID,
		PuzzleID:    puzzleID,
		PuzzleTitle: puzzleTitle,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	b.mu.Lock()
	b.pending[pairKey{inviter.UserID, recipientID}] = inv
	b.mu.Unlock()

	delivered := b.registry.Send(recipientID, types.ServerMessage{
		Type:        types.EvtReceiveInvitation,
		Inviter:     &inv.Inviter,
		PuzzleID:    puzzleID,
		PuzzleTitle: puzzleTitle,
	})
	if !delivered {
		// Recipient raced offline between the check and the send.
		b.mu.Lock()
		delete(b.pending, pairKey{inviter.UserID, recipientID})
		b.mu.Unlock()
		return ErrRecipientOffline
	}

	b.log.Info("invitation sent",
		zap.String("inviter", inviter.UserID),
		zap.String("recipient", recipientID),
		zap.String("puzzle", puzzleID))
	return nil
}

// Accept transitions the pending invitation for (inviter, recipient) to
// accepted and signals startBattle to both parties.
func (b *Broker) Accept(inviterID string, recipient types.User, puzzleID string) error {
	key := pairKey{inviterID, recipient.UserID}

	b.mu.Lock()
	inv, ok := b.pending[key]
	if ok {
		inv.Status = StatusAccepted
		delete(b.pending, key)
	}
	b.mu.Unlock()
	if !ok {
		return ErrNoPending
	}

	start := types.ServerMessage{Type: types.EvtStartBattle, PuzzleID: puzzleID}
	b.registry.Send(inviterID, start)
	b.registry.Send(recipient.UserID, start)

	b.log.Info("invitation accepted",
		zap.String("inviter", inviterID),
		zap.String("recipient", recipient.UserID),
		zap.String("puzzle", puzzleID))
	return nil
}

// Reject transitions the pending invitation to rejected. The inviter is not
// notified; the pending record just disappears.
func (b *Broker) Reject(inviterID, recipientID string) error {
	key := pairKey{inviterID, recipientID}

	b.mu.Lock()
	inv, ok := b.pending[key]
	if ok {
		inv.Status = StatusRejected
		delete(b.pending, key)
	}
	b.mu.Unlock()
	if !ok {
		return ErrNoPending
	}
	return nil
}

// DiscardFrom drops every pending invitation sent by the given user. Called
// when the inviter disconnects.
func (b *Broker) DiscardFrom(inviterID string) {
	b.mu.Lock()
	for key := range b.pending {
		if key.inviterID == inviterID {
			delete(b.pending, key)
		}
	}
	b.mu.Unlock()
}

// Pending returns the pending invitation for the pair, if any.
func (b *Broker) Pending(inviterID, recipientID string) (Invitation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.pending[pairKey{inviterID, recipientID}]
	if !ok {
		return Invitation{}, false
	}
	return *inv, true
}

func (b *Broker) sweep(ctx context.Context) {
	tick := time.NewTicker(b.ttl / 4)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			b.mu.Lock()
			for key, inv := range b.pending {
				if now.Sub(inv.CreatedAt) > b.ttl {
					inv.Status = StatusExpired
					delete(b.pending, key)
					b.log.Info("invitation expired",
						zap.String("inviter", key.inviterID),
						zap.String("recipient", key.recipientID))
				}
			}
			b.mu.Unlock()
		}
	}
}
