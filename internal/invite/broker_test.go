package invite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/crosticlab/crostic-battle-backend/internal/presence"
	"github.com/crosticlab/crostic-battle-backend/internal/types"
)

var (
	alice = types.User{UserID: "u1", Name: "Alice"}
	bob   = types.User{UserID: "u2", Name: "Bob"}
)

func recvTyped(t *testing.T, ch <-chan types.ServerMessage, typ string) types.ServerMessage {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return types.ServerMessage{} // unreachable
		}
	}
}

func newTestBroker(t *testing.T, ttl time.Duration) (*Broker, *presence.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zaptest.NewLogger(t)
	registry := presence.NewRegistry(log)
	return NewBroker(ctx, registry, ttl, log), registry
}

func TestBroker_InviteOfflineRecipientFails(t *testing.T) {
	b, registry := newTestBroker(t, time.Minute)

	out := make(chan types.ServerMessage, 4)
	registry.Register(alice, out)

	err := b.Invite(alice, bob.UserID, "pz1", "Animals")
	assert.ErrorIs(t, err, ErrRecipientOffline)

	// And no record was created.
	_, ok := b.Pending(alice.UserID, bob.UserID)
	assert.False(t, ok)
}

func TestBroker_InviteDeliveredToRecipientOnly(t *testing.T) {
	b, registry := newTestBroker(t, time.Minute)

	aliceOut := make(chan types.ServerMessage, 4)
	bobOut := make(chan types.ServerMessage, 4)
	registry.Register(alice, aliceOut)
	registry.Register(bob, bobOut)

	require.NoError(t, b.Invite(alice, bob.UserID, "pz1", "Animals"))

	msg := recvTyped(t, bobOut, types.EvtReceiveInvitation)
	require.NotNil(t, msg.Inviter)
	assert.Equal(t, alice, *msg.Inviter)
	assert.Equal(t, "pz1", msg.PuzzleID)
	assert.Equal(t, "Animals", msg.PuzzleTitle)

	// The inviter only ever saw presence traffic.
	for len(aliceOut) > 0 {
		assert.Equal(t, types.EvtUpdateOnlineUsers, (<-aliceOut).Type)
	}

	inv, ok := b.Pending(alice.UserID, bob.UserID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, inv.Status)
}

func TestBroker_ReinviteSupersedes(t *testing.T) {
	b, registry := newTestBroker(t, time.Minute)

	registry.Register(alice, make(chan types.ServerMessage, 4))
	registry.Register(bob, make(chan types.ServerMessage, 8))

	require.NoError(t, b.Invite(alice, bob.UserID, "pz1", "Animals"))
	require.NoError(t, b.Invite(alice, bob.UserID, "pz2", "Plants"))

	inv, ok := b.Pending(alice.UserID, bob.UserID)
	require.True(t, ok)
	assert.Equal(t, "pz2", inv.PuzzleID)
}

func TestBroker_AcceptSignalsBothParties(t *testing.T) {
	b, registry := newTestBroker(t, time.Minute)

	aliceOut := make(chan types.ServerMessage, 8)
	bobOut := make(chan types.ServerMessage, 8)
	registry.Register(alice, aliceOut)
	registry.Register(bob, bobOut)

	require.NoError(t, b.Invite(alice, bob.UserID, "pz1", "Animals"))
	require.NoError(t, b.Accept(alice.UserID, bob, "pz1"))

	for _, out := range []chan types.ServerMessage{aliceOut, bobOut} {
		msg := recvTyped(t, out, types.EvtStartBattle)
		assert.Equal(t, "pz1", msg.PuzzleID)
	}

	// Accepted is terminal.
	_, ok := b.Pending(alice.UserID, bob.UserID)
	assert.False(t, ok)
	assert.ErrorIs(t, b.Accept(alice.UserID, bob, "pz1"), ErrNoPending)
}

func TestBroker_RejectIsQuietlyTerminal(t *testing.T) {
	b, registry := newTestBroker(t, time.Minute)

	aliceOut := make(chan types.ServerMessage, 8)
	registry.Register(alice, aliceOut)
	registry.Register(bob, make(chan types.ServerMessage, 8))
	for len(aliceOut) > 0 {
		<-aliceOut
	}

	require.NoError(t, b.Invite(alice, bob.UserID, "pz1", "Animals"))
	require.NoError(t, b.Reject(alice.UserID, bob.UserID))

	_, ok := b.Pending(alice.UserID, bob.UserID)
	assert.False(t, ok)
	// The inviter is not notified.
	assert.Empty(t, aliceOut)
}

func TestBroker_DiscardFromDropsInvitersPending(t *testing.T) {
	b, registry := newTestBroker(t, time.Minute)

	registry.Register(alice, make(chan types.ServerMessage, 4))
	registry.Register(bob, make(chan types.ServerMessage, 8))

	require.NoError(t, b.Invite(alice, bob.UserID, "pz1", "Animals"))
	b.DiscardFrom(alice.UserID)

	_, ok := b.Pending(alice.UserID, bob.UserID)
	assert.False(t, ok)
}

func TestBroker_ZeroTTLDisablesExpiry(t *testing.T) {
	b, registry := newTestBroker(t, 0)

	registry.Register(alice, make(chan types.ServerMessage, 4))
	registry.Register(bob, make(chan types.ServerMessage, 8))

	require.NoError(t, b.Invite(alice, bob.UserID, "pz1", "Animals"))

	// No sweeper runs, so the invitation stays pending indefinitely.
	time.Sleep(50 * time.Millisecond)
	inv, ok := b.Pending(alice.UserID, bob.UserID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, inv.Status)
}

func TestBroker_PendingInvitationExpires(t *testing.T) {
	b, registry := newTestBroker(t, 40*time.Millisecond)

	registry.Register(alice, make(chan types.ServerMessage, 4))
	registry.Register(bob, make(chan types.ServerMessage, 8))

	require.NoError(t, b.Invite(alice, bob.UserID, "pz1", "Animals"))

	assert.Eventually(t, func() bool {
		_, ok := b.Pending(alice.UserID, bob.UserID)
		return !ok
	}, time.Second, 10*time.Millisecond)
}
