package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/crosticlab/crostic-battle-backend/internal/types"
)

// ChatMessage lives only in the session's in-memory log; nothing persists it.
type ChatMessage struct {
	ID        string
	Sender    types.User
	Text      string
	Timestamp time.Time
}

// chat relays a message verbatim to every member, sender included, so the
// sender's UI renders from the broadcast rather than a local echo.
func (s *Session) chat(sender types.User, text string) error {
	if !s.member(sender.UserID) {
		return ErrNotAMember
	}

	msg := ChatMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now(),
	}
	s.chatLog = append(s.chatLog, msg)

	ts := msg.Timestamp
	s.broadcast(types.ServerMessage{
		Type:      types.EvtReceiveChatMessage,
		Sender:    &msg.Sender,
		Text:      msg.Text,
		Timestamp: &ts,
	})
	return nil
}
