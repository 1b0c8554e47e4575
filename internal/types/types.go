package types

import "time"

// User is the identity attached to every realtime event. The platform's auth
// layer issues it; this subsystem only carries it around.
type User struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// ClientMessage is the union of every client -> server event.
// Type selects which fields are meaningful.
type ClientMessage struct {
	Type string `json:"type"`

	User        *User  `json:"user,omitempty"`        // userConnected, joinBattle, leaveBattle, playerAction
	PuzzleID    string `json:"puzzleId,omitempty"`    // sendInvitation, acceptInvitation, joinBattle, leaveBattle, playerAction, sendChatMessage
	PuzzleTitle string `json:"puzzleTitle,omitempty"` // sendInvitation
	RecipientID string `json:"recipientId,omitempty"` // sendInvitation
	InviterID   string `json:"inviterId,omitempty"`   // acceptInvitation

	ClueID         int    `json:"clueId,omitempty"`         // playerAction
	LetterPosition int    `json:"letterPosition,omitempty"` // playerAction
	Letter         string `json:"letter"`                   // playerAction; "" means delete

	Message string `json:"message,omitempty"` // sendChatMessage
}

// Client -> server event names.
const (
	EvtUserConnected    = "userConnected"
	EvtSendInvitation   = "sendInvitation"
	EvtAcceptInvitation = "acceptInvitation"
	EvtJoinBattle       = "joinBattle"
	EvtLeaveBattle      = "leaveBattle"
	EvtPlayerAction     = "playerAction"
	EvtSendChatMessage  = "sendChatMessage"
)

// Server -> client event names.
const (
	EvtUpdateOnlineUsers  = "updateOnlineUsers"
	EvtReceiveInvitation  = "receiveInvitation"
	EvtStartBattle        = "startBattle"
	EvtBattleUpdate       = "battleUpdate"
	EvtGameWon            = "gameWon"
	EvtReceiveChatMessage = "receiveChatMessage"
	EvtError              = "error"
)

// ServerMessage is the union of every server -> client event.
type ServerMessage struct {
	Type string `json:"type"`

	Users []User `json:"users,omitempty"` // updateOnlineUsers; always a full snapshot, never a diff

	Inviter     *User  `json:"inviter,omitempty"`     // receiveInvitation
	PuzzleID    string `json:"puzzleId,omitempty"`    // receiveInvitation, startBattle
	PuzzleTitle string `json:"puzzleTitle,omitempty"` // receiveInvitation

	// battleUpdate. GameState maps user_id -> answer key ("clueId_pos") -> letter;
	// ClueStatuses maps user_id -> clue id -> "incomplete"|"correct"|"incorrect".
	// StartTime is Unix milliseconds, zero until the session is active.
	Players      []User                       `json:"players,omitempty"`
	GameState    map[string]map[string]string `json:"gameState,omitempty"`
	ClueStatuses map[string]map[string]string `json:"clueStatuses,omitempty"`
	StartTime    int64                        `json:"startTime,omitempty"`

	Winner *User `json:"winner,omitempty"` // gameWon

	// receiveChatMessage
	Sender    *User      `json:"sender,omitempty"`
	Text      string     `json:"text,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// error
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}
