// Package event defines the notifications published on the fan-out substrate.
package event

import (
	"time"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// Kind names what happened. The value doubles as the wire name for the redis codec.
type Kind string

const (
	KindChatMessage            Kind = "chat_message"
	KindMessageRead            Kind = "message_read"
	KindAllMessagesRead        Kind = "all_messages_read"
	KindFriendRequestSent      Kind = "friend_request_sent"
	KindFriendRequestAccepted  Kind = "friend_request_accepted"
	KindFriendRequestRejected  Kind = "friend_request_rejected"
	KindFriendRequestCancelled Kind = "friend_request_cancelled"
	KindFriendRemoved          Kind = "friend_removed"
	KindAccountDeleted         Kind = "account_deleted"
	KindSessionLoggedOut       Kind = "session_logged_out"
)

// User is the public projection of an account carried inside events.
type User struct {
	ID       int64  `msgpack:"id"`
	UUID     string `msgpack:"uuid"`
	Username string `msgpack:"username"`
}

// UserFrom projects a stored user.
func UserFrom(u *store.User) *User {
	if u == nil {
		return nil
	}
	return &User{ID: u.ID, UUID: u.UUID, Username: u.Username}
}

// Message is a persisted message as carried by chat_message and message_read.
type Message struct {
	ID            int64     `msgpack:"id"`
	UUID          string    `msgpack:"uuid"`
	SenderID      int64     `msgpack:"sender_id"`
	RecipientID   int64     `msgpack:"recipient_id"`
	SenderUUID    string    `msgpack:"sender_uuid"`
	RecipientUUID string    `msgpack:"recipient_uuid"`
	Content       string    `msgpack:"content"`
	Read          bool      `msgpack:"read"`
	CreatedAt     time.Time `msgpack:"created_at"`
}

// MessageFrom builds the event copy of a stored message.
func MessageFrom(m *store.Message, sender, recipient *store.User) *Message {
	return &Message{
		ID:            m.ID,
		UUID:          m.UUID,
		SenderID:      m.SenderID,
		RecipientID:   m.RecipientID,
		SenderUUID:    sender.UUID,
		RecipientUUID: recipient.UUID,
		Content:       m.Content,
		Read:          m.Read,
		CreatedAt:     m.CreatedAt,
	}
}

// Event is published to a group. The same logical event is published once per
// participant group; OtherUser is the participant that is not the group owner.
type Event struct {
	Kind      Kind  `msgpack:"kind"`
	OtherUser *User `msgpack:"other_user,omitempty"`

	// Message is set for chat_message and message_read.
	Message *Message `msgpack:"message,omitempty"`

	// From and To identify the direction of the action: sender and recipient
	// of a read, requester and addressee of a friend request.
	From *User `msgpack:"from,omitempty"`
	To   *User `msgpack:"to,omitempty"`

	// Count is the number of messages flipped by all_messages_read.
	Count int64 `msgpack:"count,omitempty"`

	// Relation is how OtherUser related to the group owner before account_deleted.
	Relation store.Relation `msgpack:"relation,omitempty"`
}

// Clone returns a copy that can be mutated by a single receiver.
func (e *Event) Clone() *Event {
	cp := *e
	if e.Message != nil {
		m := *e.Message
		cp.Message = &m
	}
	return &cp
}
