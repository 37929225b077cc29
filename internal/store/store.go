package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by lookups when no matching row exists.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would duplicate an existing row.
	ErrConflict = errors.New("conflict")
)

// User represents an account in the system.
type User struct {
	ID           int64
	UUID         string // public identifier used in URLs and on the wire
	Username     string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// Message represents a persisted direct message.
// Only Read ever changes after creation, and only from false to true.
type Message struct {
	ID          int64
	UUID        string
	SenderID    int64
	RecipientID int64
	Content     string
	Read        bool
	CreatedAt   time.Time
}

// OtherUserID returns the participant of the message that is not userID.
func (m *Message) OtherUserID(userID int64) int64 {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

// RecentChat is the latest message of a conversation plus the unread count for the viewer.
type RecentChat struct {
	CounterpartID int64
	LastMessage   Message
	UnreadCount   int64
}

// FriendStatus defines friend relationship status.
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
)

// Friend represents a friend relationship. For pending rows UserID sent the request to FriendID.
type Friend struct {
	ID        int64
	UserID    int64
	FriendID  int64
	Status    FriendStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OtherUserID returns the side of the relationship that is not userID.
func (f *Friend) OtherUserID(userID int64) int64 {
	if f.UserID == userID {
		return f.FriendID
	}
	return f.UserID
}

// Relation describes how another user relates to a given user.
type Relation string

const (
	RelationFriend   Relation = "friend"
	RelationIncoming Relation = "incoming" // the other user sent a pending request
	RelationOutgoing Relation = "outgoing" // a pending request was sent to the other user
)

// Invert returns the same relation seen from the other side.
func (r Relation) Invert() Relation {
	switch r {
	case RelationIncoming:
		return RelationOutgoing
	case RelationOutgoing:
		return RelationIncoming
	default:
		return r
	}
}

// RelationOf returns the relation of the other side of f as seen by userID.
func RelationOf(f *Friend, userID int64) Relation {
	if f.Status == FriendStatusAccepted {
		return RelationFriend
	}
	if f.UserID == userID {
		return RelationOutgoing
	}
	return RelationIncoming
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new active user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID, including deleted accounts.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUUID retrieves a user by public identifier, including deleted accounts.
	GetUserByUUID(ctx context.Context, uuid string) (*User, error)

	// GetUserByUsername retrieves an active user by username, case-insensitively.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// DeleteUser deactivates the account and removes all of its friendship rows in one transaction.
	DeleteUser(ctx context.Context, id int64) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists an unread message and returns it once committed.
	CreateMessage(ctx context.Context, senderID, recipientID int64, content string) (*Message, error)

	// MarkMessageRead flips read on a single unread message and returns the number of rows changed.
	MarkMessageRead(ctx context.Context, messageID int64) (int64, error)

	// MarkConversationRead flips read on every unread message from senderID to recipientID
	// and returns the number of rows changed.
	MarkConversationRead(ctx context.Context, senderID, recipientID int64) (int64, error)

	// ListConversation returns messages between two users, newest first.
	// If beforeID is provided, returns messages older than that ID.
	ListConversation(ctx context.Context, userID, otherID int64, limit int, beforeID *int64) ([]*Message, error)

	// ListRecentChats returns the latest message per counterpart, newest conversation first.
	ListRecentChats(ctx context.Context, userID int64) ([]*RecentChat, error)
}

// FriendStore handles friend persistence.
type FriendStore interface {
	// CreateFriendRequest creates a new friend request (pending status). It fails with
	// ErrConflict when any row already links the two users, in either direction.
	CreateFriendRequest(ctx context.Context, userID, friendID int64) (*Friend, error)

	// UpdateFriendStatus updates the status of a friendship.
	UpdateFriendStatus(ctx context.Context, userID, friendID int64, status FriendStatus) error

	// GetFriendship retrieves a friendship between two users (in either direction).
	GetFriendship(ctx context.Context, userID, friendID int64) (*Friend, error)

	// ListFriends lists friendships for a user, optionally filtered by status.
	ListFriends(ctx context.Context, userID int64, status *FriendStatus) ([]*Friend, error)

	// IsFriend checks if two users are mutual friends (accepted status in either direction).
	IsFriend(ctx context.Context, userID, friendID int64) (bool, error)

	// DeleteFriendship removes the row from userID to friendID if it still has status.
	DeleteFriendship(ctx context.Context, userID, friendID int64, status FriendStatus) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	FriendStore

	// Close closes the underlying database connection.
	Close() error
}
