package proto

import "time"

const (
	OutboundTypeRecentChat             = "recent_chat_html"
	OutboundTypeMessage                = "message_html"
	OutboundTypeMessageRead            = "message_read"
	OutboundTypeAllMessagesRead        = "all_messages_read"
	OutboundTypeFriendRequestSent      = "friend_request_sent"
	OutboundTypeFriendRequestAccepted  = "friend_request_accepted"
	OutboundTypeFriendRequestRejected  = "friend_request_rejected"
	OutboundTypeFriendRequestCancelled = "friend_request_cancelled"
	OutboundTypeFriendshipCreated      = "friendship_created"
	OutboundTypeFriendshipRemoved      = "friendship_removed"
	OutboundTypeAccountDeleted         = "account_deleted"
	OutboundTypeSessionLoggedOut       = "session_logged_out"
)

// UnreadDelta tells the client how to adjust the unread badge of a recent chat.
type UnreadDelta string

const (
	UnreadNone      UnreadDelta = "none"
	UnreadRead      UnreadDelta = "read"
	UnreadIncrement UnreadDelta = "increment"
)

// ReadAction tells the client what a read receipt changes on its page.
type ReadAction string

const (
	ActionReadIndicator   ReadAction = "read_indicator"
	ActionDecrementUnread ReadAction = "decrement_unread"
)

// Section names a list on the friends pages.
type Section string

const (
	SectionFriends  Section = "friends"
	SectionIncoming Section = "incoming"
	SectionOutgoing Section = "outgoing"
)

// Outbound is a frame sent to the client. Every frame carries exactly one type.
type Outbound interface {
	OutboundType() string
}

// RecentChat updates the conversation summary row of one counterpart.
type RecentChat struct {
	Type          string      `json:"type"`
	OtherUserUUID string      `json:"otherUserUuid"`
	UnreadDelta   UnreadDelta `json:"unreadDelta"`
	Preview       string      `json:"preview"`
	HTML          string      `json:"html"`
}

func (m *RecentChat) OutboundType() string { return m.Type }

// NewRecentChat builds a recent_chat_html frame.
func NewRecentChat(otherUUID string, delta UnreadDelta, preview, html string) *RecentChat {
	return &RecentChat{
		Type:          OutboundTypeRecentChat,
		OtherUserUUID: otherUUID,
		UnreadDelta:   delta,
		Preview:       preview,
		HTML:          html,
	}
}

// MessageView is the client projection of a message.
type MessageView struct {
	UUID          string    `json:"uuid"`
	SenderUUID    string    `json:"senderUuid"`
	RecipientUUID string    `json:"recipientUuid"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
	Read          bool      `json:"read"`
}

// Message carries the full rendered message for the open conversation.
type Message struct {
	Type          string      `json:"type"`
	OtherUserUUID string      `json:"otherUserUuid"`
	Message       MessageView `json:"message"`
	HTML          string      `json:"html"`
}

func (m *Message) OutboundType() string { return m.Type }

// NewMessage builds a message_html frame.
func NewMessage(otherUUID string, view MessageView, html string) *Message {
	return &Message{
		Type:          OutboundTypeMessage,
		OtherUserUUID: otherUUID,
		Message:       view,
		HTML:          html,
	}
}

// ReadReceipt is a message_read or all_messages_read frame.
type ReadReceipt struct {
	Type          string     `json:"type"`
	OtherUserUUID string     `json:"otherUserUuid"`
	MessageUUID   string     `json:"messageUuid,omitempty"`
	SenderUUID    string     `json:"senderUuid,omitempty"`
	RecipientUUID string     `json:"recipientUuid"`
	Action        ReadAction `json:"action"`
	Count         int64      `json:"count"`
}

func (m *ReadReceipt) OutboundType() string { return m.Type }

// NewMessageRead builds a message_read frame for a single message.
func NewMessageRead(otherUUID, messageUUID, recipientUUID string, action ReadAction) *ReadReceipt {
	return &ReadReceipt{
		Type:          OutboundTypeMessageRead,
		OtherUserUUID: otherUUID,
		MessageUUID:   messageUUID,
		RecipientUUID: recipientUUID,
		Action:        action,
		Count:         1,
	}
}

// NewAllMessagesRead builds an all_messages_read frame.
func NewAllMessagesRead(otherUUID, senderUUID, recipientUUID string, action ReadAction, count int64) *ReadReceipt {
	return &ReadReceipt{
		Type:          OutboundTypeAllMessagesRead,
		OtherUserUUID: otherUUID,
		SenderUUID:    senderUUID,
		RecipientUUID: recipientUUID,
		Action:        action,
		Count:         count,
	}
}

// CounterDelta adjusts a section counter on the friends pages.
type CounterDelta struct {
	Section Section `json:"section"`
	Delta   int     `json:"delta"`
}

// SocialUpdate reports a friendship lifecycle change for one other user.
// HTML, when set, is a row to add to Section; RemoveRow drops the row from Section.
type SocialUpdate struct {
	Type          string         `json:"type"`
	OtherUserUUID string         `json:"otherUserUuid"`
	OtherUsername string         `json:"otherUsername,omitempty"`
	Self          bool           `json:"self,omitempty"`
	Counters      []CounterDelta `json:"counters,omitempty"`
	Section       Section        `json:"section,omitempty"`
	HTML          string         `json:"html,omitempty"`
	RemoveRow     bool           `json:"removeRow,omitempty"`
	AreFriends    *bool          `json:"areFriends,omitempty"`
}

func (m *SocialUpdate) OutboundType() string { return m.Type }

// Empty reports whether the update would change nothing on the client.
func (m *SocialUpdate) Empty() bool {
	return !m.Self && len(m.Counters) == 0 && m.HTML == "" && !m.RemoveRow && m.AreFriends == nil
}

// NewFriendshipStatus builds the status-only friendship_created/friendship_removed frame.
func NewFriendshipStatus(otherUUID string, areFriends bool) *SocialUpdate {
	typ := OutboundTypeFriendshipRemoved
	if areFriends {
		typ = OutboundTypeFriendshipCreated
	}
	return &SocialUpdate{Type: typ, OtherUserUUID: otherUUID, AreFriends: &areFriends}
}

// SessionLoggedOut tells the client its session ended elsewhere.
type SessionLoggedOut struct {
	Type string `json:"type"`
}

func (m *SessionLoggedOut) OutboundType() string { return m.Type }

// NewSessionLoggedOut builds a session_logged_out frame.
func NewSessionLoggedOut() *SessionLoggedOut {
	return &SessionLoggedOut{Type: OutboundTypeSessionLoggedOut}
}
