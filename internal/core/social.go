package core

import (
	"context"

	"github.com/vovakirdan/wirechat-dm/internal/event"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// Related is a user affected by an account deletion. Relation is how the deleted
// account related to that user.
type Related struct {
	UserID   int64
	Relation store.Relation
}

// FriendRequestSent announces a new pending request.
func (c *Core) FriendRequestSent(ctx context.Context, requester, addressee *store.User) {
	c.publishSocial(ctx, event.KindFriendRequestSent, requester, addressee)
}

// FriendRequestAccepted announces that addressee accepted the request of requester.
func (c *Core) FriendRequestAccepted(ctx context.Context, requester, addressee *store.User) {
	c.publishSocial(ctx, event.KindFriendRequestAccepted, requester, addressee)
}

// FriendRequestRejected announces that addressee rejected the request of requester.
func (c *Core) FriendRequestRejected(ctx context.Context, requester, addressee *store.User) {
	c.publishSocial(ctx, event.KindFriendRequestRejected, requester, addressee)
}

// FriendRequestCancelled announces that requester withdrew its request.
func (c *Core) FriendRequestCancelled(ctx context.Context, requester, addressee *store.User) {
	c.publishSocial(ctx, event.KindFriendRequestCancelled, requester, addressee)
}

// FriendRemoved announces that remover ended the friendship with removed.
func (c *Core) FriendRemoved(ctx context.Context, remover, removed *store.User) {
	c.publishSocial(ctx, event.KindFriendRemoved, remover, removed)
}

// AccountDeleted notifies every related user and then the deleted user's own connections.
func (c *Core) AccountDeleted(ctx context.Context, deleted *store.User, related []Related) {
	gone := event.UserFrom(deleted)
	for _, r := range related {
		c.publish(ctx, GroupForUser(r.UserID), &event.Event{
			Kind:      event.KindAccountDeleted,
			OtherUser: gone,
			From:      gone,
			Relation:  r.Relation,
		})
	}
	c.publish(ctx, GroupForUser(deleted.ID), &event.Event{
		Kind:      event.KindAccountDeleted,
		OtherUser: gone,
		From:      gone,
	})
}

// SessionLoggedOut terminates every connection opened with sessionID.
func (c *Core) SessionLoggedOut(ctx context.Context, sessionID string) {
	c.publish(ctx, GroupForSession(sessionID), &event.Event{Kind: event.KindSessionLoggedOut})
}

func (c *Core) publishSocial(ctx context.Context, kind event.Kind, from, to *store.User) {
	a, b := event.UserFrom(from), event.UserFrom(to)
	c.publishToBoth(ctx, event.Event{Kind: kind, From: a, To: b}, a, b)
}

func (s *Session) onSocial(ctx context.Context, ev *event.Event) {
	other, from := ev.OtherUser, ev.From
	if other == nil || from == nil || ev.To == nil {
		return
	}

	isRequester := from.ID == s.self.ID
	friendsView := s.location.IsFriendsView()
	upd := &proto.SocialUpdate{OtherUserUUID: other.UUID, OtherUsername: other.Username}
	var status *proto.SocialUpdate

	switch ev.Kind {
	case event.KindFriendRequestSent:
		upd.Type = proto.OutboundTypeFriendRequestSent
		if isRequester {
			s.count(upd, friendsView, proto.SectionOutgoing, 1)
			s.addRow(upd, proto.SectionOutgoing, other)
		} else {
			s.count(upd, true, proto.SectionIncoming, 1)
			s.addRow(upd, proto.SectionIncoming, other)
		}

	case event.KindFriendRequestRejected, event.KindFriendRequestCancelled:
		upd.Type = proto.OutboundTypeFriendRequestRejected
		if ev.Kind == event.KindFriendRequestCancelled {
			upd.Type = proto.OutboundTypeFriendRequestCancelled
		}
		if isRequester {
			s.count(upd, friendsView, proto.SectionOutgoing, -1)
			s.removeRow(upd, proto.SectionOutgoing)
		} else {
			s.count(upd, true, proto.SectionIncoming, -1)
			s.removeRow(upd, proto.SectionIncoming)
		}

	case event.KindFriendRequestAccepted:
		upd.Type = proto.OutboundTypeFriendRequestAccepted
		if isRequester {
			s.count(upd, friendsView, proto.SectionOutgoing, -1)
			s.removeRow(upd, proto.SectionOutgoing)
		} else {
			s.count(upd, true, proto.SectionIncoming, -1)
			s.removeRow(upd, proto.SectionIncoming)
		}
		s.count(upd, friendsView, proto.SectionFriends, 1)
		s.addRow(upd, proto.SectionFriends, other)
		if s.viewing(other.ID) {
			s.areFriends = true
			status = proto.NewFriendshipStatus(other.UUID, true)
		}

	case event.KindFriendRemoved:
		upd.Type = proto.OutboundTypeFriendshipRemoved
		s.count(upd, friendsView, proto.SectionFriends, -1)
		s.removeRow(upd, proto.SectionFriends)
		if s.viewing(other.ID) {
			s.areFriends = false
			f := false
			upd.AreFriends = &f
		}
	}

	if !upd.Empty() {
		s.emit(ctx, upd)
	}
	if status != nil {
		s.emit(ctx, status)
	}
}

func (s *Session) onAccountDeleted(ctx context.Context, ev *event.Event) error {
	other := ev.OtherUser
	if other == nil {
		return nil
	}
	if other.ID == s.self.ID {
		s.emit(ctx, &proto.SocialUpdate{
			Type:          proto.OutboundTypeAccountDeleted,
			OtherUserUUID: other.UUID,
			Self:          true,
		})
		return ErrSessionTerminated
	}

	friendsView := s.location.IsFriendsView()
	upd := &proto.SocialUpdate{
		Type:          proto.OutboundTypeAccountDeleted,
		OtherUserUUID: other.UUID,
		OtherUsername: other.Username,
	}
	switch ev.Relation {
	case store.RelationFriend:
		s.count(upd, friendsView, proto.SectionFriends, -1)
		s.removeRow(upd, proto.SectionFriends)
	case store.RelationIncoming:
		s.count(upd, true, proto.SectionIncoming, -1)
		s.removeRow(upd, proto.SectionIncoming)
	case store.RelationOutgoing:
		s.count(upd, friendsView, proto.SectionOutgoing, -1)
		s.removeRow(upd, proto.SectionOutgoing)
	}
	if s.viewing(other.ID) {
		s.areFriends = false
		f := false
		upd.AreFriends = &f
	}

	if !upd.Empty() {
		s.emit(ctx, upd)
	}
	return nil
}

func (s *Session) count(upd *proto.SocialUpdate, when bool, section proto.Section, delta int) {
	if !when {
		return
	}
	upd.Counters = append(upd.Counters, proto.CounterDelta{Section: section, Delta: delta})
}

func (s *Session) addRow(upd *proto.SocialUpdate, section proto.Section, other *event.User) {
	if !s.location.Shows(section) {
		return
	}
	html, err := s.core.render.UserRowHTML(other, section)
	if err != nil {
		s.log.Error().Err(err).Msg("render user row")
		return
	}
	upd.Section = section
	upd.HTML = html
}

func (s *Session) removeRow(upd *proto.SocialUpdate, section proto.Section) {
	if !s.location.Shows(section) {
		return
	}
	upd.Section = section
	upd.RemoveRow = true
}
