package core

import (
	"path"
	"strings"

	"github.com/vovakirdan/wirechat-dm/internal/proto"
)

// Page is a client page a connection can be viewing.
type Page int

const (
	PageNone Page = iota
	PageHome
	PageChat
	PageFriends
	PageIncoming
	PageOutgoing
	PageAddFriend
)

// Location is what a connection is currently viewing.
// Identity is the counterpart public id for PageChat.
type Location struct {
	Page     Page
	Identity string
}

// ResolvePath maps a client path to a location. Query and fragment are ignored.
func ResolvePath(raw string) (Location, bool) {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if !strings.HasPrefix(raw, "/") {
		return Location{}, false
	}

	switch p := path.Clean(raw); p {
	case "/":
		return Location{Page: PageHome}, true
	case "/friends", "/friends/all":
		return Location{Page: PageFriends}, true
	case "/friends/incoming":
		return Location{Page: PageIncoming}, true
	case "/friends/outgoing":
		return Location{Page: PageOutgoing}, true
	case "/friends/add":
		return Location{Page: PageAddFriend}, true
	default:
		id, ok := strings.CutPrefix(p, "/chat/")
		if !ok || id == "" || strings.Contains(id, "/") {
			return Location{}, false
		}
		return Location{Page: PageChat, Identity: id}, true
	}
}

// IsFriendsView reports whether the location is one of the friends pages.
func (l Location) IsFriendsView() bool {
	switch l.Page {
	case PageFriends, PageIncoming, PageOutgoing, PageAddFriend:
		return true
	default:
		return false
	}
}

// Shows reports whether the location displays the rows of section.
func (l Location) Shows(section proto.Section) bool {
	switch section {
	case proto.SectionFriends:
		return l.Page == PageFriends
	case proto.SectionIncoming:
		return l.Page == PageIncoming
	case proto.SectionOutgoing:
		return l.Page == PageOutgoing
	default:
		return false
	}
}
