package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	InboundTypePageLoad   = "page_load"
	InboundTypeChatLoad   = "chat_load"
	InboundTypeChatUnload = "chat_unload"
	InboundTypeChatSend   = "chat_send"
)

var (
	// ErrMalformed is returned for payloads that are not valid JSON objects or miss required fields.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnknownType is returned for envelopes with an unrecognised type.
	ErrUnknownType = errors.New("unknown message type")
)

// PageLoad reports the page the client navigated to.
type PageLoad struct {
	Path string
}

// ChatLoad opens the direct-message view of the user with the given public id.
type ChatLoad struct {
	Identity string
}

// ChatUnload closes the current view.
type ChatUnload struct{}

// ChatSend sends a message to the counterpart of the current view.
type ChatSend struct {
	Content string
}

type inbound struct {
	Type     *string `json:"type"`
	Path     *string `json:"path"`
	Identity *string `json:"identity"`
	Content  *string `json:"content"`
}

// DecodeInbound parses one client frame into *PageLoad, *ChatLoad, *ChatUnload or *ChatSend.
func DecodeInbound(raw []byte) (any, error) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if in.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch *in.Type {
	case InboundTypePageLoad:
		if in.Path == nil {
			return nil, fmt.Errorf("%w: missing path", ErrMalformed)
		}
		return &PageLoad{Path: *in.Path}, nil
	case InboundTypeChatLoad:
		if in.Identity == nil {
			return nil, fmt.Errorf("%w: missing identity", ErrMalformed)
		}
		return &ChatLoad{Identity: *in.Identity}, nil
	case InboundTypeChatUnload:
		return &ChatUnload{}, nil
	case InboundTypeChatSend:
		if in.Content == nil {
			return nil, fmt.Errorf("%w: missing content", ErrMalformed)
		}
		return &ChatSend{Content: *in.Content}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, *in.Type)
	}
}
