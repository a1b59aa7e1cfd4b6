// Package relay streams player notifications to chat surfaces over a
// WebSocket. A surface connects, subscribes to a guild (or every guild),
// and receives each event as a JSON message.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/ekaya-inc/apiary-engine/pkg/notify"
)

// Message type constants for the relay WebSocket protocol.
const (
	TypeSubscribe  = "subscribe"
	TypeSubscribed = "subscribed"
	TypeEvent      = "event"
	TypeError      = "error"
)

// Envelope is used for initial JSON decoding to determine the message type.
type Envelope struct {
	Type string `json:"type"`
}

// SubscribeMessage is the first message a surface sends. A zero GuildID
// subscribes to every guild.
type SubscribeMessage struct {
	Type    string `json:"type"`
	GuildID int64  `json:"guild_id,omitempty"`
}

// SubscribedMessage confirms a subscription.
type SubscribedMessage struct {
	Type    string `json:"type"`
	GuildID int64  `json:"guild_id,omitempty"`
}

// EventMessage carries one notification.
type EventMessage struct {
	Type  string       `json:"type"`
	Event notify.Event `json:"event"`
}

// ErrorMessage is sent before the server closes a session it cannot serve.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ParseMessage decodes a JSON message and returns the typed message.
func ParseMessage(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse message envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypeSubscribe:
		msg = &SubscribeMessage{}
	case TypeSubscribed:
		msg = &SubscribedMessage{}
	case TypeEvent:
		msg = &EventMessage{}
	case TypeError:
		msg = &ErrorMessage{}
	default:
		return nil, fmt.Errorf("unknown message type: %q", env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to parse %s message: %w", env.Type, err)
	}
	return msg, nil
}
