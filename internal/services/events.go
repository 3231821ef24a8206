package services

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventName is the event name clients bind to.
type EventName string

const (
	EventMessageCreated   EventName = "MessageCreated"
	EventMessageConfirmed EventName = "MessageConfirmed"
	EventMessageRead      EventName = "MessageRead"
	EventTypingStarted    EventName = "TypingStarted"
	EventChatMemberKicked EventName = "ChatMemberKicked"
	EventInviteSent       EventName = "invite.sent"
	EventInviteAccepted   EventName = "invite.accepted"
	EventInviteDeclined   EventName = "invite.declined"
	EventPresenceChanged  EventName = "presence.changed"
)

// BroadcastEvent is the closed set of events the engine publishes. Each variant owns
// its payload shape.
type BroadcastEvent interface {
	Name() EventName
	broadcastEvent()
}

type MessageCreated struct {
	Message WireMessage `json:"message"`
}

type MessageConfirmed struct {
	Message WireMessage `json:"message"`
	TempID  string      `json:"temp_id"`
}

type MessageRead struct {
	ChatID            string `json:"chat_id"`
	LastReadMessageID string `json:"last_read_message_id"`
	ReaderPublicID    string `json:"reader_public_id"`
}

type TypingStarted struct {
	UserPublicID string `json:"user_public_id"`
}

type KickedUser struct {
	PublicID string `json:"public_id"`
	Name     string `json:"name"`
}

type ChatMemberKicked struct {
	ChatPublicID string     `json:"chat_public_id"`
	User         KickedUser `json:"user"`
}

type InviteSent struct {
	Invite WireInvite `json:"invite"`
}

type InviteAccepted struct {
	Invite WireInvite `json:"invite"`
	Chat   WireChat   `json:"chat"`
}

type InviteDeclined struct {
	Invite WireInvite `json:"invite"`
}

// PresenceChanged carries LastSeen as unix seconds.
type PresenceChanged struct {
	PublicID    string `json:"public_id"`
	Status      string `json:"status"`
	LastSeen    int64  `json:"last_seen"`
	DisplayName string `json:"name"`
	Avatar      string `json:"avatar"`
}

func (MessageCreated) Name() EventName   { return EventMessageCreated }
func (MessageConfirmed) Name() EventName { return EventMessageConfirmed }
func (MessageRead) Name() EventName      { return EventMessageRead }
func (TypingStarted) Name() EventName    { return EventTypingStarted }
func (ChatMemberKicked) Name() EventName { return EventChatMemberKicked }
func (InviteSent) Name() EventName       { return EventInviteSent }
func (InviteAccepted) Name() EventName   { return EventInviteAccepted }
func (InviteDeclined) Name() EventName   { return EventInviteDeclined }
func (PresenceChanged) Name() EventName  { return EventPresenceChanged }

func (MessageCreated) broadcastEvent()   {}
func (MessageConfirmed) broadcastEvent() {}
func (MessageRead) broadcastEvent()      {}
func (TypingStarted) broadcastEvent()    {}
func (ChatMemberKicked) broadcastEvent() {}
func (InviteSent) broadcastEvent()       {}
func (InviteAccepted) broadcastEvent()   {}
func (InviteDeclined) broadcastEvent()   {}
func (PresenceChanged) broadcastEvent()  {}

// Publisher delivers one event to one channel. Implementations must keep publish
// order per channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, event BroadcastEvent) error
}

// Envelope is the frame written to the transport and forwarded verbatim to
// websocket subscribers.
type Envelope struct {
	Event   EventName       `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// EncodeEnvelope marshals an event into its transport frame.
func EncodeEnvelope(channel string, event BroadcastEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event.Name(), err)
	}
	return json.Marshal(Envelope{Event: event.Name(), Channel: channel, Data: data})
}
