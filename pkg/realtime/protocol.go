package realtime

import "encoding/json"

// Gateway control events. Broadcast events carry their own names (e.g.
// "MessageCreated") and use the same Frame shape.
const (
	EventSubscribe             = "subscribe"
	EventUnsubscribe           = "unsubscribe"
	EventPing                  = "ping"
	EventPong                  = "pong"
	EventConnectionEstablished = "connection_established"
	EventSubscriptionSucceeded = "subscription_succeeded"
	EventSubscriptionError     = "subscription_error"
)

// OnlineUsersChannel is the membership-tracked presence channel.
const OnlineUsersChannel = "online-users"

// Frame is one websocket message in either direction. Channel names are bare
// ("dm.<id>", not "private-dm.<id>").
type Frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Auth    string          `json:"auth,omitempty"`
}

type ConnectionEstablished struct {
	SocketID string `json:"socket_id"`
	// ActivityTimeout is the client ping interval in seconds.
	ActivityTimeout int `json:"activity_timeout"`
}

type SubscriptionError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// AuthResponse is the body returned by the channel authorization endpoint.
type AuthResponse struct {
	Auth        string          `json:"auth"`
	ChannelData json.RawMessage `json:"channel_data,omitempty"`
}

// NewFrame marshals data into a frame. Nil data leaves Data empty.
func NewFrame(event, channel string, data interface{}) ([]byte, error) {
	f := Frame{Event: event, Channel: channel}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		f.Data = raw
	}
	return json.Marshal(f)
}
