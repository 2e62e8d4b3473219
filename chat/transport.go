package chat

import "context"

// Message is an inbound chat event as delivered by the transport.
type Message struct {
	Channel     string
	RoomID      string
	UserID      string
	Username    string
	DisplayName string
	Text        string
	// Emotes are the platform emote names attached to this message by the
	// sender's client.
	Emotes []string
}

// Actions is the outbound surface handed to subscribers along with each
// message; it acts on the connection the message arrived on.
type Actions interface {
	Say(ctx context.Context, channel, text string) error
	Ban(ctx context.Context, channel, user, reason string) error
}

// MessageCallback receives every inbound message that no admin callback vetoed.
type MessageCallback func(actions Actions, msg Message)

// AdminCallback sees every inbound message before the message callbacks.
// Returning false suppresses the message for all remaining subscribers.
type AdminCallback func(actions Actions, msg Message) bool

// Transport is one live session to the chat service under a single account
// identity. Connect is asynchronous; connection state is observed through
// IsConnected and the OnConnect/OnJoin hooks. Implementations throttle
// outbound sends themselves.
type Transport interface {
	Connect() error
	Disconnect() error
	Reconnect() error
	Join(channel string)
	Say(ctx context.Context, channel, text string) error
	Ban(ctx context.Context, channel, user, reason string) error
	IsConnected() bool
	JoinedChannels() []string

	OnMessage(fn func(Message))
	OnConnect(fn func())
	OnJoin(fn func(channel string))
	OnHosted(fn func(channel, hostedBy string))
	OnRaid(fn func(channel, raider string))
	OnUserBanned(fn func(channel, user string))
}
