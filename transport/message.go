package transport

import "context"

// Button is an interactive choice attached to a message.
type Button struct {
	Label  string  `json:"label"`
	Action *Action `json:"action"`
}

// Message is an outbound reply. When PromptKey is set and Replace is true
// the adapter should edit the message previously sent with the same key
// instead of posting a new one.
type Message struct {
	ChatID    string     `json:"chatId"`
	ReplyTo   string     `json:"replyTo,omitempty"`
	Text      string     `json:"text"`
	Buttons   [][]Button `json:"buttons,omitempty"`
	PromptKey string     `json:"promptKey,omitempty"`
	Replace   bool       `json:"replace,omitempty"`
}

// Sink delivers outbound messages to the chat platform.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Handler processes one inbound payload and writes replies to sink.
type Handler interface {
	Handle(ctx context.Context, in Inbound, sink Sink) error
}
