// Package transport defines the boundary between the conversation core and
// a messaging platform. Implementations turn platform traffic into Events
// and deliver Replies; everything conversational happens behind the
// dispatcher.
package transport

import "context"

// Event is one inbound user interaction.
type Event struct {
	// UserID is the platform-stable user identity.
	UserID int64
	// Name is the user's display name as the platform reports it.
	Name string
	// Text is the message body. Empty for pure commands or bare images.
	Text string
	// Command is the slash command without the slash ("start", "settings",
	// "cancel"). Empty for plain messages.
	Command string
	// Selection is a structured option pick (button press or equivalent).
	Selection string
	// Image is an attached photo, nil when absent.
	Image *Image
}

// Image is a photo payload from the platform.
type Image struct {
	Data []byte
	MIME string
}

// Reply is one outbound message.
type Reply struct {
	// Text is markdown-flavored body text.
	Text string
	// Options, when non-empty, are choices to present (buttons, numbered
	// list, whatever the platform supports).
	Options []string
}

// Transport delivers events in and replies out.
type Transport interface {
	// Events returns the inbound stream. The channel closes when the
	// transport shuts down.
	Events() <-chan Event
	// Send delivers a reply to a user.
	Send(ctx context.Context, userID int64, reply Reply) error
	// Close releases the transport.
	Close() error
}
