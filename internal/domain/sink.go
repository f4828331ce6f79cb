package domain

// EventNewRemoteMessage is the event name used when forwarding messages
// pushed by the remote party to the widget adapter.
const EventNewRemoteMessage = "ucw:newRemoteMessage"

// Sink receives named events pushed from the backend. The adapter layer
// injects one at construction and relays events to the widget.
type Sink interface {
	Emit(event string, msg Message)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event string, msg Message)

// Emit calls f.
func (f SinkFunc) Emit(event string, msg Message) { f(event, msg) }

// InitResult is the terminal outcome of conversation initialization.
type InitResult struct {
	OK           bool      `json:"ok"`
	User         Author    `json:"user,omitempty"`
	MessageCount int       `json:"messageCount"`
	LastMessages []Message `json:"lastMessages,omitempty"`
	Message      string    `json:"message,omitempty"` // failure reason when OK is false
}
