// Package domain defines the canonical message shapes exchanged with the
// chat widget, independent of the backend wire format.
package domain

// Direction indicates who authored a message relative to this client.
type Direction int

const (
	// DirectionLocal marks messages authored by this client's user.
	DirectionLocal Direction = 1
	// DirectionRemote marks messages authored by the remote party.
	DirectionRemote Direction = 2
)

// Author identifies the sender of a message as shown by the widget.
type Author struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Message is the canonical message record. It is the only message shape
// crossing the client's external boundary.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Time      int64     `json:"time"` // epoch milliseconds
	From      Author    `json:"from"`
	Text      string    `json:"text"`
	Direction Direction `json:"direction"`

	// Unsupported by this backend's message shape; always nil.
	Buttons    any `json:"buttons"`
	Elements   any `json:"elements"`
	Attachment any `json:"attachment"`
}
