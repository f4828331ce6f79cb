package client

import (
	"context"
	"encoding/json"

	"github.com/soyeahso/chatbridge/internal/ddp"
	"github.com/soyeahso/chatbridge/internal/domain"
)

// streamRoomMessages is the backend's room message stream name.
const streamRoomMessages = "stream-room-messages"

// attachSubscription subscribes to the room's message stream and starts
// the delivery loop. The subscription lives until the client is closed.
func (c *Client) attachSubscription(ctx context.Context, roomID string) error {
	subID, err := c.transport.Subscribe(ctx, streamRoomMessages, roomID, false)
	if err != nil {
		return wrap(KindSubscription, err, "could not subscribe to room messages")
	}

	c.log.Debug().Str("roomId", roomID).Str("subId", subID).Msg("room message stream ready")

	c.listenOnce.Do(func() {
		go c.eventLoop()
	})
	return nil
}

// eventLoop drains push events until the transport closes.
func (c *Client) eventLoop() {
	for ev := range c.transport.Events() {
		c.handleChanged(ev)
	}
	c.log.Debug().Msg("event stream closed")
}

// handleChanged filters and forwards one push event. Only the first entry
// of a batched payload is processed; additional entries are ignored.
// Messages authored by the local user are dropped to avoid echoing them
// back to the widget.
func (c *Client) handleChanged(ev ddp.ChangedEvent) {
	if ev.Collection != streamRoomMessages || len(ev.Args) == 0 {
		return
	}

	var raw rawMessage
	if err := json.Unmarshal(ev.Args[0], &raw); err != nil {
		c.log.Warn().Err(err).Msg("discarding malformed room message")
		return
	}

	if raw.User.ID == c.userID() {
		c.log.Debug().Str("msgId", raw.ID).Msg("dropping self-authored message")
		return
	}

	msg := c.toCanonical(raw)
	c.archiveMessage(msg)
	c.sink.Emit(domain.EventNewRemoteMessage, msg)
}
