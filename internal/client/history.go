package client

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/soyeahso/chatbridge/internal/ddp"
	"github.com/soyeahso/chatbridge/internal/domain"
)

// historyPageSize is the fixed page size for history fetches.
const historyPageSize = 10

// errRoomNotFound is the backend code for a room that does not exist yet.
// In livechat mode this is the normal state before the first message.
const errRoomNotFound = "error-invalid-room"

type historyResult struct {
	Messages []rawMessage `json:"messages"`
}

// loadHistory fetches one page of prior messages for the room. A nil since
// requests the most recent page. The returned slice is ascending by time.
// A room-not-found verdict is not an error: it reports roomMissing true
// with an empty result so the caller can defer the live subscription.
func (c *Client) loadHistory(ctx context.Context, roomID string, since *int64) (msgs []domain.Message, roomMissing bool, err error) {
	var sinceArg any
	if since != nil {
		sinceArg = millisDate{Millis: *since}
	}
	lastRead := millisDate{Millis: time.Now().UnixMilli()}

	res, err := c.transport.Call(ctx, "loadHistory", roomID, sinceArg, historyPageSize, lastRead)
	if err != nil {
		var remote *ddp.RemoteError
		if errors.As(err, &remote) && remote.Code == errRoomNotFound {
			c.log.Debug().Str("roomId", roomID).Msg("room does not exist yet")
			return nil, true, nil
		}
		return nil, false, wrap(KindHistory, err, "history load failed")
	}

	var page historyResult
	if err := json.Unmarshal(res, &page); err != nil {
		return nil, false, wrap(KindHistory, err, "history returned malformed result")
	}

	msgs = make([]domain.Message, 0, len(page.Messages))
	for _, raw := range page.Messages {
		msgs = append(msgs, c.toCanonical(raw))
	}

	// The backend returns pages in arbitrary order; numeric timestamp sort.
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Time < msgs[j].Time })

	return msgs, false, nil
}

// RequestOlderMessages fetches the page of messages preceding the given
// epoch-millisecond timestamp. A nil since pages back from now.
func (c *Client) RequestOlderMessages(ctx context.Context, since *int64) ([]domain.Message, error) {
	c.mu.Lock()
	roomID := c.roomID
	transport := c.transport
	c.mu.Unlock()

	if transport == nil {
		return nil, errf(KindConfiguration, "client is not initialized")
	}

	if since == nil {
		now := time.Now().UnixMilli()
		since = &now
	}

	msgs, missing, err := c.loadHistory(ctx, roomID, since)
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, nil
	}
	return msgs, nil
}
