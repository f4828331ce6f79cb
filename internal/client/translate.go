package client

import (
	"time"

	"github.com/soyeahso/chatbridge/internal/domain"
)

// millisDate is the backend's {"$date": ms} timestamp wrapper.
type millisDate struct {
	Millis int64 `json:"$date"`
}

func (d millisDate) Time() time.Time {
	if d.Millis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(d.Millis)
}

// rawUser is the author block of a backend wire message.
type rawUser struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

// rawMessage is the backend's wire message shape.
type rawMessage struct {
	ID        string     `json:"_id"`
	RoomID    string     `json:"rid"`
	Text      string     `json:"msg"`
	Timestamp millisDate `json:"ts"`
	User      rawUser    `json:"u"`
}

// toCanonical maps a wire message to the canonical record. Translation is
// total: missing nested fields yield zero values, never a panic. The first
// avatar observed on any message is cached best-effort for display.
func (c *Client) toCanonical(raw rawMessage) domain.Message {
	username := raw.User.Name
	if username == "" {
		username = raw.User.Username
	}

	direction := domain.DirectionRemote
	if raw.User.ID != "" && raw.User.ID == c.userID() {
		direction = domain.DirectionLocal
	}

	if raw.User.Avatar != "" {
		c.cacheAvatar(raw.User.Avatar)
	}

	return domain.Message{
		ID:        raw.ID,
		Time:      raw.Timestamp.Millis,
		From:      domain.Author{Username: username, Avatar: raw.User.Avatar},
		Text:      raw.Text,
		Direction: direction,
	}
}

// outboundParams maps a canonical message to the backend send-message
// arguments. Only id and text cross the wire; the backend fills in room
// and sender context server-side.
func outboundParams(id, roomID, text string) map[string]any {
	return map[string]any{
		"_id": id,
		"rid": roomID,
		"msg": text,
	}
}

func (c *Client) cacheAvatar(avatar string) {
	c.mu.Lock()
	if c.avatar == "" {
		c.avatar = avatar
	}
	c.mu.Unlock()
}

func (c *Client) userID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth.UserID
}
