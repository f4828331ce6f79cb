package client

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/chatbridge/internal/config"
	"github.com/soyeahso/chatbridge/internal/ddp"
	"github.com/soyeahso/chatbridge/internal/domain"
)

// errNoAgentOnline is the backend code when a livechat message cannot be
// routed to an agent.
const errNoAgentOnline = "no-agent-online"

type livechatSendResult struct {
	RoomID string `json:"rid"`
}

// Send posts a canonical message to the backend. Delivery failures are
// returned to the caller, never swallowed.
func (c *Client) Send(ctx context.Context, msg domain.Message) error {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return errf(KindConfiguration, "client is not initialized")
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	if c.cfg.Mode == config.ModeLivechat {
		return c.sendLivechat(ctx, id, msg.Text)
	}
	return c.sendPrivate(ctx, id, msg.Text)
}

func (c *Client) sendPrivate(ctx context.Context, id, text string) error {
	_, err := c.transport.Call(ctx, "sendMessage", outboundParams(id, c.cfg.Private.Channel, text))
	if err != nil {
		return wrap(KindTransport, err, "send failed")
	}

	c.mu.Lock()
	c.msgCount++
	c.mu.Unlock()

	c.archiveOutbound(id, text)
	return nil
}

// sendLivechat posts through the livechat endpoint. The first successful
// send while a deferred subscription is pending also establishes the live
// subscription, using the room id echoed back by the backend. The flag is
// consumed under the lock so two racing sends trigger exactly one
// subscription.
func (c *Client) sendLivechat(ctx context.Context, id, text string) error {
	params := outboundParams(id, c.cfg.Livechat.Token, text)
	params["token"] = c.authToken()

	res, err := c.transport.Call(ctx, "sendMessageLivechat", params)
	if err != nil {
		var remote *ddp.RemoteError
		if errors.As(err, &remote) && remote.Code == errNoAgentOnline {
			return errf(KindPreflight,
				"no agent is online to receive the message; check that department %q has online agents",
				c.cfg.Livechat.Department)
		}
		return wrap(KindTransport, err, "livechat send failed")
	}

	var sent livechatSendResult
	if err := json.Unmarshal(res, &sent); err != nil {
		c.log.Warn().Err(err).Msg("livechat send returned malformed result")
	}

	c.mu.Lock()
	if sent.RoomID != "" {
		c.roomID = sent.RoomID
	}
	subscribeNow := c.deferredSub && c.msgCount == 0
	if subscribeNow {
		c.deferredSub = false
	}
	c.msgCount++
	roomID := c.roomID
	c.mu.Unlock()

	c.archiveOutbound(id, text)

	if subscribeNow {
		c.log.Debug().Str("roomId", roomID).Msg("first message sent, attaching deferred subscription")
		return c.attachSubscription(ctx, roomID)
	}
	return nil
}

func (c *Client) authToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth.Token
}

func (c *Client) archiveOutbound(id, text string) {
	c.mu.Lock()
	username := c.auth.Username
	c.mu.Unlock()

	c.archiveMessage(domain.Message{
		ID:        id,
		Time:      time.Now().UnixMilli(),
		From:      domain.Author{Username: username},
		Text:      text,
		Direction: domain.DirectionLocal,
	})
}
