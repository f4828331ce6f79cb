// Package client implements the backend protocol client: connection,
// authentication, history, live subscription, and outbound dispatch for a
// single remote conversation.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/soyeahso/chatbridge/internal/config"
	"github.com/soyeahso/chatbridge/internal/ddp"
	"github.com/soyeahso/chatbridge/internal/domain"
	"github.com/soyeahso/chatbridge/internal/logging"
	"github.com/soyeahso/chatbridge/internal/store"
)

// defaultOfflineMessage is used when no agents are online and the backend
// has no offline message configured.
const defaultOfflineMessage = "Sorry, no agents are online right now. Please try again later."

// Client bridges one chat-widget conversation to the remote backend. One
// Client owns one Transport; it is created at initialization start and
// lives until Close.
type Client struct {
	cfg     config.BackendConfig
	log     *logging.Logger
	sink    domain.Sink
	dial    Dialer
	archive *store.Archive

	mu          sync.Mutex
	state       State
	transport   Transport
	auth        AuthContext
	roomID      string
	deferredSub bool
	msgCount    int
	avatar      string

	listenOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the transport dialer. Tests use this to inject a
// scripted transport.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithArchive enables the local transcript archive.
func WithArchive(a *store.Archive) Option {
	return func(c *Client) { c.archive = a }
}

// New validates the configuration and builds a client. An unsupported mode
// or missing credentials fail here, before anything touches the network.
func New(cfg config.Config, sink domain.Sink, log *logging.Logger, opts ...Option) (*Client, error) {
	if issues := config.Validate(&cfg); len(issues) > 0 {
		return nil, errf(KindConfiguration, "invalid configuration: %s", issues[0].String())
	}
	if sink == nil {
		sink = domain.SinkFunc(func(string, domain.Message) {})
	}

	timeout := time.Duration(cfg.Backend.CallTimeoutSeconds) * time.Second

	c := &Client{
		cfg:   cfg.Backend,
		log:   log.Sub("client"),
		sink:  sink,
		state: StateIdle,
	}
	c.dial = func(ctx context.Context, baseURL string) (Transport, error) {
		return ddp.Dial(ctx, baseURL, timeout, log)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current initializer state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Auth returns a copy of the resolved auth context.
func (c *Client) Auth() AuthContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth
}

// Initialize drives the state machine to Ready and returns the terminal
// outcome. On failure the returned error is classified and the result
// carries the failure message; no internal retries are attempted.
func (c *Client) Initialize(ctx context.Context) (domain.InitResult, error) {
	c.setState(StateConnecting)

	var history []domain.Message
	st := StateConnecting
	for {
		if err := c.runStep(ctx, st, &history); err != nil {
			c.setState(StateFailed)
			c.log.Error().Str("state", st.String()).Err(err).Msg("initialization failed")
			return domain.InitResult{OK: false, Message: err.Error()}, err
		}

		st = nextState(st, c.cfg.Mode, c.isDeferred())
		c.setState(st)
		if st == StateReady {
			break
		}
	}

	c.mu.Lock()
	user := domain.Author{Username: c.auth.Username, Avatar: c.avatar}
	count := c.msgCount
	c.mu.Unlock()

	c.log.Info().Str("mode", c.cfg.Mode).Int("messages", count).Msg("conversation ready")
	return domain.InitResult{
		OK:           true,
		User:         user,
		MessageCount: count,
		LastMessages: history,
	}, nil
}

// runStep executes the effect for one state.
func (c *Client) runStep(ctx context.Context, st State, history *[]domain.Message) error {
	switch st {
	case StateConnecting:
		transport, err := c.dial(ctx, c.cfg.URL)
		if err != nil {
			return wrap(KindTransport, err, "could not connect to backend")
		}
		c.mu.Lock()
		c.transport = transport
		c.roomID = c.cfg.Private.Channel
		if c.cfg.Mode == config.ModeLivechat {
			c.roomID = c.cfg.Livechat.Token
		}
		c.mu.Unlock()
		return nil

	case StateLivechatPreflight:
		return c.preflight(ctx)

	case StateAuthenticating:
		if c.cfg.Mode == config.ModeLivechat {
			if err := c.registerGuest(ctx); err != nil {
				return err
			}
			return c.resumeToken(ctx)
		}
		return c.loginWithPassword(ctx)

	case StateHistoryLoading:
		c.mu.Lock()
		roomID := c.roomID
		c.mu.Unlock()

		msgs, roomMissing, err := c.loadHistory(ctx, roomID, nil)
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.deferredSub = roomMissing
		c.msgCount = len(msgs)
		c.mu.Unlock()

		for _, m := range msgs {
			c.archiveMessage(m)
		}
		*history = msgs
		return nil

	case StateSubscribing:
		c.mu.Lock()
		roomID := c.roomID
		c.mu.Unlock()
		return c.attachSubscription(ctx, roomID)
	}
	return nil
}

type livechatInitialData struct {
	Enabled        bool   `json:"enabled"`
	Online         bool   `json:"online"`
	OfflineMessage string `json:"offlineMessage"`
	Room           *struct {
		ID string `json:"_id"`
	} `json:"room"`
}

// preflight fetches the livechat configuration and fails initialization
// when the feature is disabled or no agents are online. An existing room
// tied to the visitor token becomes the conversation room.
func (c *Client) preflight(ctx context.Context) error {
	res, err := c.transport.Call(ctx, "livechat:getInitialData", c.cfg.Livechat.Token)
	if err != nil {
		return wrap(KindPreflight, err, "livechat preflight failed")
	}

	var data livechatInitialData
	if err := json.Unmarshal(res, &data); err != nil {
		return wrap(KindPreflight, err, "livechat preflight returned malformed result")
	}

	if !data.Enabled {
		return errf(KindPreflight, "Livechat is not enabled on this server")
	}
	if !data.Online {
		msg := data.OfflineMessage
		if msg == "" {
			msg = defaultOfflineMessage
		}
		return errf(KindPreflight, "%s", msg)
	}

	if data.Room != nil && data.Room.ID != "" {
		c.mu.Lock()
		c.roomID = data.Room.ID
		c.mu.Unlock()
	}
	return nil
}

func (c *Client) setState(st State) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
	c.log.Debug().Str("state", st.String()).Msg("state transition")
}

func (c *Client) isDeferred() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferredSub
}

// archiveMessage records a message in the local transcript. Best effort:
// archive failures never affect delivery.
func (c *Client) archiveMessage(msg domain.Message) {
	if c.archive == nil {
		return
	}
	if err := c.archive.Insert(msg); err != nil {
		c.log.Warn().Err(err).Str("msgId", msg.ID).Msg("transcript insert failed")
	}
}

// Close tears down the transport. The client cannot be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return nil
	}
	return transport.Close()
}
