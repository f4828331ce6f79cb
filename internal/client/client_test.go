package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/soyeahso/chatbridge/internal/config"
	"github.com/soyeahso/chatbridge/internal/ddp"
	"github.com/soyeahso/chatbridge/internal/domain"
	"github.com/soyeahso/chatbridge/internal/logging"
)

// fakeTransport is a scripted Transport. Method handlers are keyed by
// method name; unhandled methods return an empty object.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]func(params []any) (json.RawMessage, error)
	calls    []string
	subs     [][]any
	subErr   error
	events   chan ddp.ChangedEvent
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]func(params []any) (json.RawMessage, error)),
		events:   make(chan ddp.ChangedEvent, 16),
	}
}

func (f *fakeTransport) handle(method string, fn func(params []any) (json.RawMessage, error)) {
	f.handlers[method] = fn
}

func (f *fakeTransport) respond(method, body string) {
	f.handle(method, func([]any) (json.RawMessage, error) {
		return json.RawMessage(body), nil
	})
}

func (f *fakeTransport) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	fn := f.handlers[method]
	f.mu.Unlock()

	if fn == nil {
		return json.RawMessage(`{}`), nil
	}
	return fn(params)
}

func (f *fakeTransport) Subscribe(ctx context.Context, name string, params ...any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, params)
	if f.subErr != nil {
		return "", f.subErr
	}
	return uuid.NewString(), nil
}

func (f *fakeTransport) Events() <-chan ddp.ChangedEvent { return f.events }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeTransport) methodCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// recordingSink captures emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []string
	msgs   []domain.Message
	notify chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 16)}
}

func (s *recordingSink) Emit(event string, msg domain.Message) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	s.notify <- struct{}{}
}

func (s *recordingSink) messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.msgs...)
}

func privateCfg() config.Config {
	cfg := config.Defaults()
	cfg.Backend.URL = "https://chat.example.com"
	cfg.Backend.Mode = config.ModePrivate
	cfg.Backend.Private = config.PrivateConfig{
		Username: "admin",
		Password: "hunter2",
		Channel:  "GENERAL",
	}
	return cfg
}

func livechatCfg() config.Config {
	cfg := config.Defaults()
	cfg.Backend.URL = "https://chat.example.com"
	cfg.Backend.Mode = config.ModeLivechat
	cfg.Backend.Livechat = config.LivechatConfig{
		Token:      "device-1",
		Department: "support",
		Name:       "Visitor",
		Email:      "visitor@example.com",
	}
	return cfg
}

func newTestClient(t *testing.T, cfg config.Config, ft *fakeTransport, sink domain.Sink) *Client {
	t.Helper()
	c, err := New(cfg, sink, logging.Nop(), WithDialer(func(ctx context.Context, baseURL string) (Transport, error) {
		return ft, nil
	}))
	require.NoError(t, err)
	return c
}

func rawMsgJSON(id string, ts int64, userID, username, name, text string) string {
	return fmt.Sprintf(
		`{"_id":%q,"rid":"GENERAL","msg":%q,"ts":{"$date":%d},"u":{"_id":%q,"username":%q,"name":%q}}`,
		id, text, ts, userID, username, name,
	)
}

func historyJSON(msgs ...string) string {
	out := `{"messages":[`
	for i, m := range msgs {
		if i > 0 {
			out += ","
		}
		out += m
	}
	return out + `]}`
}

const loginOK = `{"id":"user-1","token":"tok-1","tokenExpires":{"$date":4102444800000}}`

// --- construction ---

func TestNewRejectsUnsupportedMode(t *testing.T) {
	cfg := privateCfg()
	cfg.Backend.Mode = "group"

	dialed := false
	_, err := New(cfg, nil, logging.Nop(), WithDialer(func(ctx context.Context, baseURL string) (Transport, error) {
		dialed = true
		return nil, nil
	}))

	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfiguration))
	assert.Contains(t, err.Error(), "backend.mode")
	assert.False(t, dialed, "configuration errors must never reach the network")
}

// --- private mode ---

func TestPrivateInitializeHappyPath(t *testing.T) {
	ft := newFakeTransport()
	ft.respond("login", loginOK)
	ft.respond("loadHistory", historyJSON(
		rawMsgJSON("m3", 300, "other-1", "agent", "Agent Smith", "third"),
		rawMsgJSON("m1", 100, "user-1", "admin", "", "first"),
		rawMsgJSON("m2", 200, "other-1", "agent", "Agent Smith", "second"),
	))

	c := newTestClient(t, privateCfg(), ft, nil)
	res, err := c.Initialize(context.Background())
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, "admin", res.User.Username)
	assert.Equal(t, 3, res.MessageCount)
	require.Len(t, res.LastMessages, 3)

	// ascending by time regardless of backend ordering
	assert.Equal(t, []int64{100, 200, 300},
		[]int64{res.LastMessages[0].Time, res.LastMessages[1].Time, res.LastMessages[2].Time})

	// self-authored history message is direction 1, remote is 2
	assert.Equal(t, domain.DirectionLocal, res.LastMessages[0].Direction)
	assert.Equal(t, domain.DirectionRemote, res.LastMessages[1].Direction)

	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, []string{"login", "loadHistory"}, ft.methodCalls())
	assert.Equal(t, 1, ft.subscribeCount())
}

func TestPrivateLoginSendsDigestNotPlaintext(t *testing.T) {
	ft := newFakeTransport()
	ft.handle("login", func(params []any) (json.RawMessage, error) {
		require.Len(t, params, 1)
		arg, ok := params[0].(map[string]any)
		require.True(t, ok)

		password, ok := arg["password"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "sha-256", password["algorithm"])
		// sha256("hunter2")
		assert.Equal(t, "f52fbd32b2b3b86ff88ef6c490628285f482af15ddcb29541f94bcf526a3f6c7", password["digest"])

		raw, _ := json.Marshal(arg)
		assert.NotContains(t, string(raw), "hunter2")

		return json.RawMessage(loginOK), nil
	})
	ft.respond("loadHistory", historyJSON())

	c := newTestClient(t, privateCfg(), ft, nil)
	_, err := c.Initialize(context.Background())
	require.NoError(t, err)
}

func TestPrivateLoginFailureShortCircuits(t *testing.T) {
	ft := newFakeTransport()
	ft.handle("login", func([]any) (json.RawMessage, error) {
		return nil, &ddp.RemoteError{Code: "403", Reason: "invalid credentials"}
	})

	c := newTestClient(t, privateCfg(), ft, nil)
	res, err := c.Initialize(context.Background())

	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthentication))
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "invalid credentials")
	assert.Equal(t, StateFailed, c.State())

	assert.Equal(t, []string{"login"}, ft.methodCalls(), "no history call after failed login")
	assert.Zero(t, ft.subscribeCount(), "no subscribe call after failed login")
}

func TestPrivateHistoryFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.respond("login", loginOK)
	ft.handle("loadHistory", func([]any) (json.RawMessage, error) {
		return nil, &ddp.RemoteError{Code: "error-not-allowed", Reason: "Not allowed"}
	})

	c := newTestClient(t, privateCfg(), ft, nil)
	_, err := c.Initialize(context.Background())

	require.Error(t, err)
	assert.True(t, IsKind(err, KindHistory))
	assert.Contains(t, err.Error(), "Not allowed")
	assert.Zero(t, ft.subscribeCount())
}

func TestPrivateSubscriptionFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.respond("login", loginOK)
	ft.respond("loadHistory", historyJSON())
	ft.subErr = &ddp.RemoteError{Code: "error-not-allowed", Reason: "Not allowed"}

	c := newTestClient(t, privateCfg(), ft, nil)
	_, err := c.Initialize(context.Background())

	require.Error(t, err)
	assert.True(t, IsKind(err, KindSubscription))
	assert.Equal(t, StateFailed, c.State())
}

// --- livechat mode ---

const preflightOnline = `{"enabled":true,"online":true,"offlineMessage":""}`
const guestOK = `{"userId":"visitor-1","token":"vtok-1","visitor":{"_id":"visitor-1","username":"guest-42","token":"vtok-1"}}`

func TestLivechatInitializeHappyPath(t *testing.T) {
	ft := newFakeTransport()
	ft.respond("livechat:getInitialData", preflightOnline)
	ft.respond("livechat:registerGuest", guestOK)
	ft.respond("login", `{"id":"visitor-1","token":"vtok-1"}`)
	ft.respond("loadHistory", historyJSON(
		rawMsgJSON("m1", 100, "agent-1", "agent", "Agent Smith", "hello"),
	))

	c := newTestClient(t, livechatCfg(), ft, nil)
	res, err := c.Initialize(context.Background())
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, "guest-42", res.User.Username)
	assert.Equal(t, 1, res.MessageCount)
	assert.Equal(t, StateReady, c.State())

	assert.Equal(t,
		[]string{"livechat:getInitialData", "livechat:registerGuest", "login", "loadHistory"},
		ft.methodCalls())
	assert.Equal(t, 1, ft.subscribeCount())
}

func TestLivechatDisabled(t *testing.T) {
	ft := newFakeTransport()
	ft.respond("livechat:getInitialData", `{"enabled":false,"online":false}`)

	c := newTestClient(t, livechatCfg(), ft, nil)
	_, err := c.Initialize(context.Background())

	require.Error(t, err)
	assert.True(t, IsKind(err, KindPreflight))
	assert.Contains(t, err.Error(), "Livechat is not enabled")

	calls := ft.methodCalls()
	assert.NotContains(t, calls, "livechat:registerGuest", "no guest registration after disabled preflight")
}

func TestLivechatOfflineUsesBackendMessage(t *testing.T) {
	ft := newFakeTransport()
	ft.respond("livechat:getInitialData", `{"enabled":true,"online":false,"offlineMessage":"We're away"}`)

	c := newTestClient(t, livechatCfg(), ft, nil)
	_, err := c.Initialize(context.Background())

	require.Error(t, err)
	assert.Equal(t, "We're away", err.Error())
}

func TestLivechatOfflineDefaultMessage(t *testing.T) {
	ft := newFakeTransport()
	ft.respond("livechat:getInitialData", `{"enabled":true,"online":false}`)

	c := newTestClient(t, livechatCfg(), ft, nil)
	_, err := c.Initialize(context.Background())

	require.Error(t, err)
	assert.Equal(t, defaultOfflineMessage, err.Error())
}

func TestLivechatResumeFailureFailsInitialization(t *testing.T) {
	ft := newFakeTransport()
	ft.respond("livechat:getInitialData", preflightOnline)
	ft.respond("livechat:registerGuest", guestOK)
	ft.handle("login", func([]any) (json.RawMessage, error) {
		return nil, &ddp.RemoteError{Code: "403", Reason: "You've been logged out by the server"}
	})

	c := newTestClient(t, livechatCfg(), ft, nil)
	_, err := c.Initialize(context.Background())

	require.Error(t, err)
	assert.True(t, IsKind(err, KindAuthentication))
	assert.NotContains(t, ft.methodCalls(), "loadHistory")
}

func TestLivechatExistingRoomFromPreflight(t *testing.T) {
	ft := newFakeTransport()
	ft.respond("livechat:getInitialData", `{"enabled":true,"online":true,"room":{"_id":"LC9"}}`)
	ft.respond("livechat:registerGuest", guestOK)
	ft.respond("login", `{"id":"visitor-1","token":"vtok-1"}`)

	var historyRoom string
	ft.handle("loadHistory", func(params []any) (json.RawMessage, error) {
		historyRoom, _ = params[0].(string)
		return json.RawMessage(historyJSON()), nil
	})

	c := newTestClient(t, livechatCfg(), ft, nil)
	_, err := c.Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "LC9", historyRoom, "existing room id replaces the visitor token")
}

// --- deferred subscription ---

func deferredReadyClient(t *testing.T, ft *fakeTransport, sink domain.Sink) *Client {
	t.Helper()
	ft.respond("livechat:getInitialData", preflightOnline)
	ft.respond("livechat:registerGuest", guestOK)
	ft.respond("login", `{"id":"visitor-1","token":"vtok-1"}`)
	ft.handle("loadHistory", func([]any) (json.RawMessage, error) {
		return nil, &ddp.RemoteError{Code: "error-invalid-room", Reason: "Invalid room"}
	})
	ft.respond("sendMessageLivechat", `{"rid":"LC1"}`)

	c := newTestClient(t, livechatCfg(), ft, sink)
	res, err := c.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Zero(t, res.MessageCount)
	require.Empty(t, res.LastMessages)
	require.Equal(t, StateReady, c.State())
	require.Zero(t, ft.subscribeCount(), "subscription must be deferred")
	return c
}

func TestDeferredSubscriptionFirstSendSubscribesOnce(t *testing.T) {
	ft := newFakeTransport()
	c := deferredReadyClient(t, ft, nil)

	require.NoError(t, c.Send(context.Background(), domain.Message{Text: "hi"}))
	assert.Equal(t, 1, ft.subscribeCount(), "first send attaches the subscription")

	ft.mu.Lock()
	subParams := ft.subs[0]
	ft.mu.Unlock()
	require.NotEmpty(t, subParams)
	assert.Equal(t, "LC1", subParams[0], "subscription targets the room id echoed by the backend")

	require.NoError(t, c.Send(context.Background(), domain.Message{Text: "again"}))
	assert.Equal(t, 1, ft.subscribeCount(), "later sends must not resubscribe")
}

func TestDeferredSubscriptionConcurrentSendsSubscribeOnce(t *testing.T) {
	ft := newFakeTransport()
	c := deferredReadyClient(t, ft, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Send(context.Background(), domain.Message{Text: "racing"}))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ft.subscribeCount(), "two racing sends must trigger exactly one subscription")
}
