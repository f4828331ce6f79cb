package ddp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/chatbridge/internal/logging"
)

// ErrClosed is returned for operations on a torn-down session.
var ErrClosed = errors.New("ddp: session closed")

// DefaultCallTimeout bounds remote calls whose context carries no deadline.
// A stalled socket must never hang a caller indefinitely.
const DefaultCallTimeout = 10 * time.Second

// eventBuffer is the size of the changed-event channel. Events beyond a
// stalled consumer are dropped with a warning rather than blocking the
// read loop.
const eventBuffer = 64

type callOutcome struct {
	result json.RawMessage
	err    error
}

// Session owns one realtime duplex connection to the backend. It is safe
// for concurrent use; one Session per client instance, never shared.
type Session struct {
	conn    *websocket.Conn
	log     *logging.Logger
	timeout time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	calls    map[string]chan callOutcome
	subs     map[string]chan error
	closed   bool
	closeErr error

	events    chan ChangedEvent
	connected chan error
	done      chan struct{}
}

// Dial connects to the realtime endpoint derived from baseURL and performs
// the DDP connect handshake. The context bounds the whole handshake.
func Dial(ctx context.Context, baseURL string, timeout time.Duration, log *logging.Logger) (*Session, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	endpoint := Endpoint(baseURL)
	log = log.Sub("ddp")
	log.Debug().Str("endpoint", endpoint).Msg("dialing realtime endpoint")

	ctx, cancel := withDefaultTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ddp: dial %s: %w", endpoint, err)
	}

	s := &Session{
		conn:      conn,
		log:       log,
		timeout:   timeout,
		calls:     make(map[string]chan callOutcome),
		subs:      make(map[string]chan error),
		events:    make(chan ChangedEvent, eventBuffer),
		connected: make(chan error, 1),
		done:      make(chan struct{}),
	}

	go s.readLoop()

	if err := s.write(envelope{Msg: msgConnect, Version: protocolVersion, Support: []string{protocolVersion}}); err != nil {
		conn.Close()
		return nil, err
	}

	select {
	case err := <-s.connected:
		if err != nil {
			conn.Close()
			return nil, err
		}
	case <-ctx.Done():
		conn.Close()
		return nil, fmt.Errorf("ddp: connect handshake: %w", ctx.Err())
	case <-s.done:
		return nil, s.closeError()
	}

	log.Info().Str("endpoint", endpoint).Msg("realtime session established")
	return s, nil
}

// Call invokes a remote method and waits for its result. A context without
// a deadline gets the session's default call timeout.
func (s *Session) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	ctx, cancel := withDefaultTimeout(ctx, s.timeout)
	defer cancel()

	id := uuid.NewString()
	ch := make(chan callOutcome, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, s.closeError()
	}
	s.calls[id] = ch
	s.mu.Unlock()

	if err := s.write(envelope{Msg: msgMethod, ID: id, Method: method, Params: params}); err != nil {
		s.dropCall(id)
		return nil, err
	}

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		s.dropCall(id)
		return nil, fmt.Errorf("ddp: call %s: %w", method, ctx.Err())
	case <-s.done:
		return nil, s.closeError()
	}
}

// Subscribe issues a subscription request and waits until the backend
// marks it ready. Returns the subscription id.
func (s *Session) Subscribe(ctx context.Context, name string, params ...any) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx, s.timeout)
	defer cancel()

	id := uuid.NewString()
	ch := make(chan error, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", s.closeError()
	}
	s.subs[id] = ch
	s.mu.Unlock()

	if err := s.write(envelope{Msg: msgSub, ID: id, Name: name, Params: params}); err != nil {
		s.dropSub(id)
		return "", err
	}

	select {
	case err := <-ch:
		if err != nil {
			return "", err
		}
		return id, nil
	case <-ctx.Done():
		s.dropSub(id)
		return "", fmt.Errorf("ddp: subscribe %s: %w", name, ctx.Err())
	case <-s.done:
		return "", s.closeError()
	}
}

// Events returns the stream of changed events. The channel is closed when
// the session ends.
func (s *Session) Events() <-chan ChangedEvent {
	return s.events
}

// Close tears down the connection. Pending calls fail with ErrClosed.
func (s *Session) Close() error {
	s.fail(ErrClosed)
	return s.conn.Close()
}

func (s *Session) write(env envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("ddp: write %s: %w", env.Msg, err)
	}
	return nil
}

func (s *Session) readLoop() {
	// readLoop is the sole closer of the events channel.
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("ddp: read: %w", err))
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn().Err(err).Msg("discarding unparseable frame")
			continue
		}

		switch env.Msg {
		case msgConnected:
			select {
			case s.connected <- nil:
			default:
			}
		case msgFailed:
			select {
			case s.connected <- fmt.Errorf("ddp: server rejected protocol version %s", protocolVersion):
			default:
			}
		case msgPing:
			if err := s.write(envelope{Msg: msgPong, ID: env.ID}); err != nil {
				s.log.Warn().Err(err).Msg("pong failed")
			}
		case msgResult:
			s.resolveCall(env)
		case msgReady:
			for _, id := range env.Subs {
				s.resolveSub(id, nil)
			}
		case msgNoSub:
			err := error(env.Error)
			if env.Error == nil {
				err = errors.New("ddp: subscription refused")
			}
			s.resolveSub(env.ID, err)
		case msgChanged:
			s.deliverChanged(env)
		}
	}
}

func (s *Session) resolveCall(env envelope) {
	s.mu.Lock()
	ch, ok := s.calls[env.ID]
	delete(s.calls, env.ID)
	s.mu.Unlock()
	if !ok {
		s.log.Debug().Str("id", env.ID).Msg("result for unknown call")
		return
	}

	out := callOutcome{result: env.Result}
	if env.Error != nil {
		out.err = env.Error
	}
	ch <- out
}

func (s *Session) resolveSub(id string, err error) {
	s.mu.Lock()
	ch, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		ch <- err
	}
}

func (s *Session) deliverChanged(env envelope) {
	var fields changedFields
	if len(env.Fields) > 0 {
		if err := json.Unmarshal(env.Fields, &fields); err != nil {
			s.log.Warn().Err(err).Str("collection", env.Collection).Msg("discarding malformed changed event")
			return
		}
	}

	ev := ChangedEvent{
		Collection: env.Collection,
		EventName:  fields.EventName,
		Args:       fields.Args,
	}

	select {
	case s.events <- ev:
	default:
		s.log.Warn().Str("collection", ev.Collection).Msg("event buffer full, dropping changed event")
	}
}

// fail marks the session closed, fails all pending operations, and closes
// the event stream. Idempotent.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = err
	calls := s.calls
	subs := s.subs
	s.calls = map[string]chan callOutcome{}
	s.subs = map[string]chan error{}
	s.mu.Unlock()

	for _, ch := range calls {
		ch <- callOutcome{err: err}
	}
	for _, ch := range subs {
		ch <- err
	}
	close(s.done)
}

func (s *Session) closeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	return ErrClosed
}

func (s *Session) dropCall(id string) {
	s.mu.Lock()
	delete(s.calls, id)
	s.mu.Unlock()
}

func (s *Session) dropSub(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
