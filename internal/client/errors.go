package client

import (
	"errors"
	"fmt"

	"github.com/soyeahso/chatbridge/internal/ddp"
)

// Kind classifies client errors.
type Kind int

const (
	// KindConfiguration marks invalid configuration. Never reaches the network.
	KindConfiguration Kind = iota
	// KindAuthentication marks bad credentials or a bad resume token.
	KindAuthentication
	// KindPreflight marks livechat being disabled or no agents online.
	KindPreflight
	// KindSubscription marks a rejected or unacknowledged subscription.
	KindSubscription
	// KindHistory marks a failed history fetch.
	KindHistory
	// KindTransport marks connection-level failures and timeouts.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindPreflight:
		return "preflight"
	case KindSubscription:
		return "subscription"
	case KindHistory:
		return "history"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a classified client error. Message carries the backend's own
// wording where one exists.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == k
}

// errf builds a classified error with a formatted message.
func errf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// wrap classifies err under kind, demoting to KindTransport when the
// failure is connection-level rather than a backend verdict.
func wrap(k Kind, err error, prefix string) *Error {
	var remote *ddp.RemoteError
	if !errors.As(err, &remote) {
		k = KindTransport
	}
	msg := err.Error()
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	return &Error{Kind: k, Message: msg, Err: err}
}
