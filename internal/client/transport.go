package client

import (
	"context"
	"encoding/json"

	"github.com/soyeahso/chatbridge/internal/ddp"
)

// Transport is the realtime session surface the client drives: remote
// method invocation, stream subscription, and push-event delivery.
// *ddp.Session satisfies it; tests substitute a scripted fake.
type Transport interface {
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	Subscribe(ctx context.Context, name string, params ...any) (string, error)
	Events() <-chan ddp.ChangedEvent
	Close() error
}

// Dialer establishes a Transport for the given backend base URL.
type Dialer func(ctx context.Context, baseURL string) (Transport, error)
