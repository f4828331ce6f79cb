package client

import "github.com/soyeahso/chatbridge/internal/config"

// State is the initialization state machine position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateLivechatPreflight
	StateHistoryLoading
	StateSubscribing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateLivechatPreflight:
		return "livechat-preflight"
	case StateHistoryLoading:
		return "history-loading"
	case StateSubscribing:
		return "subscribing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// nextState is the pure transition function of the initializer. Each step
// strictly follows its predecessor; mode selects the branch after
// Connecting, and a deferred subscription skips Subscribing entirely.
func nextState(s State, mode string, deferred bool) State {
	switch s {
	case StateIdle:
		return StateConnecting
	case StateConnecting:
		if mode == config.ModeLivechat {
			return StateLivechatPreflight
		}
		return StateAuthenticating
	case StateLivechatPreflight:
		return StateAuthenticating
	case StateAuthenticating:
		return StateHistoryLoading
	case StateHistoryLoading:
		if deferred {
			return StateReady
		}
		return StateSubscribing
	case StateSubscribing:
		return StateReady
	default:
		return StateFailed
	}
}
