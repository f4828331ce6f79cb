package ddp

import "strings"

// Endpoint derives the realtime WebSocket endpoint from the REST base URL
// by appending /websocket and rewriting the scheme (http→ws, https→wss).
// The single-replacement rewrite mirrors the backend's documented
// derivation rule and must not be changed.
func Endpoint(baseURL string) string {
	u := strings.TrimRight(baseURL, "/") + "/websocket"
	u = strings.Replace(u, "https", "wss", 1)
	u = strings.Replace(u, "http", "ws", 1)
	return u
}
