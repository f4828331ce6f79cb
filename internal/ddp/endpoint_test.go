package ddp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{
			name: "https becomes wss",
			base: "https://chat.example.com",
			want: "wss://chat.example.com/websocket",
		},
		{
			name: "http becomes ws",
			base: "http://chat.example.com",
			want: "ws://chat.example.com/websocket",
		},
		{
			name: "trailing slash trimmed",
			base: "https://chat.example.com/",
			want: "wss://chat.example.com/websocket",
		},
		{
			name: "port preserved",
			base: "http://localhost:3000",
			want: "ws://localhost:3000/websocket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Endpoint(tt.base))
		})
	}
}
