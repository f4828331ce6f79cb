package ddp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteErrorUnmarshalStringCode(t *testing.T) {
	raw := `{"error":"error-invalid-room","reason":"Invalid room","message":"Invalid room [error-invalid-room]"}`

	var e RemoteError
	require.NoError(t, json.Unmarshal([]byte(raw), &e))

	assert.Equal(t, "error-invalid-room", e.Code)
	assert.Equal(t, "Invalid room", e.Reason)
	assert.Equal(t, "Invalid room", e.Error())
}

func TestRemoteErrorUnmarshalNumericCode(t *testing.T) {
	raw := `{"error":403,"reason":"User not found","errorType":"Meteor.Error"}`

	var e RemoteError
	require.NoError(t, json.Unmarshal([]byte(raw), &e))

	assert.Equal(t, "403", e.Code)
	assert.Equal(t, "User not found", e.Reason)
}

func TestRemoteErrorFallbackMessages(t *testing.T) {
	e := RemoteError{Code: "500", Message: "internal error"}
	assert.Equal(t, "internal error", e.Error())

	e = RemoteError{Code: "500"}
	assert.Equal(t, "remote error 500", e.Error())
}

func TestChangedFieldsDecoding(t *testing.T) {
	raw := `{
		"msg":"changed",
		"collection":"stream-room-messages",
		"fields":{
			"eventName":"GENERAL",
			"args":[{"_id":"m1","msg":"hi"}]
		}
	}`

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, msgChanged, env.Msg)
	assert.Equal(t, "stream-room-messages", env.Collection)

	var fields changedFields
	require.NoError(t, json.Unmarshal(env.Fields, &fields))
	assert.Equal(t, "GENERAL", fields.EventName)
	require.Len(t, fields.Args, 1)
	assert.Contains(t, string(fields.Args[0]), `"m1"`)
}
