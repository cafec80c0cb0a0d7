package server

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdunn/go-chatrelay/internal/types"
)

func TestNoErrOk(t *testing.T) {
	result := NoErrOK(1, map[string]any{
		"testkey": "testvalue",
	})

	assert.NotNil(t, result, "expected result to be non-nil")
	require.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.WithinDuration(t, Now(), result.Timestamp, time.Second, "expected Timestamp to be within 1 second")
	assert.Equal(t, http.StatusOK, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, map[string]any{"testkey": "testvalue"}, result.Response.Data, "expected Data to match")
}

func TestErrFeedback(t *testing.T) {
	result := ErrFeedback(3, http.StatusConflict, "name already in use")

	require.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 3, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusConflict, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, "name already in use", result.Response.Error, "expected Error message to match")
	assert.Nil(t, result.Response.Data, "expected no data on an error response")
}

func TestErrInternalError(t *testing.T) {
	result := ErrInternalError(1)

	require.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusInternalServerError, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, "internal server error", result.Response.Error)
}

func TestErrServiceUnavailable(t *testing.T) {
	result := ErrServiceUnavailable(1)

	require.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.Equal(t, http.StatusServiceUnavailable, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, "service unavailable", result.Response.Error)
}

func TestErrorInvalidMessage(t *testing.T) {
	result := ErrInvalidMessage(0)
	require.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 0, result.Id, "expected Id to be zero")
	assert.Equal(t, http.StatusBadRequest, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, "invalid message format", result.Response.Error, "expected Error message to match")

	resultWithId := ErrInvalidMessage(42)
	assert.Equal(t, 42, resultWithId.Id, "expected Id to be set when positive")
}

func TestClientMessageUnmarshal(t *testing.T) {
	raw := `{
		"id": 7,
		"timestamp": "2024-05-01T12:00:00Z",
		"create_room": {"name": "Plans", "secret": "1234"}
	}`

	var msg ClientMessage
	err := json.Unmarshal([]byte(raw), &msg)
	require.NoError(t, err, "expected envelope to unmarshal")

	assert.Equal(t, 7, msg.Id)
	require.NotNil(t, msg.CreateRoom, "expected create_room member to be set")
	assert.Equal(t, "Plans", msg.CreateRoom.Name)
	assert.Equal(t, "1234", msg.CreateRoom.Secret)

	// the other union members stay nil
	assert.Nil(t, msg.SetName)
	assert.Nil(t, msg.Publish)
	assert.Nil(t, msg.Leave)
}

func TestServerMessageMarshalOmitsEmptyMembers(t *testing.T) {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
		Event: &RoomEvent{
			RoomId: "default",
			Event: types.Event{
				Kind:      types.EventMessage,
				Author:    "alice",
				Text:      "hi",
				Timestamp: Now(),
			},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err, "expected envelope to marshal")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "event", "expected populated member to be present")
	assert.NotContains(t, decoded, "response", "expected nil members to be omitted")
	assert.NotContains(t, decoded, "notification", "expected nil members to be omitted")
}
