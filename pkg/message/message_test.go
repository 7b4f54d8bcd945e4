package message_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/rscls/pkg/message"
)

func TestDecodeRequest(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"foo":true}}`)

	msg, err := message.Decode(body)
	require.NoError(t, err)

	req, ok := msg.(*message.Request)
	require.True(t, ok, "expected *message.Request, got %T", msg)
	assert.Equal(t, "initialize", req.Method)
	assert.Equal(t, message.NewNumberID(1).String(), req.ID.String())
	assert.JSONEq(t, `{"foo":true}`, string(req.Params))
}

func TestDecodeRequestWithStringID(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":"abc-1","method":"textDocument/hover","params":{}}`)

	msg, err := message.Decode(body)
	require.NoError(t, err)

	req, ok := msg.(*message.Request)
	require.True(t, ok)
	assert.True(t, req.ID.Equal(message.NewStringID("abc-1")))
}

func TestDecodeNotification(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","method":"textDocument/didOpen","params":{"a":1}}`)

	msg, err := message.Decode(body)
	require.NoError(t, err)

	notif, ok := msg.(*message.Notification)
	require.True(t, ok, "expected *message.Notification, got %T", msg)
	assert.Equal(t, "textDocument/didOpen", notif.Method)
}

func TestDecodeResponseResult(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":2,"result":{"ok":true}}`)

	msg, err := message.Decode(body)
	require.NoError(t, err)

	resp, ok := msg.(*message.Response)
	require.True(t, ok, "expected *message.Response, got %T", msg)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))
}

func TestDecodeResponseError(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"method not found"}}`)

	msg, err := message.Decode(body)
	require.NoError(t, err)

	resp, ok := msg.(*message.Response)
	require.True(t, ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := message.Decode([]byte(`{"jsonrpc":"2.0"}`))
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	req := &message.Request{
		ID:     message.NewNumberID(42),
		Method: "shutdown",
		Params: json.RawMessage(`null`),
	}

	out, err := message.Encode(req)
	require.NoError(t, err)

	msg, err := message.Decode(out)
	require.NoError(t, err)

	got, ok := msg.(*message.Request)
	require.True(t, ok)
	assert.Equal(t, req.Method, got.Method)
	assert.True(t, req.ID.Equal(got.ID))
}

func TestIsExit(t *testing.T) {
	assert.True(t, message.IsExit(&message.Notification{Method: "exit"}))
	assert.False(t, message.IsExit(&message.Notification{Method: "shutdown"}))
	assert.False(t, message.IsExit(&message.Request{Method: "exit"}))
}
