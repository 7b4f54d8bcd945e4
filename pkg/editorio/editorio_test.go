package editorio_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/rscls/pkg/bus"
	"github.com/walteh/rscls/pkg/codec"
	"github.com/walteh/rscls/pkg/editorio"
	"github.com/walteh/rscls/pkg/message"
)

func TestReadLoopPushesEventsAndStopsOnExit(t *testing.T) {
	var stdin bytes.Buffer
	enc := codec.NewEncoder(&stdin)

	init := &message.Request{ID: message.NewNumberID(1), Method: "initialize", Params: []byte(`{}`)}
	body, err := message.Encode(init)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(body))

	exit := &message.Notification{Method: "exit"}
	body, err = message.Encode(exit)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(body))

	events := bus.New()
	ep := editorio.New(&stdin, &bytes.Buffer{}, events, zerolog.Nop())

	err = ep.ReadLoop(context.Background())
	require.NoError(t, err)

	first := <-events.Events()
	require.Equal(t, bus.KindClientToServer, first.Kind)
	req, ok := first.Message.(*message.Request)
	require.True(t, ok)
	assert.Equal(t, "initialize", req.Method)

	second := <-events.Events()
	assert.True(t, message.IsExit(second.Message))
}

func TestWriteLoopFramesMessages(t *testing.T) {
	var stdout bytes.Buffer
	events := bus.New()
	ep := editorio.New(&bytes.Buffer{}, &stdout, events, zerolog.Nop())

	outgoing := make(chan message.Message, 1)
	outgoing <- &message.Notification{Method: "window/logMessage", Params: []byte(`{"type":3,"message":"hi"}`)}
	close(outgoing)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := ep.WriteLoop(ctx, outgoing)
	require.NoError(t, err)

	dec := codec.NewDecoder(&stdout)
	body, err := dec.Decode()
	require.NoError(t, err)

	msg, err := message.Decode(body)
	require.NoError(t, err)
	notif, ok := msg.(*message.Notification)
	require.True(t, ok)
	assert.Equal(t, "window/logMessage", notif.Method)
}
