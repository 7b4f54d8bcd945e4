package handler_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/rscls/pkg/handler"
	"github.com/walteh/rscls/pkg/message"
)

type didOpenParams struct {
	TextDocument struct {
		URI        string `json:"uri"`
		LanguageID string `json:"languageId"`
	} `json:"textDocument"`
}

func TestApplyToNotificationMutatesInPlace(t *testing.T) {
	table := handler.NewTable()
	var seenURI string
	handler.Register(table, "textDocument/didOpen", func(p *didOpenParams) {
		seenURI = p.TextDocument.URI
		if p.TextDocument.LanguageID == "rust-script" {
			p.TextDocument.LanguageID = "rust"
		}
	})

	notif := &message.Notification{
		Method: "textDocument/didOpen",
		Params: json.RawMessage(`{"textDocument":{"uri":"file:///a.rs","languageId":"rust-script"}}`),
	}

	require.NoError(t, table.ApplyToNotification(notif))
	assert.Equal(t, "file:///a.rs", seenURI)
	assert.JSONEq(t, `{"textDocument":{"uri":"file:///a.rs","languageId":"rust"}}`, string(notif.Params))
}

func TestApplyToNotificationUnregisteredMethodPassesThrough(t *testing.T) {
	table := handler.NewTable()
	notif := &message.Notification{Method: "textDocument/didClose", Params: json.RawMessage(`{"a":1}`)}

	require.NoError(t, table.ApplyToNotification(notif))
	assert.JSONEq(t, `{"a":1}`, string(notif.Params))
}

func TestApplyToResponseSkipsErrors(t *testing.T) {
	table := handler.NewTable()
	called := false
	handler.Register(table, "workspace/configuration", func(p *[]json.RawMessage) {
		called = true
	})

	resp := &message.Response{Error: &message.ResponseError{Code: -1, Message: "nope"}}
	require.NoError(t, table.ApplyToResponse("workspace/configuration", resp))
	assert.False(t, called)
}

func TestHasReportsRegistration(t *testing.T) {
	table := handler.NewTable()
	assert.False(t, table.Has("foo"))
	handler.Register(table, "foo", func(p *struct{}) {})
	assert.True(t, table.Has("foo"))
}
