// Package handler provides the typed decode/mutate/encode dispatch table
// the router uses to rewrite individual LSP messages: rather than a
// hand-enumerated cascade of method-name string comparisons (as the
// original rscls's src/handler.rs and main.rs do with per-call
// handle_request::<R>/handle_notification::<N>/handle_response::<R>
// invocations), handlers are registered once per method into a table keyed
// by method name, each closing over a concrete params/result type.
package handler

import (
	"encoding/json"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/rscls/pkg/message"
)

// entry is a type-erased handle to a registered mutator: it knows how to
// decode raw JSON into its concrete params/result type, invoke the
// registered mutation, and re-encode the (possibly modified) value.
type entry interface {
	apply(raw json.RawMessage) (json.RawMessage, error)
}

type typedEntry[T any] struct {
	mutate func(*T)
}

func (e *typedEntry[T]) apply(raw json.RawMessage) (json.RawMessage, error) {
	var v T
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Errorf("decoding params: %w", err)
		}
	}
	e.mutate(&v)
	out, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Errorf("encoding params: %w", err)
	}
	return out, nil
}

// Table maps method name to a registered handler. The router builds one
// Table for client->server requests, which it also consults (by the
// original request's method) for the server's responses to them, and one
// for client->server notifications.
type Table struct {
	entries map[string]entry
}

func NewTable() *Table {
	return &Table{entries: make(map[string]entry)}
}

// Register installs a mutator for method, operating on a concrete params
// or result type T. Registering the same method twice replaces the
// previous entry.
func Register[T any](t *Table, method string, mutate func(*T)) {
	t.entries[method] = &typedEntry[T]{mutate: mutate}
}

// ApplyToRequest runs the registered mutator for req.Method, if any,
// rewriting req.Params in place. A method with no registered entry is left
// untouched and passed through verbatim.
func (t *Table) ApplyToRequest(req *message.Request) error {
	e, ok := t.entries[req.Method]
	if !ok {
		return nil
	}
	out, err := e.apply(req.Params)
	if err != nil {
		return errors.Errorf("handling request %s: %w", req.Method, err)
	}
	req.Params = out
	return nil
}

// ApplyToNotification runs the registered mutator for n.Method, if any,
// rewriting n.Params in place.
func (t *Table) ApplyToNotification(n *message.Notification) error {
	e, ok := t.entries[n.Method]
	if !ok {
		return nil
	}
	out, err := e.apply(n.Params)
	if err != nil {
		return errors.Errorf("handling notification %s: %w", n.Method, err)
	}
	n.Params = out
	return nil
}

// ApplyToResponse runs the registered mutator for originalMethod — the
// method of the request this response answers, since a Response carries no
// method of its own — rewriting resp.Result in place. Error responses are
// passed through untouched.
func (t *Table) ApplyToResponse(originalMethod string, resp *message.Response) error {
	if resp.Error != nil {
		return nil
	}
	e, ok := t.entries[originalMethod]
	if !ok {
		return nil
	}
	out, err := e.apply(resp.Result)
	if err != nil {
		return errors.Errorf("handling response for %s: %w", originalMethod, err)
	}
	resp.Result = out
	return nil
}

// Has reports whether method has a registered entry, letting callers avoid
// marshal/unmarshal round-trips for passthrough-only methods.
func (t *Table) Has(method string) bool {
	_, ok := t.entries[method]
	return ok
}
