// Package message implements the JSON-RPC 2.0 message shapes rscls routes
// between the editor and rust-analyzer: Request, Response and Notification,
// mirroring the Message tagged union from the original rscls's event.rs.
package message

import (
	"encoding/json"
	"fmt"

	"gitlab.com/tozd/go/errors"
)

const jsonrpcVersion = "2.0"

// ID is a JSON-RPC request id, which the spec allows to be either a number
// or a string.
type ID struct {
	str      string
	num      int64
	isString bool
	isSet    bool
}

func NewNumberID(n int64) ID { return ID{num: n, isSet: true} }
func NewStringID(s string) ID { return ID{str: s, isString: true, isSet: true} }

func (id ID) IsZero() bool { return !id.isSet }

func (id ID) String() string {
	if id.isString {
		return id.str
	}
	return fmt.Sprintf("%d", id.num)
}

func (id ID) Equal(other ID) bool {
	return id.isSet == other.isSet && id.isString == other.isString && id.str == other.str && id.num == other.num
}

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.isSet {
		return []byte("null"), nil
	}
	if id.isString {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ID{}
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID{num: n, isSet: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Errorf("decoding request id: %w", err)
	}
	*id = ID{str: s, isString: true, isSet: true}
	return nil
}

// ResponseError is the JSON-RPC 2.0 error object carried by a Response.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is the tagged union routed through the event bus: a Request, a
// Response, or a Notification.
type Message interface {
	isMessage()
}

// Request carries a unique id, a method name and free-form params.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

// Response carries the id of the request it answers, plus either a result
// or an error (never both).
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *ResponseError
}

// Notification carries a method name and params but no id.
type Notification struct {
	Method string
	Params json.RawMessage
}

func (*Request) isMessage()      {}
func (*Response) isMessage()     {}
func (*Notification) isMessage() {}

// envelope is the wire shape all three variants decode/encode through.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// Decode parses a single JSON-RPC body (already stripped of Content-Length
// framing by pkg/codec) into a Message.
func Decode(body []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Errorf("decoding jsonrpc envelope: %w", err)
	}

	hasID := env.ID != nil && string(*env.ID) != "null"

	if env.Method != "" {
		if hasID {
			var id ID
			if err := id.UnmarshalJSON(*env.ID); err != nil {
				return nil, errors.Errorf("decoding request id: %w", err)
			}
			return &Request{ID: id, Method: env.Method, Params: env.Params}, nil
		}
		return &Notification{Method: env.Method, Params: env.Params}, nil
	}

	if hasID || env.Result != nil || env.Error != nil {
		var id ID
		if hasID {
			if err := id.UnmarshalJSON(*env.ID); err != nil {
				return nil, errors.Errorf("decoding response id: %w", err)
			}
		}
		return &Response{ID: id, Result: env.Result, Error: env.Error}, nil
	}

	return nil, errors.Errorf("message is neither a request, response, nor notification")
}

// Encode serializes a Message back into a JSON-RPC body.
func Encode(msg Message) ([]byte, error) {
	var env envelope
	env.JSONRPC = jsonrpcVersion

	switch m := msg.(type) {
	case *Request:
		idJSON, err := m.ID.MarshalJSON()
		if err != nil {
			return nil, errors.Errorf("encoding request id: %w", err)
		}
		raw := json.RawMessage(idJSON)
		env.ID = &raw
		env.Method = m.Method
		env.Params = m.Params
	case *Response:
		idJSON, err := m.ID.MarshalJSON()
		if err != nil {
			return nil, errors.Errorf("encoding response id: %w", err)
		}
		raw := json.RawMessage(idJSON)
		env.ID = &raw
		env.Result = m.Result
		env.Error = m.Error
	case *Notification:
		env.Method = m.Method
		env.Params = m.Params
	default:
		return nil, errors.Errorf("unknown message type %T", msg)
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Errorf("encoding jsonrpc envelope: %w", err)
	}
	return out, nil
}

// IsExit reports whether msg is the LSP `exit` notification.
func IsExit(msg Message) bool {
	n, ok := msg.(*Notification)
	return ok && n.Method == "exit"
}
