package ws

import (
	"bytes"
	"context"
	"encoding/json"
)

type MessageType string

const (
	GQL_CONNECTION_INIT       = MessageType("connection_init")
	GQL_CONNECTION_TERMINATE  = MessageType("connection_terminate")
	GQL_CONNECTION_ERROR      = MessageType("connection_error")
	GQL_CONNECTION_ACK        = MessageType("connection_ack")
	GQL_CONNECTION_KEEP_ALIVE = MessageType("ka")

	GQL_START    = MessageType("start")
	GQL_STOP     = MessageType("stop")
	GQL_DATA     = MessageType("data")
	GQL_ERROR    = MessageType("error")
	GQL_COMPLETE = MessageType("complete")
)

// Protocol is the websocket subprotocol both ends negotiate for this vocabulary.
const Protocol = "graphql-ws"

// Known reports whether t is part of the graphql-ws vocabulary.
func (t MessageType) Known() bool {
	switch t {
	case GQL_CONNECTION_INIT, GQL_CONNECTION_TERMINATE, GQL_CONNECTION_ERROR,
		GQL_CONNECTION_ACK, GQL_CONNECTION_KEEP_ALIVE,
		GQL_START, GQL_STOP, GQL_DATA, GQL_ERROR, GQL_COMPLETE:
		return true
	}

	return false
}

type MessageID string

func (id *MessageID) String() string {
	if id == nil {
		return "<none>"
	}

	return string(*id)
}

// UnmarshalJSON accepts any JSON value as an id. Strings are unquoted and
// everything else keeps its compacted JSON text, so 7 becomes "7" and null
// becomes "null".
func (id *MessageID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*id = MessageID(text)
		return nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	*id = MessageID(compact.String())

	return nil
}

type OperationMessage struct {
	Type MessageType `json:"type"`
	ID   *MessageID  `json:"id,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`
}

func (m *OperationMessage) UnmarshalJSON(data []byte) error {
	var frame struct {
		Type    MessageType     `json:"type"`
		ID      json.RawMessage `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}

	*m = OperationMessage{Type: frame.Type, Payload: frame.Payload}

	// an explicit null is still an id, only a missing one is nil
	if len(frame.ID) > 0 {
		var id MessageID
		if err := id.UnmarshalJSON(frame.ID); err != nil {
			return err
		}
		m.ID = &id
	}

	return nil
}

// HasID reports whether the frame carries id.
func (m *OperationMessage) HasID(id MessageID) bool {
	return m.ID != nil && *m.ID == id
}

func (m *OperationMessage) String() string {
	text, err := json.Marshal(m)
	if err != nil {
		return string(m.Type)
	}

	return string(text)
}

type OperationParams struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// MarshalJSON always sends variables and operationName, as null when unset.
func (p OperationParams) MarshalJSON() ([]byte, error) {
	var operationName *string
	if p.OperationName != "" {
		operationName = &p.OperationName
	}

	return json.Marshal(struct {
		Query         string                 `json:"query"`
		Variables     map[string]interface{} `json:"variables"`
		OperationName *string                `json:"operationName"`
	}{p.Query, p.Variables, operationName})
}

// Payload is one result delivered by a data frame. Both "data" and "errors"
// may be present.
type Payload map[string]interface{}

func (p Payload) Data() interface{} {
	return p["data"]
}

func (p Payload) Errors() []interface{} {
	errs, _ := p["errors"].([]interface{})
	return errs
}

type MessageReader interface {
	ReadMessage() (int, []byte, error)
}

type MessageWriter interface {
	WriteMessage(int, []byte) error
}

type MessageReaderWriter interface {
	MessageReader
	MessageWriter
}

// Conn is a live transport stream owned by a single operation.
type Conn interface {
	MessageReaderWriter
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}
