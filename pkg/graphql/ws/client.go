package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log"
	"sync"
)

// Endpoint runs GraphQL operations over the graphql-ws protocol. Every
// operation gets its own connection, which is never reused.
type Endpoint struct {
	url string

	dialer     Dialer
	options    DialOptions
	keepAlives []MessageType
	newID      func() MessageID
	logger     *log.Logger
}

type Option func(*Endpoint)

// WithDialer replaces the websocket transport.
func WithDialer(d Dialer) Option {
	return func(e *Endpoint) {
		e.dialer = d
	}
}

func WithDialOptions(options DialOptions) Option {
	return func(e *Endpoint) {
		e.options = options
	}
}

// WithKeepAlives sets the frame types that are dropped from the read path.
func WithKeepAlives(types ...MessageType) Option {
	return func(e *Endpoint) {
		e.keepAlives = types
	}
}

func WithIDGenerator(fn func() MessageID) Option {
	return func(e *Endpoint) {
		e.newID = fn
	}
}

// WithLogger traces every frame read and written.
func WithLogger(logger *log.Logger) Option {
	return func(e *Endpoint) {
		e.logger = logger
	}
}

func NewEndpoint(url string, opts ...Option) *Endpoint {
	e := &Endpoint{
		url:        url,
		keepAlives: []MessageType{GQL_CONNECTION_KEEP_ALIVE},
		newID:      NewMessageID,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.dialer == nil {
		e.dialer = NewWebsocketDialer(e.options)
	}

	return e
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("Endpoint(url=%s, ws_options=%s)", e.url, e.options)
}

// Query resolves query with QueryText and runs it.
func (e *Endpoint) Query(ctx context.Context, query interface{}, variables map[string]interface{}, operationName string) (*Results, error) {
	text, err := QueryText(query)
	if err != nil {
		return nil, err
	}

	return e.Do(ctx, OperationParams{
		Query:         text,
		Variables:     variables,
		OperationName: operationName,
	})
}

// Do dials, performs the connection handshake and starts the operation. ctx
// only bounds the dial. The returned Results own the connection and must be
// drained or closed.
func (e *Endpoint) Do(ctx context.Context, params OperationParams) (*Results, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding operation: %w", err)
	}

	conn, err := e.dialer.Dial(ctx, e.url)
	if err != nil {
		return nil, err
	}

	reader := newFrameReader(conn, e.keepAlives, e.logger)

	if err := e.handshake(conn, reader); err != nil {
		conn.Close()
		return nil, err
	}

	id := e.newID()

	if err := writeFrame(conn, &OperationMessage{GQL_START, &id, payload}, e.logger); err != nil {
		conn.Close()
		return nil, err
	}

	return &Results{conn: conn, reader: reader, id: id}, nil
}

func (e *Endpoint) handshake(conn Conn, reader *frameReader) error {
	initID := e.newID()

	if err := writeFrame(conn, &OperationMessage{Type: GQL_CONNECTION_INIT, ID: &initID}, e.logger); err != nil {
		return err
	}

	op, err := reader.Read()
	if err != nil {
		return err
	}

	// servers don't always send an id with the ack
	if op.Type != GQL_CONNECTION_ACK || (op.ID != nil && *op.ID != initID) {
		return &HandshakeError{Type: op.Type, ID: op.ID}
	}

	return nil
}

// Results is a pull iterator over the payloads of one operation. Each call
// to Next reads from the connection once. It isn't safe for concurrent use.
type Results struct {
	conn   Conn
	reader *frameReader
	id     MessageID

	current Payload
	err     error
	done    bool

	closeOnce sync.Once
	closeErr  error
}

// ID is the id the operation was started with.
func (r *Results) ID() MessageID {
	return r.id
}

func (r *Results) Next() bool {
	if r.done {
		return false
	}

	r.current = nil

	op, err := r.reader.Read()
	if err != nil {
		r.finish(err)
		return false
	}

	if op.Type == GQL_COMPLETE {
		r.finish(nil)
		return false
	}

	if !op.HasID(r.id) {
		r.finish(&CorrelationError{Expected: r.id, Got: op.ID})
		return false
	}

	if op.Type != GQL_DATA {
		r.finish(&UnexpectedFrameError{Frame: op})
		return false
	}

	var payload Payload
	if len(op.Payload) > 0 {
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			r.finish(&DecodeError{Text: string(op.Payload), Err: err})
			return false
		}
	}

	r.current = payload

	return true
}

// Get returns the payload read by the last successful Next.
func (r *Results) Get() Payload {
	return r.current
}

// Err returns the error that ended the sequence, if any.
func (r *Results) Err() error {
	return r.err
}

// Close releases the connection. It's safe to call more than once, and
// after the sequence has ended.
func (r *Results) Close() error {
	r.done = true
	r.closeOnce.Do(func() {
		r.closeErr = r.conn.Close()
	})

	return r.closeErr
}

func (r *Results) finish(err error) {
	r.err = err

	if closeErr := r.Close(); r.err == nil {
		r.err = closeErr
	}
}

// All ranges over the remaining payloads. A failure is yielded once as the
// last element. Breaking out of the loop closes the connection.
func (r *Results) All() iter.Seq2[Payload, error] {
	return func(yield func(Payload, error) bool) {
		defer r.Close()

		for r.Next() {
			if !yield(r.current, nil) {
				return
			}
		}

		if err := r.Err(); err != nil {
			yield(nil, err)
		}
	}
}
