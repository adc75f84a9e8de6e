// Package wstest provides an in-process graphql-ws server for exercising
// clients end to end.
package wstest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	graphqlws "github.com/uswitch/graphql-ws/pkg/graphql/ws"
)

type OnOperationFunc func(context.Context, graphqlws.OperationParams) (<-chan *Result, error)

type Origin int

const (
	ServerOrigin = Origin(iota)
	ClientOrigin
)

type LogMessage struct {
	Origin  Origin
	Message graphqlws.OperationMessage
}

type ServerOption func(*Server)

// WithKeepAlive sends n keep-alive frames ahead of every other frame.
func WithKeepAlive(n int) ServerOption {
	return func(s *Server) {
		s.keepAlives = n
	}
}

// WithAckID echoes the init id back in the ack.
func WithAckID() ServerOption {
	return func(s *Server) {
		s.ackID = true
	}
}

// WithConnectionError rejects every connection_init.
func WithConnectionError() ServerOption {
	return func(s *Server) {
		s.rejectInit = true
	}
}

type Server struct {
	*httptest.Server

	OnOperation OnOperationFunc

	keepAlives int
	ackID      bool
	rejectInit bool

	upgrader websocket.Upgrader

	logLock      sync.Mutex
	log          []*LogMessage
	subprotocols []string
	headers      []http.Header

	disconnected chan struct{}
}

func NewServer(fn OnOperationFunc, opts ...ServerOption) *Server {
	s := &Server{
		OnOperation: fn,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{graphqlws.Protocol},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		disconnected: make(chan struct{}, 64),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serveWS))

	return s
}

// WSURL is the server's address with a ws scheme.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// Log returns every frame seen so far, keep-alives included.
func (s *Server) Log() []*LogMessage {
	s.logLock.Lock()
	defer s.logLock.Unlock()

	return append([]*LogMessage{}, s.log...)
}

// Subprotocols returns the subprotocol negotiated by each connection.
func (s *Server) Subprotocols() []string {
	s.logLock.Lock()
	defer s.logLock.Unlock()

	return append([]string{}, s.subprotocols...)
}

// Headers returns the upgrade request headers of each connection.
func (s *Server) Headers() []http.Header {
	s.logLock.Lock()
	defer s.logLock.Unlock()

	return append([]http.Header{}, s.headers...)
}

// Disconnected receives once for every connection the server has finished with.
func (s *Server) Disconnected() <-chan struct{} {
	return s.disconnected
}

func (s *Server) record(origin Origin, op *graphqlws.OperationMessage) {
	s.logLock.Lock()
	defer s.logLock.Unlock()

	s.log = append(s.log, &LogMessage{origin, *op})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}

	s.logLock.Lock()
	s.subprotocols = append(s.subprotocols, conn.Subprotocol())
	s.headers = append(s.headers, r.Header.Clone())
	s.logLock.Unlock()

	defer func() {
		conn.Close()

		select {
		case s.disconnected <- struct{}{}:
		default:
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := &serverChannel{server: s, conn: conn}

	if err := ch.accept(); err != nil {
		log.Printf("handshake failed: %v", err)
		return
	}

	ch.listen(ctx)
}

type serverChannel struct {
	server *Server
	conn   *websocket.Conn

	writeLock sync.Mutex
}

func (c *serverChannel) read() (*graphqlws.OperationMessage, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var op graphqlws.OperationMessage
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, err
	}

	c.server.record(ClientOrigin, &op)

	return &op, nil
}

func (c *serverChannel) write(op *graphqlws.OperationMessage) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	keepAlive := &graphqlws.OperationMessage{Type: graphqlws.GQL_CONNECTION_KEEP_ALIVE}
	for i := 0; i < c.server.keepAlives; i++ {
		if err := c.send(keepAlive); err != nil {
			return err
		}
	}

	return c.send(op)
}

func (c *serverChannel) send(op *graphqlws.OperationMessage) error {
	bytes, err := json.Marshal(op)
	if err != nil {
		return err
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, bytes); err != nil {
		return err
	}

	c.server.record(ServerOrigin, op)

	return nil
}

func (c *serverChannel) accept() error {
	op, err := c.read()
	if err != nil {
		return err
	}

	if op.Type != graphqlws.GQL_CONNECTION_INIT {
		c.write(&graphqlws.OperationMessage{Type: graphqlws.GQL_CONNECTION_ERROR})
		return fmt.Errorf("Expecting GQL_CONNECTION_INIT, got %s", op.Type)
	}

	if c.server.rejectInit {
		c.write(&graphqlws.OperationMessage{Type: graphqlws.GQL_CONNECTION_ERROR})
		return fmt.Errorf("rejected connection_init")
	}

	ack := &graphqlws.OperationMessage{Type: graphqlws.GQL_CONNECTION_ACK}
	if c.server.ackID {
		ack.ID = op.ID
	}

	return c.write(ack)
}

func (c *serverChannel) listen(ctx context.Context) {
	idToCancel := map[graphqlws.MessageID]context.CancelFunc{}
	var streams sync.WaitGroup

	defer func() {
		for _, cancel := range idToCancel {
			cancel()
		}
		streams.Wait()
	}()

	for {
		op, err := c.read()
		if err != nil {
			return
		}

		switch op.Type {
		case graphqlws.GQL_CONNECTION_TERMINATE:
			return
		case graphqlws.GQL_START:
			if op.ID == nil {
				log.Printf("server received a start with no id, discarding.")
				continue
			}

			var params graphqlws.OperationParams
			if err := json.Unmarshal(op.Payload, &params); err != nil {
				log.Printf("Failed to decode start payload: %v", err)
				continue
			}

			streamCtx, cancel := context.WithCancel(ctx)

			results, err := c.server.OnOperation(streamCtx, params)
			if err != nil {
				cancel()
				payload, _ := json.Marshal(map[string]string{"message": err.Error()})
				c.write(&graphqlws.OperationMessage{Type: graphqlws.GQL_ERROR, ID: op.ID, Payload: payload})
				continue
			}

			idToCancel[*op.ID] = cancel

			streams.Add(1)
			go func(id graphqlws.MessageID) {
				defer streams.Done()
				c.streamResults(streamCtx, id, results)
			}(*op.ID)
		case graphqlws.GQL_STOP:
			if op.ID == nil {
				log.Printf("server received a stop with no id, discarding.")
				continue
			}

			if cancel, ok := idToCancel[*op.ID]; ok {
				cancel()
				delete(idToCancel, *op.ID)
			}
		default:
			log.Printf("server got unknown operation type %s", op.Type)
		}
	}
}

func (c *serverChannel) streamResults(ctx context.Context, id graphqlws.MessageID, results <-chan *Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-results:
			if !ok {
				c.write(&graphqlws.OperationMessage{Type: graphqlws.GQL_COMPLETE, ID: &id})
				return
			}

			payload, err := json.Marshal(result)
			if err != nil {
				log.Printf("Failed to encode result for %s: %v", id, err)
				continue
			}

			if err := c.write(&graphqlws.OperationMessage{Type: graphqlws.GQL_DATA, ID: &id, Payload: payload}); err != nil {
				return
			}
		}
	}
}
