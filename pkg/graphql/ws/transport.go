package ws

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DialOptions are passed through to the websocket handshake untouched.
type DialOptions struct {
	Header          http.Header
	TLSClientConfig *tls.Config

	HandshakeTimeout time.Duration

	ReadBufferSize  int
	WriteBufferSize int

	EnableCompression bool

	// Subprotocols defaults to graphql-ws.
	Subprotocols []string
}

func (o DialOptions) String() string {
	headers := make([]string, 0, len(o.Header))
	for name := range o.Header {
		headers = append(headers, name)
	}
	sort.Strings(headers)

	return fmt.Sprintf(
		"headers=[%s] tls=%t handshake_timeout=%s subprotocols=%v",
		strings.Join(headers, ","), o.TLSClientConfig != nil, o.HandshakeTimeout, o.subprotocols(),
	)
}

func (o DialOptions) subprotocols() []string {
	if len(o.Subprotocols) == 0 {
		return []string{Protocol}
	}

	return o.Subprotocols
}

type WebsocketDialer struct {
	Options DialOptions
}

func NewWebsocketDialer(options DialOptions) *WebsocketDialer {
	return &WebsocketDialer{Options: options}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   d.Options.TLSClientConfig,
		HandshakeTimeout:  d.Options.HandshakeTimeout,
		ReadBufferSize:    d.Options.ReadBufferSize,
		WriteBufferSize:   d.Options.WriteBufferSize,
		EnableCompression: d.Options.EnableCompression,
		Subprotocols:      d.Options.subprotocols(),
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.Options.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s (%s): %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	return conn, nil
}
