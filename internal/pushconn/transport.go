package pushconn

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Stream is an open push channel delivering one JSON payload per Recv.
type Stream interface {
	// Recv blocks until the next payload. It returns io.EOF when the
	// server ends the stream cleanly.
	Recv() ([]byte, error)
	Close() error
}

// Dialer opens a Stream. Dial returns once the handshake has completed;
// cancelling ctx aborts a pending handshake and tears down the stream.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// Transport names a push transport.
type Transport string

const (
	TransportSSE       Transport = "sse"
	TransportWebSocket Transport = "websocket"
)

// ParseTransport validates a transport name; empty selects SSE.
func ParseTransport(s string) (Transport, error) {
	switch Transport(strings.ToLower(strings.TrimSpace(s))) {
	case "", TransportSSE:
		return TransportSSE, nil
	case TransportWebSocket, "ws":
		return TransportWebSocket, nil
	}
	return "", fmt.Errorf("unknown push transport %q (want sse or websocket)", s)
}

// NewDialer returns the dialer for transport against a backend base URL.
func NewDialer(transport Transport, baseURL string) (Dialer, error) {
	switch transport {
	case TransportSSE, "":
		u, err := endpoint(baseURL, "/events", false)
		if err != nil {
			return nil, err
		}
		return &SSEDialer{URL: u}, nil
	case TransportWebSocket:
		u, err := endpoint(baseURL, "/ws", true)
		if err != nil {
			return nil, err
		}
		return &WebSocketDialer{URL: u}, nil
	}
	return nil, fmt.Errorf("unknown push transport %q", transport)
}

func endpoint(baseURL, path string, websocket bool) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	if websocket {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		case "http":
			u.Scheme = "ws"
		}
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	return u.String(), nil
}
