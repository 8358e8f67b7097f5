// Package websocket implements the stream transport over a websocket
// carrying JSON frames.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/couchcryptid/tideguard-telemetry/internal/stream"
)

// readLimit bounds a single inbound frame.
const readLimit = 1 << 20

// Transport dials the backend stream endpoint.
type Transport struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTransport builds a websocket transport for backendURL+path. An http or
// https backend URL is mapped to ws or wss.
func NewTransport(backendURL, path string, logger *slog.Logger) (*Transport, error) {
	u, err := streamURL(backendURL, path)
	if err != nil {
		return nil, err
	}
	return &Transport{url: u, httpClient: http.DefaultClient, logger: logger}, nil
}

func (t *Transport) Name() string { return "websocket" }

// URL returns the websocket URL dialed.
func (t *Transport) URL() string { return t.url }

func (t *Transport) Dial(ctx context.Context) (stream.Conn, error) {
	c, resp, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{HTTPClient: t.httpClient})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", t.url, err)
	}
	c.SetReadLimit(readLimit)
	t.logger.Debug("websocket connected", "url", t.url)
	return &conn{c: c}, nil
}

type conn struct {
	c *websocket.Conn
}

func (c *conn) Read(ctx context.Context) (stream.Frame, error) {
	var f stream.Frame
	if err := wsjson.Read(ctx, c.c, &f); err != nil {
		if isCleanClose(err) {
			return stream.Frame{}, stream.ErrConnClosed
		}
		return stream.Frame{}, fmt.Errorf("websocket read: %w", err)
	}
	return f, nil
}

func (c *conn) Write(ctx context.Context, f stream.Frame) error {
	if err := wsjson.Write(ctx, c.c, f); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (c *conn) Close() error {
	err := c.c.Close(websocket.StatusNormalClosure, "")
	if err != nil && isCleanClose(err) {
		return nil
	}
	return err
}

func isCleanClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, io.EOF)
}

func streamURL(backendURL, path string) (string, error) {
	u, err := url.Parse(backendURL)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported backend url scheme %q", u.Scheme)
	}
	if path != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}
	return u.String(), nil
}
