package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/aseko-local/internal/devices"
	"github.com/muurk/aseko-local/internal/version"
)

// DevicesPath is the REST snapshot endpoint.
const DevicesPath = "/api/devices"

// Client reads messages from a bridge's stream endpoint.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to a ws:// or wss:// stream URL.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	headers := http.Header{}
	headers.Set("User-Agent", version.UserAgent())

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stream connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("stream connection failed: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Next blocks for the next message. Non-text frames are skipped.
func (c *Client) Next() (Message, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return Message{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return Message{}, fmt.Errorf("invalid stream message: %w", err)
		}
		return msg, nil
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// FetchDevices reads the device snapshot from a bridge's HTTP base URL,
// e.g. http://bridge.local:8080.
func FetchDevices(ctx context.Context, baseURL string) ([]devices.Device, error) {
	url := strings.TrimSuffix(baseURL, "/") + DevicesPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: unexpected status %s", url, resp.Status)
	}
	var out []devices.Device
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid device list: %w", err)
	}
	return out, nil
}
