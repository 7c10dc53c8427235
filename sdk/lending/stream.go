package lending

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"nhooyr.io/websocket"

	"yeifinance/services/lending/api"
)

// StreamFilter narrows a live event subscription.
type StreamFilter struct {
	Types   []string
	Account common.Address
}

// Stream is a live feed of committed protocol events.
type Stream struct {
	conn *websocket.Conn
}

// Subscribe opens the websocket event stream.
func (c *Client) Subscribe(ctx context.Context, filter StreamFilter) (*Stream, error) {
	if c == nil {
		return nil, ErrClientClosed
	}
	endpoint := *c.base
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	default:
		endpoint.Scheme = "ws"
	}
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/v1/events/stream"
	query := url.Values{}
	if len(filter.Types) > 0 {
		query.Set("types", strings.Join(filter.Types, ","))
	}
	if filter.Account != (common.Address{}) {
		query.Set("account", filter.Account.Hex())
	}
	endpoint.RawQuery = query.Encode()

	// The dialer refuses clients with a Timeout; ctx bounds the handshake.
	hc := *c.http
	hc.Timeout = 0
	opts := &websocket.DialOptions{HTTPClient: &hc}
	if c.token != "" {
		opts.HTTPHeader = map[string][]string{"Authorization": {"Bearer " + c.token}}
	}
	conn, _, err := websocket.Dial(ctx, endpoint.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("lending: dial stream: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Next blocks until the next event arrives or ctx is done.
func (s *Stream) Next(ctx context.Context) (api.Event, error) {
	var ev api.Event
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("lending: decode event: %w", err)
	}
	return ev, nil
}

// Close ends the subscription.
func (s *Stream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "client closed")
}
