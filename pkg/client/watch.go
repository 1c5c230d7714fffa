package client

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/gorilla/websocket"
)

// Watch subscribes to the daemon's change feed. Events are coalesced: a
// consumer that lags sees only the newest one, which is all a
// pull-and-replace sync needs. The channel closes when the context ends
// or the connection drops; callers wanting a persistent feed redial with
// backoff.
func (c *Client) Watch(ctx context.Context) (<-chan WatchEvent, error) {
	wsURL, err := c.watchURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &UnreachableError{Err: err}
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	out := make(chan WatchEvent, 1)
	// Closing the connection is what unblocks ReadJSON on cancel.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	go func() {
		defer close(out)
		defer stop()
		defer conn.Close()
		for {
			var ev WatchEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("watch feed dropped: %v", err)
				}
				return
			}
			sendLatestEvent(out, ev)
		}
	}()

	return out, nil
}

func (c *Client) watchURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", c.endpoint, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/v1/watch"
	return u.String(), nil
}

func sendLatestEvent(ch chan WatchEvent, ev WatchEvent) {
	for {
		select {
		case ch <- ev:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
