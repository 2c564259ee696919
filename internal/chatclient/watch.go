package chatclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mythsumon/job-sub002/internal/lifecycle"
	"github.com/mythsumon/job-sub002/internal/notify"
)

// Watch opens the room-events websocket and forwards events until ctx ends or
// the connection drops, at which point the channel is closed. Callers keep
// polling regardless; events only make refreshes happen sooner.
func (c *Client) Watch(ctx context.Context) (<-chan notify.RoomEvent, error) {
	target, err := c.wsURL()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: token: %v", lifecycle.ErrUnauthorized, err)
		}
		header.Set("Authorization", "Bearer "+tok)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, statusError(resp.StatusCode, nil)
		}
		return nil, fmt.Errorf("%w: %v", lifecycle.ErrTransient, err)
	}

	out := make(chan notify.RoomEvent, 16)
	readerDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-readerDone:
		}
	}()
	go func() {
		defer close(out)
		defer close(readerDone)
		defer conn.Close()
		for {
			var ev notify.RoomEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
