package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// Hello is the greeting a client receives on connect.
type Hello struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"-"`
}

// Watch connects to a depth stream at url (ws://host/ws) and calls onHello
// once, then fn for every frame, until ctx is done, the server closes the
// connection or a callback fails.
func Watch(ctx context.Context, url string, onHello func(Hello), fn func(Frame) error) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("stream: read: %w", err)
		}

		switch kind {
		case websocket.TextMessage:
			var fields map[string]any
			if err := json.Unmarshal(data, &fields); err != nil {
				return fmt.Errorf("stream: decode hello: %w", err)
			}
			if fields["type"] != "hello" {
				continue
			}
			id, _ := fields["id"].(string)
			if onHello != nil {
				onHello(Hello{ID: id, Fields: fields})
			}
		case websocket.BinaryMessage:
			frame, err := DecodeFrame(data)
			if err != nil {
				return err
			}
			if err := fn(frame); err != nil {
				return err
			}
		}
	}
}
