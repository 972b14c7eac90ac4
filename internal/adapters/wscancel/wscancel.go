// Package wscancel implements contracts.CancellationSource over a
// long-lived websocket connection, an alternative transport to
// adapters/redisqueue's pub/sub.
package wscancel

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fluxforge/workercore/internal/contracts"
)

// Source dials url and decodes inbound frames as CancellationMessage,
// reconnecting with capped-doubling backoff if the connection drops.
type Source struct {
	url string
	out chan contracts.CancellationMessage
}

// New starts a Source dialing url in the background. ctx cancellation tears
// down the connection and closes Messages().
func New(ctx context.Context, url string) *Source {
	s := &Source{url: url, out: make(chan contracts.CancellationMessage, 16)}
	go s.run(ctx)
	return s
}

// Messages implements contracts.CancellationSource.
func (s *Source) Messages() <-chan contracts.CancellationMessage { return s.out }

func (s *Source) run(ctx context.Context) {
	defer close(s.out)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			log.Printf("wscancel: dial failed, retrying in %s: %v", backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = time.Second
		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-stop:
			}
		}()
		s.readLoop(ctx, conn)
		close(stop)
		conn.Close()
	}
}

func (s *Source) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("wscancel: read failed, reconnecting: %v", err)
			return
		}
		var msg contracts.CancellationMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		select {
		case s.out <- msg:
		case <-ctx.Done():
			return
		}
	}
}
