package transport_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/teamerhq/relay/pkg/transport"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// A signaling relay can resolve a peer's transport at the exact moment that
// peer disconnects; queueing onto a tearing-down connection must degrade to
// a dropped frame, never a panic.
func TestSendDuringCloseDoesNotPanic(t *testing.T) {
	var wg sync.WaitGroup
	conn := transport.NewConnection(
		context.Background(),
		&wg,
		nil,
		transport.Config{ReadTimeout: time.Minute},
		newTestLogger(),
	)
	// The pumps are not started (no socket); balance the counter Close
	// releases, as Run would have.
	wg.Add(1)

	var senders sync.WaitGroup
	for i := 0; i < 8; i++ {
		senders.Add(1)
		go func() {
			defer senders.Done()
			for j := 0; j < 500; j++ {
				conn.Send([]byte("frame"))
			}
		}()
	}

	conn.Close(errors.New("peer disconnected"))
	senders.Wait()

	<-conn.Done()
	wg.Wait()
}

func TestCloseIsIdempotent(t *testing.T) {
	var wg sync.WaitGroup
	conn := transport.NewConnection(
		context.Background(),
		&wg,
		nil,
		transport.Config{ReadTimeout: time.Minute},
		newTestLogger(),
	)
	wg.Add(1)

	var closes int
	conn.SetCloseHandler(func(_ uuid.UUID, err error) { closes++ })

	conn.Close(errors.New("first"))
	conn.Close(errors.New("second"))
	<-conn.Done()

	if closes != 1 {
		t.Errorf("Expected the close handler to fire once, got %d", closes)
	}
}
