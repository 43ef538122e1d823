package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// MessageHandler is invoked for every inbound message, sequentially per
// connection. Handlers must not block on the connection's own send queue.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

// CloseHandler is invoked exactly once when the connection terminates.
type CloseHandler func(connID uuid.UUID, err error)

type Config struct {
	ReadTimeout time.Duration
}

// Connection wraps a single WebSocket session behind a thread-safe send
// queue. One read pump and one write pump run per connection; the read pump
// drives the message handler, so handler calls are naturally serialized.
type Connection struct {
	id     uuid.UUID
	ws     *websocket.Conn
	config Config
	send   chan []byte

	onMessage MessageHandler
	onClose   CloseHandler

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	wg        *sync.WaitGroup

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, ws *websocket.Conn, config Config, logger *slog.Logger) *Connection {
	id := uuid.New()
	ctx, cancel := context.WithCancel(parentCtx)
	return &Connection{
		id:     id,
		ws:     ws,
		config: config,
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		wg:     wg,
		logger: logger.With(slog.String("connID", id.String())),
	}
}

func (c *Connection) Run() {
	c.wg.Add(1)
	go c.readPump()
	go c.writePump()
	c.logger.Info("connection established")
}

// readPump pumps inbound messages into the message handler until the socket
// errors or the context is cancelled.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		typ, r, err := c.ws.Reader(readCtx)
		if err != nil {
			cancelRead()
			readErr = err
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		msg, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			readErr = err
			return
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, msg)
		}
	}
}

// writePump drains the send queue onto the socket.
func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.ws.Write(c.ctx, websocket.MessageText, msg); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.ws.Close(websocket.StatusNormalClosure, "shutting down")
			return
		}
	}
}

// Send queues a message for delivery. Safe for concurrent use; messages
// queued from a single goroutine are delivered in order.
func (c *Connection) Send(msg []byte) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
		c.logger.Warn("Attempted to send on a closed connection")
	}
}

// Close tears the connection down exactly once and fires the close handler.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		status := websocket.CloseStatus(err)
		c.logger.Info("Transport connection closing", slog.Any("reason", err), slog.String("status", status.String()))

		// The send channel is never closed: a concurrent Send racing this
		// teardown must fall through to the ctx.Done case, not panic.
		// writePump exits on the cancelled context and drops whatever is
		// still queued, which best-effort delivery permits.
		c.cancel()
		if c.ws != nil {
			c.ws.Close(websocket.StatusNormalClosure, "")
		}
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done is closed once the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetMessageHandler(h MessageHandler) {
	c.onMessage = h
}

func (c *Connection) SetCloseHandler(h CloseHandler) {
	c.onClose = h
}
