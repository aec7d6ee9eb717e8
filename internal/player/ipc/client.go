package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/fumetsu/hibiki/internal/log"
)

const commandTimeout = 5 * time.Second

// client speaks the newline-delimited JSON protocol over the control socket.
// A single reader goroutine owns the connection's read side: responses wake
// the command sender blocked on their request id, events land on the event
// queue.
type client struct {
	conn   net.Conn
	events chan message

	mu      sync.Mutex
	nextID  int
	pending map[int]chan message
	closed  bool
}

func newClient(conn net.Conn) *client {
	c := &client{
		conn:    conn,
		events:  make(chan message, 128),
		pending: make(map[int]chan message),
	}
	go c.readLoop()
	return c
}

// connect dials the player socket, retrying while the player creates it
func connect(ctx context.Context, socketPath string) (*client, error) {
	const attempts = 20
	const delay = 500 * time.Millisecond

	for attempt := 1; attempt <= attempts; attempt++ {
		if runtime.GOOS != "windows" {
			if _, err := os.Stat(socketPath); os.IsNotExist(err) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
					continue
				}
			}
		}

		conn, err := dial(socketPath)
		if err == nil {
			log.Debug("Connected to player socket", "path", socketPath, "attempt", attempt)
			return newClient(conn), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("player socket %s never became connectable", socketPath)
}

// readLoop is the dedicated reader.  It splits lines, parses JSON, and
// dispatches by message kind.
func (c *client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Warn("Unparseable player message", "error", err)
			continue
		}

		if msg.isResponse() {
			c.mu.Lock()
			waiter, ok := c.pending[*msg.RequestID]
			if ok {
				delete(c.pending, *msg.RequestID)
			}
			c.mu.Unlock()
			if !ok {
				// The sender timed out and moved on
				log.Debug("Dropping orphan response", "request_id", *msg.RequestID)
				continue
			}
			waiter <- msg
			continue
		}

		select {
		case c.events <- msg:
		default:
			log.Warn("Player event queue full, dropping event", "event", msg.Event)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Debug("Player socket reader stopped", "error", err)
	}
	close(c.events)
}

// command writes {"command": args, "request_id": N} and blocks for the
// correlated response.  A timeout is a soft error.
func (c *client) command(args ...interface{}) (message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return message{}, fmt.Errorf("connection closed")
	}
	c.nextID++
	id := c.nextID
	waiter := make(chan message, 1)
	c.pending[id] = waiter
	c.mu.Unlock()

	payload, err := json.Marshal(map[string]interface{}{
		"command":    args,
		"request_id": id,
	})
	if err != nil {
		c.abandon(id)
		return message{}, err
	}
	payload = append(payload, '\n')

	if _, err := c.conn.Write(payload); err != nil {
		c.abandon(id)
		return message{}, fmt.Errorf("writing command: %w", err)
	}

	select {
	case response := <-waiter:
		if response.Error != "success" {
			return response, fmt.Errorf("player rejected command: %s", response.Error)
		}
		return response, nil
	case <-time.After(commandTimeout):
		c.abandon(id)
		return message{}, fmt.Errorf("timed out waiting for response to request %d", id)
	}
}

func (c *client) abandon(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// observe subscribes to a property change feed
func (c *client) observe(id int, property string) error {
	_, err := c.command("observe_property", id, property)
	return err
}

// keybind registers a key to emit a script-message token
func (c *client) keybind(key, token string) error {
	_, err := c.command("keybind", key, fmt.Sprintf("script-message %s", token))
	return err
}

// osd flashes a message on screen
func (c *client) osd(text string) {
	if _, err := c.command("show-text", text, 2500); err != nil {
		log.Debug("Failed to show OSD message", "error", err)
	}
}

func (c *client) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	_ = c.conn.Close()
}
