package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageClassification(t *testing.T) {
	id := 3

	response := message{RequestID: &id, Error: "success"}
	assert.True(t, response.isResponse())

	event := message{Event: "property-change", ID: 1}
	assert.False(t, event.isResponse())

	// A request_id without an error field is not a response
	half := message{RequestID: &id}
	assert.False(t, half.isResponse())
}

func TestMessageDataDecoding(t *testing.T) {
	m := message{Data: json.RawMessage(`42.5`)}
	value, ok := m.float()
	require.True(t, ok)
	assert.Equal(t, 42.5, value)

	m = message{Data: json.RawMessage(`"episode.mkv"`)}
	text, ok := m.str()
	require.True(t, ok)
	assert.Equal(t, "episode.mkv", text)

	m = message{}
	_, ok = m.float()
	assert.False(t, ok)
	_, ok = m.str()
	assert.False(t, ok)

	m = message{Data: json.RawMessage(`"not a number"`)}
	_, ok = m.float()
	assert.False(t, ok)
}

// fakePlayer answers commands over the server side of a pipe
type fakePlayer struct {
	conn net.Conn
	mu   sync.Mutex
}

func (p *fakePlayer) send(t *testing.T, payload string) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.conn.Write([]byte(payload + "\n"))
	require.NoError(t, err)
}

// serveResponses echoes a success response for every incoming command
func (p *fakePlayer) serveResponses(t *testing.T) {
	scanner := bufio.NewScanner(p.conn)
	for scanner.Scan() {
		var cmd struct {
			Command   []interface{} `json:"command"`
			RequestID int           `json:"request_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}
		p.send(t, fmt.Sprintf(`{"request_id":%d,"error":"success"}`, cmd.RequestID))
	}
}

func newPipeClient(t *testing.T) (*client, *fakePlayer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	c := newClient(clientConn)
	t.Cleanup(c.close)
	return c, &fakePlayer{conn: serverConn}
}

func TestCommandResponseCorrelation(t *testing.T) {
	c, player := newPipeClient(t)
	go player.serveResponses(t)

	for i := 0; i < 3; i++ {
		_, err := c.command("get_property", "time-pos")
		require.NoError(t, err)
	}
}

func TestCommandRejectionIsAnError(t *testing.T) {
	c, player := newPipeClient(t)
	go func() {
		scanner := bufio.NewScanner(player.conn)
		for scanner.Scan() {
			var cmd struct {
				RequestID int `json:"request_id"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
				continue
			}
			player.send(t, fmt.Sprintf(`{"request_id":%d,"error":"property not found"}`, cmd.RequestID))
		}
	}()

	_, err := c.command("get_property", "no-such-property")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "property not found")
}

func TestEventsAreQueued(t *testing.T) {
	c, player := newPipeClient(t)

	player.send(t, `{"event":"property-change","id":3,"data":81.2}`)
	player.send(t, `{"event":"client-message","args":["next-episode"]}`)

	first := <-c.events
	assert.Equal(t, "property-change", first.Event)
	assert.Equal(t, propPercentPos, first.ID)
	value, ok := first.float()
	require.True(t, ok)
	assert.Equal(t, 81.2, value)

	second := <-c.events
	assert.Equal(t, "client-message", second.Event)
	assert.Equal(t, []string{"next-episode"}, second.Args)
}

func TestOrphanResponsesAreDropped(t *testing.T) {
	c, player := newPipeClient(t)

	player.send(t, `{"request_id":99,"error":"success"}`)
	player.send(t, `{"event":"file-loaded"}`)

	// The orphan response never surfaces as an event
	msg := <-c.events
	assert.Equal(t, "file-loaded", msg.Event)
}

func TestEventsChannelClosesWithConnection(t *testing.T) {
	c, player := newPipeClient(t)

	require.NoError(t, player.conn.Close())

	select {
	case _, ok := <-c.events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel did not close")
	}
}

func TestMalformedLinesAreIgnored(t *testing.T) {
	c, player := newPipeClient(t)

	player.send(t, `this is not json`)
	player.send(t, `{"event":"shutdown"}`)

	msg := <-c.events
	assert.Equal(t, "shutdown", msg.Event)
}
