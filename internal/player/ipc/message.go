package ipc

import "encoding/json"

// message is one newline-delimited JSON payload from the player.  Responses
// carry both a request_id and an error field; everything else is an event.
type message struct {
	Event     string          `json:"event,omitempty"`
	RequestID *int            `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	// property-change fields
	ID   int    `json:"id,omitempty"`
	Name string `json:"name,omitempty"`

	// client-message fields
	Args []string `json:"args,omitempty"`

	// log-message fields
	Prefix string `json:"prefix,omitempty"`
	Level  string `json:"level,omitempty"`
	Text   string `json:"text,omitempty"`
}

// isResponse reports whether the message correlates to a sent command
func (m *message) isResponse() bool {
	return m.RequestID != nil && m.Error != ""
}

// float returns the data payload as a float, with ok=false when absent or
// not numeric.
func (m *message) float() (float64, bool) {
	if len(m.Data) == 0 {
		return 0, false
	}
	var value float64
	if err := json.Unmarshal(m.Data, &value); err != nil {
		return 0, false
	}
	return value, true
}

// str returns the data payload as a string
func (m *message) str() (string, bool) {
	if len(m.Data) == 0 {
		return "", false
	}
	var value string
	if err := json.Unmarshal(m.Data, &value); err != nil {
		return "", false
	}
	return value, true
}
