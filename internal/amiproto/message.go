// Package amiproto implements the Asterisk Manager Interface wire framing:
// parsing a byte stream of "Key: Value\r\n" lines terminated by a blank line
// into Messages, and rendering Messages back into that form.
package amiproto

import (
	"strings"
)

// Message is one AMI frame: an ordered multimap of header lines. Most keys
// occur once; a handful (VarSet's Variable, some queue events) can repeat,
// so values are kept as a slice per key while Get returns the first.
type Message struct {
	fields map[string][]string
	order  []string
}

// NewMessage returns an empty Message ready for Set.
func NewMessage() *Message {
	return &Message{fields: make(map[string][]string)}
}

// Set assigns a single value to key, replacing any previous value(s).
func (m *Message) Set(key, value string) {
	if _, ok := m.fields[key]; !ok {
		m.order = append(m.order, key)
	}
	m.fields[key] = []string{value}
}

// Add appends value under key, preserving any prior values for it.
func (m *Message) Add(key, value string) {
	if _, ok := m.fields[key]; !ok {
		m.order = append(m.order, key)
	}
	m.fields[key] = append(m.fields[key], value)
}

// Get returns the first value for key, or "" if absent.
func (m *Message) Get(key string) string {
	v, ok := m.fields[key]
	if !ok || len(v) == 0 {
		return ""
	}
	return v[0]
}

// Has reports whether key was present in the frame at all.
func (m *Message) Has(key string) bool {
	_, ok := m.fields[key]
	return ok
}

// All returns every value recorded under key, in arrival order.
func (m *Message) All(key string) []string {
	return m.fields[key]
}

// Event returns the Event field, or "" for a frame that isn't an event
// (a Response frame, for instance).
func (m *Message) Event() string {
	return m.Get("Event")
}

// Response returns the Response field ("Success", "Error", ...).
func (m *Message) Response() string {
	return m.Get("Response")
}

// IsSuccess reports whether this is a Response frame with Response: Success.
func (m *Message) IsSuccess() bool {
	return strings.EqualFold(m.Response(), "Success")
}

// Encode renders the Message as a terminated AMI frame ready to write to the
// socket. Field order follows insertion order, which matters for Action
// frames where Action must come first.
func (m *Message) Encode() []byte {
	var b strings.Builder
	for _, key := range m.order {
		for _, v := range m.fields[key] {
			b.WriteString(key)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// NewAction builds a Message whose first field is Action: name.
func NewAction(name string) *Message {
	m := NewMessage()
	m.Set("Action", name)
	return m
}

// ParseFrame parses one already-isolated frame (no trailing blank line) into
// a Message. Blank lines inside the frame besides the terminator do not
// occur in practice; malformed lines without ": " are skipped.
func ParseFrame(raw []byte) *Message {
	m := NewMessage()
	lines := strings.Split(string(raw), "\r\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		idx := strings.Index(line, ": ")
		if idx < 0 {
			continue
		}
		key := line[:idx]
		value := strings.TrimSpace(line[idx+2:])
		m.Add(key, value)
	}
	return m
}
