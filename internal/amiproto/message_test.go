package amiproto

import (
	"reflect"
	"testing"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			name: "simple event",
			raw:  "Event: Newchannel\r\nChannel: SIP/1001-00000001\r\nUniqueid: 1234.5\r\n",
			want: map[string]string{
				"Event":    "Newchannel",
				"Channel":  "SIP/1001-00000001",
				"Uniqueid": "1234.5",
			},
		},
		{
			name: "malformed line without colon is skipped",
			raw:  "Event: Hangup\r\nnotakeyvalue\r\nCause: 16\r\n",
			want: map[string]string{
				"Event": "Hangup",
				"Cause": "16",
			},
		},
		{
			name: "blank line inside frame is ignored",
			raw:  "Event: Dial\r\n\r\nChannel: SIP/1001-1\r\n",
			want: map[string]string{
				"Event":   "Dial",
				"Channel": "SIP/1001-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ParseFrame([]byte(tt.raw))
			for k, v := range tt.want {
				if got := m.Get(k); got != v {
					t.Errorf("Get(%q) = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestMessage_RepeatedKeys(t *testing.T) {
	m := NewMessage()
	m.Add("Variable", "FOO=1")
	m.Add("Variable", "BAR=2")

	want := []string{"FOO=1", "BAR=2"}
	if got := m.All("Variable"); !reflect.DeepEqual(got, want) {
		t.Fatalf("All(Variable) = %v, want %v", got, want)
	}
	if got := m.Get("Variable"); got != "FOO=1" {
		t.Errorf("Get(Variable) = %q, want first value %q", got, "FOO=1")
	}
}

func TestMessage_Has(t *testing.T) {
	m := NewMessage()
	m.Set("Event", "Hangup")
	if !m.Has("Event") {
		t.Error("Has(Event) = false, want true")
	}
	if m.Has("Cause") {
		t.Error("Has(Cause) = true, want false")
	}
}

func TestMessage_IsSuccess(t *testing.T) {
	tests := []struct {
		response string
		want     bool
	}{
		{"Success", true},
		{"success", true},
		{"Error", false},
		{"", false},
	}
	for _, tt := range tests {
		m := NewMessage()
		if tt.response != "" {
			m.Set("Response", tt.response)
		}
		if got := m.IsSuccess(); got != tt.want {
			t.Errorf("IsSuccess() with Response=%q = %v, want %v", tt.response, got, tt.want)
		}
	}
}

func TestMessage_EncodeOrderAndActionFirst(t *testing.T) {
	m := NewAction("Hangup")
	m.Set("Channel", "SIP/1001-1")
	m.Set("ActionID", "abc-123")

	got := string(m.Encode())
	want := "Action: Hangup\r\nChannel: SIP/1001-1\r\nActionID: abc-123\r\n\r\n"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestParseFrame_RoundTripsThroughEncode(t *testing.T) {
	m := NewAction("Originate")
	m.Set("Channel", "SIP/1001-1")
	m.Set("Context", "default")

	encoded := m.Encode()
	// Encode appends the blank-line terminator; ParseFrame expects a single
	// isolated frame without it.
	raw := encoded[:len(encoded)-4]

	reparsed := ParseFrame(raw)
	if reparsed.Get("Action") != "Originate" {
		t.Errorf("Action = %q, want Originate", reparsed.Get("Action"))
	}
	if reparsed.Get("Channel") != "SIP/1001-1" {
		t.Errorf("Channel = %q, want SIP/1001-1", reparsed.Get("Channel"))
	}
}
