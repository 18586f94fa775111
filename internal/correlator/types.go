package correlator

import "time"

// Extension is the monitored-device entity (spec.md §3 Extension).
type Extension struct {
	Number        string
	StatusCode    string
	DisplayStatus string
}

// Channel is one Asterisk channel leg (spec.md §3 Channel). Trunk/system
// channels (PJSIP/sbc-*, PJSIP/asterisk-*, SIP/asterisk-*) have an empty
// Extension but are still tracked so linkedid bookkeeping stays correct.
type Channel struct {
	Name        string
	Extension   string
	CallerIDNum string
	Uniqueid    string
	Linkedid    string

	// IsDestinationOf is the caller extension that originated a DialBegin
	// naming this channel as DestChannel, if any. Used by the Hangup
	// fallback in §4.3.5 when no Call is found under this channel's own
	// derived extension.
	IsDestinationOf string
}

// Call is the aggregate replacing the source's loose attribute bag (see
// spec.md §9 "Dynamic attribute bags"): one struct with every optional
// field a logical call can carry.
type Call struct {
	Extension string

	Channel     string
	DestChannel string

	State     string // New, Dialing, Ringing, Up, Down
	DestState string

	Caller               string
	CallerID             string
	Destination          string
	OriginalDestination  string
	Exten                string

	StartTime  time.Time
	AnswerTime time.Time // zero value means unanswered

	DialStatus string

	Queue         string
	QueueWaiting  bool
	QueueAnswered bool
	AnsweredAgent string
	// IncomingCaller is the external party's number on an inbound queue
	// call, distinct from Caller which may get overwritten by agent legs.
	IncomingCaller string
	// IsAgentShadow marks a Call created for an agent's ringing leg of a
	// queue call (via AgentCalled), as opposed to the caller's own Call.
	// Needed to gate §4.4.1 rule 1 (no CRM on agent ring-timeout).
	IsAgentShadow bool

	Linkedid string
	Uniqueid string
}

// Answered reports whether AnswerTime has been set.
func (c *Call) Answered() bool {
	return !c.AnswerTime.IsZero()
}

// QueueMember is one agent endpoint registered against a queue (spec.md §3
// QueueMember).
type QueueMember struct {
	Queue       string
	Interface   string
	Name        string
	StatusCode  string
	Paused      bool
	PauseReason string
	Dynamic     bool
}

// QueueEntry is a caller waiting in queue, pre-answer (spec.md §3
// QueueEntry).
type QueueEntry struct {
	Uniqueid  string
	Queue     string
	CallerID  string
	Position  int
	EntryTime time.Time
	Channel   string
}

// Queue aggregates members and derived stats (spec.md §3 Queue).
type Queue struct {
	Name    string
	Members map[string]*QueueMember // keyed by Interface
}
