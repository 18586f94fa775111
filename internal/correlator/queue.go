package correlator

import (
	"strconv"
	"strings"
	"time"

	"callcore/internal/amiproto"
)

// handleQueueMemberEvent folds QueueMemberStatus/Added/Removed/Pause/
// Paused/Unpause/RingInUse into the member map (spec.md §3 QueueMember,
// §4.3.6). QueueMemberAdded marks a member as dynamic; QueueMemberStatus
// does so only when its Membership field says "dynamic".
func (c *Correlator) handleQueueMemberEvent(m *amiproto.Message) {
	queueName := m.Get("Queue")
	if queueName == "" {
		return
	}
	iface := m.Get("Interface")
	if iface == "" {
		iface = m.Get("Location")
	}
	if iface == "" {
		return
	}

	q := c.getOrCreateQueue(queueName)

	if m.Event() == "QueueMemberRemoved" {
		delete(q.Members, iface)
		return
	}

	member, ok := q.Members[iface]
	if !ok {
		member = &QueueMember{Queue: queueName, Interface: iface}
		q.Members[iface] = member
	}

	if name := m.Get("MemberName"); name != "" {
		member.Name = name
	}
	if status := m.Get("Status"); status != "" {
		member.StatusCode = status
	}

	switch m.Event() {
	case "QueueMemberAdded":
		member.Dynamic = true
		if p := m.Get("Paused"); p != "" {
			member.Paused = p == "1"
		}
	case "QueueMemberPause", "QueueMemberPaused":
		member.Paused = true
		member.PauseReason = m.Get("Reason")
	case "QueueMemberUnpause":
		member.Paused = false
		member.PauseReason = ""
	case "QueueMemberStatus":
		if p := m.Get("Paused"); p != "" {
			member.Paused = p == "1"
		}
		if strings.EqualFold(m.Get("Membership"), "dynamic") {
			member.Dynamic = true
		}
	case "QueueMemberRingInUse":
		// Observability only; no field on QueueMember tracks this today.
	}
}

// handleQueueCallerJoin implements QueueEntry/QueueCallerJoin: a caller
// starts waiting in queue.
func (c *Correlator) handleQueueCallerJoin(m *amiproto.Message) {
	queueName := m.Get("Queue")
	uniqueid := m.Get("Uniqueid")
	if queueName == "" || uniqueid == "" {
		return
	}
	channel := m.Get("Channel")
	callerID := m.Get("CallerIDNum")

	position := 0
	if pos := m.Get("Position"); pos != "" {
		if v, err := strconv.Atoi(pos); err == nil {
			position = v
		}
	}

	c.getOrCreateQueue(queueName)
	c.queueEntries[uniqueid] = &QueueEntry{
		Uniqueid:  uniqueid,
		Queue:     queueName,
		CallerID:  callerID,
		Position:  position,
		EntryTime: time.Now(),
		Channel:   channel,
	}

	ext := extensionFromChannel(channel)
	if ext != "" {
		call := c.getOrCreateCall(ext)
		call.Queue = queueName
		call.QueueWaiting = true
		if callerID != "" {
			call.IncomingCaller = callerID
		}
	}
}

// handleQueueCallerLeave implements QueueCallerLeave: the caller stopped
// waiting, either answered or abandoned (the Hangup handler does the CRM
// accounting; this just removes the bookkeeping entry).
func (c *Correlator) handleQueueCallerLeave(m *amiproto.Message) {
	uniqueid := m.Get("Uniqueid")
	if uniqueid == "" {
		return
	}
	delete(c.queueEntries, uniqueid)
}

// handleAgentCalled implements AgentCalled: records the ringing agent and
// propagates the external caller identity and queue name onto a shadow
// Call for that agent (spec.md §4.3.6).
func (c *Correlator) handleAgentCalled(m *amiproto.Message) {
	queueName := m.Get("Queue")
	agentChannel := m.Get("DestChannel")
	callerID := m.Get("CallerIDNum")

	agentExt := extensionFromChannel(agentChannel)
	if agentExt == "" {
		// AgentCalled (no DestChannel) carries the agent as an Interface
		// such as "PJSIP/200", which extensionFromChannel's trailing-dash
		// pattern never matches.
		agentExt = extensionFromInterface(m.Get("AgentCalled"))
	}
	if agentExt == "" {
		return
	}

	if agentChannel != "" {
		ch := c.getOrCreateChannel(agentChannel)
		ch.Extension = agentExt
	}

	call := c.getOrCreateCall(agentExt)
	call.Channel = agentChannel
	call.Queue = queueName
	call.QueueWaiting = true
	call.IsAgentShadow = true
	if callerID != "" {
		call.IncomingCaller = callerID
	}
	if call.StartTime.IsZero() {
		call.StartTime = time.Now()
	}
}

// handleAgentConnect implements AgentConnect: the call is answered. This
// propagates across every Call sharing the linkedid, not just the agent who
// answered, so the caller's own Call (and any other agent shadow Calls
// still lingering) agree on queue_answered.
func (c *Correlator) handleAgentConnect(m *amiproto.Message) {
	queueName := m.Get("Queue")
	iface := m.Get("Interface")
	if iface == "" {
		iface = m.Get("MemberName")
	}
	// AgentConnect's Interface is "PJSIP/200" with no channel suffix, so
	// extensionFromChannel's trailing-dash pattern never matches it; take
	// the interface's last "/"-segment instead (ami.py:2050).
	agentExt := extensionFromInterface(iface)
	if agentExt == "" {
		agentExt = extensionFromChannel(m.Get("Channel"))
	}
	if agentExt == "" {
		return
	}

	call := c.getOrCreateCall(agentExt)
	call.Queue = queueName
	call.DialStatus = "ANSWER"
	call.QueueWaiting = false
	call.QueueAnswered = true
	call.AnsweredAgent = agentExt
	if call.AnswerTime.IsZero() {
		call.AnswerTime = time.Now()
	}

	linkedid := call.Linkedid
	if linkedid == "" {
		return
	}
	for _, other := range c.calls {
		if other.Linkedid != linkedid || other == call {
			continue
		}
		other.QueueWaiting = false
		other.QueueAnswered = true
		other.AnsweredAgent = agentExt
		if other.AnswerTime.IsZero() {
			other.AnswerTime = call.AnswerTime
		}
	}
}

// handleAgentComplete implements AgentComplete: no state table entry names
// further effects beyond what AgentConnect and Hangup already establish; it
// is consumed so it doesn't fall through to the default "ignored" branch
// and so its presence in a trace is visible for debugging.
func (c *Correlator) handleAgentComplete(m *amiproto.Message) {
}
