package correlator

import (
	"strings"

	"callcore/internal/amiproto"
)

// countNonTrunkLiveChannels counts entries in set that are neither trunk
// channels nor already removed from the channel map (spec.md §4.3.5 step 2b:
// "remaining = L's set ∩ live channels − {trunk/system channels}").
func (c *Correlator) countNonTrunkLiveChannels(set map[string]struct{}) int {
	n := 0
	for name := range set {
		if _, live := c.channels[name]; !live {
			continue
		}
		if isTrunkOrSystemChannel(name) {
			continue
		}
		n++
	}
	return n
}

// handleHangup implements spec.md §4.3.5, the most complex handler: final
// hangup detection per linkedid group, Call cleanup with the channel-match
// fallbacks, CRM emission, missed-call notification, and crm_sent pruning.
func (c *Correlator) handleHangup(m *amiproto.Message) {
	channel := m.Get("Channel")
	linkedid := m.Get("Linkedid")
	uniqueid := m.Get("Uniqueid")
	cause := m.Get("Cause")

	chRec := c.channels[channel]
	hadLinkedid := linkedid != ""
	if !hadLinkedid && chRec != nil && chRec.Linkedid != "" {
		linkedid = chRec.Linkedid
		hadLinkedid = true
	}

	isFinal := false
	groupEmptied := false
	if hadLinkedid {
		if set, ok := c.linkedGroups[linkedid]; ok {
			delete(set, channel)
			isFinal = c.countNonTrunkLiveChannels(set) == 0
			if len(set) == 0 {
				groupEmptied = true
				delete(c.linkedGroups, linkedid)
			}
		}
		// If the group was never tracked (linkedid seen only on this
		// Hangup, never on a prior Newchannel/Bridge), isFinal stays
		// false: spec.md §4.3.5 point 3's conservative skip.
	}

	// A QueueEntry is destroyed on QueueCallerLeave or when its owning
	// channel hangs up (spec.md §3; ami.py:1147-1158 pops queue_entries on
	// every Hangup), so a caller that never gets a QueueCallerLeave (e.g.
	// it abandons before being offered to an agent) doesn't leak an entry.
	if uniqueid != "" {
		delete(c.queueEntries, uniqueid)
	}

	trunkChannel := isTrunkOrSystemChannel(channel)
	ext := extensionFromChannel(channel)
	call, hasCall := c.calls[ext]

	switch {
	case hasCall && call.Channel == channel:
		if isFinal && !trunkChannel {
			c.finalizeCall(call, linkedid, uniqueid, cause)
		}
		delete(c.calls, ext)

	case hasCall && call.DestChannel == channel:
		// Channel-match fallback: this leg is the Call's destination
		// channel, not its primary one. Clear only the reference unless
		// this also happens to be the final hangup for the group, in
		// which case the logical call is finished from this Call's
		// perspective too (e.g. the far PSTN leg hung up last).
		call.DestChannel = ""
		call.DestState = ""
		if isFinal && !trunkChannel {
			c.finalizeCall(call, linkedid, uniqueid, cause)
			delete(c.calls, call.Extension)
		}

	default:
		// No Call under this channel's own derived extension. If the
		// channel was registered as a destination channel of some other
		// caller extension, act on the caller's Call instead (outbound
		// calls where the PSTN leg hangs up first).
		if chRec != nil && chRec.IsDestinationOf != "" {
			if altCall, ok := c.calls[chRec.IsDestinationOf]; ok {
				altCall.DestChannel = ""
				altCall.DestState = ""
				if isFinal && !trunkChannel {
					c.finalizeCall(altCall, linkedid, uniqueid, cause)
					delete(c.calls, altCall.Extension)
				}
			}
		}
	}

	delete(c.channels, channel)

	if groupEmptied {
		c.purgeCRMMarkers(linkedid)
	}
}

// finalizeCall emits a CRM record (at most once) and, if warranted, a
// missed-call notification for the logical call call represents.
func (c *Correlator) finalizeCall(call *Call, linkedid, uniqueid, cause string) {
	callUniqueid := call.Uniqueid
	if callUniqueid == "" {
		callUniqueid = uniqueid
	}
	key := linkedid + ":" + callUniqueid

	if _, sent := c.crmSent[key]; sent {
		return
	}

	record, shouldEmit, status := c.composeCRMRecord(call, cause)
	if shouldEmit {
		c.crmSent[key] = struct{}{}
		if c.crm != nil {
			c.crm.Publish(record)
		}
	}

	if !call.Answered() && isMissedStatus(status) {
		notifyCaller := call.IncomingCaller
		if notifyCaller == "" {
			notifyCaller = call.Caller
		}
		if c.notify != nil {
			c.notify.Insert(call.Extension, notifyCaller, call.Queue, callUniqueid, status)
		}
		if c.onNotify != nil {
			c.onNotify(call.Extension)
		}
	}
}

// purgeCRMMarkers deletes every crm_sent marker belonging to linkedid
// (spec.md §4.3.5 point 6), allowing Asterisk's linkedid reuse for
// queue re-rings to emit again on the next cycle.
func (c *Correlator) purgeCRMMarkers(linkedid string) {
	prefix := linkedid + ":"
	for key := range c.crmSent {
		if strings.HasPrefix(key, prefix) {
			delete(c.crmSent, key)
		}
	}
}
