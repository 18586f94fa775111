package correlator

import (
	"strings"
	"time"

	"callcore/internal/amiproto"
)

// handleNewchannel implements spec.md §4.3.4's Newchannel row: record the
// channel->extension mapping, join the linkedid group, create or refresh
// the Call, and promote callerid/exten into authoritative fields when
// meaningful.
func (c *Correlator) handleNewchannel(m *amiproto.Message) {
	channel := m.Get("Channel")
	uniqueid := m.Get("Uniqueid")
	linkedid := m.Get("Linkedid")
	calleridNum := m.Get("CallerIDNum")
	exten := m.Get("Exten")

	ch := c.getOrCreateChannel(channel)
	ext := extensionFromChannel(channel)
	ch.Extension = ext
	ch.Uniqueid = uniqueid
	ch.Linkedid = linkedid
	ch.CallerIDNum = calleridNum

	if linkedid != "" {
		c.addToLinkedGroup(linkedid, channel)
	}

	if ext == "" {
		// Trunk/system channel: tracked only for linkedid bookkeeping.
		return
	}

	call := c.getOrCreateCall(ext)
	call.Channel = channel
	call.CallerID = calleridNum
	call.State = "New"
	if call.StartTime.IsZero() {
		call.StartTime = time.Now()
	}
	call.Uniqueid = uniqueid
	if linkedid != "" {
		call.Linkedid = linkedid
	}

	if calleridNum != "" && calleridNum != ext && isAllDigits(calleridNum) {
		call.Caller = calleridNum
	}

	if isMeaningfulNumber(exten, c.rules) && exten != ext {
		call.OriginalDestination = exten
		call.Exten = exten
		if isInternalLooking(exten) {
			target := c.getOrCreateCall(exten)
			if target.Caller == "" {
				target.Caller = ext
			}
		}
	}
}

// handleNewCallerid implements the NewCallerid row: update the channel and
// Call callerid when the new value is meaningful.
func (c *Correlator) handleNewCallerid(m *amiproto.Message) {
	channel := m.Get("Channel")
	cidNum := m.Get("CallerIDNum")

	ch := c.getOrCreateChannel(channel)
	ch.CallerIDNum = cidNum

	ext := extensionFromChannel(channel)
	if ext == "" {
		return
	}
	call, ok := c.calls[ext]
	if !ok || !isMeaningfulNumber(cidNum, c.rules) {
		return
	}
	call.CallerID = cidNum
	if cidNum != ext {
		call.Caller = cidNum
	}
}

// handleNewstate implements the Newstate row: update the owning Call's
// state, stamp answer_time on first Up, and mirror destination state onto
// the caller's dest_state for display.
func (c *Correlator) handleNewstate(m *amiproto.Message) {
	channel := m.Get("Channel")
	state := m.Get("ChannelStateDesc")
	if state == "" {
		return
	}

	ext := extensionFromChannel(channel)
	if ext != "" {
		if call, ok := c.calls[ext]; ok && call.Channel == channel {
			call.State = state
			if strings.EqualFold(state, "Up") && call.AnswerTime.IsZero() {
				call.AnswerTime = time.Now()
			}
		}
	}

	for _, call := range c.calls {
		if call.DestChannel == channel {
			call.DestState = state
		}
	}
}

// handleDialBegin implements Dial/DialBegin: record the dial destination,
// register the destination channel, and create a shadow Call for an
// internal destination extension.
func (c *Correlator) handleDialBegin(m *amiproto.Message) {
	channel := m.Get("Channel")
	destChannel := m.Get("DestChannel")
	if destChannel == "" {
		destChannel = m.Get("Destination")
	}

	callerExt := extensionFromChannel(channel)
	if callerExt != "" {
		call := c.getOrCreateCall(callerExt)
		call.DestChannel = destChannel
	}

	if destChannel == "" {
		return
	}
	destCh := c.getOrCreateChannel(destChannel)
	destCh.IsDestinationOf = callerExt

	destExt := extensionFromChannel(destChannel)
	if destExt == "" || destExt == callerExt {
		return
	}

	destCall := c.getOrCreateCall(destExt)
	destCall.Channel = destChannel
	if destCall.Caller == "" {
		destCall.Caller = callerExt
	}
	destCall.State = "Ringing"
	if destCall.StartTime.IsZero() {
		destCall.StartTime = time.Now()
	}
	if callerCall, ok := c.calls[callerExt]; ok && callerCall.Linkedid != "" {
		destCall.Linkedid = callerCall.Linkedid
	}
}

// handleDialEnd implements DialEnd: update dialstatus on both sides, never
// overwriting an existing ANSWER with a lesser status.
func (c *Correlator) handleDialEnd(m *amiproto.Message) {
	channel := m.Get("Channel")
	destChannel := m.Get("DestChannel")
	status := m.Get("DialStatus")
	if status == "" {
		return
	}

	if ext := extensionFromChannel(channel); ext != "" {
		if call, ok := c.calls[ext]; ok {
			setDialStatus(call, status)
		}
	}
	if ext := extensionFromChannel(destChannel); ext != "" {
		if call, ok := c.calls[ext]; ok {
			setDialStatus(call, status)
		}
	}
}

func setDialStatus(call *Call, status string) {
	if strings.EqualFold(status, "ANSWER") {
		call.DialStatus = "ANSWER"
		return
	}
	if !strings.EqualFold(call.DialStatus, "ANSWER") {
		call.DialStatus = status
	}
}

// handleBridge implements Bridge: join both legs into the bridge's
// linkedid group, cross-set destination from the opposite side's callerid,
// and propagate any queue attribute across the bridge.
func (c *Correlator) handleBridge(m *amiproto.Message) {
	linkedid := m.Get("Linkedid")
	ch1 := m.Get("Channel1")
	ch2 := m.Get("Channel2")
	cid1 := m.Get("CallerID1Num")
	cid2 := m.Get("CallerID2Num")

	if linkedid != "" {
		c.moveChannelToLinkedGroup(ch1, linkedid)
		c.moveChannelToLinkedGroup(ch2, linkedid)
	}

	ext1 := extensionFromChannel(ch1)
	ext2 := extensionFromChannel(ch2)
	call1, ok1 := c.calls[ext1]
	call2, ok2 := c.calls[ext2]

	if ok1 && cid2 != "" {
		call1.Destination = cid2
		if linkedid != "" {
			call1.Linkedid = linkedid
		}
	}
	if ok2 && cid1 != "" {
		call2.Destination = cid1
		if linkedid != "" {
			call2.Linkedid = linkedid
		}
	}

	if ok1 && ok2 {
		if call1.Queue != "" && call2.Queue == "" {
			call2.Queue = call1.Queue
		} else if call2.Queue != "" && call1.Queue == "" {
			call1.Queue = call2.Queue
		}
	}
}

// varSetAllowList is the §4.3.4 VarSet subset: only these variables feed
// original_destination/exten.
var varSetAllowList = map[string]struct{}{
	"EXTEN":            {},
	"DIALEDPEERNUMBER": {},
	"DIALEDNUMBER":     {},
	"OUTNUM":           {},
	"DIAL_NUMBER":      {},
	"CALLEDNUM":        {},
	"FROM_DID":         {},
}

// handleVarSet implements the VarSet row.
func (c *Correlator) handleVarSet(m *amiproto.Message) {
	variable := m.Get("Variable")
	if _, ok := varSetAllowList[variable]; !ok {
		return
	}
	value := m.Get("Value")
	channel := m.Get("Channel")

	ext := extensionFromChannel(channel)
	if ext == "" || value == ext {
		return
	}
	if !isMeaningfulNumber(value, c.rules) {
		return
	}

	call := c.getOrCreateCall(ext)
	if call.OriginalDestination == "" {
		call.OriginalDestination = value
	}
	call.Exten = value
}

// handleExtensionStatus implements the ExtensionStatus row: cache the raw
// status code. The active Call is never touched here, even on Idle, since
// ExtensionStatus may race ahead of Hangup.
func (c *Correlator) handleExtensionStatus(m *amiproto.Message) {
	ext := m.Get("Exten")
	if ext == "" {
		ext = m.Get("Extension")
	}
	if ext == "" {
		return
	}
	status := m.Get("Status")

	e := c.getOrCreateExtension(ext)
	e.StatusCode = status
	e.DisplayStatus = displayStatusFromCode(status)
}

// handleDeviceState folds PeerStatus and DeviceStateChange into the same
// extension status cache; neither is an invariant-bearing event, both are
// purely for display (spec.md §3 Extension: "last known device-status
// code, display status").
func (c *Correlator) handleDeviceState(m *amiproto.Message) {
	device := m.Get("Device")
	if device == "" {
		device = m.Get("Peer")
	}
	if device == "" {
		return
	}
	parts := strings.SplitN(device, "/", 2)
	if len(parts) != 2 {
		return
	}
	ext := parts[1]

	state := m.Get("State")
	if state == "" {
		state = m.Get("PeerStatus")
	}
	if state == "" {
		return
	}

	e := c.getOrCreateExtension(ext)
	e.StatusCode = state
	e.DisplayStatus = displayStatusFromCode(state)
}

// displayStatusFromCode maps a raw AMI device/extension status string to
// the projector's coarse idle/ringing/in-call/unavailable vocabulary.
func displayStatusFromCode(code string) string {
	switch strings.ToUpper(code) {
	case "0", "NOT_INUSE", "IDLE":
		return "idle"
	case "1", "INUSE", "ONHOLD", "BUSY":
		return "in-call"
	case "8", "RINGING", "RINGINUSE":
		return "ringing"
	case "-1", "UNKNOWN", "UNAVAILABLE", "INVALID":
		return "unavailable"
	default:
		return "idle"
	}
}
