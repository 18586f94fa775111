package correlator

import "time"

// composeCRMRecord implements spec.md §4.4.1's payload composition rules,
// applied in order; the first rule that matches wins. It returns the record,
// whether it should be emitted at all, and the resolved status string (the
// latter is also needed by the notification gating in finalizeCall).
func (c *Correlator) composeCRMRecord(call *Call, cause string) (CRMRecord, bool, string) {
	// Rule 1: queue call still waiting, hangup from an agent ring-timeout leg.
	if call.IsAgentShadow && call.QueueWaiting {
		return CRMRecord{}, false, ""
	}

	// Rule 2: the record is reserved for the agent's perspective, not the
	// queue's own identifier.
	if call.Extension == call.Queue && call.Queue != "" {
		return CRMRecord{}, false, ""
	}

	// Rule 3: direction.
	var caller, destination string
	switch {
	case call.IncomingCaller != "" && call.IncomingCaller != call.Extension:
		caller = call.IncomingCaller
		destination = call.Extension
	case (call.Caller != "" && call.Caller != call.Extension) || !isInternalLooking(call.Extension):
		caller = call.Caller
		if caller == "" {
			caller = call.CallerID
		}
		destination = call.Extension
	default:
		caller = call.Extension
		destination = call.OriginalDestination
	}

	// Rule 4: if destination still resolves to the queue id, prefer the
	// agent who actually answered.
	if destination == call.Queue && call.AnsweredAgent != "" {
		destination = call.AnsweredAgent
	}

	// Rule 5: both sides must be meaningful.
	if !isMeaningfulNumber(caller, c.rules) || !isMeaningfulNumber(destination, c.rules) {
		return CRMRecord{}, false, ""
	}

	// Rule 6: cause -> status, with dial-status overrides, then
	// queue_answered override, then the Open Question 1 resolution: a
	// queue call that hung up while still queue_waiting and never
	// answered is `abandoned`, not `completed`/`noanswer`.
	status := dialStatusOverride(call.DialStatus, mapCauseToStatus(cause))
	if call.QueueAnswered && (status == "noanswer" || status == "failed") {
		status = "completed"
	}
	if call.QueueWaiting && !call.Answered() {
		status = "abandoned"
	}

	// Rule 7: durations.
	now := time.Now()
	duration := now.Sub(call.StartTime)
	var talkTime time.Duration
	if call.Answered() {
		talkTime = now.Sub(call.AnswerTime)
	}

	// Rule 8: call_type.
	callType := classifyCallType(call, destination)

	record := CRMRecord{
		Caller:      caller,
		Destination: destination,
		Datetime:    now,
		Duration:    duration,
		TalkTime:    talkTime,
		CallStatus:  status,
		Queue:       call.Queue,
		CallType:    callType,
	}
	return record, true, status
}

func classifyCallType(call *Call, destination string) string {
	if call.IncomingCaller != "" && call.IncomingCaller != call.Extension {
		return "inbound"
	}
	if call.Caller != "" && call.Caller != call.Extension && !isInternalLooking(call.Extension) {
		return "inbound"
	}
	if isInternalLooking(destination) {
		return "internal"
	}
	return "outbound"
}

// isMissedStatus reports whether status falls into the §4.4.2 "missed"
// category that warrants a notification row.
func isMissedStatus(status string) bool {
	switch status {
	case "busy", "noanswer", "switched_off", "failed", "invalid_number":
		return true
	default:
		return false
	}
}
