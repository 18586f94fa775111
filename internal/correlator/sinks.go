package correlator

import "time"

// CRMRecord is the payload handed to the CRM sink (spec.md §4.4.1, §6 CRM
// sink interface).
type CRMRecord struct {
	Caller      string
	Destination string
	Datetime    time.Time
	Duration    time.Duration
	TalkTime    time.Duration
	CallStatus  string
	Queue       string
	CallType    string
}

// CRMPublisher is the §6 "publish(record)" outbound operation. The
// correlator only requires enqueue-and-return; backpressure, retries, and
// auth are the sink's concern (spec.md §4.4.1).
type CRMPublisher interface {
	Publish(record CRMRecord)
}

// NotificationRecorder is the §6 "insert(...)" outbound operation for the
// missed-call ledger (spec.md §4.4.2).
type NotificationRecorder interface {
	Insert(extension, caller, queue, callID, reason string)
}

// NotificationPushed is invoked after a notification row is inserted so
// subscribers can be woken (§6 call_notification_new).
type NotificationPushed func(extension string)
