// Package snapshot is the State Projector (spec.md §4.5): it reads the
// correlator's live graph through its read-only view methods and builds a
// fresh, scope-filtered snapshot per subscriber. It never mutates state and
// never retains a correlator reference past the call that built a Snapshot.
package snapshot

import (
	"callcore/internal/correlator"
)

// Scope is a subscriber's visibility filter (spec.md §4.5 Inputs).
// Nil AllowExtensions/AllowQueues means "all".
type Scope struct {
	AllowExtensions map[string]struct{}
	AllowQueues     map[string]struct{}
}

// AllScope returns a Scope with no restriction.
func AllScope() Scope {
	return Scope{}
}

func (s Scope) allowsExtension(ext string) bool {
	if s.AllowExtensions == nil {
		return true
	}
	_, ok := s.AllowExtensions[ext]
	return ok
}

func (s Scope) allowsQueue(queue string) bool {
	if s.AllowQueues == nil {
		return true
	}
	_, ok := s.AllowQueues[queue]
	return ok
}

// ExtensionView is one entry of the snapshot's extensions map.
type ExtensionView struct {
	Status     string  `json:"status"`
	RawCode    string  `json:"raw_code"`
	ActiveCall *string `json:"active_call,omitempty"`
}

// CallView is a formatted, display-ready call summary.
type CallView struct {
	Extension   string `json:"extension"`
	State       string `json:"state"`
	Caller      string `json:"caller"`
	Destination string `json:"destination"`
	Queue       string `json:"queue,omitempty"`
	StartedAt   string `json:"started_at"`
}

// QueueMemberView is a formatted queue member entry.
type QueueMemberView struct {
	Interface string `json:"interface"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Paused    bool   `json:"paused"`
}

// QueueEntryView is a formatted queue entry (caller waiting).
type QueueEntryView struct {
	Uniqueid string `json:"uniqueid"`
	CallerID string `json:"caller_id"`
	Position int    `json:"position"`
}

// QueueView aggregates a single queue's members and entries.
type QueueView struct {
	Name         string            `json:"name"`
	Members      []QueueMemberView `json:"members"`
	QueueEntries []QueueEntryView  `json:"queue_entries"`
	CallsWaiting int               `json:"calls_waiting"`
}

// Stats are the §4.5 aggregate totals.
type Stats struct {
	Extensions   int `json:"extensions"`
	ActiveCalls  int `json:"active_calls"`
	Queues       int `json:"queues"`
	QueueMembers int `json:"queue_members"`
	QueueEntries int `json:"queue_entries"`
}

// Snapshot is the projector's output (spec.md §4.5 Output).
type Snapshot struct {
	Extensions  map[string]ExtensionView `json:"extensions"`
	ActiveCalls map[string]CallView      `json:"active_calls"`
	Queues      map[string]QueueView     `json:"queues"`
	Stats       Stats                    `json:"stats"`
}

// hiddenQueue is always excluded regardless of scope (§4.5 Output).
const hiddenQueue = "default"

// Build produces a Snapshot of corr filtered by scope. Building is pure: it
// reads corr's views once and never touches corr again.
func Build(corr *correlator.Correlator, scope Scope) Snapshot {
	calls := corr.CallsView()
	extensions := corr.ExtensionsView()
	queues := corr.QueuesView()
	entries := corr.QueueEntriesView()

	callees := detectCallees(calls)

	snap := Snapshot{
		Extensions:  make(map[string]ExtensionView),
		ActiveCalls: make(map[string]CallView),
		Queues:      make(map[string]QueueView),
	}

	for ext, e := range extensions {
		if !scope.allowsExtension(ext) {
			continue
		}
		view := ExtensionView{Status: e.DisplayStatus, RawCode: e.StatusCode}
		if call, ok := calls[ext]; ok && call.State != "Down" {
			label := formatCallSummary(call)
			view.ActiveCall = &label
		}
		snap.Extensions[ext] = view
	}

	for ext, call := range calls {
		if !scope.allowsExtension(ext) {
			continue
		}
		if call.State == "Down" {
			continue
		}
		if callees[ext] {
			continue
		}
		snap.ActiveCalls[ext] = CallView{
			Extension:   ext,
			State:       call.State,
			Caller:      call.Caller,
			Destination: call.Destination,
			Queue:       call.Queue,
			StartedAt:   call.StartTime.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	for name, q := range queues {
		if name == hiddenQueue || !scope.allowsQueue(name) {
			continue
		}
		qv := QueueView{Name: name}
		for _, m := range q.Members {
			qv.Members = append(qv.Members, QueueMemberView{
				Interface: m.Interface,
				Name:      m.Name,
				Status:    m.StatusCode,
				Paused:    m.Paused,
			})
		}
		for _, e := range entries {
			if e.Queue != name {
				continue
			}
			qv.QueueEntries = append(qv.QueueEntries, QueueEntryView{
				Uniqueid: e.Uniqueid,
				CallerID: e.CallerID,
				Position: e.Position,
			})
			qv.CallsWaiting++
		}
		snap.Queues[name] = qv
	}

	snap.Stats = Stats{
		Extensions:   len(snap.Extensions),
		ActiveCalls:  len(snap.ActiveCalls),
		Queues:       len(snap.Queues),
		QueueMembers: countMembers(snap.Queues),
		QueueEntries: countEntries(snap.Queues),
	}

	return snap
}

// detectCallees implements §4.5's callee-detection rule: an extension is a
// callee when its Call's caller field is an internal-looking extension.
func detectCallees(calls map[string]correlator.Call) map[string]bool {
	callees := make(map[string]bool, len(calls))
	for ext, call := range calls {
		if call.Caller != "" && isInternalLooking(call.Caller) {
			callees[ext] = true
		}
	}
	return callees
}

func isInternalLooking(s string) bool {
	if len(s) < 3 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func formatCallSummary(call correlator.Call) string {
	if call.Destination != "" {
		return call.Destination
	}
	return call.Caller
}

func countMembers(queues map[string]QueueView) int {
	n := 0
	for _, q := range queues {
		n += len(q.Members)
	}
	return n
}

func countEntries(queues map[string]QueueView) int {
	n := 0
	for _, q := range queues {
		n += len(q.QueueEntries)
	}
	return n
}
