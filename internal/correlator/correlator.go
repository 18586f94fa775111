// Package correlator is the State Correlator (spec.md §4.3): the heart of
// the core. It owns the entire live entity graph exclusively; every other
// component reads copies or immutable views (spec.md §3 Ownership).
package correlator

import (
	"log"
	"sync"

	"callcore/internal/amiproto"
	"callcore/internal/settings"
)

// Correlator holds the live graph: extensions, channels, calls, linkedid
// groups, queues, and CRM-sent markers. Mutation happens on the event path
// (Dispatch), in Resync, and in QueueMutationHint's optimistic update, each
// under the write lock; readers (the projector, sinks at call time) take the
// lock and copy out what they need. Concurrency style grounded on
// internal/dialer/active_call_tracker.go's map+mutex+accessor-method shape.
type Correlator struct {
	mu sync.RWMutex

	monitored map[string]struct{}
	rules     settings.MeaningfulNumberRules

	extensions   map[string]*Extension
	channels     map[string]*Channel
	calls        map[string]*Call // keyed by extension
	linkedGroups map[string]map[string]struct{}
	queues       map[string]*Queue
	queueEntries map[string]*QueueEntry // keyed by caller Uniqueid

	crmSent map[string]struct{} // "linkedid:uniqueid"

	crm      CRMPublisher
	notify   NotificationRecorder
	onNotify NotificationPushed
}

// New builds an empty correlator seeded with the monitored extension set
// (spec.md §3: Extension "created when first seen in the monitored set
// (loaded at startup from external source)").
func New(monitoredExtensions []string, rules settings.MeaningfulNumberRules, crm CRMPublisher, notify NotificationRecorder, onNotify NotificationPushed) *Correlator {
	c := &Correlator{
		monitored:    make(map[string]struct{}, len(monitoredExtensions)),
		rules:        rules,
		extensions:   make(map[string]*Extension),
		channels:     make(map[string]*Channel),
		calls:        make(map[string]*Call),
		linkedGroups: make(map[string]map[string]struct{}),
		queues:       make(map[string]*Queue),
		queueEntries: make(map[string]*QueueEntry),
		crmSent:      make(map[string]struct{}),
		crm:          crm,
		notify:       notify,
		onNotify:     onNotify,
	}
	for _, ext := range monitoredExtensions {
		c.monitored[ext] = struct{}{}
		c.extensions[ext] = &Extension{Number: ext, DisplayStatus: "idle"}
	}
	return c
}

// Dispatch applies one AMI frame to the graph. Per spec.md §4.3.1, events
// outside the watched set are ignored; per §7 propagation policy, a single
// bad event must never escape this call.
func (c *Correlator) Dispatch(m *amiproto.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Correlator] recovered from panic handling event %s: %v", m.Event(), r)
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch m.Event() {
	case "Newchannel":
		c.handleNewchannel(m)
	case "NewCallerid":
		c.handleNewCallerid(m)
	case "Newstate":
		c.handleNewstate(m)
	case "Dial", "DialBegin":
		c.handleDialBegin(m)
	case "DialEnd":
		c.handleDialEnd(m)
	case "Bridge":
		c.handleBridge(m)
	case "VarSet":
		c.handleVarSet(m)
	case "ExtensionStatus":
		c.handleExtensionStatus(m)
	case "PeerStatus", "DeviceStateChange":
		c.handleDeviceState(m)
	case "Hangup":
		c.handleHangup(m)
	case "QueueMemberStatus", "QueueMemberAdded", "QueueMemberRemoved",
		"QueueMemberPause", "QueueMemberPaused", "QueueMemberUnpause", "QueueMemberRingInUse":
		c.handleQueueMemberEvent(m)
	case "QueueEntry", "QueueCallerJoin":
		c.handleQueueCallerJoin(m)
	case "QueueCallerLeave":
		c.handleQueueCallerLeave(m)
	case "AgentCalled":
		c.handleAgentCalled(m)
	case "AgentConnect":
		c.handleAgentConnect(m)
	case "AgentComplete":
		c.handleAgentComplete(m)
	case "QueueSummary":
		// QueueSummary as a live (non-sync) event carries per-queue
		// aggregate counters only; the authoritative rebuild happens via
		// Resync's QueueSummary/QueueStatus action pair (§4.3.7).
	default:
		// Unwatched event; ignored per §4.3.1.
	}
}

// getOrCreateExtension returns the Extension for number, creating it if it
// was never in the monitored set. Its callers are the ExtensionStatus and
// PeerStatus/DeviceStateChange handlers and the ExtensionState sync, so any
// extension or device those report gets an entry.
func (c *Correlator) getOrCreateExtension(number string) *Extension {
	if ext, ok := c.extensions[number]; ok {
		return ext
	}
	ext := &Extension{Number: number, DisplayStatus: "idle"}
	c.extensions[number] = ext
	return ext
}

func (c *Correlator) getOrCreateCall(extension string) *Call {
	if call, ok := c.calls[extension]; ok {
		return call
	}
	call := &Call{Extension: extension, State: "New"}
	c.calls[extension] = call
	return call
}

func (c *Correlator) addToLinkedGroup(linkedid, channel string) {
	if linkedid == "" {
		return
	}
	set, ok := c.linkedGroups[linkedid]
	if !ok {
		set = make(map[string]struct{})
		c.linkedGroups[linkedid] = set
	}
	set[channel] = struct{}{}
}

func (c *Correlator) getOrCreateChannel(name string) *Channel {
	if ch, ok := c.channels[name]; ok {
		return ch
	}
	ch := &Channel{Name: name}
	c.channels[name] = ch
	return ch
}

// moveChannelToLinkedGroup ensures channel is a member of exactly linkedid's
// group, removing it from any other group it was previously tracked under
// (spec.md §4.3.4 Bridge: "moving them if they were in a different group").
func (c *Correlator) moveChannelToLinkedGroup(channel, linkedid string) {
	if channel == "" || linkedid == "" {
		return
	}
	for lid, set := range c.linkedGroups {
		if lid == linkedid {
			continue
		}
		if _, ok := set[channel]; ok {
			delete(set, channel)
		}
	}
	c.addToLinkedGroup(linkedid, channel)
	if ch, ok := c.channels[channel]; ok {
		ch.Linkedid = linkedid
	}
}

func (c *Correlator) getOrCreateQueue(name string) *Queue {
	q, ok := c.queues[name]
	if !ok {
		q = &Queue{Name: name, Members: make(map[string]*QueueMember)}
		c.queues[name] = q
	}
	return q
}
