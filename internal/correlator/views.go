package correlator

// The methods in this file are the correlator's read surface (spec.md §3
// Ownership: "Sinks receive copies or immutable views; the projector
// receives a scope filter and returns a freshly built snapshot"). Every
// method takes the read lock and returns copies, never live pointers, so a
// caller can never observe a partial mutation or hold a reference past the
// call (spec.md §5 shared-resource policy).

// ExtensionsView returns a copy of every tracked Extension, keyed by number.
func (c *Correlator) ExtensionsView() map[string]Extension {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Extension, len(c.extensions))
	for k, v := range c.extensions {
		out[k] = *v
	}
	return out
}

// CallsView returns a copy of every active Call, keyed by extension.
func (c *Correlator) CallsView() map[string]Call {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Call, len(c.calls))
	for k, v := range c.calls {
		out[k] = *v
	}
	return out
}

// QueueView is a read-only copy of a Queue and its members.
type QueueView struct {
	Name    string
	Members map[string]QueueMember
}

// QueuesView returns a copy of every tracked queue, keyed by name.
func (c *Correlator) QueuesView() map[string]QueueView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]QueueView, len(c.queues))
	for name, q := range c.queues {
		members := make(map[string]QueueMember, len(q.Members))
		for k, v := range q.Members {
			members[k] = *v
		}
		out[name] = QueueView{Name: name, Members: members}
	}
	return out
}

// QueueEntriesView returns a copy of every waiting queue entry, keyed by
// caller uniqueid.
func (c *Correlator) QueueEntriesView() map[string]QueueEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]QueueEntry, len(c.queueEntries))
	for k, v := range c.queueEntries {
		out[k] = *v
	}
	return out
}

// ChannelForExtension resolves an extension's current primary channel, for
// supervisor operations that need a literal channel name (§6 hangup,
// transfer).
func (c *Correlator) ChannelForExtension(extension string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	call, ok := c.calls[extension]
	if !ok || call.Channel == "" {
		return "", false
	}
	return call.Channel, true
}

// BridgePeerChannel finds another live channel sharing extension's current
// linkedid, for resolving a "talking-to" transfer source (§6 transfer:
// "resolve source to a channel... or bridge-peer lookup by linkedid").
func (c *Correlator) BridgePeerChannel(extension string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	call, ok := c.calls[extension]
	if !ok || call.Linkedid == "" {
		return "", false
	}
	set, ok := c.linkedGroups[call.Linkedid]
	if !ok {
		return "", false
	}
	for ch := range set {
		if ch != call.Channel {
			return ch, true
		}
	}
	return "", false
}

// QueueMutationHint applies an optimistic local update to a queue member's
// paused state ahead of the AMI event echo (§6 queue mutations: "with
// optimistic local state update before the event echo arrives").
func (c *Correlator) QueueMutationHint(queueName, iface string, paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[queueName]
	if !ok {
		return
	}
	if member, ok := q.Members[iface]; ok {
		member.Paused = paused
	}
}
