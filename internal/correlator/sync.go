package correlator

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"callcore/internal/amiproto"
	"callcore/internal/dispatcher"
)

// Resync implements spec.md §4.3.7: three one-shot actions that seed state
// at startup and on explicit "full sync" commands. It is called with the
// same Dispatcher the supervisor uses, so the read lease discipline (§5)
// naturally serializes it against any other in-flight action; the event
// reader is simply locked out for the duration, same as any other action.
func (c *Correlator) Resync(d *dispatcher.Dispatcher, monitoredExtensions []string) error {
	c.syncExtensionStates(d, monitoredExtensions)

	if err := c.syncActiveCalls(d); err != nil {
		return fmt.Errorf("syncing active calls: %w", err)
	}

	if err := c.syncQueues(d); err != nil {
		return fmt.Errorf("syncing queues: %w", err)
	}

	return nil
}

func (c *Correlator) syncExtensionStates(d *dispatcher.Dispatcher, extensions []string) {
	for _, ext := range extensions {
		action := amiproto.NewAction("ExtensionState")
		action.Set("Exten", ext)
		action.Set("Context", "default")

		resp, err := d.Send(action)
		if err != nil {
			log.Printf("[Correlator] ExtensionState sync failed for %s: %v", ext, err)
			continue
		}

		c.mu.Lock()
		e := c.getOrCreateExtension(ext)
		e.StatusCode = resp.Get("Status")
		e.DisplayStatus = displayStatusFromCode(resp.Get("Status"))
		c.mu.Unlock()
	}
}

// syncActiveCalls implements the Status half of §4.3.7: rebuild active_calls
// from a CoreShowChannels-equivalent dump, preserving start_time/answer_time
// from any prior record for the same extension so duration accounting
// survives a resync.
func (c *Correlator) syncActiveCalls(d *dispatcher.Dispatcher) error {
	frames, err := d.SendMultiEvent(amiproto.NewAction("Status"), "")
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	type priorTimes struct {
		start  time.Time
		answer time.Time
	}
	prior := make(map[string]priorTimes, len(c.calls))
	for ext, call := range c.calls {
		prior[ext] = priorTimes{start: call.StartTime, answer: call.AnswerTime}
	}

	rebuilt := make(map[string]*Call)
	for _, f := range frames {
		if f.Event() != "Status" {
			continue
		}
		channel := f.Get("Channel")
		ext := extensionFromChannel(channel)
		if ext == "" {
			continue
		}

		call := &Call{
			Extension: ext,
			Channel:   channel,
			State:     f.Get("ChannelStateDesc"),
			CallerID:  f.Get("CallerIDNum"),
			Linkedid:  f.Get("Linkedid"),
			Uniqueid:  f.Get("Uniqueid"),
		}

		if pt, ok := prior[ext]; ok {
			call.StartTime = pt.start
			call.AnswerTime = pt.answer
		} else if secs := f.Get("Seconds"); secs != "" {
			if v, err := strconv.Atoi(secs); err == nil {
				call.StartTime = time.Now().Add(-time.Duration(v) * time.Second)
			}
		}
		if call.StartTime.IsZero() {
			call.StartTime = time.Now()
		}

		rebuilt[ext] = call
	}

	c.calls = rebuilt
	return nil
}

// syncQueues implements the QueueSummary+QueueStatus half of §4.3.7: clear
// stale entries, then repopulate from fresh AMI dumps.
func (c *Correlator) syncQueues(d *dispatcher.Dispatcher) error {
	summaryFrames, err := d.SendMultiEvent(amiproto.NewAction("QueueSummary"), "")
	if err != nil {
		return err
	}

	var queueNames []string
	for _, f := range summaryFrames {
		if f.Event() == "QueueSummary" {
			if name := f.Get("Queue"); name != "" {
				queueNames = append(queueNames, name)
			}
		}
	}

	for _, name := range queueNames {
		statusAction := amiproto.NewAction("QueueStatus")
		statusAction.Set("Queue", name)
		frames, err := d.SendMultiEvent(statusAction, "QueueStatusComplete")
		if err != nil {
			log.Printf("[Correlator] QueueStatus sync failed for %s: %v", name, err)
			continue
		}
		c.applyQueueStatusFrames(name, frames)
	}

	return nil
}

func (c *Correlator) applyQueueStatusFrames(queueName string, frames []*amiproto.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.getOrCreateQueue(queueName)
	q.Members = make(map[string]*QueueMember)

	for uid, entry := range c.queueEntries {
		if entry.Queue == queueName {
			delete(c.queueEntries, uid)
		}
	}

	for _, f := range frames {
		switch f.Event() {
		case "QueueMember":
			iface := f.Get("Interface")
			if iface == "" {
				iface = f.Get("Location")
			}
			if iface == "" {
				continue
			}
			q.Members[iface] = &QueueMember{
				Queue:       queueName,
				Interface:   iface,
				Name:        f.Get("MemberName"),
				StatusCode:  f.Get("Status"),
				Paused:      f.Get("Paused") == "1",
				PauseReason: f.Get("PausedReason"),
				Dynamic:     f.Get("Membership") == "dynamic",
			}
		case "QueueEntry":
			uid := f.Get("Uniqueid")
			if uid == "" {
				continue
			}
			pos := 0
			if v, err := strconv.Atoi(f.Get("Position")); err == nil {
				pos = v
			}
			c.queueEntries[uid] = &QueueEntry{
				Uniqueid:  uid,
				Queue:     queueName,
				CallerID:  f.Get("CallerIDNum"),
				Position:  pos,
				EntryTime: time.Now(),
				Channel:   f.Get("Channel"),
			}
		}
	}
}
