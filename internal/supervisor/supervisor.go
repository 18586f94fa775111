// Package supervisor implements the §6 supervisor operations: hangup,
// transfer, listen/whisper/barge, and queue member mutations. Each
// operation resolves a channel via the correlator's read views, then
// issues one AMI action through the dispatcher and reports
// (success, message) back to the caller.
//
// Grounded on original_source/backend/ami.py's hangup_call/transfer_call/
// _chanspy/queue_add/queue_remove/queue_pause methods, translated from
// async Python into synchronous Go calls riding on internal/dispatcher's
// lease-guarded Send.
package supervisor

import (
	"fmt"
	"strings"

	"callcore/internal/amiproto"
	"callcore/internal/correlator"
	"callcore/internal/dispatcher"
)

// Supervisor exposes the §6 operations over a correlator + dispatcher pair.
type Supervisor struct {
	corr *correlator.Correlator
	d    *dispatcher.Dispatcher
}

// New constructs a Supervisor.
func New(corr *correlator.Correlator, d *dispatcher.Dispatcher) *Supervisor {
	return &Supervisor{corr: corr, d: d}
}

// Result is the outcome of a supervisor operation, mirrored into the
// pushgateway's action_result message.
type Result struct {
	Success bool
	Message string
}

func ok(format string, args ...interface{}) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...interface{}) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Hangup finds extension's primary channel and sends AMI Hangup.
func (s *Supervisor) Hangup(extension string) Result {
	channel, found := s.corr.ChannelForExtension(extension)
	if !found {
		return fail("no active call on extension %s", extension)
	}

	action := amiproto.NewAction("Hangup")
	action.Set("Channel", channel)

	resp, err := s.d.Send(action)
	if err != nil {
		return fail("hangup failed for %s: %v", extension, err)
	}
	if !resp.IsSuccess() {
		return fail("hangup failed for %s: %s", extension, resp.Get("Message"))
	}
	return ok("hangup requested for extension %s", extension)
}

// Transfer resolves source to a channel (direct lookup, or bridge-peer
// lookup by linkedid if source is a "talking-to" number) and sends
// AMI Redirect into destination/context/priority.
func (s *Supervisor) Transfer(source, destination, context, priority string) Result {
	if destination == "" {
		return fail("no destination provided for transfer")
	}
	if context == "" {
		context = "default"
	}
	if priority == "" {
		priority = "1"
	}

	channel, found := s.resolveTransferSource(source)
	if !found {
		return fail("no active call on extension/number %s", source)
	}

	action := amiproto.NewAction("Redirect")
	action.Set("Channel", channel)
	action.Set("Exten", destination)
	action.Set("Context", context)
	action.Set("Priority", priority)

	resp, err := s.d.Send(action)
	if err != nil {
		return fail("transfer failed for %s -> %s: %v", source, destination, err)
	}
	if !resp.IsSuccess() {
		return fail("transfer failed for %s -> %s: %s", source, destination, resp.Get("Message"))
	}
	return ok("transfer requested: %s -> %s in %s", source, destination, context)
}

// resolveTransferSource implements ami.py's _channel_for_transfer_source:
// try source as a monitored extension first, then fall back to its
// bridge-peer channel (the leg source is currently talking to).
func (s *Supervisor) resolveTransferSource(source string) (string, bool) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", false
	}
	if channel, found := s.corr.ChannelForExtension(source); found {
		return channel, true
	}
	return s.corr.BridgePeerChannel(source)
}

// Listen originates a supervisor-side ChanSpy in listen-only mode (qsE).
func (s *Supervisor) Listen(supervisorExt, target string) Result {
	return s.chanspy(supervisorExt, target, "qsE", "Listen")
}

// Whisper originates a ChanSpy in whisper mode (qwsE): the agent hears the
// supervisor, the caller does not.
func (s *Supervisor) Whisper(supervisorExt, target string) Result {
	return s.chanspy(supervisorExt, target, "qwsE", "Whisper")
}

// Barge originates a ChanSpy in barge mode (qBsE): both parties hear the
// supervisor.
func (s *Supervisor) Barge(supervisorExt, target string) Result {
	return s.chanspy(supervisorExt, target, "qBsE", "Barge")
}

// chanspy resolves target's channel, strips the trailing "-nnnnnnnn"
// suffix to get the spy prefix, and originates supervisorExt into
// ChanSpy with the given option string.
func (s *Supervisor) chanspy(supervisorExt, target, options, label string) Result {
	channel, found := s.corr.ChannelForExtension(target)
	if !found {
		return fail("no active call on extension %s", target)
	}

	base := channel
	if idx := strings.LastIndex(channel, "-"); idx >= 0 {
		base = channel[:idx]
	}

	action := amiproto.NewAction("Originate")
	action.Set("Channel", fmt.Sprintf("PJSIP/%s", supervisorExt))
	action.Set("Application", "ChanSpy")
	action.Set("Data", fmt.Sprintf("%s,%s", base, options))
	action.Set("CallerID", fmt.Sprintf("%s <%s>", label, target))
	action.Set("Timeout", "30000")

	resp, err := s.d.Send(action)
	if err != nil {
		return fail("%s failed: %v", label, err)
	}
	if !resp.IsSuccess() {
		return fail("%s failed: %s", label, resp.Get("Message"))
	}
	return ok("%s is now %sing %s's call", supervisorExt, strings.ToLower(label), target)
}

// QueueAdd adds a dynamic member to a queue, then applies an optimistic
// local state update ahead of the AMI event echo (spec.md §6).
func (s *Supervisor) QueueAdd(queue, iface, memberName string, penalty int, paused bool) Result {
	action := amiproto.NewAction("QueueAdd")
	action.Set("Queue", queue)
	action.Set("Interface", iface)
	if penalty > 0 {
		action.Set("Penalty", fmt.Sprintf("%d", penalty))
	}
	if memberName != "" {
		action.Set("MemberName", memberName)
	}
	if paused {
		action.Set("Paused", "1")
	}

	resp, err := s.d.Send(action)
	if err != nil {
		return fail("failed to add %s to %s: %v", iface, queue, err)
	}
	if !resp.IsSuccess() {
		return fail("failed to add %s to %s: %s", iface, queue, resp.Get("Message"))
	}

	s.corr.QueueMutationHint(queue, iface, paused)
	return ok("added %s to queue %s", iface, queue)
}

// QueueRemove removes a member from a queue. Asterisk rejects removal of
// statically configured members; that failure ("not dynamic") is reported
// as a message naming the member as static, and any other failure message
// is surfaced verbatim.
func (s *Supervisor) QueueRemove(queue, iface string) Result {
	action := amiproto.NewAction("QueueRemove")
	action.Set("Queue", queue)
	action.Set("Interface", iface)

	resp, err := s.d.Send(action)
	if err != nil {
		return fail("failed to remove %s from %s: %v", iface, queue, err)
	}
	if !resp.IsSuccess() {
		msg := resp.Get("Message")
		if strings.Contains(strings.ToLower(msg), "not dynamic") {
			return fail("%s is statically configured in queues.conf and cannot be removed via AMI", iface)
		}
		return fail("failed to remove %s from %s: %s", iface, queue, msg)
	}
	return ok("removed %s from queue %s", iface, queue)
}

// QueuePause pauses a queue member with an optional reason.
func (s *Supervisor) QueuePause(queue, iface, reason string) Result {
	return s.setPaused(queue, iface, true, reason)
}

// QueueUnpause unpauses a queue member.
func (s *Supervisor) QueueUnpause(queue, iface string) Result {
	return s.setPaused(queue, iface, false, "")
}

func (s *Supervisor) setPaused(queue, iface string, paused bool, reason string) Result {
	action := amiproto.NewAction("QueuePause")
	action.Set("Queue", queue)
	action.Set("Interface", iface)
	if paused {
		action.Set("Paused", "1")
	} else {
		action.Set("Paused", "0")
	}
	if reason != "" {
		action.Set("Reason", reason)
	}

	resp, err := s.d.Send(action)
	verb := "pause"
	if !paused {
		verb = "unpause"
	}
	if err != nil {
		return fail("failed to %s %s in %s: %v", verb, iface, queue, err)
	}
	if !resp.IsSuccess() {
		return fail("failed to %s %s in %s: %s", verb, iface, queue, resp.Get("Message"))
	}

	s.corr.QueueMutationHint(queue, iface, paused)
	action2 := "paused"
	if !paused {
		action2 = "unpaused"
	}
	return ok("%s %s in queue %s", iface, action2, queue)
}
