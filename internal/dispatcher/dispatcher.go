// Package dispatcher is the Action Dispatcher (spec §4.2): it gives
// supervisor and sync code synchronous-feeling AMI calls on top of the
// transport's async frame stream, while the rest of the event stream keeps
// flowing to internal/correlator via amiclient's Subscribe.
package dispatcher

import (
	"fmt"
	"log"
	"strings"
	"time"

	"callcore/internal/amiclient"
	"callcore/internal/amiproto"

	"github.com/google/uuid"
)

// DefaultTimeout is the deadline for multi-event actions per §4.2.
const DefaultTimeout = 10 * time.Second

// multiEventActions lists actions known to return a stream of events
// terminated by a Complete sentinel rather than a single response frame.
var multiEventActions = map[string]bool{
	"Status":           true,
	"CoreShowChannels": true,
	"QueueStatus":      true,
	"QueueSummary":     true,
}

// Dispatcher serializes action/response round-trips over a shared
// amiclient.Client, using its read lease so the transport's event loop
// never interleaves with a response.
type Dispatcher struct {
	client *amiclient.Client
}

// New wraps client.
func New(client *amiclient.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// Send issues a single-response action (e.g. Hangup, Redirect, QueueAdd) and
// returns its response frame. Grounded on the teacher's sendAction, replaced
// with lease-aware framing instead of the teacher's bare bufio line reads.
func (d *Dispatcher) Send(action *amiproto.Message) (*amiproto.Message, error) {
	aid := uuid.New().String()
	action.Set("ActionID", aid)

	d.client.AcquireLease()
	defer d.client.ReleaseLease()

	if err := d.client.WriteMessage(action); err != nil {
		return nil, fmt.Errorf("writing action %s: %w", action.Get("Action"), err)
	}

	deadline := time.Now().Add(DefaultTimeout)
	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("action %s timed out waiting for response", action.Get("Action"))
		}
		frame, err := d.client.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("reading response to %s: %w", action.Get("Action"), err)
		}
		if frame.Has("Response") {
			return frame, nil
		}
		// An event surfaced while we held the lease: it belongs to the
		// correlator's stream, not to this action's response.
		d.client.Broadcast(frame)
	}
}

// SendMultiEvent issues a multi-event action (Status, CoreShowChannels,
// QueueStatus, QueueSummary, ...), collecting every frame until the
// completion sentinel or the deadline. completeEvent overrides the default
// "<Action>Complete" naming; pass "" to use the default. Every frame read is
// returned, including unrelated events that arrive before the sentinel;
// none is forwarded to subscribers. The deadline is checked between frames
// only: a ReadFrame that is waiting for the next frame is not interrupted
// when the deadline passes.
func (d *Dispatcher) SendMultiEvent(action *amiproto.Message, completeEvent string) ([]*amiproto.Message, error) {
	actionName := action.Get("Action")
	if completeEvent == "" {
		completeEvent = actionName + "Complete"
	}

	aid := uuid.New().String()
	action.Set("ActionID", aid)

	d.client.AcquireLease()
	defer d.client.ReleaseLease()

	if err := d.client.WriteMessage(action); err != nil {
		return nil, fmt.Errorf("writing action %s: %w", actionName, err)
	}

	var frames []*amiproto.Message
	deadline := time.Now().Add(DefaultTimeout)
	for {
		if time.Now().After(deadline) {
			log.Printf("[Dispatcher] action %s timed out after %d frames, returning partial result", actionName, len(frames))
			return frames, nil
		}
		frame, err := d.client.ReadFrame()
		if err != nil {
			return frames, fmt.Errorf("reading multi-event response to %s: %w", actionName, err)
		}
		frames = append(frames, frame)
		if strings.EqualFold(frame.Event(), completeEvent) {
			return frames, nil
		}
	}
}

// IsMultiEvent reports whether actionName is known to return a stream
// terminated by a Complete event rather than a single response.
func IsMultiEvent(actionName string) bool {
	return multiEventActions[actionName]
}
