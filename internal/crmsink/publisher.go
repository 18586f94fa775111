// Package crmsink is the CRM Publisher (spec.md §4.4.1): it accepts
// correlator.CRMRecord values and hands them off to an HTTP endpoint
// asynchronously. The core only owns "enqueue and return"; backpressure,
// auth, and retries are the endpoint's concern (spec.md §1, §4.4.1).
//
// Worker lifecycle grounded on internal/database/batcher.go's LogBatcher:
// a bounded channel drained by one dedicated goroutine, started/stopped
// with a WaitGroup.
package crmsink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"callcore/internal/correlator"
)

const defaultQueueCapacity = 2000

// wireRecord is the JSON shape of the §6 CRM sink interface:
// {caller, destination, datetime, duration, talk_time, call_status, queue?, call_type}.
type wireRecord struct {
	Caller      string `json:"caller"`
	Destination string `json:"destination"`
	Datetime    string `json:"datetime"`
	Duration    string `json:"duration"`
	TalkTime    string `json:"talk_time"`
	CallStatus  string `json:"call_status"`
	Queue       string `json:"queue,omitempty"`
	CallType    string `json:"call_type"`
}

// Publisher implements correlator.CRMPublisher over a bounded channel and a
// single background worker.
type Publisher struct {
	endpoint string
	client   *http.Client

	queue chan correlator.CRMRecord
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New constructs a Publisher that POSTs JSON records to endpoint.
func New(endpoint string, timeout time.Duration, queueCapacity int) *Publisher {
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	return &Publisher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		queue:    make(chan correlator.CRMRecord, queueCapacity),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.wg.Add(1)
	p.mu.Unlock()

	go p.worker()
	log.Println("[CRM] publisher worker started")
}

// Stop closes the queue and waits for the worker to drain it. Per spec.md
// §5 shutdown policy, this only drains what was already enqueued; it does
// not wait on any HTTP request beyond the client's own timeout.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.queue)
	p.wg.Wait()
	log.Println("[CRM] publisher worker stopped")
}

// Publish enqueues record and returns immediately (spec.md §4.4.1: "hand it
// off asynchronously... the core only requires an enqueue operation that
// returns immediately"). A full queue drops the record rather than
// blocking the correlator's event loop.
func (p *Publisher) Publish(record correlator.CRMRecord) {
	select {
	case p.queue <- record:
	default:
		log.Printf("[CRM] queue full, dropping record for %s -> %s", record.Caller, record.Destination)
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for record := range p.queue {
		if err := p.send(record); err != nil {
			// §7 sink-failure: logged, at-most-once marker already set by
			// the correlator before Publish was called; no retry here.
			log.Printf("[CRM] publish failed for %s -> %s: %v", record.Caller, record.Destination, err)
		}
	}
}

func (p *Publisher) send(record correlator.CRMRecord) error {
	wire := wireRecord{
		Caller:      record.Caller,
		Destination: record.Destination,
		Datetime:    record.Datetime.Format(time.RFC3339),
		Duration:    formatHMS(record.Duration),
		TalkTime:    formatHMS(record.TalkTime),
		CallStatus:  record.CallStatus,
		Queue:       record.Queue,
		CallType:    record.CallType,
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshaling CRM record: %w", err)
	}

	resp, err := p.client.Post(p.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting CRM record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("CRM endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func formatHMS(d time.Duration) string {
	total := int64(d.Seconds())
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
