package crmsink

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"callcore/internal/correlator"
)

func TestPublish_PostsWireRecordToEndpoint(t *testing.T) {
	var mu sync.Mutex
	var received map[string]interface{}
	gotCh := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		received = body
		mu.Unlock()
		close(gotCh)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL, 2*time.Second, 10)
	p.Start()
	defer p.Stop()

	p.Publish(correlator.CRMRecord{
		Caller:      "100",
		Destination: "101",
		Datetime:    time.Now(),
		Duration:    90 * time.Second,
		TalkTime:    60 * time.Second,
		CallStatus:  "completed",
		CallType:    "internal",
	})

	select {
	case <-gotCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for CRM POST")
	}

	mu.Lock()
	defer mu.Unlock()
	if received["caller"] != "100" || received["destination"] != "101" {
		t.Errorf("received = %v, want caller=100 destination=101", received)
	}
	if received["call_status"] != "completed" {
		t.Errorf("call_status = %v, want completed", received["call_status"])
	}
	if received["talk_time"] != "00:01:00" {
		t.Errorf("talk_time = %v, want 00:01:00", received["talk_time"])
	}
}

func TestPublish_DropsRecordWhenQueueFull(t *testing.T) {
	blocked := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(blocked)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL, 5*time.Second, 1)
	p.Start()
	defer func() {
		close(release)
		p.Stop()
	}()

	// First record starts being sent by the worker and blocks on the server.
	p.Publish(correlator.CRMRecord{Caller: "1", Destination: "2"})
	<-blocked

	// The queue has capacity 1 and the worker already dequeued the first
	// record, so these two fill (and then overflow) the queue without
	// blocking this goroutine.
	p.Publish(correlator.CRMRecord{Caller: "3", Destination: "4"})
	p.Publish(correlator.CRMRecord{Caller: "5", Destination: "6"})
}

func TestStop_IsIdempotentAndDrainsQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL, time.Second, 10)
	p.Start()
	p.Publish(correlator.CRMRecord{Caller: "1", Destination: "2"})
	p.Stop()
	p.Stop() // must not panic or block on a second call
}
