package controlapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callcore/internal/amiclient"
	"callcore/internal/amiproto"
	"callcore/internal/config"
	"callcore/internal/controlauth"
	"callcore/internal/correlator"
	"callcore/internal/dispatcher"
	"callcore/internal/pushgateway"
	"callcore/internal/settings"
	"callcore/internal/supervisor"
)

// newFakeSupervisor wires a real Supervisor to an in-memory AMI peer that
// always answers Success, so the control API's routing/auth layer can be
// exercised without a live Asterisk.
func newFakeSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	corr := correlator.New([]string{"100"}, settings.DefaultMeaningfulNumberRules(), nil, nil, nil)
	corr.Dispatch(eventMsg(
		"Event", "Newchannel",
		"Channel", "PJSIP/100-00000001",
		"Uniqueid", "1.1",
		"Linkedid", "1.1",
		"CallerIDNum", "100",
	))

	server, client := net.Pipe()
	c := amiclient.NewForTesting(client, bufio.NewReader(client))
	go func() {
		fr := amiproto.NewFrameReader(bufio.NewReader(server))
		for {
			action, err := fr.ReadFrame()
			if err != nil {
				return
			}
			resp := amiproto.NewMessage()
			resp.Set("Response", "Success")
			resp.Set("ActionID", action.Get("ActionID"))
			if _, err := server.Write(resp.Encode()); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { client.Close(); server.Close() })

	return supervisor.New(corr, dispatcher.New(c))
}

func eventMsg(pairs ...string) *amiproto.Message {
	m := amiproto.NewMessage()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

func newTestServer(t *testing.T) (*Server, *controlauth.Guard) {
	t.Helper()
	guard := controlauth.New("test-secret")
	sup := newFakeSupervisor(t)
	gw := pushgateway.New(correlator.New(nil, settings.DefaultMeaningfulNumberRules(), nil, nil, nil), time.Second)
	go gw.Run()
	t.Cleanup(gw.Stop)

	return New(config.ControlAPIConfig{Host: "127.0.0.1", Port: 0, JWTSecret: "test-secret"}, guard, sup, gw), guard
}

func TestHandleHealth_IsPublic(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleHangup_RequiresBearerToken(t *testing.T) {
	srv, _ := newTestServer(t)

	mux := http.NewServeMux()
	protected := http.NewServeMux()
	protected.HandleFunc("/api/v1/hangup", srv.handleHangup)
	mux.Handle("/api/v1/", srv.guard.Middleware(protected))

	body, _ := json.Marshal(map[string]string{"extension": "100"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hangup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a bearer token", rec.Code)
	}
}

func TestHandleHangup_SucceedsWithValidToken(t *testing.T) {
	srv, guard := newTestServer(t)
	token, err := guard.IssueToken("alice", "supervisor", time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	mux := http.NewServeMux()
	protected := http.NewServeMux()
	protected.HandleFunc("/api/v1/hangup", srv.handleHangup)
	mux.Handle("/api/v1/", srv.guard.Middleware(protected))

	body, _ := json.Marshal(map[string]string{"extension": "100"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hangup", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["success"] != true {
		t.Errorf("success = %v, want true", decoded["success"])
	}
}

func TestHandleHangup_RejectsNonPOST(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hangup", nil)
	rec := httptest.NewRecorder()

	srv.handleHangup(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
