// Package controlapi is the HTTP front door for the §6 supervisor
// operations and the pushgateway websocket upgrade, gated by
// internal/controlauth. Grounded on internal/api/server.go's
// mux-plus-protected-sub-mux shape, trimmed to the handful of routes this
// spec actually names (no REST CRUD, no static file hosting — those are
// the out-of-scope dashboard, per DESIGN.md).
package controlapi

import (
	"encoding/json"
	"log"
	"net/http"

	"callcore/internal/config"
	"callcore/internal/controlauth"
	"callcore/internal/pushgateway"
	"callcore/internal/snapshot"
	"callcore/internal/supervisor"
)

// Server wires the control HTTP API.
type Server struct {
	cfg   config.ControlAPIConfig
	guard *controlauth.Guard
	sup   *supervisor.Supervisor
	gw    *pushgateway.Gateway
}

// New constructs a Server.
func New(cfg config.ControlAPIConfig, guard *controlauth.Guard, sup *supervisor.Supervisor, gw *pushgateway.Gateway) *Server {
	return &Server{cfg: cfg, guard: guard, sup: sup, gw: gw}
}

// Start begins serving and blocks, mirroring http.ListenAndServe's contract.
func (s *Server) Start() error {
	addr := s.cfg.Address()
	log.Printf("[ControlAPI] listening on %s", addr)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)

	protected := http.NewServeMux()
	protected.HandleFunc("/ws", s.handleWebSocket)
	protected.HandleFunc("/api/v1/hangup", s.handleHangup)
	protected.HandleFunc("/api/v1/transfer", s.handleTransfer)
	protected.HandleFunc("/api/v1/listen", s.handleListen)
	protected.HandleFunc("/api/v1/whisper", s.handleWhisper)
	protected.HandleFunc("/api/v1/barge", s.handleBarge)
	protected.HandleFunc("/api/v1/queue/add", s.handleQueueAdd)
	protected.HandleFunc("/api/v1/queue/remove", s.handleQueueRemove)
	protected.HandleFunc("/api/v1/queue/pause", s.handleQueuePause)
	protected.HandleFunc("/api/v1/queue/unpause", s.handleQueueUnpause)

	mux.Handle("/ws", s.guard.Middleware(protected))
	mux.Handle("/api/v1/", s.guard.Middleware(protected))

	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := controlauth.FromContext(r.Context())
	scope := snapshot.AllScope()
	if err == nil {
		scope = claims.Scope()
	}
	s.gw.ServeHTTP(w, r, scope)
}

type hangupRequest struct {
	Extension string `json:"extension"`
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	var req hangupRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.sup.Hangup(req.Extension)
	s.respond(w, "hangup", result)
}

type transferRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Context     string `json:"context"`
	Priority    string `json:"priority"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.sup.Transfer(req.Source, req.Destination, req.Context, req.Priority)
	s.respond(w, "transfer", result)
}

type spyRequest struct {
	Supervisor string `json:"supervisor"`
	Target     string `json:"target"`
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	var req spyRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, "listen", s.sup.Listen(req.Supervisor, req.Target))
}

func (s *Server) handleWhisper(w http.ResponseWriter, r *http.Request) {
	var req spyRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, "whisper", s.sup.Whisper(req.Supervisor, req.Target))
}

func (s *Server) handleBarge(w http.ResponseWriter, r *http.Request) {
	var req spyRequest
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, "barge", s.sup.Barge(req.Supervisor, req.Target))
}

type queueMemberRequest struct {
	Queue      string `json:"queue"`
	Interface  string `json:"interface"`
	MemberName string `json:"member_name"`
	Penalty    int    `json:"penalty"`
	Paused     bool   `json:"paused"`
	Reason     string `json:"reason"`
}

func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req queueMemberRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.sup.QueueAdd(req.Queue, req.Interface, req.MemberName, req.Penalty, req.Paused)
	s.respond(w, "queue_add", result)
}

func (s *Server) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	var req queueMemberRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.sup.QueueRemove(req.Queue, req.Interface)
	s.respond(w, "queue_remove", result)
}

func (s *Server) handleQueuePause(w http.ResponseWriter, r *http.Request) {
	var req queueMemberRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.sup.QueuePause(req.Queue, req.Interface, req.Reason)
	s.respond(w, "queue_pause", result)
}

func (s *Server) handleQueueUnpause(w http.ResponseWriter, r *http.Request) {
	var req queueMemberRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.sup.QueueUnpause(req.Queue, req.Interface)
	s.respond(w, "queue_unpause", result)
}

// respond writes the HTTP response and fans the same outcome out over the
// pushgateway as an action_result (spec.md §6).
func (s *Server) respond(w http.ResponseWriter, operation string, result supervisor.Result) {
	s.gw.NotifyAction(pushgateway.ActionResult{
		Operation: operation,
		Success:   result.Success,
		Message:   result.Message,
	})

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]interface{}{
		"success": result.Success,
		"message": result.Message,
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
