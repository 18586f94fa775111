// Package pushgateway is the §6 Subscriber interface's websocket transport.
// It generalizes internal/websocket/hub.go's register/unregister/broadcast
// loop to push snapshot.Snapshot-derived messages instead of raw call
// events, and adds per-client scope and a coalesced broadcast tick instead
// of broadcasting every state change individually.
package pushgateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"callcore/internal/correlator"
	"callcore/internal/snapshot"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MessageType tags every pushed message per the §6 Subscriber interface.
type MessageType string

const (
	MsgInitialState     MessageType = "initial_state"
	MsgStateUpdate      MessageType = "state_update"
	MsgActionResult     MessageType = "action_result"
	MsgCallNotification MessageType = "call_notification_new"
)

// Message is the envelope pushed to every subscriber.
type Message struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ActionResult is the payload of an action_result push.
type ActionResult struct {
	Operation string `json:"operation"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
}

// CallNotification is the payload of a call_notification_new push.
type CallNotification struct {
	Extension string `json:"extension"`
}

// client is one connected websocket subscriber, scoped to a subset of
// extensions/queues (nil scope sees everything).
type client struct {
	conn  *websocket.Conn
	send  chan []byte
	scope snapshot.Scope
}

// Gateway fans scope-filtered snapshots out to connected clients, adapted
// from internal/websocket/hub.go's Hub.
type Gateway struct {
	corr *correlator.Correlator

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan broadcastMsg
	mu         sync.RWMutex

	tickEvery time.Duration
	done      chan struct{}
}

type broadcastMsg struct {
	msgType MessageType
	data    interface{}
}

// New constructs a Gateway over corr. tickEvery is the coalesced
// state_update cadence (spec.md §6: "on coalesced tick").
func New(corr *correlator.Correlator, tickEvery time.Duration) *Gateway {
	if tickEvery <= 0 {
		tickEvery = 500 * time.Millisecond
	}
	return &Gateway{
		corr:       corr,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan broadcastMsg, 256),
		tickEvery:  tickEvery,
		done:       make(chan struct{}),
	}
}

// Run drives the gateway's register/unregister/broadcast loop plus the
// coalesced state_update ticker. Call it in its own goroutine.
func (g *Gateway) Run() {
	ticker := time.NewTicker(g.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case c := <-g.register:
			g.mu.Lock()
			g.clients[c] = true
			g.mu.Unlock()
			g.sendInitialState(c)

		case c := <-g.unregister:
			g.mu.Lock()
			if _, ok := g.clients[c]; ok {
				delete(g.clients, c)
				close(c.send)
			}
			g.mu.Unlock()

		case msg := <-g.broadcast:
			g.deliver(msg.msgType, msg.data)

		case <-ticker.C:
			g.broadcastStateUpdate()

		case <-g.done:
			return
		}
	}
}

// Stop ends the Run loop.
func (g *Gateway) Stop() {
	close(g.done)
}

// NotifyAction pushes an action_result to all clients (spec.md §6:
// "action_result in response to a supervisor action").
func (g *Gateway) NotifyAction(result ActionResult) {
	select {
	case g.broadcast <- broadcastMsg{msgType: MsgActionResult, data: result}:
	default:
		log.Println("[Push] broadcast queue full, dropping action_result")
	}
}

// NotifyCall pushes a call_notification_new to all clients (spec.md §6:
// "whenever the notification sink inserts a row").
func (g *Gateway) NotifyCall(extension string) {
	select {
	case g.broadcast <- broadcastMsg{msgType: MsgCallNotification, data: CallNotification{Extension: extension}}:
	default:
		log.Println("[Push] broadcast queue full, dropping call_notification_new")
	}
}

func (g *Gateway) broadcastStateUpdate() {
	var dead []*client
	for _, c := range g.snapshotClients() {
		snap := snapshot.Build(g.corr, c.scope)
		if !g.sendTo(c, MsgStateUpdate, snap) {
			dead = append(dead, c)
		}
	}
	g.removeClients(dead)
}

func (g *Gateway) sendInitialState(c *client) {
	snap := snapshot.Build(g.corr, c.scope)
	if !g.sendTo(c, MsgInitialState, snap) {
		g.removeClients([]*client{c})
	}
}

func (g *Gateway) deliver(msgType MessageType, data interface{}) {
	var dead []*client
	for _, c := range g.snapshotClients() {
		if !g.sendTo(c, msgType, data) {
			dead = append(dead, c)
		}
	}
	g.removeClients(dead)
}

// snapshotClients copies the current client set under RLock so callers can
// range over it after releasing the lock, since sendTo's full-queue path
// needs to remove clients and a writer can't run underneath a reader's lock.
func (g *Gateway) snapshotClients() []*client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	targets := make([]*client, 0, len(g.clients))
	for c := range g.clients {
		targets = append(targets, c)
	}
	return targets
}

// sendTo enqueues msgType/data on c's send channel, reporting false if the
// channel was full (client deemed dead; the caller removes it).
func (g *Gateway) sendTo(c *client, msgType MessageType, data interface{}) bool {
	body, err := json.Marshal(Message{Type: msgType, Data: data, Timestamp: time.Now()})
	if err != nil {
		log.Printf("[Push] error marshaling %s: %v", msgType, err)
		return true
	}
	select {
	case c.send <- body:
		return true
	default:
		return false
	}
}

func (g *Gateway) removeClients(clients []*client) {
	if len(clients) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range clients {
		if _, ok := g.clients[c]; ok {
			delete(g.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades a request to a websocket subscriber. Scope is derived
// by the caller (e.g. from the bearer token's claims) and passed in.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request, scope snapshot.Scope) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Push] upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256), scope: scope}
	g.register <- c

	go g.writePump(c)
	go g.readPump(c)
}

func (g *Gateway) readPump(c *client) {
	defer func() {
		g.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Push] read error: %v", err)
			}
			return
		}
	}
}

func (g *Gateway) writePump(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}
