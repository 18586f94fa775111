// Package amiclient is the AMI Transport (spec §4.1): one authenticated TCP
// session to Asterisk, frame parsing via internal/amiproto, login, and an
// event stream for the correlator. Synchronous action/response handling
// lives one layer up in internal/dispatcher, which borrows the read lease
// this package enforces.
package amiclient

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"callcore/internal/amiproto"
	"callcore/internal/config"
)

// Client holds one AMI TCP session. Grounded on internal/ami/client.go's
// Connect/login/readEvents shape; the per-line bufio reader there is
// replaced by amiproto.FrameReader so multiple frames landing in a single
// TCP read are handled correctly (§4.1).
type Client struct {
	cfg *config.AMIConfig

	conn   net.Conn
	frames *amiproto.FrameReader

	writeMu sync.Mutex

	// lease is a 1-capacity token channel implementing the single-reader
	// discipline of §4.1/§5: holding the token is a prerequisite to calling
	// ReadFrame. The event loop acquires it once per frame; the dispatcher
	// acquires it once per action and holds it across a multi-frame read.
	lease chan struct{}

	mu          sync.Mutex
	connected   bool
	subscribers []chan *amiproto.Message
	done        chan struct{}
}

// NewClient constructs a Client for cfg. Connect must be called before use.
func NewClient(cfg *config.AMIConfig) *Client {
	return &Client{
		cfg:   cfg,
		lease: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Connect dials Asterisk, reads the banner, logs in, and starts the event
// reader goroutine. On login failure the connection is closed and an error
// returned; the core does not retry automatically (§4.1 failure behavior).
func (c *Client) Connect() error {
	addr := c.cfg.Address()
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dialing AMI at %s: %w", addr, err)
	}
	c.conn = conn

	br := bufio.NewReader(conn)
	banner, err := amiproto.ReadBanner(br)
	if err != nil {
		conn.Close()
		return fmt.Errorf("reading AMI banner: %w", err)
	}
	log.Printf("[AMI] connected to %s, banner: %q", addr, banner)

	c.frames = amiproto.NewFrameReader(br)
	c.lease <- struct{}{}

	if err := c.login(); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	go c.eventLoop()
	return nil
}

func (c *Client) login() error {
	action := amiproto.NewAction("Login")
	action.Set("Username", c.cfg.Username)
	action.Set("Secret", c.cfg.Secret)

	<-c.lease
	defer func() { c.lease <- struct{}{} }()

	if err := c.writeMessage(action); err != nil {
		return fmt.Errorf("writing login action: %w", err)
	}

	resp, err := c.frames.ReadFrame()
	if err != nil {
		return fmt.Errorf("reading login response: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("AMI login refused: %s", resp.Get("Message"))
	}
	return nil
}

// writeMessage serializes concurrent writers; it does not touch the lease,
// since writing and reading are independent directions of the same socket.
func (c *Client) writeMessage(m *amiproto.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(m.Encode())
	return err
}

// WriteMessage sends a raw action frame. Used by internal/dispatcher, which
// owns response correlation.
func (c *Client) WriteMessage(m *amiproto.Message) error {
	return c.writeMessage(m)
}

// AcquireLease blocks until the caller is the sole reader of the socket.
// Callers (the dispatcher) must call ReleaseLease when done, including on
// every error path.
func (c *Client) AcquireLease() {
	<-c.lease
}

// ReleaseLease returns the read lease to the pool, letting the event loop or
// another dispatcher acquire it.
func (c *Client) ReleaseLease() {
	c.lease <- struct{}{}
}

// ReadFrame reads exactly one frame. The caller must hold the lease.
func (c *Client) ReadFrame() (*amiproto.Message, error) {
	return c.frames.ReadFrame()
}

// eventLoop is the default lease holder: it takes the lease, reads one
// frame, broadcasts it, releases the lease, and repeats. Because it only
// ever holds the lease for a single frame at a time, a dispatcher call that
// blocks on AcquireLease is guaranteed to get in between two of its frames.
func (c *Client) eventLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.AcquireLease()
		frame, err := c.frames.ReadFrame()
		c.ReleaseLease()

		if err != nil {
			log.Printf("[AMI] read error, closing session: %v", err)
			c.markDisconnected()
			return
		}

		c.broadcast(frame)
	}
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	close(c.done)
}

func (c *Client) broadcast(m *amiproto.Message) {
	c.mu.Lock()
	subs := make([]chan *amiproto.Message, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- m:
		default:
			log.Printf("[AMI] subscriber channel full, dropping frame Event=%s", m.Event())
		}
	}
}

// Subscribe returns a buffered channel of every frame the event loop reads
// while it (not a dispatcher) holds the lease — i.e. the event stream.
// Frames consumed by a dispatcher mid-action are not re-broadcast here. A
// single-response Send forwards any event frames it reads before its
// response via Broadcast; a multi-event SendMultiEvent returns every frame
// it reads to its caller and forwards none (see internal/dispatcher).
func (c *Client) Subscribe() <-chan *amiproto.Message {
	ch := make(chan *amiproto.Message, 2000)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// Broadcast re-exposes broadcast for the dispatcher to forward events it
// intercepts while holding the lease during a single-response action.
func (c *Client) Broadcast(m *amiproto.Message) {
	c.broadcast(m)
}

// Connected reports whether the session is believed to still be live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Done is closed when the transport gives up on the session.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts down the connection. Per §4.1, the core never reconnects
// automatically; a caller observing Done() must re-initialize explicitly.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
