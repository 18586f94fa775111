package amiclient

import (
	"bufio"
	"net"

	"callcore/internal/amiproto"
)

// NewForTesting builds a Client wired directly to an already-established
// connection, skipping Connect's dial/banner/login handshake. Exported so
// internal/dispatcher (and any other package driving a Client against a
// fake AMI peer) can exercise the lease/frame-read path without a live
// Asterisk.
func NewForTesting(conn net.Conn, br *bufio.Reader) *Client {
	c := &Client{
		conn:      conn,
		frames:    amiproto.NewFrameReader(br),
		lease:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		connected: true,
	}
	c.lease <- struct{}{}
	return c
}
