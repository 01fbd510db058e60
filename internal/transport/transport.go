// Package transport provides the byte-stream connection to the playback
// daemon. Messages are framed with a 4-byte big-endian length prefix.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Sanity cap on inbound frames. A full queue reply of 25000 ids fits well
// under this.
const maxMessageSize = 1 << 20

// Transport is a bidirectional message stream to the playback daemon.
// Exactly one request is in flight at a time, so implementations need no
// synchronization beyond protecting their own connection state.
type Transport interface {
	// Connected reports whether the underlying stream is usable.
	Connected() bool
	// WriteMessage sends one framed message.
	WriteMessage(msg string) error
	// ReadMessage blocks for the next framed message. Legitimate replies
	// are always non-empty.
	ReadMessage() (string, error)
	// Close tears down the stream.
	Close() error
}

// Connector produces a fresh Transport for every connection attempt.
// Reconnecting always replaces the previous instance.
type Connector interface {
	Dial() (Transport, error)
}

// TCPConnector dials the daemon's TCP listener.
type TCPConnector struct {
	Addr    string
	Timeout time.Duration
}

// Dial connects to the daemon and returns a ready transport.
func (c *TCPConnector) Dial() (Transport, error) {
	conn, err := net.DialTimeout("tcp", c.Addr, c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.Addr, err)
	}
	return newTCPTransport(conn, c.Timeout), nil
}

// TCPTransport frames messages over a TCP stream.
type TCPTransport struct {
	conn      net.Conn
	reader    *bufio.Reader
	timeout   time.Duration
	mu        sync.Mutex
	connected bool
}

func newTCPTransport(conn net.Conn, timeout time.Duration) *TCPTransport {
	return &TCPTransport{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		timeout:   timeout,
		connected: true,
	}
}

// Connected reports whether the transport is usable.
func (t *TCPTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// WriteMessage sends one length-prefixed message.
func (t *TCPTransport) WriteMessage(msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return fmt.Errorf("transport not connected")
	}

	buf := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(msg)))
	copy(buf[4:], msg)

	t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	if _, err := t.conn.Write(buf); err != nil {
		t.connected = false
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ReadMessage blocks for the next length-prefixed message.
func (t *TCPTransport) ReadMessage() (string, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return "", fmt.Errorf("transport not connected")
	}
	conn, reader := t.conn, t.reader
	t.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(t.timeout))

	var hdr [4]byte
	if _, err := io.ReadFull(reader, hdr[:]); err != nil {
		t.markDisconnected()
		return "", fmt.Errorf("failed to read message header: %w", err)
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length == 0 || length > maxMessageSize {
		t.markDisconnected()
		return "", fmt.Errorf("invalid message length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(reader, payload); err != nil {
		t.markDisconnected()
		return "", fmt.Errorf("failed to read message payload: %w", err)
	}
	return string(payload), nil
}

// Close tears down the connection.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected = false
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

func (t *TCPTransport) markDisconnected() {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
}
