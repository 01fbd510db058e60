// Package bridge mirrors the state of the background playback daemon and
// relays playback commands to it over a persistent connection. All commands
// are serialized through a single worker loop (see Process); producers only
// enqueue commands and read the cached state.
package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dval/tunelink/internal/launcher"
	"github.com/dval/tunelink/internal/protocol"
	"github.com/dval/tunelink/internal/transport"
)

// ErrorState reflects the health of the connection to the playback daemon.
// Any value other than ErrorNone halts command processing until an explicit
// Reconnect succeeds.
type ErrorState int32

const (
	// ErrorNone means the bridge is healthy and commands are processed.
	ErrorNone ErrorState = iota
	// ErrorUnknown is an unclassified failure, such as a malformed
	// handshake reply.
	ErrorUnknown
	// ErrorNotConnected means the transport never reached a connected state.
	ErrorNotConnected
	// ErrorDifferentVersion means the daemon speaks another protocol version.
	ErrorDifferentVersion
	// ErrorLostConnection means a write or read failed after a healthy
	// connection was established.
	ErrorLostConnection
)

// String returns the string representation of the error state.
func (e ErrorState) String() string {
	switch e {
	case ErrorNone:
		return "none"
	case ErrorNotConnected:
		return "not connected"
	case ErrorDifferentVersion:
		return "different version"
	case ErrorLostConnection:
		return "lost connection"
	default:
		return "unknown"
	}
}

const (
	// How long the worker sleeps between health checks while unhealthy.
	errorRetryDelay = 50 * time.Millisecond
	// How long the worker sleeps when idle between refreshes.
	idleDelay = 5 * time.Millisecond

	// Bounded fetch ranges for queue re-fetches.
	maxQueueFetch    = 25000
	maxSubQueueFetch = 5000

	defaultRefreshInterval = 100 * time.Millisecond
)

var (
	// ErrNotReady is returned when a command is submitted while the bridge
	// is unhealthy.
	ErrNotReady = errors.New("bridge is not connected")
	// ErrDiscarded is returned on the result channel of every command that
	// was still queued when the connection failed.
	ErrDiscarded = errors.New("command discarded after connection error")
)

// Bridge is the client side of the playback daemon connection. Construct
// with New, run Process on its own goroutine, and stop with Exit.
type Bridge struct {
	connector transport.Connector
	connMu    sync.Mutex
	conn      transport.Transport

	errState atomic.Int32

	queueMu sync.Mutex
	pending []*pendingCommand

	exit     chan struct{}
	exitOnce sync.Once

	refreshEvery time.Duration
	lastRefresh  time.Time

	daemon *launcher.Launcher

	// Scalar playback state, written only by dispatcher-invoked applies.
	stateMu      sync.RWMutex
	currentSong  protocol.SongID
	position     float64
	volume       float64
	repeat       protocol.Repeat
	shuffle      protocol.Shuffle
	status       protocol.Status
	songIdx      int
	queueSize    int
	subQueueSize int
	queueLimit   int

	// Composite fields each have their own lock so cache reads never
	// contend with command submission.
	playingFromMu sync.Mutex
	playingFrom   string

	songQueueMu  sync.Mutex
	songQueue    []protocol.SongID
	queueChanged bool

	subQueueMu      sync.Mutex
	subQueue        []protocol.SongID
	subQueueChanged bool

	log *logrus.Entry
}

// New creates a bridge and attempts an initial connection. The returned
// bridge is usable even if the connection failed; check Error and call
// Reconnect once the daemon is reachable.
func New(connector transport.Connector) *Bridge {
	b := &Bridge{
		connector:    connector,
		exit:         make(chan struct{}),
		refreshEvery: defaultRefreshInterval,
		currentSong:  -1,
		volume:       100,
		status:       protocol.StatusStopped,
		queueLimit:   -1,
		log:          logrus.WithField("component", "bridge"),
	}
	b.setError(ErrorUnknown)
	b.Reconnect()

	// Fetch both queues up front so the mirror is populated after the
	// first drain.
	b.SendGetQueue(0, maxQueueFetch)
	b.SendGetSubQueue(0, maxSubQueueFetch)
	return b
}

// SetQueueLimit caps how many songs a queue replacement sends. Negative is
// unlimited; zero disables queue replacement entirely.
func (b *Bridge) SetQueueLimit(limit int) {
	b.stateMu.Lock()
	b.queueLimit = limit
	b.stateMu.Unlock()
}

// SetRefreshInterval changes the state refresh cadence. Call before Process.
func (b *Bridge) SetRefreshInterval(d time.Duration) {
	b.refreshEvery = d
}

// SetLauncher attaches a process launcher for the daemon.
func (b *Bridge) SetLauncher(l *launcher.Launcher) {
	b.daemon = l
}

// Error returns the current connection health.
func (b *Bridge) Error() ErrorState {
	return ErrorState(b.errState.Load())
}

func (b *Bridge) setError(e ErrorState) {
	b.errState.Store(int32(e))
}

// Reconnect replaces the transport with a fresh one and re-runs the version
// handshake. A stale connection is never partially reused. The worker loop
// does not process commands while the bridge is unhealthy, so an external
// caller can force a reconnect without racing an in-flight write.
func (b *Bridge) Reconnect() {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}

	conn, err := b.connector.Dial()
	if err != nil || !conn.Connected() {
		b.setError(ErrorNotConnected)
		b.log.Errorf("unable to connect to playback daemon: %v", err)
		return
	}
	b.conn = conn

	// Version handshake: the daemon must report the compiled protocol
	// version exactly. No negotiation is attempted.
	if err := conn.WriteMessage(protocol.Encode(protocol.CmdVersion)); err != nil {
		b.setError(ErrorUnknown)
		b.log.Errorf("unable to query daemon version: %v", err)
		return
	}
	reply, err := conn.ReadMessage()
	if err != nil || reply == "" {
		b.setError(ErrorUnknown)
		b.log.Errorf("unable to read daemon version: %v", err)
		return
	}
	version, err := protocol.ParseInt(reply)
	if err != nil {
		b.setError(ErrorUnknown)
		b.log.Errorf("malformed daemon version %q", reply)
		return
	}
	if version != protocol.Version {
		b.setError(ErrorDifferentVersion)
		b.log.Errorf("protocol versions do not match: daemon %d, application %d", version, protocol.Version)
		return
	}

	b.setError(ErrorNone)
	b.log.Info("connection to playback daemon established")
}

// Launch starts the playback daemon process.
func (b *Bridge) Launch() error {
	if b.daemon == nil {
		return errors.New("no daemon launcher configured")
	}
	return b.daemon.Start()
}

// Terminate stops the playback daemon process. On success the bridge is
// marked as having lost its connection.
func (b *Bridge) Terminate() error {
	if b.daemon == nil {
		return errors.New("no daemon launcher configured")
	}
	if err := b.daemon.Terminate(); err != nil {
		return err
	}
	b.setError(ErrorLostConnection)
	return nil
}

// Exit stops the worker loop. Pending commands are not flushed.
func (b *Bridge) Exit() {
	b.exitOnce.Do(func() {
		close(b.exit)
	})
}

// Close shuts down the worker and the transport.
func (b *Bridge) Close() {
	b.Exit()
	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}
