package bridge

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/dval/tunelink/internal/protocol"
	"github.com/dval/tunelink/internal/transport"
)

// fakeTransport answers every command with a canned reply so bridge behaviour
// can be driven deterministically.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []string
	overrides map[protocol.Command]string
	pending   string

	// failWriteAt makes the Nth write fail (1-based). Zero never fails.
	failWriteAt int
	writes      int
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) WriteMessage(msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes++
	if f.failWriteAt > 0 && f.writes >= f.failWriteAt {
		return errors.New("broken pipe")
	}
	f.sent = append(f.sent, msg)
	f.pending = f.reply(msg)
	return nil
}

func (f *fakeTransport) ReadMessage() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending == "" {
		return "", errors.New("nothing to read")
	}
	reply := f.pending
	f.pending = ""
	return reply, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) reply(msg string) string {
	parts := strings.Split(msg, string(protocol.Delimiter))
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return ""
	}
	cmd := protocol.Command(code)
	if r, ok := f.overrides[cmd]; ok {
		return r
	}

	switch cmd {
	case protocol.CmdVersion:
		return strconv.Itoa(protocol.Version)
	case protocol.CmdGetQueue, protocol.CmdGetSubQueue:
		// Empty list.
		return string(protocol.Delimiter)
	case protocol.CmdSetQueue:
		return strconv.Itoa(len(parts) - 1)
	case protocol.CmdSetVolume, protocol.CmdSetPosition, protocol.CmdSetQueueIdx,
		protocol.CmdSetRepeat, protocol.CmdSetShuffle, protocol.CmdSetSong,
		protocol.CmdAddToSubQueue, protocol.CmdRemoveFromQueue,
		protocol.CmdRemoveFromSubQueue, protocol.CmdSkipSubQueueSongs,
		protocol.CmdSetPlayingFrom:
		return parts[1]
	case protocol.CmdResume, protocol.CmdPause:
		return "7"
	case protocol.CmdGetVolume:
		return "100"
	case protocol.CmdGetSong:
		return "-1"
	case protocol.CmdGetStatus:
		return strconv.Itoa(int(protocol.StatusStopped))
	case protocol.CmdGetPlayingFrom:
		return protocol.EmptyLabel
	default:
		// Position, sizes, indices, modes, lock/reset/reload acks.
		return "0"
	}
}

// sentCount counts sent messages whose command code matches cmd.
func (f *fakeTransport) sentCount(cmd protocol.Command) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := strconv.Itoa(int(cmd))
	n := 0
	for _, msg := range f.sent {
		code := msg
		if i := strings.IndexByte(msg, protocol.Delimiter); i >= 0 {
			code = msg[:i]
		}
		if code == prefix {
			n++
		}
	}
	return n
}

type fakeConnector struct {
	tr      *fakeTransport
	dialErr error
	dials   int
}

func (c *fakeConnector) Dial() (transport.Transport, error) {
	c.dials++
	if c.dialErr != nil {
		return nil, c.dialErr
	}
	c.tr.mu.Lock()
	c.tr.connected = true
	c.tr.mu.Unlock()
	return c.tr, nil
}

func newFake() (*fakeConnector, *fakeTransport) {
	tr := &fakeTransport{overrides: map[protocol.Command]string{}}
	return &fakeConnector{tr: tr}, tr
}

// newBridge builds a healthy bridge and flushes the initial queue fetches.
func newBridge(t *testing.T) (*Bridge, *fakeTransport) {
	t.Helper()
	conn, tr := newFake()
	b := New(conn)
	if b.Error() != ErrorNone {
		t.Fatalf("bridge unhealthy after construction: %s", b.Error())
	}
	b.drain()
	tr.mu.Lock()
	tr.sent = nil
	tr.mu.Unlock()
	return b, tr
}

func TestHandshake(t *testing.T) {
	Convey("Connection handshake", t, func() {
		Convey("Matching version yields a healthy bridge", func() {
			conn, _ := newFake()
			b := New(conn)
			So(b.Error(), ShouldEqual, ErrorNone)
		})

		Convey("A version mismatch is fatal and never healthy", func() {
			conn, tr := newFake()
			tr.overrides[protocol.CmdVersion] = strconv.Itoa(protocol.Version + 1)
			b := New(conn)
			So(b.Error(), ShouldEqual, ErrorDifferentVersion)
		})

		Convey("A malformed version reply is an unknown error", func() {
			conn, tr := newFake()
			tr.overrides[protocol.CmdVersion] = "garbage"
			b := New(conn)
			So(b.Error(), ShouldEqual, ErrorUnknown)
		})

		Convey("A failed dial leaves the bridge not connected", func() {
			conn, _ := newFake()
			conn.dialErr = errors.New("connection refused")
			b := New(conn)
			So(b.Error(), ShouldEqual, ErrorNotConnected)
		})

		Convey("Reconnect replaces the transport and re-runs the handshake", func() {
			b, _ := newBridge(t)
			b.setError(ErrorLostConnection)
			b.Reconnect()
			So(b.Error(), ShouldEqual, ErrorNone)
		})
	})
}

func TestDispatchOrdering(t *testing.T) {
	Convey("Responses are processed in submission order", t, func() {
		b, _ := newBridge(t)

		var order []int
		var dones []<-chan error
		for i := 0; i < 5; i++ {
			i := i
			dones = append(dones, b.enqueue(protocol.Encode(protocol.CmdGetStatus), func(string) {
				order = append(order, i)
			}))
		}
		b.drain()

		So(order, ShouldResemble, []int{0, 1, 2, 3, 4})
		for _, done := range dones {
			So(<-done, ShouldBeNil)
		}
		So(b.queueLen(), ShouldEqual, 0)
	})
}

func TestVolumeEndToEnd(t *testing.T) {
	Convey("A set-volume round trip updates the cached volume", t, func() {
		b, _ := newBridge(t)
		// Keep the periodic refresh out of the way so its get-volume reply
		// cannot overwrite the value under test.
		b.SetRefreshInterval(time.Hour)
		b.lastRefresh = time.Now()
		go b.Process()
		defer b.Exit()

		So(<-b.SendSetVolume(42.5), ShouldBeNil)
		So(b.Volume(), ShouldEqual, 42.5)
	})
}

func TestErrorDrain(t *testing.T) {
	Convey("A write failure mid-queue", t, func() {
		b, tr := newBridge(t)

		applied := 0
		var dones []<-chan error
		for i := 0; i < 3; i++ {
			msg := protocol.Encode(protocol.CmdSetRepeat, strconv.Itoa(int(protocol.RepeatAll)))
			dones = append(dones, b.enqueue(msg, func(string) {
				applied++
			}))
		}
		tr.mu.Lock()
		tr.failWriteAt = tr.writes + 2 // first queued command succeeds, second fails
		tr.mu.Unlock()

		b.drain()

		Convey("Sets the lost-connection state and empties the queue", func() {
			So(b.Error(), ShouldEqual, ErrorLostConnection)
			So(b.queueLen(), ShouldEqual, 0)
		})
		Convey("Never invokes applies of discarded commands", func() {
			So(applied, ShouldEqual, 1)
			So(<-dones[0], ShouldBeNil)
			So(<-dones[1], ShouldEqual, ErrDiscarded)
			So(<-dones[2], ShouldEqual, ErrDiscarded)
		})
		Convey("Rejects new submissions until reconnected", func() {
			So(<-b.SendResume(), ShouldEqual, ErrNotReady)
		})
	})

	Convey("An immediate write failure drops the whole pass", t, func() {
		b, tr := newBridge(t)
		for i := 0; i < 3; i++ {
			b.SendSetRepeat(protocol.RepeatOne)
		}
		tr.mu.Lock()
		tr.failWriteAt = tr.writes + 1
		tr.mu.Unlock()

		b.drain()

		So(b.Error(), ShouldEqual, ErrorLostConnection)
		So(b.queueLen(), ShouldEqual, 0)
	})
}

func TestQueueIndexTriggers(t *testing.T) {
	Convey("Queue index change detection", t, func() {
		Convey("An unchanged index triggers no re-fetch", func() {
			b, tr := newBridge(t)
			b.setSongIdx(3)
			tr.overrides[protocol.CmdQueueIdx] = "3"

			b.SendGetSongIdx()
			b.drain()

			So(tr.sentCount(protocol.CmdGetQueue), ShouldEqual, 0)
			So(tr.sentCount(protocol.CmdGetSubQueue), ShouldEqual, 0)
		})

		Convey("A changed index triggers exactly one re-fetch per queue", func() {
			b, tr := newBridge(t)
			b.setSongIdx(3)
			tr.overrides[protocol.CmdQueueIdx] = "4"

			b.SendGetSongIdx()
			b.drain()

			So(b.SongIdx(), ShouldEqual, 4)
			So(tr.sentCount(protocol.CmdGetQueue), ShouldEqual, 1)
			So(tr.sentCount(protocol.CmdGetSubQueue), ShouldEqual, 1)
			So(b.QueueChanged(), ShouldBeTrue)
			So(b.QueueChanged(), ShouldBeFalse)
		})

		Convey("A changed queue size re-fetches the queue contents", func() {
			b, tr := newBridge(t)
			tr.overrides[protocol.CmdQueueSize] = "12"
			tr.overrides[protocol.CmdGetQueue] = "1" + string(protocol.Delimiter) + "2"

			b.SendGetQueueSize()
			b.drain()

			So(b.QueueSize(), ShouldEqual, 12)
			So(tr.sentCount(protocol.CmdGetQueue), ShouldEqual, 1)
			So(b.Queue(), ShouldResemble, []protocol.SongID{1, 2})
		})

		Convey("Setting shuffle always re-fetches the queue", func() {
			b, tr := newBridge(t)
			b.SendSetShuffle(protocol.ShuffleOn)
			b.drain()

			So(b.ShuffleMode(), ShouldEqual, protocol.ShuffleOn)
			So(tr.sentCount(protocol.CmdGetQueue), ShouldEqual, 1)
		})
	})
}

func TestSetQueueLimit(t *testing.T) {
	Convey("Queue replacement honours the configured limit", t, func() {
		Convey("Limit zero sends no message at all", func() {
			b, tr := newBridge(t)
			b.SetQueueLimit(0)

			done := b.SendSetQueue([]protocol.SongID{1, 2, 3})
			So(<-done, ShouldBeNil)
			So(b.queueLen(), ShouldEqual, 0)
			So(tr.sentCount(protocol.CmdSetQueue), ShouldEqual, 0)
		})

		Convey("An empty list sends no message", func() {
			b, tr := newBridge(t)
			So(<-b.SendSetQueue(nil), ShouldBeNil)
			So(tr.sentCount(protocol.CmdSetQueue), ShouldEqual, 0)
		})

		Convey("A positive limit caps the sent list", func() {
			b, tr := newBridge(t)
			b.SetQueueLimit(2)

			b.SendSetQueue([]protocol.SongID{10, 20, 30, 40})
			b.drain()

			tr.mu.Lock()
			last := tr.sent[len(tr.sent)-1]
			tr.mu.Unlock()
			parts := strings.Split(last, string(protocol.Delimiter))
			So(parts[0], ShouldEqual, strconv.Itoa(int(protocol.CmdSetQueue)))
			So(parts[1:], ShouldResemble, []string{"10", "20"})
		})
	})
}

func TestPlayingFromLabel(t *testing.T) {
	Convey("Playing-from label sentinel", t, func() {
		Convey("A single space decodes to an empty label", func() {
			b, _ := newBridge(t)
			b.SendGetPlayingFrom()
			b.drain()
			So(b.PlayingFrom(), ShouldEqual, "")
		})

		Convey("Any other value decodes verbatim", func() {
			b, tr := newBridge(t)
			tr.overrides[protocol.CmdGetPlayingFrom] = "Favourites"
			b.SendGetPlayingFrom()
			b.drain()
			So(b.PlayingFrom(), ShouldEqual, "Favourites")
		})
	})
}

func TestRefreshBattery(t *testing.T) {
	Convey("One refresh enqueues the full battery of state queries", t, func() {
		b, tr := newBridge(t)
		b.refresh()
		b.drain()

		for _, cmd := range []protocol.Command{
			protocol.CmdGetPlayingFrom, protocol.CmdGetPosition,
			protocol.CmdQueueSize, protocol.CmdGetRepeat,
			protocol.CmdGetShuffle, protocol.CmdGetSong,
			protocol.CmdQueueIdx, protocol.CmdSubQueueSize,
			protocol.CmdGetStatus, protocol.CmdGetVolume,
		} {
			So(tr.sentCount(cmd), ShouldEqual, 1)
		}
	})
}

func TestBlockingWaits(t *testing.T) {
	Convey("Blocking wait adapter", t, func() {
		Convey("WaitReset completes when the dispatcher processes it", func() {
			b, _ := newBridge(t)
			go b.Process()
			defer b.Exit()

			So(b.WaitReset(), ShouldBeNil)
		})

		Convey("WaitRequestLibraryLock acquires the lock", func() {
			b, _ := newBridge(t)
			go b.Process()
			defer b.Exit()

			So(b.WaitRequestLibraryLock(), ShouldBeNil)
			So(<-b.SendReleaseLibraryLock(), ShouldBeNil)
		})

		Convey("WaitSongIdx returns the daemon's queue index", func() {
			b, tr := newBridge(t)
			tr.overrides[protocol.CmdQueueIdx] = "5"
			go b.Process()
			defer b.Exit()

			idx, err := b.WaitSongIdx()
			So(err, ShouldBeNil)
			So(idx, ShouldEqual, 5)
		})

		Convey("A connection failure unblocks the wait with an error", func() {
			b, tr := newBridge(t)
			tr.mu.Lock()
			tr.failWriteAt = tr.writes + 1
			tr.mu.Unlock()
			go b.Process()
			defer b.Exit()

			err := b.WaitRequestLibraryLock()
			So(err, ShouldNotBeNil)
			So(b.Error(), ShouldEqual, ErrorLostConnection)
		})
	})
}

func TestPeriodicRefresh(t *testing.T) {
	Convey("The worker refreshes the mirror on its own cadence", t, func() {
		b, tr := newBridge(t)
		tr.overrides[protocol.CmdGetVolume] = "55"
		b.SetRefreshInterval(time.Millisecond)
		go b.Process()
		defer b.Exit()

		deadline := time.Now().Add(time.Second)
		for b.Volume() != 55 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		So(b.Volume(), ShouldEqual, 55)
	})
}
