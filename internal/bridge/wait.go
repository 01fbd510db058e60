package bridge

import (
	"fmt"
	"time"

	"github.com/dval/tunelink/internal/protocol"
)

// How often a blocked waiter re-checks the bridge health. The result channel
// normally unblocks the wait; the ticker covers a failure that raced the
// submission and never reached the queue clear.
const waitPollInterval = 5 * time.Millisecond

// waitDone blocks until the command completes or the bridge turns unhealthy,
// whichever happens first.
func (b *Bridge) waitDone(done <-chan error) error {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if state := b.Error(); state != ErrorNone {
				return state.failure()
			}
		case <-b.exit:
			return fmt.Errorf("bridge shut down")
		}
	}
}

// WaitRequestLibraryLock asks the daemon for exclusive write access to the
// shared library storage and blocks until it is granted or the connection
// fails. Pair with SendReleaseLibraryLock.
func (b *Bridge) WaitRequestLibraryLock() error {
	done := b.enqueue(protocol.Encode(protocol.CmdRequestLibraryLock), func(reply string) {
		b.expectZero(reply, "request library lock")
	})
	return b.waitDone(done)
}

// WaitReset asks the daemon to reset its playback state and blocks until the
// reset completed or the connection fails.
func (b *Bridge) WaitReset() error {
	done := b.enqueue(protocol.Encode(protocol.CmdReset), nil)
	return b.waitDone(done)
}

// WaitSongIdx queries the queue index and blocks for the answer, refreshing
// the cache on the way through.
func (b *Bridge) WaitSongIdx() (int, error) {
	done := b.enqueue(protocol.Encode(protocol.CmdQueueIdx), func(reply string) {
		if idx, err := protocol.ParseInt(reply); err == nil {
			b.setSongIdx(idx)
		}
	})
	if err := b.waitDone(done); err != nil {
		return 0, err
	}
	return b.SongIdx(), nil
}
