package bridge

import (
	"errors"
	"fmt"
	"time"
)

// pendingCommand is one queued outbound message. The queue exclusively owns
// it from submission until its apply runs (or the queue is cleared on error,
// in which case apply never runs and done carries the failure).
type pendingCommand struct {
	message string
	// apply updates the cached state mirror from the raw response payload.
	// Runs on the worker goroutine, outside the queue lock, so it may
	// itself submit new commands.
	apply func(reply string)
	// done receives exactly one value: nil on success, or the reason the
	// command was dropped.
	done chan error
}

// enqueue submits a command for the worker loop. The returned channel
// receives exactly one value when the command completes or is discarded.
// Commands submitted while the bridge is unhealthy are rejected immediately.
func (b *Bridge) enqueue(message string, apply func(reply string)) <-chan error {
	done := make(chan error, 1)
	if b.Error() != ErrorNone {
		done <- ErrNotReady
		return done
	}

	b.queueMu.Lock()
	b.pending = append(b.pending, &pendingCommand{
		message: message,
		apply:   apply,
		done:    done,
	})
	b.queueMu.Unlock()
	return done
}

// completed returns a result channel for a command that never reached the
// wire, such as a queue replacement short-circuited by the configured limit.
func completed(err error) <-chan error {
	done := make(chan error, 1)
	done <- err
	return done
}

func (b *Bridge) queueLen() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return len(b.pending)
}

// roundTrip writes one message and blocks for its reply. Exactly one request
// is ever in flight, enforced by the single worker goroutine; the connection
// lock only serializes against Reconnect.
func (b *Bridge) roundTrip(message string) (string, error) {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.conn == nil {
		return "", errors.New("no transport")
	}
	if err := b.conn.WriteMessage(message); err != nil {
		return "", fmt.Errorf("write failed: %w", err)
	}
	reply, err := b.conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}
	if reply == "" {
		return "", errors.New("empty reply")
	}
	return reply, nil
}

// Process runs the dispatcher loop until Exit is called. Run it on a
// dedicated goroutine; everything else only enqueues commands or reads the
// cached state.
func (b *Bridge) Process() {
	for {
		select {
		case <-b.exit:
			return
		default:
		}

		// No queue processing while unhealthy. Sleeping here lets an
		// external caller reconnect and resume the loop.
		if b.Error() != ErrorNone {
			b.sleep(errorRetryDelay)
			continue
		}

		b.drain()

		if b.Error() != ErrorNone || b.queueLen() > 0 {
			continue
		}
		if time.Since(b.lastRefresh) > b.refreshEvery {
			b.refresh()
			b.lastRefresh = time.Now()
		} else {
			b.sleep(idleDelay)
		}
	}
}

// drain processes queued commands strictly FIFO until the queue is empty or
// an error halts the pass. On error every remaining command is discarded
// without running its apply; callers must notice the error state themselves
// (their result channels carry the failure).
func (b *Bridge) drain() {
	b.queueMu.Lock()
	for len(b.pending) > 0 {
		cmd := b.pending[0]
		b.queueMu.Unlock()

		reply, err := b.roundTrip(cmd.message)
		if err != nil {
			b.log.Errorf("lost connection to playback daemon: %v", err)
			b.setError(ErrorLostConnection)
			b.clearQueue(ErrorLostConnection.failure())
			return
		}

		// Run the apply without holding the queue lock so it may
		// enqueue follow-up commands.
		if cmd.apply != nil {
			cmd.apply(reply)
		}
		cmd.done <- nil

		b.queueMu.Lock()
		b.pending = b.pending[1:]

		// An external actor (for example Terminate) may have flipped the
		// error state while the command was in flight.
		if state := b.Error(); state != ErrorNone {
			b.queueMu.Unlock()
			b.clearQueue(state.failure())
			return
		}
	}
	b.queueMu.Unlock()
}

// clearQueue discards every pending command. Applies are never invoked for
// discarded commands; their result channels receive cause.
func (b *Bridge) clearQueue(cause error) {
	b.queueMu.Lock()
	dropped := b.pending
	b.pending = nil
	b.queueMu.Unlock()

	for _, cmd := range dropped {
		cmd.done <- cause
	}
	if len(dropped) > 0 {
		b.log.Errorf("command queue cleared, %d command(s) discarded", len(dropped))
	}
}

// failure converts an unhealthy state into the error delivered to waiters.
func (e ErrorState) failure() error {
	if e == ErrorLostConnection {
		return ErrDiscarded
	}
	return fmt.Errorf("bridge unhealthy: %s", e)
}

// refresh enqueues the full battery of state queries. Queue size, queue
// index and shuffle replies trigger supplementary queue fetches (see
// commands.go), so one refresh keeps the whole mirror current.
func (b *Bridge) refresh() {
	b.SendGetPlayingFrom()
	b.SendGetPosition()
	b.SendGetQueueSize()
	b.SendGetRepeat()
	b.SendGetShuffle()
	b.SendGetSong()
	b.SendGetSongIdx()
	b.SendGetSubQueueSize()
	b.SendGetStatus()
	b.SendGetVolume()
}

func (b *Bridge) sleep(d time.Duration) {
	select {
	case <-b.exit:
	case <-time.After(d):
	}
}
