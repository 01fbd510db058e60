package bridge

import (
	"github.com/dval/tunelink/internal/protocol"
)

// Accessors for the cached state mirror. Fields are updated independently by
// dispatcher-invoked applies, so a reader may observe a partially stale
// snapshot; individual fields are always internally consistent.

// CurrentSong returns the cached current song id (-1 when nothing played yet).
func (b *Bridge) CurrentSong() protocol.SongID {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.currentSong
}

// Position returns the cached playback position in seconds.
func (b *Bridge) Position() float64 {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.position
}

// Volume returns the cached volume (0-100).
func (b *Bridge) Volume() float64 {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.volume
}

// RepeatMode returns the cached repeat mode.
func (b *Bridge) RepeatMode() protocol.Repeat {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.repeat
}

// ShuffleMode returns the cached shuffle mode.
func (b *Bridge) ShuffleMode() protocol.Shuffle {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.shuffle
}

// Status returns the cached playback status.
func (b *Bridge) Status() protocol.Status {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.status
}

// SongIdx returns the cached position of the current song in the queue.
func (b *Bridge) SongIdx() int {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.songIdx
}

// QueueSize returns the cached queue size.
func (b *Bridge) QueueSize() int {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.queueSize
}

// SubQueueSize returns the cached up-next queue size.
func (b *Bridge) SubQueueSize() int {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.subQueueSize
}

// PlayingFrom returns the cached playing-from label. The wire sentinel for
// an empty label is un-mapped here.
func (b *Bridge) PlayingFrom() string {
	b.playingFromMu.Lock()
	defer b.playingFromMu.Unlock()
	return protocol.DecodeLabel(b.playingFrom)
}

// Queue returns a copy of the cached queue contents.
func (b *Bridge) Queue() []protocol.SongID {
	b.songQueueMu.Lock()
	defer b.songQueueMu.Unlock()
	return append([]protocol.SongID(nil), b.songQueue...)
}

// QueueChanged reports whether the queue contents changed since the last
// call. The flag is consumed.
func (b *Bridge) QueueChanged() bool {
	b.songQueueMu.Lock()
	defer b.songQueueMu.Unlock()
	changed := b.queueChanged
	b.queueChanged = false
	return changed
}

// SubQueue returns a copy of the cached up-next queue contents.
func (b *Bridge) SubQueue() []protocol.SongID {
	b.subQueueMu.Lock()
	defer b.subQueueMu.Unlock()
	return append([]protocol.SongID(nil), b.subQueue...)
}

// SubQueueChanged reports whether the up-next queue contents changed since
// the last call. The flag is consumed.
func (b *Bridge) SubQueueChanged() bool {
	b.subQueueMu.Lock()
	defer b.subQueueMu.Unlock()
	changed := b.subQueueChanged
	b.subQueueChanged = false
	return changed
}
