package bridge

import (
	"strconv"

	"github.com/samber/lo"

	"github.com/dval/tunelink/internal/protocol"
)

// Send-style methods build a command, submit it to the dispatcher queue and
// return immediately. The returned channel reports completion or discard;
// callers that only care about the cached mirror may ignore it.

// SendResume resumes playback.
func (b *Bridge) SendResume() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdResume), func(reply string) {
		if id, err := protocol.ParseInt(reply); err == nil {
			b.setCurrentSong(protocol.SongID(id))
		}
	})
}

// SendPause pauses playback.
func (b *Bridge) SendPause() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdPause), func(reply string) {
		if id, err := protocol.ParseInt(reply); err == nil {
			b.setCurrentSong(protocol.SongID(id))
		}
	})
}

// SendPrevious skips to the previous song.
func (b *Bridge) SendPrevious() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdPrevious), func(reply string) {
		b.expectZero(reply, "previous")
	})
}

// SendNext skips to the next song.
func (b *Bridge) SendNext() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdNext), func(reply string) {
		b.expectZero(reply, "next")
	})
}

// SendGetVolume refreshes the cached volume.
func (b *Bridge) SendGetVolume() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdGetVolume), b.applyVolume)
}

// SendSetVolume sets the volume (0-100).
func (b *Bridge) SendSetVolume(v float64) <-chan error {
	msg := protocol.Encode(protocol.CmdSetVolume, protocol.FormatFloat(v))
	return b.enqueue(msg, b.applyVolume)
}

// SendMute mutes playback.
func (b *Bridge) SendMute() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdMute), b.applyVolume)
}

// SendUnmute restores the pre-mute volume.
func (b *Bridge) SendUnmute() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdUnmute), b.applyVolume)
}

// SendSetSongIdx jumps to the given position in the queue.
func (b *Bridge) SendSetSongIdx(idx int) <-chan error {
	msg := protocol.Encode(protocol.CmdSetQueueIdx, strconv.Itoa(idx))
	return b.enqueue(msg, func(reply string) {
		if n, err := protocol.ParseInt(reply); err == nil {
			b.setSongIdx(n)
		}
	})
}

// SendGetSongIdx refreshes the cached queue index. A changed index means the
// ordered contents are stale, so both queues are re-fetched.
func (b *Bridge) SendGetSongIdx() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdQueueIdx), func(reply string) {
		idx, err := protocol.ParseInt(reply)
		if err != nil {
			b.log.Debugf("malformed queue index reply %q", reply)
			return
		}

		b.stateMu.Lock()
		changed := b.songIdx != idx
		b.songIdx = idx
		b.stateMu.Unlock()

		if changed {
			b.SendGetQueue(0, maxQueueFetch)
			b.SendGetSubQueue(0, maxSubQueueFetch)
		}
	})
}

// SendGetQueueSize refreshes the cached queue size, re-fetching the queue
// contents when the size changed.
func (b *Bridge) SendGetQueueSize() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdQueueSize), func(reply string) {
		size, err := protocol.ParseInt(reply)
		if err != nil {
			b.log.Debugf("malformed queue size reply %q", reply)
			return
		}

		b.stateMu.Lock()
		changed := b.queueSize != size
		b.queueSize = size
		b.stateMu.Unlock()

		if changed {
			b.SendGetQueue(0, maxQueueFetch)
		}
	})
}

// SendRemoveFromQueue removes the song at pos from the queue.
func (b *Bridge) SendRemoveFromQueue(pos int) <-chan error {
	msg := protocol.Encode(protocol.CmdRemoveFromQueue, strconv.Itoa(pos))
	return b.enqueue(msg, func(reply string) {
		if n, err := protocol.ParseInt(reply); err != nil || n != pos {
			b.log.Warnf("daemon removed queue position %s, wanted %d", reply, pos)
		}
	})
}

// SendGetQueue fetches the ordered queue contents for [start, end).
func (b *Bridge) SendGetQueue(start, end int) <-chan error {
	msg := protocol.Encode(protocol.CmdGetQueue, strconv.Itoa(start), strconv.Itoa(end))
	return b.enqueue(msg, func(reply string) {
		ids, err := protocol.ParseIDList(reply)
		if err != nil {
			b.log.Debugf("malformed queue reply: %v", err)
			return
		}
		b.songQueueMu.Lock()
		b.songQueue = ids
		b.queueChanged = true
		b.songQueueMu.Unlock()
	})
}

// SendSetQueue replaces the daemon's queue. The list is capped by the
// configured limit; a limit of zero (or an empty list) sends nothing.
func (b *Bridge) SendSetQueue(ids []protocol.SongID) <-chan error {
	b.stateMu.RLock()
	limit := b.queueLimit
	b.stateMu.RUnlock()

	if len(ids) == 0 || limit == 0 {
		return completed(nil)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	args := lo.Map(ids, func(id protocol.SongID, _ int) string {
		return strconv.Itoa(int(id))
	})
	want := len(ids)
	return b.enqueue(protocol.Encode(protocol.CmdSetQueue, args...), func(reply string) {
		if n, err := protocol.ParseInt(reply); err != nil || n != want {
			b.log.Warnf("daemon accepted %s of %d queued songs", reply, want)
		}
	})
}

// SendAddToSubQueue appends a song to the up-next queue.
func (b *Bridge) SendAddToSubQueue(id protocol.SongID) <-chan error {
	msg := protocol.Encode(protocol.CmdAddToSubQueue, strconv.Itoa(int(id)))
	return b.enqueue(msg, func(reply string) {
		if n, err := protocol.ParseInt(reply); err != nil || protocol.SongID(n) != id {
			b.log.Warnf("daemon queued song %s, wanted %d", reply, id)
		}
	})
}

// SendRemoveFromSubQueue removes the song at pos from the up-next queue.
func (b *Bridge) SendRemoveFromSubQueue(pos int) <-chan error {
	msg := protocol.Encode(protocol.CmdRemoveFromSubQueue, strconv.Itoa(pos))
	return b.enqueue(msg, func(reply string) {
		if n, err := protocol.ParseInt(reply); err != nil || n != pos {
			b.log.Warnf("daemon removed sub-queue position %s, wanted %d", reply, pos)
		}
	})
}

// SendGetSubQueueSize refreshes the cached up-next queue size, re-fetching
// its contents when the size changed.
func (b *Bridge) SendGetSubQueueSize() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdSubQueueSize), func(reply string) {
		size, err := protocol.ParseInt(reply)
		if err != nil {
			b.log.Debugf("malformed sub-queue size reply %q", reply)
			return
		}

		b.stateMu.Lock()
		changed := b.subQueueSize != size
		b.subQueueSize = size
		b.stateMu.Unlock()

		if changed {
			b.SendGetSubQueue(0, maxSubQueueFetch)
		}
	})
}

// SendGetSubQueue fetches the ordered up-next queue contents for [start, end).
func (b *Bridge) SendGetSubQueue(start, end int) <-chan error {
	msg := protocol.Encode(protocol.CmdGetSubQueue, strconv.Itoa(start), strconv.Itoa(end))
	return b.enqueue(msg, func(reply string) {
		ids, err := protocol.ParseIDList(reply)
		if err != nil {
			b.log.Debugf("malformed sub-queue reply: %v", err)
			return
		}
		b.subQueueMu.Lock()
		b.subQueue = ids
		b.subQueueChanged = true
		b.subQueueMu.Unlock()
	})
}

// SendSkipSubQueueSongs drops the first n songs from the up-next queue.
func (b *Bridge) SendSkipSubQueueSongs(n int) <-chan error {
	msg := protocol.Encode(protocol.CmdSkipSubQueueSongs, strconv.Itoa(n))
	return b.enqueue(msg, func(reply string) {
		if got, err := protocol.ParseInt(reply); err != nil || got != n {
			b.log.Warnf("daemon skipped %s sub-queue songs, wanted %d", reply, n)
		}
	})
}

// SendGetRepeat refreshes the cached repeat mode.
func (b *Bridge) SendGetRepeat() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdGetRepeat), func(reply string) {
		if m, err := protocol.ParseInt(reply); err == nil {
			b.setRepeat(protocol.Repeat(m))
		}
	})
}

// SendSetRepeat sets the repeat mode.
func (b *Bridge) SendSetRepeat(m protocol.Repeat) <-chan error {
	msg := protocol.Encode(protocol.CmdSetRepeat, strconv.Itoa(int(m)))
	return b.enqueue(msg, func(reply string) {
		got, err := protocol.ParseInt(reply)
		if err != nil || protocol.Repeat(got) != m {
			b.log.Warnf("daemon reported repeat mode %s, wanted %s", reply, m)
			return
		}
		b.setRepeat(m)
	})
}

// SendGetShuffle refreshes the cached shuffle mode.
func (b *Bridge) SendGetShuffle() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdGetShuffle), func(reply string) {
		if m, err := protocol.ParseInt(reply); err == nil {
			b.setShuffle(protocol.Shuffle(m))
		}
	})
}

// SendSetShuffle sets the shuffle mode. Reshuffling invalidates the queue
// order, so the queue is always re-fetched.
func (b *Bridge) SendSetShuffle(m protocol.Shuffle) <-chan error {
	msg := protocol.Encode(protocol.CmdSetShuffle, strconv.Itoa(int(m)))
	return b.enqueue(msg, func(reply string) {
		got, err := protocol.ParseInt(reply)
		if err != nil {
			b.log.Debugf("malformed shuffle reply %q", reply)
			return
		}
		if protocol.Shuffle(got) != m {
			b.log.Warnf("daemon reported shuffle mode %s, wanted %s", reply, m)
		}

		b.SendGetQueue(0, maxQueueFetch)
		b.setShuffle(protocol.Shuffle(got))
	})
}

// SendGetSong refreshes the cached current song.
func (b *Bridge) SendGetSong() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdGetSong), func(reply string) {
		if id, err := protocol.ParseInt(reply); err == nil {
			b.setCurrentSong(protocol.SongID(id))
		}
	})
}

// SendSetSong plays the given song.
func (b *Bridge) SendSetSong(id protocol.SongID) <-chan error {
	msg := protocol.Encode(protocol.CmdSetSong, strconv.Itoa(int(id)))
	return b.enqueue(msg, func(reply string) {
		if n, err := protocol.ParseInt(reply); err == nil {
			b.setCurrentSong(protocol.SongID(n))
		}
	})
}

// SendGetStatus refreshes the cached playback status.
func (b *Bridge) SendGetStatus() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdGetStatus), func(reply string) {
		n, err := protocol.ParseInt(reply)
		if err != nil {
			b.log.Debugf("malformed status reply %q", reply)
			return
		}
		status := protocol.Status(n)
		switch status {
		case protocol.StatusPlaying, protocol.StatusPaused, protocol.StatusStopped:
		default:
			status = protocol.StatusError
		}
		b.stateMu.Lock()
		b.status = status
		b.stateMu.Unlock()
	})
}

// SendGetPosition refreshes the cached playback position.
func (b *Bridge) SendGetPosition() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdGetPosition), func(reply string) {
		if pos, err := protocol.ParseFloat(reply); err == nil {
			b.stateMu.Lock()
			b.position = pos
			b.stateMu.Unlock()
		}
	})
}

// SendSetPosition seeks to pos seconds. The cache is updated optimistically
// so a seek bar does not snap back while the command is queued.
func (b *Bridge) SendSetPosition(pos float64) <-chan error {
	b.stateMu.Lock()
	b.position = pos
	b.stateMu.Unlock()

	msg := protocol.Encode(protocol.CmdSetPosition, protocol.FormatFloat(pos))
	return b.enqueue(msg, func(reply string) {
		if p, err := protocol.ParseFloat(reply); err == nil {
			b.stateMu.Lock()
			b.position = p
			b.stateMu.Unlock()
		}
	})
}

// SendGetPlayingFrom refreshes the cached playing-from label.
func (b *Bridge) SendGetPlayingFrom() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdGetPlayingFrom), b.applyPlayingFrom)
}

// SendSetPlayingFrom sets the playing-from label.
func (b *Bridge) SendSetPlayingFrom(label string) <-chan error {
	msg := protocol.Encode(protocol.CmdSetPlayingFrom, protocol.EncodeLabel(label))
	return b.enqueue(msg, b.applyPlayingFrom)
}

// SendReleaseLibraryLock gives up exclusive write access to the shared
// library storage.
func (b *Bridge) SendReleaseLibraryLock() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdReleaseLibraryLock), func(reply string) {
		b.expectZero(reply, "release library lock")
	})
}

// SendReloadConfig asks the daemon to re-read its configuration.
func (b *Bridge) SendReloadConfig() <-chan error {
	return b.enqueue(protocol.Encode(protocol.CmdReloadConfig), func(reply string) {
		b.expectZero(reply, "reload config")
	})
}

func (b *Bridge) applyVolume(reply string) {
	if v, err := protocol.ParseFloat(reply); err == nil {
		b.stateMu.Lock()
		b.volume = v
		b.stateMu.Unlock()
	}
}

func (b *Bridge) applyPlayingFrom(reply string) {
	b.playingFromMu.Lock()
	b.playingFrom = reply
	b.playingFromMu.Unlock()
}

func (b *Bridge) setCurrentSong(id protocol.SongID) {
	b.stateMu.Lock()
	b.currentSong = id
	b.stateMu.Unlock()
}

func (b *Bridge) setSongIdx(idx int) {
	b.stateMu.Lock()
	b.songIdx = idx
	b.stateMu.Unlock()
}

func (b *Bridge) setRepeat(m protocol.Repeat) {
	b.stateMu.Lock()
	b.repeat = m
	b.stateMu.Unlock()
}

func (b *Bridge) setShuffle(m protocol.Shuffle) {
	b.stateMu.Lock()
	b.shuffle = m
	b.stateMu.Unlock()
}

func (b *Bridge) expectZero(reply, op string) {
	if n, err := protocol.ParseInt(reply); err != nil || n != 0 {
		b.log.Warnf("daemon rejected %s: %q", op, reply)
	}
}
