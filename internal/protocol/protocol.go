// Package protocol defines the wire format spoken between the application
// and the background playback daemon: single delimited text frames carrying
// a numeric command code and optional argument fields.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the compiled protocol version. The daemon must report the same
// value during the handshake or the connection is refused.
const Version = 2

// Delimiter separates the command code from argument fields, and list
// elements from each other. 0x1C (ASCII file separator) cannot appear in
// identifiers (decimal digits only); labels are sanitized before encoding.
const Delimiter byte = 0x1C

// EmptyLabel is the wire sentinel for an empty playing-from label. A single
// space distinguishes "no label" from an absent field.
const EmptyLabel = " "

// SongID identifies a song in the shared library.
type SongID int

// Command codes. Both ends compile from this table; the order is part of the
// protocol and must not be rearranged.
type Command int

const (
	CmdVersion Command = iota
	CmdResume
	CmdPause
	CmdPrevious
	CmdNext
	CmdGetVolume
	CmdSetVolume
	CmdMute
	CmdUnmute
	CmdGetSubQueue
	CmdSkipSubQueueSongs
	CmdAddToSubQueue
	CmdRemoveFromSubQueue
	CmdSubQueueSize
	CmdGetQueue
	CmdSetQueue
	CmdQueueIdx
	CmdSetQueueIdx
	CmdQueueSize
	CmdRemoveFromQueue
	CmdGetRepeat
	CmdSetRepeat
	CmdGetShuffle
	CmdSetShuffle
	CmdGetSong
	CmdSetSong
	CmdGetStatus
	CmdGetPosition
	CmdSetPosition
	CmdGetPlayingFrom
	CmdSetPlayingFrom
	CmdRequestLibraryLock
	CmdReleaseLibraryLock
	CmdReloadConfig
	CmdReset
)

// Repeat is the daemon's repeat mode.
type Repeat int

const (
	RepeatOff Repeat = iota
	RepeatOne
	RepeatAll
)

// String returns the string representation of the repeat mode.
func (r Repeat) String() string {
	switch r {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// Shuffle is the daemon's shuffle mode.
type Shuffle int

const (
	ShuffleOff Shuffle = iota
	ShuffleOn
)

// String returns the string representation of the shuffle mode.
func (s Shuffle) String() string {
	if s == ShuffleOn {
		return "on"
	}
	return "off"
}

// Status is the daemon's playback status.
type Status int

const (
	StatusError Status = iota
	StatusPlaying
	StatusPaused
	StatusStopped
)

// String returns the string representation of the playback status.
func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	default:
		return "error"
	}
}

// Encode builds one outbound message: the decimal command code followed by
// delimiter-separated argument fields in command-defined order.
func Encode(cmd Command, args ...string) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(cmd)))
	for _, a := range args {
		b.WriteByte(Delimiter)
		b.WriteString(a)
	}
	return b.String()
}

// ParseIDList decodes a delimiter-separated list of song identifiers. An
// empty payload decodes to an empty list; a trailing delimiter is tolerated.
func ParseIDList(s string) ([]SongID, error) {
	if s == "" {
		return []SongID{}, nil
	}
	parts := strings.Split(s, string(Delimiter))
	ids := make([]SongID, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid song id %q: %w", p, err)
		}
		ids = append(ids, SongID(n))
	}
	return ids, nil
}

// ParseInt decodes a scalar integer reply.
func ParseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid integer reply %q: %w", s, err)
	}
	return n, nil
}

// ParseFloat decodes a scalar floating point reply.
func ParseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float reply %q: %w", s, err)
	}
	return f, nil
}

// FormatFloat encodes a floating point field.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// EncodeLabel maps a label to its wire form. Empty labels become the
// single-space sentinel; delimiter bytes are replaced so a label can never
// split the frame.
func EncodeLabel(label string) string {
	if label == "" {
		return EmptyLabel
	}
	return strings.ReplaceAll(label, string(Delimiter), " ")
}

// DecodeLabel un-maps the wire form of a label. The single-space sentinel
// decodes to an empty string; any other value decodes verbatim.
func DecodeLabel(wire string) string {
	if wire == EmptyLabel {
		return ""
	}
	return wire
}
