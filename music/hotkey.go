package music

import (
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// Hotkey detects a run of presses of one note within a time window.
// It sees the whole live stream and does not know about segments.
type Hotkey struct {
	Note    uint8
	Presses int
	Window  time.Duration

	count       int
	windowStart time.Time
}

func NewHotkey(note uint8, presses int, window time.Duration) *Hotkey {
	return &Hotkey{Note: note, Presses: presses, Window: window}
}

// Observe feeds one message and reports whether the gesture completed.
// Only note-on messages with a velocity count, on any channel; other
// messages leave the state untouched. The window runs from the first press
// of a run, not from the previous press.
func (h *Hotkey) Observe(msg midi.Message, at time.Time) bool {
	var ch, key, vel uint8
	if !msg.GetNoteStart(&ch, &key, &vel) {
		return false
	}
	if key != h.Note {
		h.Reset()
		return false
	}
	if h.count == 0 || at.Sub(h.windowStart) > h.Window {
		h.count = 1
		h.windowStart = at
	} else {
		h.count++
	}
	if h.count >= h.Presses {
		h.Reset()
		return true
	}
	return false
}

// Pending is the number of presses counted so far.
func (h *Hotkey) Pending() int {
	return h.count
}

func (h *Hotkey) Reset() {
	h.count = 0
	h.windowStart = time.Time{}
}
