package music

import (
	"errors"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

type SegmentState int

const (
	Open SegmentState = iota
	Closed
)

func (s SegmentState) String() string {
	if s == Closed {
		return "closed"
	}
	return "open"
}

var ErrSegmentClosed = errors.New("segment is closed")

// STATE_PREALLOCATION events are reserved for each new segment.
const STATE_PREALLOCATION = 512

// Segment is one recording unit. Events are appended while it is Open;
// once Closed it only gets read by the writer.
type Segment struct {
	Start  time.Time
	Forced bool // closed by the hotkey

	events []Event
	last   time.Duration
	state  SegmentState
}

func NewSegment(start time.Time) *Segment {
	return &Segment{
		Start:  start,
		events: make([]Event, 0, STATE_PREALLOCATION),
	}
}

// Append stores msg with its offset from Start. Offsets never go backwards,
// a message stamped before the previous one gets the previous offset.
func (s *Segment) Append(msg midi.Message, at time.Time) (Event, error) {
	if s.state == Closed {
		return Event{}, ErrSegmentClosed
	}
	offset := at.Sub(s.Start)
	if offset < s.last {
		offset = s.last
	}
	ev, err := NewEvent(msg, offset)
	if err != nil {
		return Event{}, err
	}
	s.events = append(s.events, ev)
	s.last = offset
	return ev, nil
}

func (s *Segment) Close() {
	s.state = Closed
}

func (s *Segment) State() SegmentState {
	return s.state
}

func (s *Segment) Len() int {
	return len(s.events)
}

// Events returns the buffered events in arrival order. The slice is shared
// with the segment and must not be modified.
func (s *Segment) Events() []Event {
	return s.events
}

// Elapsed is the time since Start at now.
func (s *Segment) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.Start)
}

// NoteOns counts note-on messages with a non-zero velocity.
func (s *Segment) NoteOns() (n int) {
	var ch, key, vel uint8
	for _, ev := range s.events {
		if ev.Message().GetNoteStart(&ch, &key, &vel) {
			n++
		}
	}
	return
}
