package music

import (
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// Event is one captured channel message. Time is the offset from the start
// of the segment holding it.
type Event struct {
	Time   time.Duration
	Status uint8
	Data1  uint8
	Data2  uint8
}

// NewEvent copies a channel voice message. Anything else is rejected since
// it cannot be stored in a track.
func NewEvent(msg midi.Message, offset time.Duration) (Event, error) {
	if len(msg) == 0 || msg[0] < 0x80 || msg[0] >= 0xF0 {
		return Event{}, fmt.Errorf("not a channel message: % X", []byte(msg))
	}
	ev := Event{Time: offset, Status: msg[0]}
	if n := dataLen(msg[0]); len(msg) < 1+n {
		return Event{}, fmt.Errorf("short %s message: % X", msg.Type(), []byte(msg))
	}
	if len(msg) > 1 {
		ev.Data1 = msg[1]
	}
	if dataLen(msg[0]) == 2 {
		ev.Data2 = msg[2]
	}
	return ev, nil
}

// Message rebuilds the raw bytes.
func (ev Event) Message() midi.Message {
	switch dataLen(ev.Status) {
	case 1:
		return midi.Message{ev.Status, ev.Data1}
	default:
		return midi.Message{ev.Status, ev.Data1, ev.Data2}
	}
}

func (ev Event) String() string {
	return fmt.Sprintf("%s %s", ev.Time, ev.Message().String())
}

// program change and channel pressure carry one data byte
func dataLen(status uint8) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	default:
		return 2
	}
}
