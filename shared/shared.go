package shared

import (
	"fmt"
	"time"
)

type Event int

const (
	Quit Event = iota
	DeviceConnected
	DeviceDisconnected
	SegmentOpened
	SegmentRotated
	SegmentDiscarded
	SegmentWritten
	WriteFailed
	HotkeyFired
)

func (e Event) String() string {
	switch e {
	case Quit:
		return "quit"
	case DeviceConnected:
		return "device connected"
	case DeviceDisconnected:
		return "device disconnected"
	case SegmentOpened:
		return "segment opened"
	case SegmentRotated:
		return "segment rotated"
	case SegmentDiscarded:
		return "segment discarded"
	case SegmentWritten:
		return "segment written"
	case WriteFailed:
		return "write failed"
	case HotkeyFired:
		return "hotkey fired"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Message is a status notification sent from the capture engine to the log
// surface. Fields are used depending on Type:
//   - String: port name, or file path for SegmentWritten/WriteFailed
//   - Number: number of events in the segment
//   - Boolean: the segment was force-closed by the hotkey
type Message struct {
	Type    Event
	Number  int
	Boolean bool
	String  string
	Time    time.Time
	Err     error
}

// Notify sends msg on sink unless sink is nil.
func Notify(sink chan<- Message, msg Message) {
	if sink == nil {
		return
	}
	sink <- msg
}
