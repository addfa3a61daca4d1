package session

import (
	"context"
	"time"

	"github.com/Pi-3-14/i-forgot-to-record-my-piano/device"
	"github.com/Pi-3-14/i-forgot-to-record-my-piano/music"
	"github.com/Pi-3-14/i-forgot-to-record-my-piano/shared"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// SegmentSink takes closed segments off the controller's hands.
// music.Writer is the real one.
type SegmentSink interface {
	Submit(seg *music.Segment)
}

// Controller owns the current segment. All methods must be called from one
// goroutine; Run does that for the monitor's events.
type Controller struct {
	SegmentLength time.Duration
	MinEvents     int
	TickInterval  time.Duration
	Now           func() time.Time

	sink   SegmentSink
	hotkey *music.Hotkey
	status chan<- shared.Message
	logger *charmlog.Logger

	state   State
	port    string
	current *music.Segment
}

func New(sink SegmentSink, hotkey *music.Hotkey, status chan<- shared.Message) *Controller {
	return &Controller{
		SegmentLength: 5 * time.Minute,
		MinEvents:     1,
		TickInterval:  time.Second,
		Now:           time.Now,
		sink:          sink,
		hotkey:        hotkey,
		status:        status,
		logger:        charmlog.Default(),
	}
}

func (c *Controller) State() State {
	return c.state
}

// Current is the open segment, nil while idle.
func (c *Controller) Current() *music.Segment {
	return c.current
}

// Run consumes device events until the channel is closed, then flushes the
// open segment. The producer must close events once ctx is done.
func (c *Controller) Run(ctx context.Context, events <-chan device.Event) {
	c.logger = charmlog.FromContext(ctx)
	c.logger.Info("start")
	ticker := time.NewTicker(c.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("context Done, draining")
			for ev := range events {
				c.handle(ev)
			}
			c.Shutdown(c.Now())
			return
		case ev, ok := <-events:
			if !ok {
				c.Shutdown(c.Now())
				return
			}
			c.handle(ev)
		case <-ticker.C:
			// events stamped before the tick go to the segment they belong to
			if !c.catchUp(events) {
				c.Shutdown(c.Now())
				return
			}
			c.Tick(c.Now())
		}
	}
}

// catchUp handles the events already queued. It reports false once events
// is closed.
func (c *Controller) catchUp(events <-chan device.Event) bool {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.handle(ev)
		default:
			return true
		}
	}
}

func (c *Controller) handle(ev device.Event) {
	switch ev.Type {
	case device.DeviceConnected:
		c.Connected(ev.Port, ev.At)
	case device.DeviceDisconnected:
		c.Disconnected(ev.At, ev.Err)
	case device.DeviceMessage:
		c.Receive(ev.Msg, ev.At)
	default:
		c.logger.Printf("unknown event type: %#v", ev.Type)
	}
}

func (c *Controller) Connected(port string, now time.Time) {
	if c.state == Recording {
		c.logger.Warn("connected while recording, closing previous segment", "port", c.port)
		c.close(false)
	}
	c.state = Recording
	c.port = port
	c.open(now)
	shared.Notify(c.status, shared.Message{Type: shared.DeviceConnected, String: port, Time: now})
}

// Disconnected closes the open segment. A segment without events is
// dropped rather than written.
func (c *Controller) Disconnected(now time.Time, cause error) {
	if c.state == Idle {
		return
	}
	c.close(false)
	port := c.port
	c.state = Idle
	c.port = ""
	c.hotkey.Reset()
	shared.Notify(c.status, shared.Message{Type: shared.DeviceDisconnected, String: port, Time: now, Err: cause})
}

// Receive appends msg to the open segment and feeds the hotkey detector.
// Messages while idle have no segment to go to and are dropped.
func (c *Controller) Receive(msg midi.Message, at time.Time) {
	if c.state == Idle {
		c.logger.Debug("dropped, no device", "msg", msg)
		return
	}
	if c.current.Elapsed(at) >= c.SegmentLength {
		c.rotate(at)
	}
	if at.Before(c.current.Start) {
		// stamped just before a rotation: kept at the start of the new segment
		c.logger.Debug("late event clamped", "msg", msg, "by", c.current.Start.Sub(at))
	}
	if _, err := c.current.Append(msg, at); err != nil {
		c.logger.Warn("not recorded", "msg", msg, "err", err)
		return
	}
	if c.hotkey.Observe(msg, at) {
		c.logger.Info("hotkey pressed, saving segment", "note", midi.Note(c.hotkey.Note), "events", c.current.Len())
		c.close(true)
		c.open(at)
		shared.Notify(c.status, shared.Message{Type: shared.HotkeyFired, Time: at})
	}
}

// Tick rotates the open segment once it has run for SegmentLength.
func (c *Controller) Tick(now time.Time) {
	if c.state == Idle {
		return
	}
	if c.current.Elapsed(now) >= c.SegmentLength {
		c.rotate(now)
	}
}

// Shutdown flushes the open segment on a best-effort basis.
func (c *Controller) Shutdown(now time.Time) {
	if c.state == Idle {
		return
	}
	c.logger.Info("shutting down, flushing", "events", c.current.Len())
	c.close(false)
	c.state = Idle
	c.port = ""
}

// rotate starts the next segment where the previous one ended, or at now
// if more than one period went by without a rotation (suspend).
func (c *Controller) rotate(now time.Time) {
	prev := c.current
	next := prev.Start.Add(c.SegmentLength)
	if now.Sub(next) >= c.SegmentLength {
		next = now
	}
	c.logger.Info("rotating", "start", prev.Start.Format(time.TimeOnly), "events", prev.Len())
	shared.Notify(c.status, shared.Message{Type: shared.SegmentRotated, Number: prev.Len(), Time: prev.Start})
	c.close(false)
	c.open(next)
}

func (c *Controller) open(start time.Time) {
	c.current = music.NewSegment(start)
	c.logger.Debug("segment opened", "start", start)
	shared.Notify(c.status, shared.Message{Type: shared.SegmentOpened, Time: start})
}

// close hands the current segment to the sink. Forced segments are written
// even when empty, others need MinEvents (at least one) events.
func (c *Controller) close(forced bool) {
	seg := c.current
	c.current = nil
	if seg == nil {
		return
	}
	seg.Forced = forced
	seg.Close()
	if !forced && seg.Len() < max(c.MinEvents, 1) {
		c.logger.Debug("segment discarded", "start", seg.Start, "events", seg.Len())
		shared.Notify(c.status, shared.Message{Type: shared.SegmentDiscarded, Number: seg.Len(), Time: seg.Start})
		return
	}
	c.sink.Submit(seg)
}
