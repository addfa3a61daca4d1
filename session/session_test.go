package session

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/Pi-3-14/i-forgot-to-record-my-piano/device"
	"github.com/Pi-3-14/i-forgot-to-record-my-piano/music"
	"github.com/Pi-3-14/i-forgot-to-record-my-piano/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

var t0 = time.Date(2026, 10, 19, 20, 0, 0, 0, time.Local)

func at(d time.Duration) time.Time { return t0.Add(d) }

type memSink struct {
	segments []*music.Segment
}

func (s *memSink) Submit(seg *music.Segment) {
	s.segments = append(s.segments, seg)
}

func newController() (*Controller, *memSink, chan shared.Message) {
	sink := &memSink{}
	status := make(chan shared.Message, 1024)
	c := New(sink, music.NewHotkey(36, 3, 3*time.Second), status)
	return c, sink, status
}

func drain(status chan shared.Message) (out []shared.Message) {
	for len(status) > 0 {
		out = append(out, <-status)
	}
	return
}

func count(msgs []shared.Message, typ shared.Event) (n int) {
	for _, m := range msgs {
		if m.Type == typ {
			n++
		}
	}
	return
}

func TestScenarioDisconnectThenHotkey(t *testing.T) {
	c, sink, status := newController()

	c.Connected("LPK25", at(0))
	assert.Equal(t, Recording, c.State())
	c.Receive(midi.NoteOn(0, 60, 100), at(time.Second))
	c.Receive(midi.NoteOn(0, 60, 100), at(2*time.Second))
	c.Disconnected(at(3*time.Second), nil)
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Current())

	require.Len(t, sink.segments, 1)
	first := sink.segments[0]
	assert.Equal(t, music.Closed, first.State())
	require.Equal(t, 2, first.Len())
	assert.Equal(t, time.Second, first.Events()[0].Time)
	assert.Equal(t, 2*time.Second, first.Events()[1].Time)

	c.Connected("LPK25", at(10*time.Second))
	assert.Equal(t, at(10*time.Second), c.Current().Start)
	c.Receive(midi.NoteOn(0, 36, 80), at(11*time.Second))
	c.Receive(midi.NoteOn(0, 36, 80), at(11500*time.Millisecond))
	c.Receive(midi.NoteOn(0, 36, 80), at(12*time.Second))

	require.Len(t, sink.segments, 2)
	forced := sink.segments[1]
	assert.True(t, forced.Forced)
	assert.Equal(t, at(10*time.Second), forced.Start)
	assert.Equal(t, 3, forced.Len())

	require.NotNil(t, c.Current())
	assert.Equal(t, at(12*time.Second), c.Current().Start)
	assert.Equal(t, 0, c.Current().Len())

	msgs := drain(status)
	assert.Equal(t, 1, count(msgs, shared.HotkeyFired))
	assert.Equal(t, 2, count(msgs, shared.DeviceConnected))
	assert.Equal(t, 1, count(msgs, shared.DeviceDisconnected))
}

func TestHotkeyWritesEmptySegment(t *testing.T) {
	c, sink, _ := newController()
	c.Connected("LPK25", at(0))
	c.Receive(midi.NoteOn(0, 36, 80), at(time.Second))
	c.Receive(midi.NoteOn(0, 36, 80), at(2*time.Second))
	c.Receive(midi.NoteOn(0, 36, 80), at(3*time.Second))
	require.Len(t, sink.segments, 1)

	// fourth press starts a new count, it does not fire again
	c.Receive(midi.NoteOn(0, 36, 80), at(3100*time.Millisecond))
	assert.Len(t, sink.segments, 1)
	c.Receive(midi.NoteOn(0, 36, 80), at(3200*time.Millisecond))
	c.Receive(midi.NoteOn(0, 36, 80), at(3300*time.Millisecond))
	require.Len(t, sink.segments, 2)
	assert.Equal(t, 3, sink.segments[1].Len())
}

func TestDisconnectEmptySegmentIsDiscarded(t *testing.T) {
	c, sink, status := newController()
	c.Connected("LPK25", at(0))
	c.Disconnected(at(time.Minute), &shared.DeviceReadError{Port: "LPK25"})
	assert.Empty(t, sink.segments)

	msgs := drain(status)
	assert.Equal(t, 1, count(msgs, shared.SegmentDiscarded))
	last := msgs[len(msgs)-1]
	assert.Equal(t, shared.DeviceDisconnected, last.Type)
	assert.Error(t, last.Err)
}

func TestDisconnectWhileIdle(t *testing.T) {
	c, sink, status := newController()
	c.Disconnected(at(0), nil)
	assert.Empty(t, sink.segments)
	assert.Empty(t, drain(status))
}

func TestMessagesWhileIdleAreDropped(t *testing.T) {
	c, sink, _ := newController()
	c.Receive(midi.NoteOn(0, 60, 1), at(0))
	c.Connected("LPK25", at(time.Second))
	assert.Equal(t, 0, c.Current().Len())
	c.Disconnected(at(2*time.Second), nil)
	assert.Empty(t, sink.segments)
}

func TestRotationAtFiveMinutes(t *testing.T) {
	c, sink, status := newController()
	c.Connected("LPK25", at(0))
	c.Receive(midi.NoteOn(0, 60, 1), at(time.Second))

	c.Tick(at(5*time.Minute - time.Millisecond))
	assert.Empty(t, sink.segments)

	c.Tick(at(5 * time.Minute))
	require.Len(t, sink.segments, 1)
	assert.False(t, sink.segments[0].Forced)
	assert.Equal(t, Recording, c.State())
	assert.Equal(t, at(5*time.Minute), c.Current().Start)

	c.Receive(midi.NoteOff(0, 60), at(5*time.Minute+500*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, c.Current().Events()[0].Time)
	assert.Equal(t, 1, count(drain(status), shared.SegmentRotated))
}

func TestRotationOnLateEvent(t *testing.T) {
	c, sink, _ := newController()
	c.Connected("LPK25", at(0))
	c.Receive(midi.NoteOn(0, 60, 1), at(time.Minute))
	c.Receive(midi.NoteOff(0, 60), at(5*time.Minute+3*time.Second))

	require.Len(t, sink.segments, 1)
	assert.Equal(t, 1, sink.segments[0].Len())
	assert.Equal(t, at(5*time.Minute), c.Current().Start)
	assert.Equal(t, 3*time.Second, c.Current().Events()[0].Time)
}

func TestEventStampedBeforeRotationIsClamped(t *testing.T) {
	c, sink, _ := newController()
	c.Connected("LPK25", at(0))
	c.Receive(midi.NoteOn(0, 60, 1), at(time.Minute))
	c.Tick(at(5 * time.Minute))
	c.Receive(midi.NoteOff(0, 60), at(5*time.Minute-100*time.Millisecond))

	require.Len(t, sink.segments, 1)
	assert.Equal(t, 1, sink.segments[0].Len())
	require.Equal(t, 1, c.Current().Len())
	assert.Equal(t, time.Duration(0), c.Current().Events()[0].Time)
}

func TestRunHandlesQueuedEventsBeforeTick(t *testing.T) {
	c, sink, _ := newController()
	c.TickInterval = time.Millisecond
	c.Now = func() time.Time { return at(5 * time.Minute) }

	events := make(chan device.Event, 2)
	events <- device.Event{Type: device.DeviceConnected, Port: "LPK25", At: at(0)}
	events <- device.Event{Type: device.DeviceMessage, Port: "LPK25", Msg: midi.NoteOn(0, 60, 1), At: at(5*time.Minute - 100*time.Millisecond)}

	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), events)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	require.Len(t, sink.segments, 1)
	require.Equal(t, 1, sink.segments[0].Len())
	assert.Equal(t, 5*time.Minute-100*time.Millisecond, sink.segments[0].Events()[0].Time)
}

func TestRotationAfterSuspend(t *testing.T) {
	c, sink, _ := newController()
	c.Connected("LPK25", at(0))
	c.Receive(midi.NoteOn(0, 60, 1), at(time.Second))
	c.Tick(at(17 * time.Minute))
	require.Len(t, sink.segments, 1)
	assert.Equal(t, at(17*time.Minute), c.Current().Start)
}

func TestEmptyRotationNotWritten(t *testing.T) {
	c, sink, _ := newController()
	c.Connected("LPK25", at(0))
	for m := 1; m <= 30; m++ {
		c.Tick(at(time.Duration(m) * time.Minute))
	}
	assert.Empty(t, sink.segments)
	assert.Equal(t, at(30*time.Minute), c.Current().Start)
}

func TestMinEvents(t *testing.T) {
	c, sink, _ := newController()
	c.MinEvents = 3
	c.Connected("LPK25", at(0))
	c.Receive(midi.NoteOn(0, 60, 1), at(time.Second))
	c.Receive(midi.NoteOff(0, 60), at(2*time.Second))
	c.Disconnected(at(3*time.Second), nil)
	assert.Empty(t, sink.segments)
}

func TestHotkeySpansRotation(t *testing.T) {
	c, sink, status := newController()
	c.Connected("LPK25", at(0))
	c.Receive(midi.NoteOn(0, 36, 80), at(5*time.Minute-500*time.Millisecond))
	c.Tick(at(5 * time.Minute))
	require.Len(t, sink.segments, 1)
	c.Receive(midi.NoteOn(0, 36, 80), at(5*time.Minute+200*time.Millisecond))
	c.Receive(midi.NoteOn(0, 36, 80), at(5*time.Minute+600*time.Millisecond))

	assert.Equal(t, 1, count(drain(status), shared.HotkeyFired))
	require.Len(t, sink.segments, 2)
	assert.True(t, sink.segments[1].Forced)
	assert.Equal(t, 2, sink.segments[1].Len())
}

func TestDisconnectResetsHotkey(t *testing.T) {
	c, _, status := newController()
	c.Connected("LPK25", at(0))
	c.Receive(midi.NoteOn(0, 36, 80), at(100*time.Millisecond))
	c.Receive(midi.NoteOn(0, 36, 80), at(200*time.Millisecond))
	c.Disconnected(at(300*time.Millisecond), nil)
	c.Connected("LPK25", at(400*time.Millisecond))
	c.Receive(midi.NoteOn(0, 36, 80), at(500*time.Millisecond))
	assert.Equal(t, 0, count(drain(status), shared.HotkeyFired))
}

func TestReconnectStartsFreshSegment(t *testing.T) {
	c, sink, _ := newController()
	c.Connected("LPK25", at(0))
	c.Receive(midi.NoteOn(0, 60, 1), at(time.Second))
	c.Disconnected(at(2*time.Second), nil)
	c.Connected("LPK25", at(time.Hour))
	c.Receive(midi.NoteOn(0, 62, 1), at(time.Hour+time.Second))
	c.Shutdown(at(time.Hour + 2*time.Second))

	require.Len(t, sink.segments, 2)
	assert.Equal(t, at(time.Hour), sink.segments[1].Start)
	require.Equal(t, 1, sink.segments[1].Len())
	assert.Equal(t, time.Second, sink.segments[1].Events()[0].Time)
	assert.Equal(t, midi.NoteOn(0, 62, 1), sink.segments[1].Events()[0].Message())
	assert.Equal(t, Idle, c.State())
}

func TestDoubleConnectClosesPrevious(t *testing.T) {
	c, sink, _ := newController()
	c.Connected("LPK25", at(0))
	c.Receive(midi.NoteOn(0, 60, 1), at(time.Second))
	c.Connected("LPK25", at(2*time.Second))
	require.Len(t, sink.segments, 1)
	assert.Equal(t, at(2*time.Second), c.Current().Start)
}

// Every event played while connected ends up in exactly one segment, in
// order, at its original time.
func TestNoLossAcrossRotations(t *testing.T) {
	c, sink, _ := newController()
	c.Connected("LPK25", at(0))

	type input struct {
		msg midi.Message
		at  time.Time
	}
	var played []input
	clock := time.Duration(0)
	for i := 0; i < 2000; i++ {
		clock += time.Duration(300+(i*37)%900) * time.Millisecond
		for tick := (clock - time.Second).Truncate(time.Second); tick < clock; tick += time.Second {
			c.Tick(at(tick))
		}
		msg := midi.NoteOn(uint8(i%4), uint8(40+i%20), uint8(1+i%100))
		if i%2 == 1 {
			msg = midi.NoteOff(uint8(i%4), uint8(40+(i-1)%20))
		}
		played = append(played, input{msg, at(clock)})
		c.Receive(msg, at(clock))
	}
	c.Disconnected(at(clock+time.Second), nil)

	require.Greater(t, len(sink.segments), 5)
	var got []input
	for i, seg := range sink.segments {
		assert.LessOrEqual(t, seg.Events()[seg.Len()-1].Time, 5*time.Minute, "segment %d too long", i)
		if i > 0 {
			assert.True(t, seg.Start.After(sink.segments[i-1].Start))
		}
		for _, ev := range seg.Events() {
			got = append(got, input{ev.Message(), seg.Start.Add(ev.Time)})
		}
	}
	require.Equal(t, len(played), len(got))
	for i := range played {
		assert.Equal(t, played[i].msg, got[i].msg, "event %d", i)
		assert.True(t, played[i].at.Equal(got[i].at), "event %d at %v, got %v", i, played[i].at, got[i].at)
	}
}

type feed struct {
	events chan device.Event
}

func (f feed) send(typ device.EventType, msg midi.Message, d time.Duration) {
	f.events <- device.Event{Type: typ, Port: "LPK25", Msg: msg, At: at(d)}
}

func TestRunWritesFiles(t *testing.T) {
	dir := t.TempDir()
	status := make(chan shared.Message, 1024)
	ctx := context.Background()
	w := music.NewWriter(ctx, dir, music.DefaultEncoder(), status)
	c := New(w, music.NewHotkey(36, 3, 3*time.Second), status)
	c.Now = func() time.Time { return t0 }

	f := feed{make(chan device.Event)}
	done := make(chan struct{})
	go func() {
		c.Run(ctx, f.events)
		close(done)
	}()

	f.send(device.DeviceConnected, nil, 0)
	f.send(device.DeviceMessage, midi.NoteOn(0, 60, 100), time.Second)
	f.send(device.DeviceMessage, midi.NoteOn(0, 60, 100), 2*time.Second)
	f.send(device.DeviceDisconnected, nil, 3*time.Second)
	f.send(device.DeviceConnected, nil, 10*time.Second)
	f.send(device.DeviceMessage, midi.NoteOn(0, 36, 80), 11*time.Second)
	f.send(device.DeviceMessage, midi.NoteOn(0, 36, 80), 11500*time.Millisecond)
	f.send(device.DeviceMessage, midi.NoteOn(0, 36, 80), 12*time.Second)
	f.send(device.DeviceMessage, midi.NoteOff(0, 36), 12100*time.Millisecond)
	close(f.events)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	w.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var files []string
	for _, e := range entries {
		files = append(files, e.Name())
	}
	sort.Strings(files)
	// disconnect, hotkey, shutdown flush
	require.Len(t, files, 3, "%v", files)
	assert.Equal(t, music.FileName(at(0)), files[0])
	assert.Equal(t, music.FileName(at(10*time.Second)), files[1])
	assert.Equal(t, music.FileName(at(12*time.Second)), files[2])

	first, err := smf.ReadFile(filepath.Join(dir, files[0]))
	require.NoError(t, err)
	ticks := first.TimeFormat.(smf.MetricTicks)
	var abs uint32
	var times []time.Duration
	for _, ev := range first.Tracks[0] {
		abs += ev.Delta
		if ev.Message.IsPlayable() {
			times = append(times, ticks.Duration(music.BPM, abs).Round(time.Millisecond))
		}
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, times)

	msgs := drain(status)
	assert.Equal(t, 1, count(msgs, shared.HotkeyFired))
	assert.Equal(t, 3, count(msgs, shared.SegmentWritten))
}
