package music

import (
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"
)

const TICKS = smf.MetricTicks(960)

const BPM = float64(120)

// Encoder turns segments into single-track standard MIDI files. Event
// offsets are converted to ticks at a fixed tempo.
type Encoder struct {
	Tempo      float64
	Resolution smf.MetricTicks
}

func DefaultEncoder() Encoder {
	return Encoder{Tempo: BPM, Resolution: TICKS}
}

// Track encodes the events of seg. Deltas are taken between absolute tick
// positions so rounding does not accumulate over a long segment.
func (e Encoder) Track(seg *Segment) smf.Track {
	tr := smf.Track{}
	tr.Add(0, smf.MetaTrackSequenceName("capture "+seg.Start.Format(time.DateTime)))
	tr.Add(0, smf.MetaTempo(e.Tempo))
	var prev uint32
	for _, ev := range seg.Events() {
		abs := e.Resolution.Ticks(e.Tempo, ev.Time)
		if abs < prev {
			abs = prev
		}
		tr.Add(abs-prev, ev.Message())
		prev = abs
	}
	tr.Close(0)
	return tr
}

func (e Encoder) File(seg *Segment) (*smf.SMF, error) {
	f := smf.New()
	f.TimeFormat = e.Resolution
	if err := f.Add(e.Track(seg)); err != nil {
		return nil, fmt.Errorf("encode segment %s: %w", seg.Start.Format(time.DateTime), err)
	}
	return f, nil
}

// FileName is derived from the segment start, in UTC so that lexical and
// chronological order agree across DST changes. The layout is fixed width.
func FileName(start time.Time) string {
	return "capture_" + start.UTC().Format("20060102-150405.000") + "Z.mid"
}
