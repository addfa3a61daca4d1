package music

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Pi-3-14/i-forgot-to-record-my-piano/shared"

	charmlog "github.com/charmbracelet/log"
)

// Writer saves closed segments on its own goroutine, in the order they were
// submitted. Submit never waits for the disk.
type Writer struct {
	Dir     string
	Encoder Encoder

	status chan<- shared.Message
	logger *charmlog.Logger

	mu     sync.Mutex
	queue  []*Segment
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewWriter starts the writer goroutine. Results are reported on status,
// which may be nil.
func NewWriter(ctx context.Context, dir string, enc Encoder, status chan<- shared.Message) *Writer {
	w := &Writer{
		Dir:     dir,
		Encoder: enc,
		status:  status,
		logger:  charmlog.FromContext(ctx),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) Submit(seg *Segment) {
	seg.Close()
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Error("writer closed, segment dropped", "start", seg.Start, "events", seg.Len())
		return
	}
	w.queue = append(w.queue, seg)
	w.mu.Unlock()
	w.signal()
}

// Pending is the number of segments waiting to be written.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Close writes what is still queued and waits for the goroutine to exit.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.signal()
	<-w.done
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		seg, ok := w.next()
		if !ok {
			return
		}
		w.save(seg)
	}
}

func (w *Writer) next() (*Segment, bool) {
	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			seg := w.queue[0]
			w.queue[0] = nil
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return seg, true
		}
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return nil, false
		}
		<-w.wake
	}
}

func (w *Writer) save(seg *Segment) {
	path, err := w.Write(seg)
	if err != nil {
		w.logger.Error("segment lost", "start", seg.Start, "events", seg.Len(), "err", err)
		shared.Notify(w.status, shared.Message{
			Type:    shared.WriteFailed,
			String:  path,
			Number:  seg.Len(),
			Boolean: seg.Forced,
			Time:    seg.Start,
			Err:     err,
		})
		return
	}
	w.logger.Info("segment written", "file", path, "events", seg.Len(), "notes", seg.NoteOns())
	shared.Notify(w.status, shared.Message{
		Type:    shared.SegmentWritten,
		String:  path,
		Number:  seg.Len(),
		Boolean: seg.Forced,
		Time:    seg.Start,
	})
}

// Write saves seg synchronously and returns the file path. The file is
// written under a temporary name and renamed once complete. Errors are
// *shared.WriteFailure.
func (w *Writer) Write(seg *Segment) (string, error) {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return w.Dir, &shared.WriteFailure{Path: w.Dir, Err: err}
	}
	path, err := w.freePath(FileName(seg.Start))
	if err != nil {
		return path, &shared.WriteFailure{Path: path, Err: err}
	}
	f, err := w.Encoder.File(seg)
	if err != nil {
		return path, &shared.WriteFailure{Path: path, Err: err}
	}
	tmp := path + ".part"
	if err := f.WriteFile(tmp); err != nil {
		os.Remove(tmp)
		return path, &shared.WriteFailure{Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return path, &shared.WriteFailure{Path: path, Err: err}
	}
	return path, nil
}

// freePath appends _01, _02... to name until nothing exists with that name.
// The suffix sorts after the bare name.
func (w *Writer) freePath(name string) (string, error) {
	base := strings.TrimSuffix(name, ".mid")
	for i := 0; i < 100; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%02d.mid", base, i)
		}
		path := filepath.Join(w.Dir, candidate)
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return path, err
		}
	}
	return filepath.Join(w.Dir, name), fmt.Errorf("no free file name for %s", name)
}
