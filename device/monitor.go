package device

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/Pi-3-14/i-forgot-to-record-my-piano/shared"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

type EventType int

const (
	DeviceConnected EventType = iota
	DeviceDisconnected
	DeviceMessage
)

// Event is what the monitor hands to the session. Connection changes and
// messages share one channel so their order is kept.
type Event struct {
	Type EventType
	Port string
	Msg  midi.Message
	At   time.Time
	Err  error // why the device went away, nil if it was unplugged
}

var errScanTimeout = errors.New("port enumeration timed out")

type readFailure struct {
	gen int
	err error
}

// Monitor polls the registry for the target input, opens it when it shows
// up and releases it when it disappears or fails.
type Monitor struct {
	Target      string
	Interval    time.Duration
	ScanTimeout time.Duration
	Now         func() time.Time

	registry Registry
	events   chan Event
	failed   chan readFailure
	logger   *charmlog.Logger

	mu   sync.Mutex
	port Port
	gen  int
	live bool
}

func NewMonitor(reg Registry, target string, interval time.Duration) *Monitor {
	return &Monitor{
		Target:      target,
		Interval:    interval,
		ScanTimeout: 3 * time.Second,
		Now:         time.Now,
		registry:    reg,
		events:      make(chan Event, 256),
		failed:      make(chan readFailure, 1),
		logger:      charmlog.Default(),
	}
}

// Events is closed when Run returns.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live {
		return Connected
	}
	return Disconnected
}

// Run polls until ctx is done (blocking - run in goroutine).
func (m *Monitor) Run(ctx context.Context) {
	m.logger = charmlog.FromContext(ctx)
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	defer close(m.events)

	m.logger.Info("watching for", "device", m.Target, "every", m.Interval)
	m.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			m.release()
			m.logger.Debug("context Done")
			return
		case f := <-m.failed:
			m.mu.Lock()
			current := m.live && f.gen == m.gen
			m.mu.Unlock()
			if current {
				m.logger.Warn("read failed", "err", f.err)
				m.disconnect(ctx, f.err)
			}
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

func (m *Monitor) scan(ctx context.Context) {
	names, err := m.list()
	if err != nil {
		m.logger.Warn("can't list MIDI inputs", "err", err)
		return
	}
	m.mu.Lock()
	port := m.port
	m.mu.Unlock()

	if port != nil {
		if !slices.Contains(names, port.Name()) {
			m.logger.Info("device gone", "port", port.Name())
			m.disconnect(ctx, nil)
		}
		return
	}

	name, ok := Match(names, m.Target)
	if !ok {
		m.logger.Debug("waiting", "device", m.Target, "reason", shared.ErrDeviceUnavailable, "inputs", len(names))
		return
	}
	m.connect(ctx, name)
}

// list guards against enumeration hanging (CoreMIDI does).
func (m *Monitor) list() ([]string, error) {
	type result struct {
		names []string
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		names, err := m.registry.InPorts()
		ch <- result{names, err}
	}()
	select {
	case r := <-ch:
		return r.names, r.err
	case <-time.After(m.ScanTimeout):
		return nil, errScanTimeout
	}
}

func (m *Monitor) connect(ctx context.Context, name string) {
	p, err := m.registry.Open(name)
	if err != nil {
		m.logger.Warn("can't open", "port", name, "err", err)
		return
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.port = p
	m.live = true
	m.mu.Unlock()

	m.logger.Info("connected", "port", name)
	m.emit(ctx, Event{Type: DeviceConnected, Port: name, At: m.Now()})

	onMsg := func(msg midi.Message) {
		at := m.Now()
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.live || m.gen != gen {
			return
		}
		m.emit(ctx, Event{Type: DeviceMessage, Port: name, Msg: append(midi.Message(nil), msg...), At: at})
	}
	onErr := func(err error) {
		select {
		case m.failed <- readFailure{gen, &shared.DeviceReadError{Port: name, Err: err}}:
		default:
		}
	}
	if err := p.Listen(onMsg, onErr); err != nil {
		m.logger.Error("can't listen", "port", name, "err", err)
		m.disconnect(ctx, &shared.DeviceReadError{Port: name, Err: err})
	}
}

// disconnect releases the handle before telling anyone, so the next open
// attempt starts clean.
func (m *Monitor) disconnect(ctx context.Context, cause error) {
	name := m.release()
	if name == "" {
		return
	}
	m.emit(ctx, Event{Type: DeviceDisconnected, Port: name, At: m.Now(), Err: cause})
}

func (m *Monitor) release() string {
	m.mu.Lock()
	port := m.port
	m.port = nil
	m.live = false
	m.mu.Unlock()
	if port == nil {
		return ""
	}
	if err := port.Close(); err != nil {
		m.logger.Warn("close", "port", port.Name(), "err", err)
	}
	return port.Name()
}

func (m *Monitor) emit(ctx context.Context, ev Event) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}
