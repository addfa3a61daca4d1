package device

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver
)

// Registry is the system list of MIDI inputs.
type Registry interface {
	InPorts() ([]string, error)
	Open(name string) (Port, error)
}

// Port is an opened input. Listen delivers messages in arrival order on the
// driver's goroutine until Close.
type Port interface {
	Name() string
	Listen(onMsg func(midi.Message), onErr func(error)) error
	Close() error
}

// Match picks the port for target: an exact name first, then the first name
// containing target, ignoring case. Port names often carry a client number
// that changes between plugs.
func Match(names []string, target string) (string, bool) {
	for _, name := range names {
		if name == target {
			return name, true
		}
	}
	lower := strings.ToLower(target)
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), lower) {
			return name, true
		}
	}
	return "", false
}

// GomidiRegistry lists ports through the registered gomidi driver (rtmidi).
type GomidiRegistry struct{}

func (GomidiRegistry) InPorts() ([]string, error) {
	drv := drivers.Get()
	if drv == nil {
		return nil, fmt.Errorf("no MIDI driver registered")
	}
	ins, err := drv.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names, nil
}

func (GomidiRegistry) Open(name string) (Port, error) {
	for _, in := range midi.GetInPorts() {
		if in.String() == name {
			return &gomidiPort{in: in}, nil
		}
	}
	return nil, fmt.Errorf("can't find input %q", name)
}

type gomidiPort struct {
	in   drivers.In
	stop func()
}

func (p *gomidiPort) Name() string {
	return p.in.String()
}

// Listen opens the port. Realtime and system messages are dropped here:
// only channel messages belong in a track.
func (p *gomidiPort) Listen(onMsg func(midi.Message), onErr func(error)) error {
	var opts []midi.ListenOption
	if onErr != nil {
		opts = append(opts, midi.HandleError(onErr))
	}
	stop, err := midi.ListenTo(p.in, func(msg midi.Message, absms int32) {
		if len(msg) == 0 || msg[0] >= 0xF0 {
			return
		}
		onMsg(msg)
	}, opts...)
	if err != nil {
		if p.in.IsOpen() {
			p.in.Close()
		}
		return err
	}
	p.stop = stop
	return nil
}

func (p *gomidiPort) Close() error {
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	if p.in.IsOpen() {
		return p.in.Close()
	}
	return nil
}

// PortNames lists inputs for --list-ports.
func PortNames(reg Registry) string {
	names, err := reg.InPorts()
	if err != nil {
		return err.Error()
	}
	if len(names) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i, name := range names {
		fmt.Fprintf(&sb, "%d | %s\n", i, name)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
