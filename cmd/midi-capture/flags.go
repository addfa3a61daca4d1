package main

import (
	"io"

	"github.com/Pi-3-14/i-forgot-to-record-my-piano/config"

	flag "github.com/spf13/pflag"
)

type options struct {
	configPath       string
	device           string
	dir              string
	logLevel         string
	listPorts        bool
	installAutostart bool
	saveConfig       bool
}

func parseFlags(args []string, errOut io.Writer) (*options, error) {
	opts := &options{}
	defaultPath, err := config.Path()
	if err != nil {
		defaultPath = "config.yaml"
	}

	fs := flag.NewFlagSet("midi-capture", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVarP(&opts.configPath, "config", "c", defaultPath, "config file")
	fs.StringVarP(&opts.device, "device", "d", "", "MIDI input port name (or part of it)")
	fs.StringVar(&opts.dir, "dir", "", "where recordings are saved")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVarP(&opts.listPorts, "list-ports", "l", false, "print MIDI inputs and exit")
	fs.BoolVar(&opts.installAutostart, "install-autostart", false, "start midi-capture at login and exit")
	fs.BoolVar(&opts.saveConfig, "save-config", false, "write the effective config to --config and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// apply lays the command line over the loaded config.
func (o *options) apply(cfg *config.Config) {
	if o.device != "" {
		cfg.Device = o.device
	}
	if o.dir != "" {
		cfg.RecordingsDir = o.dir
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
}

// passthrough rebuilds the flags that must survive into the autostart entry.
func (o *options) passthrough() []string {
	args := []string{"--config", o.configPath}
	if o.device != "" {
		args = append(args, "--device", o.device)
	}
	if o.dir != "" {
		args = append(args, "--dir", o.dir)
	}
	if o.logLevel != "" {
		args = append(args, "--log-level", o.logLevel)
	}
	return args
}
