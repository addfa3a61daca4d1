package ui

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Revealer shows a location to the user, typically in a file browser.
type Revealer interface {
	Reveal(path string) error
}

// FileBrowser opens a directory with the platform file manager, or with
// Command (path appended as last argument) when set.
type FileBrowser struct {
	Command []string
}

func (fb FileBrowser) Reveal(path string) error {
	cmd, err := fb.command(path)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	// reap the child so it does not linger as a zombie
	go cmd.Wait()
	return nil
}

func (fb FileBrowser) command(path string) (*exec.Cmd, error) {
	if len(fb.Command) > 0 {
		args := append(append([]string(nil), fb.Command[1:]...), path)
		return exec.Command(fb.Command[0], args...), nil
	}
	switch runtime.GOOS {
	case "windows":
		return exec.Command("explorer", filepath.FromSlash(path)), nil
	case "darwin":
		return exec.Command("open", path), nil
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly":
		return exec.Command("xdg-open", path), nil
	default:
		return nil, fmt.Errorf("don't know how to open files on %s", runtime.GOOS)
	}
}
