package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appID = "midi-capture"

// InstallAutostart registers exe (with args) to be started at login and
// returns the file it wrote.
func InstallAutostart(exe string, args []string) (string, error) {
	path, content, err := autostartEntry(runtime.GOOS, exe, args)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func autostartEntry(goos, exe string, args []string) (path, content string, err error) {
	switch goos {
	case "windows":
		dir, err := os.UserConfigDir() // %AppData%
		if err != nil {
			return "", "", err
		}
		path = filepath.Join(dir, "Microsoft", "Windows", "Start Menu", "Programs", "Startup", appID+".bat")
		content = fmt.Sprintf("@echo off\r\nstart \"\" /min %s\r\n", quoteAll(append([]string{exe}, args...)))
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		path = filepath.Join(home, "Library", "LaunchAgents", "io.github.pi-3-14."+appID+".plist")
		var sb strings.Builder
		for _, a := range append([]string{exe}, args...) {
			fmt.Fprintf(&sb, "\t\t<string>%s</string>\n", xmlEscape(a))
		}
		content = fmt.Sprintf(plist, appID, sb.String())
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly":
		dir, err := os.UserConfigDir() // $XDG_CONFIG_HOME or ~/.config
		if err != nil {
			return "", "", err
		}
		path = filepath.Join(dir, "autostart", appID+".desktop")
		content = fmt.Sprintf(desktopEntry, quoteAll(append([]string{exe}, args...)))
	default:
		return "", "", fmt.Errorf("autostart not supported on %s", goos)
	}
	return path, content, nil
}

const desktopEntry = `[Desktop Entry]
Type=Application
Name=MIDI capture
Comment=Records everything played on the MIDI keyboard
Exec=%s
Terminal=false
NoDisplay=true
X-GNOME-Autostart-enabled=true
`

const plist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
%s	</array>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`

func quoteAll(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

func xmlEscape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
