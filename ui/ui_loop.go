package ui

import (
	"context"
	"path/filepath"

	. "github.com/Pi-3-14/i-forgot-to-record-my-piano/shared"

	charmlog "github.com/charmbracelet/log"
)

// Run is the log surface: it reports status messages until ctx is done or
// status is closed, and reveals location when the hotkey fires. A nil
// revealer disables revealing.
func Run(ctx context.Context, status <-chan Message, revealer Revealer, location string) {
	logger := charmlog.FromContext(ctx)
	written := 0
	for {
		select {
		case <-ctx.Done():
			logger.Debug("context Done, quitting")
			return
		case msg, ok := <-status:
			if !ok {
				logger.Debug("status closed", "written", written)
				return
			}
			switch msg.Type {
			case Quit:
				return
			case DeviceConnected:
				logger.Info("device connected", "port", msg.String)
			case DeviceDisconnected:
				if msg.Err != nil {
					logger.Warn("device lost", "port", msg.String, "err", msg.Err)
				} else {
					logger.Info("device disconnected", "port", msg.String)
				}
			case SegmentOpened:
				logger.Debug("recording", "since", msg.Time.Format("15:04:05.000"))
			case SegmentRotated:
				logger.Info("segment rotated", "events", msg.Number)
			case SegmentDiscarded:
				logger.Debug("nothing played, segment dropped", "since", msg.Time.Format("15:04:05"))
			case SegmentWritten:
				written++
				logger.Info("saved", "file", filepath.Base(msg.String), "events", msg.Number, "forced", msg.Boolean)
			case WriteFailed:
				logger.Error("recording lost", "file", msg.String, "events", msg.Number, "err", msg.Err)
			case HotkeyFired:
				logger.Info("hotkey: saved and opening", "location", location)
				if revealer != nil {
					go func() {
						if err := revealer.Reveal(location); err != nil {
							logger.Warn("can't open", "location", location, "err", err)
						}
					}()
				}
			default:
				logger.Printf("unknown message type: %#v", msg.Type)
			}
		}
	}
}
