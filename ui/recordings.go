package ui

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

type RecentFile struct {
	Path string
	Time time.Time
}

type RecentFiles []RecentFile

// Recordings lists the capture files of dir, newest first. A missing
// directory is not an error: nothing was recorded yet.
func Recordings(dir string) (RecentFiles, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return RecentFiles{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := RecentFiles{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "capture_") || !strings.HasSuffix(name, ".mid") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, RecentFile{Path: filepath.Join(dir, name), Time: info.ModTime()})
	}
	// names sort chronologically
	slices.SortFunc(out, func(a, b RecentFile) int {
		return strings.Compare(b.Path, a.Path)
	})
	return out, nil
}

func (rfs RecentFiles) Latest() (RecentFile, bool) {
	if len(rfs) == 0 {
		return RecentFile{}, false
	}
	return rfs[0], true
}

// Since keeps the files modified at or after t.
func (rfs RecentFiles) Since(t time.Time) RecentFiles {
	return slices.DeleteFunc(slices.Clone(rfs), func(rf RecentFile) bool {
		return rf.Time.Before(t)
	})
}
