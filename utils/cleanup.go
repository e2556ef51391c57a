package utils

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepUploads removes regular files in dir whose modification time is older than maxAge.
// The prediction pipeline deletes its own files; this only catches what a crash left behind.
func SweepUploads(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			Sugar.Warnw("upload sweep remove failed", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// StartUploadSweeper schedules SweepUploads on spec (e.g. "@every 10m") and returns the running scheduler.
func StartUploadSweeper(spec, dir string, maxAge time.Duration) (*cron.Cron, error) {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		n, err := SweepUploads(dir, maxAge, time.Now())
		if err != nil {
			Sugar.Warnw("upload sweep failed", "dir", dir, "error", err)
			return
		}
		if n > 0 {
			Sugar.Infow("upload sweep removed orphaned files", "dir", dir, "count", n)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
