package download

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/m3rciful/songbot/core/logger"
)

// Sweep removes files older than maxAge from the download directory,
// skipping files that belong to running jobs.
func (o *Orchestrator) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(o.cfg.Dir)
	if err != nil {
		return 0, err
	}
	cutoff := o.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || o.ownedByActiveJob(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(o.cfg.Dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// StartJanitor runs Sweep every interval until ctx ends.
func (o *Orchestrator) StartJanitor(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := o.Sweep(maxAge)
				if err != nil {
					logger.Warn(ctx, "download", "janitor.sweep",
						slog.String("status", "fail"),
						slog.String("err", err.Error()),
					)
					continue
				}
				if n > 0 {
					logger.Info(ctx, "download", "janitor.sweep",
						slog.String("status", "ok"),
						slog.Int("count", n),
					)
				}
			}
		}
	}()
}
