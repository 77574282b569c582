package knowledge

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const seedDebounce = 250 * time.Millisecond

// WatchSeed syncs path once, then re-syncs whenever the file is written or
// replaced, until ctx is done. The parent directory is watched so editors that
// save via rename are picked up.
func (s *Service) WatchSeed(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if _, err := s.SyncSeedFile(ctx, path); err != nil {
		s.logger.Error("initial seed sync failed", zap.String("path", path), zap.Error(err))
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(seedDebounce)
			} else {
				timer.Reset(seedDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if _, err := s.SyncSeedFile(ctx, path); err != nil {
				s.logger.Error("seed sync failed", zap.String("path", path), zap.Error(err))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("seed watcher error", zap.Error(err))
		}
	}
}
