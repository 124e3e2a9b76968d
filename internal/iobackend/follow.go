package iobackend

import (
	"context"
	"errors"

	"github.com/fsnotify/fsnotify"
	"github.com/jmylchreest/tao/pkg/mediaerr"
)

// Follow blocks until name receives a Write event or ctx is cancelled.
// taoctl probe --follow calls this when opening a file that is still being
// written fails, instead of polling, then retries the open.
func Follow(ctx context.Context, name string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return mediaerr.NewIo(err)
	}
	defer watcher.Close()

	if err := watcher.Add(name); err != nil {
		return mediaerr.NewIo(err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return mediaerr.NewIo(errors.New("iobackend: fsnotify event channel closed"))
			}
			if ev.Op&fsnotify.Write != 0 {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return mediaerr.NewIo(errors.New("iobackend: fsnotify error channel closed"))
			}
			return mediaerr.NewIo(err)
		}
	}
}
