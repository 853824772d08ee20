package approval

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollDefault is the re-check interval. It also serves as the fallback when
// fsnotify is unavailable (e.g., NFS).
const pollDefault = 2 * time.Second

// Await blocks until the approval for key leaves the pending state or ctx is
// done. File events wake it early; a ticker re-checks in case an event is missed.
func (s *Store) Await(ctx context.Context, key string) (*Approval, error) {
	return s.await(ctx, key, pollDefault)
}

func (s *Store) await(ctx context.Context, key string, interval time.Duration) (*Approval, error) {
	if a, done, err := s.settled(key); done || err != nil {
		return a, err
	}

	var events <-chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer func() { _ = watcher.Close() }()
		if err := watcher.Add(s.dir); err == nil {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	target := filepath.Base(s.path(key))
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}

		case <-ticker.C:
		}

		if a, done, err := s.settled(key); done || err != nil {
			return a, err
		}
	}
}

// settled reports whether key has a decision. A vanished file is an error:
// the request was consumed or the queue was cleared.
func (s *Store) settled(key string) (*Approval, bool, error) {
	a, err := s.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		// Partial writes are retried on the next wakeup.
		return nil, false, nil
	}
	return a, a.Status != StatusPending, nil
}
