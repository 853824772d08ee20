package governor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 500 * time.Millisecond

// Reloader watches the constitution and criteria and swaps the governor's
// snapshot when they change. A failed reload keeps the previous snapshot.
type Reloader struct {
	watcher  *fsnotify.Watcher
	gov      *Governor
	src      Sources
	targets  map[string]bool // cleaned file paths or directories of interest
	dirs     map[string]bool // watched criteria directory
	log      zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending *time.Timer
}

// NewReloader creates a watcher for src. Parent directories of files are
// watched so editors that replace files by rename are still seen.
func NewReloader(gov *Governor, src Sources, logger zerolog.Logger) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	r := &Reloader{
		watcher:  watcher,
		gov:      gov,
		src:      src,
		targets:  make(map[string]bool),
		dirs:     make(map[string]bool),
		log:      logger.With().Str("component", "reload").Logger(),
		debounce: defaultDebounce,
	}

	watched := make(map[string]bool)
	for _, p := range []string{src.Constitution, src.Criteria} {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		dir := filepath.Dir(p)
		if info.IsDir() {
			dir = p
			r.dirs[p] = true
		} else {
			r.targets[p] = true
		}
		if watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
		}
		watched[dir] = true
	}
	return r, nil
}

// Run watches for changes. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()
	defer r.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if !r.relevant(event) {
				continue
			}
			r.schedule()

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (r *Reloader) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	name := filepath.Clean(event.Name)
	return r.targets[name] || r.dirs[filepath.Dir(name)]
}

// schedule reloads once writes have been quiet for the debounce interval.
func (r *Reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		r.pending.Stop()
	}
	r.pending = time.AfterFunc(r.debounce, r.reload)
}

func (r *Reloader) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		r.pending.Stop()
	}
}

func (r *Reloader) reload() {
	snap, err := Load(r.src)
	if err != nil {
		r.log.Error().Err(err).Msg("hot-reload failed, keeping previous rules and criteria")
		return
	}
	r.gov.Swap(snap)
	r.log.Info().
		Str("constitution_hash", snap.ConstitutionHash).
		Int("rules", len(snap.Rules)).
		Int("criteria", len(snap.Criteria)).
		Msg("hot-reload: rules and criteria reloaded")
}
