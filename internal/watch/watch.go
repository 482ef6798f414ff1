// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: watch  -  rebuild when sketch files change on disk
//
//  Events are coalesced: a burst of saves (editors write, rename, chmod)
//  produces one batch once the folder has been quiet for Delay.
// ─────────────────────────────────────────────────────────────────────────────

package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/fsnotify/fsnotify"

	"github.com/tsuki/sketchc/internal/sketch"
)

// DefaultDelay is the quiet period used when Options.Delay is zero.
const DefaultDelay = 300 * time.Millisecond

// Options tunes Run.
type Options struct {
	Delay time.Duration
	// Match selects the paths that trigger a rebuild. nil = IsSketchFile.
	Match func(path string) bool
}

// IsSketchFile reports whether path is a visible sketch source or the
// sketch manifest.
func IsSketchFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if base == "sketch.toml" {
		return true
	}
	_, ok := sketch.FlavorOf(base)
	return ok
}

// Run watches dir until ctx is done, calling onChange with the sorted list
// of changed paths after each quiet period. onChange runs on the calling
// goroutine, one batch at a time.
func Run(ctx context.Context, dir string, o Options, onChange func(ctx context.Context, changed []string)) error {
	if o.Delay <= 0 {
		o.Delay = DefaultDelay
	}
	if o.Match == nil {
		o.Match = IsSketchFile
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	batches := make(chan []string)
	errc := make(chan error, 1)
	fail := func(err error) {
		select {
		case errc <- err:
		default:
		}
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(batches)
		err := collect(ctx, w, o, batches)
		if err != nil {
			fail(err)
		}
		return err
	}, lifecycle.WithErrorHandler(func(err error) {
		slog.Error("watcher stopped", "dir", dir, "err", err)
		fail(err)
	}))

	for batch := range batches {
		slog.Debug("sketch changed", "files", batch)
		onChange(ctx, batch)
	}

	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

func collect(ctx context.Context, w *fsnotify.Watcher, o Options, out chan<- []string) error {
	pending := map[string]bool{}
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			if ev.Op == fsnotify.Chmod || !o.Match(ev.Name) {
				continue
			}
			pending[ev.Name] = true
			if timer == nil {
				timer = time.NewTimer(o.Delay)
			} else {
				timer.Reset(o.Delay)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			slog.Warn("watch error", "err", err)

		case <-fire:
			fire = nil
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			pending = map[string]bool{}
			select {
			case out <- batch:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
