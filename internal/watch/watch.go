// Package watch re-runs refresh cycles on a fixed interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"storypoints/internal/repo"
)

// Cycle is one refresh. It must run to completion before returning.
type Cycle func(ctx context.Context) error

// Runner calls Cycle once immediately and then every Interval, or sooner
// when Trigger fires. Cycles run on the caller's goroutine, one at a time.
type Runner struct {
	Interval time.Duration
	Cycle    Cycle
	Trigger  <-chan struct{}
	Logger   *zerolog.Logger
}

// Run blocks until ctx is done. If the first cycle reports a missing board
// the runner returns that error without scheduling anything else; later
// cycle errors are logged and the loop keeps going.
func (r Runner) Run(ctx context.Context) error {
	if r.Cycle == nil {
		return errors.New("watch: cycle is required")
	}
	if r.Interval <= 0 {
		return fmt.Errorf("watch: interval must be positive, got %s", r.Interval)
	}
	log := r.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	if err := r.Cycle(ctx); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Msg("refresh cycle failed")
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case _, ok := <-r.Trigger:
			if !ok {
				// closed trigger: fall back to the ticker only
				r.Trigger = nil
				continue
			}
			log.Debug().Msg("refresh triggered")
		}
		if err := r.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("refresh cycle failed")
		}
	}
}

// FileTrigger sends on the returned channel whenever path is written or
// replaced. The watch is on the parent directory so editors that save by
// rename are seen. The channel is closed when ctx is done.
func FileTrigger(ctx context.Context, path string) (<-chan struct{}, func() error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, nil, err
	}
	out := make(chan struct{}, 1)
	loop := func() error {
		defer close(out)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case evt, ok := <-w.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(evt.Name) != abs {
					continue
				}
				if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
	}
	return out, loop, nil
}
