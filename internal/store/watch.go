package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events a single atomic write emits.
const DefaultDebounce = 200 * time.Millisecond

// Watch calls fn with the key of every document under dir (a key prefix
// without trailing slash, e.g. "boards") whenever it is replaced. Writes made
// through this store are reported too. Calls are debounced per key and
// serialized. Watch blocks until ctx is done.
func (s *FileStore) Watch(ctx context.Context, dir string, debounce time.Duration, fn func(Key)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watchDir := filepath.Join(s.root, filepath.FromSlash(dir))
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		return fmt.Errorf("creating watch directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("watching %s: %w", watchDir, err)
	}

	var (
		mu      sync.Mutex
		timers  = make(map[Key]*time.Timer)
		fire    = make(chan Key, 16)
		pending sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			if t.Stop() {
				pending.Done()
			}
		}
		mu.Unlock()
		pending.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case k := <-fire:
			fn(k)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			base := filepath.Base(event.Name)
			if !strings.HasSuffix(base, docExt) {
				continue
			}
			key := Key(dir + "/" + strings.TrimSuffix(base, docExt))

			mu.Lock()
			if t, ok := timers[key]; ok && t.Stop() {
				pending.Done()
			}
			pending.Add(1)
			timers[key] = time.AfterFunc(debounce, func() {
				defer pending.Done()
				select {
				case fire <- key:
				case <-ctx.Done():
				}
			})
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", "dir", watchDir, "error", err)
		}
	}
}
