package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// Loader loads and optionally hot-reloads the scripts of one directory.
type Loader struct {
	dir string

	mu      sync.RWMutex
	scripts []*Script
}

// NewLoader creates a new script loader for the given directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Dir returns the watched directory.
func (l *Loader) Dir() string {
	return l.dir
}

// LoadAll parses every script file in the directory in parallel. Files
// named begin.* come first, the rest follow in name order.
func (l *Loader) LoadAll(ctx context.Context) ([]*Script, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read script dir %q: %w", l.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsScriptFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.SliceStable(names, func(i, j int) bool {
		bi, bj := isBegin(names[i]), isBegin(names[j])
		if bi != bj {
			return bi
		}
		return names[i] < names[j]
	})

	result := make([]*Script, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(l.dir, name)
			s, err := ParseFile(path)
			if err != nil {
				return fmt.Errorf("load %q: %w", path, err)
			}
			result[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.scripts = result
	l.mu.Unlock()

	return result, nil
}

func isBegin(name string) bool {
	return strings.TrimSuffix(name, filepath.Ext(name)) == "begin"
}

// Scripts returns the scripts from the last successful load.
func (l *Loader) Scripts() []*Script {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Script(nil), l.scripts...)
}

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 100 * time.Millisecond

// WatchAndReload watches the directory and reloads it after script writes,
// creates, removes and renames, passing the outcome to onLoad. Events that
// arrive while a reload is pending are folded into it.
// This blocks until the done channel is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}, onLoad func([]*Script, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !IsScriptFile(event.Name) {
				continue
			}
			if pending == nil && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
				pending = time.After(reloadDelay)
			}
		case <-pending:
			pending = nil
			scripts, err := l.LoadAll(context.Background())
			if onLoad != nil {
				onLoad(scripts, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
