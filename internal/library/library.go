// Package library maintains the catalog of session scripts on disk and
// keeps it current as script files change.
package library

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/quietroom/stillengine/internal/events"
	"github.com/quietroom/stillengine/internal/script"
)

// Entry summarizes one script in the catalog.
type Entry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Segments int    `json:"segments"`
	File     string `json:"file"`
}

// Catalog holds the parsed scripts from a directory. Files that fail to
// parse are skipped with a system.error event; one bad script never
// hides the rest of the library.
type Catalog struct {
	dir string

	mu      sync.RWMutex
	scripts map[string]*script.Script
	files   map[string]string // script ID -> file name

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a catalog for the given directory and performs the
// initial scan. A missing directory is not an error; the catalog is
// simply empty until files appear.
func New(dir string) *Catalog {
	c := &Catalog{
		dir:     dir,
		scripts: make(map[string]*script.Script),
		files:   make(map[string]string),
	}
	c.Reload()
	return c
}

// Reload rescans the directory, replacing the catalog contents.
func (c *Catalog) Reload() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			events.Emit("error", "system.error", "script directory unreadable", map[string]interface{}{
				"dir":   c.dir,
				"error": err.Error(),
			})
		}
		return
	}

	scripts := make(map[string]*script.Script)
	files := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		s, err := script.Load(filepath.Join(c.dir, name))
		if err != nil {
			events.Emit("error", "system.error", "invalid script skipped", map[string]interface{}{
				"file":  name,
				"error": err.Error(),
			})
			continue
		}
		scripts[s.ID] = s
		files[s.ID] = name
	}

	c.mu.Lock()
	c.scripts = scripts
	c.files = files
	c.mu.Unlock()
}

// Get returns the script with the given ID, or nil if not in the catalog.
func (c *Catalog) Get(id string) *script.Script {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scripts[id]
}

// List returns catalog entries sorted by script ID.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Entry, 0, len(c.scripts))
	for id, s := range c.scripts {
		result = append(result, Entry{
			ID:       id,
			Name:     s.Name,
			Segments: len(s.Segments),
			File:     c.files[id],
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len returns the number of scripts in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scripts)
}

// Watch starts watching the directory for script changes. Any create,
// write, remove, or rename triggers a full rescan and a library.changed
// event. Returns an error if the watcher cannot be established.
func (c *Catalog) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return err
	}

	c.watcher = watcher
	c.done = make(chan struct{})
	c.wg.Add(1)
	go c.watchLoop()
	return nil
}

// Close stops the watcher, if one was started.
func (c *Catalog) Close() {
	if c.watcher == nil {
		return
	}
	close(c.done)
	c.watcher.Close()
	c.wg.Wait()
	c.watcher = nil
}

func (c *Catalog) watchLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			c.Reload()
			events.Emit("info", "library.changed", "", map[string]interface{}{
				"file":    filepath.Base(ev.Name),
				"scripts": c.Len(),
			})
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			events.Emit("warning", "system.error", "script watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
