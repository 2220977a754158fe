package assets

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/forwardplus/engine/core"
)

// ShaderWatcher raises a flag whenever a compiled shader below its directory
// is created, written or removed. The render loop polls Dirty and rebuilds
// the swapchain resources, which include every pipeline.
type ShaderWatcher struct {
	fsnotify *fsnotify.Watcher
	dirty    atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
}

func NewShaderWatcher(dir string) (*ShaderWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating shader watcher")
	}
	sw := &ShaderWatcher{fsnotify: w, done: make(chan struct{})}
	if err := sw.watchRecursive(dir); err != nil {
		w.Close()
		return nil, err
	}
	sw.wg.Add(1)
	go sw.start()
	return sw, nil
}

// Dirty reports whether a shader changed since the previous call.
func (sw *ShaderWatcher) Dirty() bool {
	return sw.dirty.Swap(false)
}

func (sw *ShaderWatcher) Close() error {
	if sw.closed.Swap(true) {
		return nil
	}
	close(sw.done)
	sw.wg.Wait()
	return sw.fsnotify.Close()
}

func (sw *ShaderWatcher) start() {
	defer sw.wg.Done()
	for {
		select {
		case e, ok := <-sw.fsnotify.Events:
			if !ok {
				return
			}
			sw.handle(e)
		case err, ok := <-sw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)
		case <-sw.done:
			return
		}
	}
}

func (sw *ShaderWatcher) handle(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := sw.watchRecursive(e.Name); err != nil {
				core.LogWarn("shader watcher: %s", err)
			}
			return
		}
	}
	if determineAssetType(e.Name) != ResourceTypeShader {
		return
	}
	if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		core.LogDebug("shader changed: %s", e.Name)
		sw.dirty.Store(true)
	}
}

// watchRecursive adds dir and every directory below it.
func (sw *ShaderWatcher) watchRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return sw.fsnotify.Add(path)
		}
		return nil
	})
}
