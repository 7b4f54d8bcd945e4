// Package project maintains the cache mapping each open rust-script file to
// the throwaway Cargo package rust-script materializes for it, mirroring
// the original rscls's src/script.rs Scripts type. Each entry tracks a
// needs-refresh flag so overlapping didOpen/didSave events on the same
// script coalesce into a single in-flight rust-script invocation rather
// than piling up redundant subprocess spawns.
package project

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/walteh/rscls/pkg/bus"
	"github.com/walteh/rscls/pkg/scriptpkg"
)

// entry is one tracked script. mu guards every field below it.
type entry struct {
	mu              sync.Mutex
	scriptPath      string
	packageDir      string
	sourceInPackage string
	needsRefresh    bool
	refreshing      bool
}

// Cache owns the script-to-project mapping the router consults when
// building linkedProjects and when translating URIs between the script's
// own path and its synthesized package path.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // scriptPath, in first-registration order

	fs     afero.Fs
	runner scriptpkg.Runner
	bus    *bus.Bus
	logger zerolog.Logger

	sysrootOnce sync.Once
	sysroot     string
	sysrootSrc  string
}

// New builds an empty cache. fs is stored on the cache, but no Cache
// method reads or writes through it: paths are used as given and sysroot
// detection runs rustc directly. runner invokes the external rust-script
// binary; events receives a MarkNeedReload signal on every Register and
// after every successful background refresh.
func New(fs afero.Fs, runner scriptpkg.Runner, events *bus.Bus, logger zerolog.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		fs:      fs,
		runner:  runner,
		bus:     events,
		logger:  logger,
	}
}

// detectSysroot shells out to `rustc --print sysroot` once per process
// lifetime (the sysroot can't change while rscls runs) and tolerates
// failure by falling back to an empty sysroot, mirroring SUPPLEMENTED
// FEATURES' sysroot-detection fallback.
func (c *Cache) detectSysroot(ctx context.Context) (string, string) {
	c.sysrootOnce.Do(func() {
		out, err := exec.CommandContext(ctx, "rustc", "--print", "sysroot").Output()
		if err != nil {
			c.logger.Debug().Err(err).Msg("rustc --print sysroot failed, continuing without a sysroot")
			return
		}
		c.sysroot = strings.TrimSpace(string(out))
		if c.sysroot != "" {
			c.sysrootSrc = filepath.Join(c.sysroot, "lib", "rustlib", "src", "rust", "library")
		}
	})
	return c.sysroot, c.sysrootSrc
}

// Register starts tracking scriptPath: it publishes a reload signal
// immediately, since the fallback descriptor rust-analyzer would see right
// now (before rust-script has even run) already differs from whatever
// linkedProjects it was previously handed, and independently kicks off a
// background refresh that materializes the script's real Cargo package
// directory. These two steps are deliberately independent — if the
// background rust-script invocation later fails, the router must still have
// learned about the registration.
func (c *Cache) Register(ctx context.Context, scriptPath string) {
	c.mu.Lock()
	e, exists := c.entries[scriptPath]
	if !exists {
		e = &entry{scriptPath: scriptPath}
		c.entries[scriptPath] = e
		c.order = append(c.order, scriptPath)
	}
	c.mu.Unlock()

	c.bus.MarkNeedReload()
	c.queueRefresh(ctx, e)
}

// DeregisterIfRegistered stops tracking scriptPath, if it was tracked.
func (c *Cache) DeregisterIfRegistered(scriptPath string) {
	c.mu.Lock()
	if _, ok := c.entries[scriptPath]; ok {
		delete(c.entries, scriptPath)
		for i, p := range c.order {
			if p == scriptPath {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
}

// QueueRefreshAll re-queues a background refresh for every tracked script,
// mirroring the original's queue_refresh_all: the handler for
// rust-analyzer/reloadWorkspace calls this so an editor-triggered reload
// also re-materializes every open script's Cargo package, not just whichever
// one was last saved.
func (c *Cache) QueueRefreshAll(ctx context.Context) {
	c.mu.RLock()
	entries := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	for _, e := range entries {
		c.queueRefresh(ctx, e)
	}
}

// Saved re-queues a refresh for scriptPath after an editor save, matching
// the original's `scripts.saved` call on textDocument/didSave. A no-op if
// the script isn't registered.
func (c *Cache) Saved(ctx context.Context, scriptPath string) {
	c.mu.RLock()
	e, ok := c.entries[scriptPath]
	c.mu.RUnlock()
	if !ok {
		return
	}
	c.queueRefresh(ctx, e)
}

// queueRefresh marks e dirty and ensures exactly one refresh goroutine is
// in flight for it: if a refresh is already running, it is told to run
// again once it finishes instead of a second goroutine being spawned.
func (c *Cache) queueRefresh(ctx context.Context, e *entry) {
	e.mu.Lock()
	e.needsRefresh = true
	if e.refreshing {
		e.mu.Unlock()
		return
	}
	e.refreshing = true
	e.mu.Unlock()

	go c.runRefreshLoop(ctx, e)
}

func (c *Cache) runRefreshLoop(ctx context.Context, e *entry) {
	for {
		e.mu.Lock()
		if !e.needsRefresh {
			e.refreshing = false
			e.mu.Unlock()
			return
		}
		e.needsRefresh = false
		scriptPath := e.scriptPath
		e.mu.Unlock()

		dir, err := c.runner.PackageDir(ctx, scriptPath)
		if err != nil {
			c.logger.Warn().Err(err).Str("script", scriptPath).Msg("rust-script --package failed")
			continue
		}

		e.mu.Lock()
		e.packageDir = dir
		e.sourceInPackage = filepath.Join(dir, crateNameForScript(scriptPath)+".rs")
		e.mu.Unlock()

		c.bus.MarkNeedReload()
	}
}

// ProjectPathToScriptPath reverse-maps a path inside a synthesized package
// back to the script that owns it, used to rewrite diagnostics URIs back
// onto the file the editor actually has open.
func (c *Cache) ProjectPathToScriptPath(projectPath string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for scriptPath, e := range c.entries {
		e.mu.Lock()
		match := e.sourceInPackage != "" && e.sourceInPackage == projectPath
		e.mu.Unlock()
		if match {
			return scriptPath, true
		}
	}
	return "", false
}

// ScriptPathToProjectPath is the forward direction, translating a script's
// own path to wherever rust-script materialized its source inside the
// package directory.
func (c *Cache) ScriptPathToProjectPath(scriptPath string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[scriptPath]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sourceInPackage == "" {
		return "", false
	}
	return e.sourceInPackage, true
}

// Projects builds the linkedProjects array rscls injects into
// rust-analyzer's configuration: one descriptor per tracked script, or a
// single dummy empty descriptor when nothing is registered yet so
// rust-analyzer doesn't fall back to discovering a Cargo workspace on its
// own over the launch directory.
func (c *Cache) Projects(ctx context.Context) []json.RawMessage {
	c.mu.RLock()
	entries := make([]*entry, 0, len(c.order))
	for _, scriptPath := range c.order {
		if e, ok := c.entries[scriptPath]; ok {
			entries = append(entries, e)
		}
	}
	c.mu.RUnlock()

	if len(entries) == 0 {
		return []json.RawMessage{mustMarshal(EmptyDescriptor())}
	}

	sysroot, sysrootSrc := c.detectSysroot(ctx)

	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		rootModule := e.sourceInPackage
		if rootModule == "" {
			rootModule = e.scriptPath
		}
		scriptPath := e.scriptPath
		e.mu.Unlock()

		desc := FallbackDescriptor(sysroot, sysrootSrc, rootModule, crateNameForScript(scriptPath))
		out = append(out, mustMarshal(desc))
	}
	return out
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Descriptor/Dep/Crate only ever hold primitives and slices thereof;
		// a marshal failure here means a programming error, not bad input.
		panic(err)
	}
	return b
}
