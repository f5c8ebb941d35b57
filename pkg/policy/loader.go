package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay debounces bursts of file events into one reload.
const reloadDelay = 300 * time.Millisecond

// Loader reads premise policies from .rego and .json files.
//
// A .rego file is named after its base name. Leading comment lines form the
// description; a comment of the form "# providers: a, b" limits the policy
// to the listed providers. A .json file holds a Policy document.
type Loader struct {
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedPolicy

	watcher *fsnotify.Watcher
}

type cachedPolicy struct {
	modified time.Time
	policy   Policy
}

// NewLoader creates a policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]cachedPolicy),
	}
}

// LoadFromPaths loads the policies of files and directories. Directories are
// walked recursively; unreadable files inside them are skipped.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var policies []Policy
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loaded, err := l.loadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		policies = append(policies, loaded...)
	}

	l.logger.Debug().
		Int("total", len(policies)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")

	return policies, nil
}

func (l *Loader) loadFromPath(path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		p, err := l.loadFromFile(path)
		if err != nil {
			return nil, err
		}
		return []Policy{p}, nil
	}

	var policies []Policy
	err = filepath.WalkDir(path, func(file string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isPolicyFile(file) {
			return nil
		}
		p, err := l.loadFromFile(file)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", file).Msg("Skipping policy file")
			return nil
		}
		policies = append(policies, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return policies, nil
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json":
		return true
	}
	return false
}

// loadFromFile returns the cached policy while the file is unchanged.
func (l *Loader) loadFromFile(path string) (Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to stat file: %w", err)
	}

	l.mu.Lock()
	cached, ok := l.cache[path]
	l.mu.Unlock()
	if ok && cached.modified.Equal(info.ModTime()) {
		return cached.policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read file: %w", err)
	}

	var p Policy
	switch filepath.Ext(path) {
	case ".rego":
		p = parseRego(path, string(data))
	case ".json":
		if p, err = parseJSON(path, data); err != nil {
			return Policy{}, err
		}
	default:
		return Policy{}, fmt.Errorf("unsupported file type: %s", path)
	}

	l.mu.Lock()
	l.cache[path] = cachedPolicy{modified: info.ModTime(), policy: p}
	l.mu.Unlock()

	l.logger.Debug().Str("path", path).Str("policy", p.Name).Msg("Policy loaded from file")
	return p, nil
}

func parseRego(path, content string) Policy {
	p := Policy{
		Name:    strings.TrimSuffix(filepath.Base(path), ".rego"),
		Rego:    content,
		Enabled: true,
		Source:  path,
	}

	var description []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(description) > 0 {
				break
			}
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if ids, ok := strings.CutPrefix(comment, "providers:"); ok {
			for _, id := range strings.Split(ids, ",") {
				if id = strings.TrimSpace(id); id != "" {
					p.Providers = append(p.Providers, id)
				}
			}
			continue
		}
		if comment != "" {
			description = append(description, comment)
		}
	}
	p.Description = strings.Join(description, " ")
	return p
}

// policyFile is the json form of a policy. Enabled defaults to true.
type policyFile struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Rego        string   `json:"rego"`
	Enabled     *bool    `json:"enabled"`
	Providers   []string `json:"providers"`
}

func parseJSON(path string, data []byte) (Policy, error) {
	var f policyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Policy{}, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if f.Rego == "" {
		return Policy{}, fmt.Errorf("policy %s has no rego module", path)
	}

	p := Policy{
		Name:        f.Name,
		Description: f.Description,
		Rego:        f.Rego,
		Enabled:     f.Enabled == nil || *f.Enabled,
		Providers:   f.Providers,
		Source:      path,
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return p, nil
}

// Watch reloads the paths whenever a policy file is written, created,
// removed or renamed, and passes the policies to reload. Watching stops
// when ctx is done or StopWatching is called.
func (l *Loader) Watch(ctx context.Context, paths []string, reload func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dirs := make(map[string]struct{})
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}
		if !info.IsDir() {
			// Editors replace files, so the parent directory is watched.
			dirs[filepath.Dir(path)] = struct{}{}
			continue
		}
		_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				dirs[p] = struct{}{}
			}
			return nil
		})
	}

	watched := make([]string, 0, len(dirs))
	for dir := range dirs {
		watched = append(watched, dir)
	}
	sort.Strings(watched)
	for _, dir := range watched {
		if err := watcher.Add(dir); err != nil {
			l.logger.Warn().Err(err).Str("path", dir).Msg("Failed to watch directory")
		}
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.processEvents(ctx, watcher, paths, reload)

	l.logger.Info().Int("paths", len(paths)).Msg("Watching policy paths")
	return nil
}

func (l *Loader) processEvents(ctx context.Context, watcher *fsnotify.Watcher, paths []string, reload func([]Policy) error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isPolicyFile(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			l.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Policy file changed")

			l.mu.Lock()
			delete(l.cache, event.Name)
			l.mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				if ctx.Err() != nil {
					return
				}
				if err := l.reload(ctx, paths, reload); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload policies")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (l *Loader) reload(ctx context.Context, paths []string, apply func([]Policy) error) error {
	policies, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to reload policies: %w", err)
	}
	if err := apply(policies); err != nil {
		return fmt.Errorf("failed to apply reloaded policies: %w", err)
	}
	l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")
	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}

// ClearCache drops all cached policies.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]cachedPolicy)
	l.mu.Unlock()
}
