package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EnvHome is the environment variable consulted when no programmatic
// override is set.
const EnvHome = "MEASUREIT_HOME"

// Home resolves the root directory MeasureIt-Go keeps its databases, logs,
// and config under, and lazily creates its subdirectories. Resolution
// follows spec.md §6: programmatic override, then MEASUREIT_HOME, then the
// OS user-data directory — generalized from the teacher's
// internal/config/tuning.go precedence-with-defaults pattern, applied here
// to a directory layout instead of a JSON value set.
type Home struct {
	root string

	mu      sync.Mutex
	created map[string]bool
}

var (
	defaultHomeMu sync.Mutex
	defaultHome   *Home
	overrideRoot  string
)

// SetOverride installs a programmatic override for Default(), taking
// precedence over MEASUREIT_HOME. Passing "" clears the override.
func SetOverride(root string) {
	defaultHomeMu.Lock()
	defer defaultHomeMu.Unlock()
	overrideRoot = root
	defaultHome = nil
}

// Default returns the process-wide Home, resolving it on first use.
func Default() (*Home, error) {
	defaultHomeMu.Lock()
	defer defaultHomeMu.Unlock()
	if defaultHome != nil {
		return defaultHome, nil
	}
	h, err := resolve(overrideRoot)
	if err != nil {
		return nil, err
	}
	defaultHome = h
	return h, nil
}

// New resolves a Home directly from an explicit override, bypassing the
// process-wide singleton — tests use this to avoid shared state.
func New(override string) (*Home, error) {
	return resolve(override)
}

func resolve(override string) (*Home, error) {
	root := override
	if root == "" {
		root = os.Getenv(EnvHome)
	}
	if root == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolve measureit home: %w", err)
		}
		root = filepath.Join(dir, ".measureit")
	}
	return &Home{root: root, created: make(map[string]bool)}, nil
}

// Root returns the resolved home directory, without creating it.
func (h *Home) Root() string { return h.root }

// Databases returns the databases/ subdirectory, creating it on first
// access.
func (h *Home) Databases() (string, error) { return h.subdir("databases") }

// Logs returns the logs/ subdirectory, creating it on first access.
func (h *Home) Logs() (string, error) { return h.subdir("logs") }

// Cfg returns the cfg/ subdirectory, creating it on first access.
func (h *Home) Cfg() (string, error) { return h.subdir("cfg") }

func (h *Home) subdir(name string) (string, error) {
	path := filepath.Join(h.root, name)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.created[name] {
		return path, nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("config: create %s: %w", path, err)
	}
	h.created[name] = true
	return path, nil
}
