// Package platforms ships the built-in recipes and resolves recipe names,
// letting files in a configured directory add recipes or replace built-ins.
package platforms

import (
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/recipe"
)

//go:embed recipes/*.yaml
var builtin embed.FS

// ErrUnknownRecipe is returned for names no source provides.
var ErrUnknownRecipe = fmt.Errorf("%w: unknown recipe", schemas.ErrValidation)

// Registry maps recipe names to parsed recipes.
type Registry struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	recipes map[string]*recipe.Recipe
	sources map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger.Named("platforms"),
		recipes: make(map[string]*recipe.Recipe),
		sources: make(map[string]string),
	}
}

// Load returns the built-in recipes overlaid with those found in dir. An
// empty dir loads only the built-ins.
func Load(dir string, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.loadBuiltin(); err != nil {
		return nil, err
	}
	if dir == "" {
		return r, nil
	}
	if _, err := r.LoadDir(dir); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadBuiltin() error {
	entries, err := builtin.ReadDir("recipes")
	if err != nil {
		return fmt.Errorf("reading built-in recipes: %w", err)
	}
	for _, e := range entries {
		name := path.Join("recipes", e.Name())
		data, err := builtin.ReadFile(name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		rc, err := recipe.Parse(data)
		if err != nil {
			return fmt.Errorf("built-in recipe %s: %w", e.Name(), err)
		}
		r.Register(rc, "builtin:"+e.Name())
	}
	return nil
}

// LoadDir registers every *.yaml and *.yml file in dir and returns how many
// were loaded. A file whose recipe name matches a registered one replaces it.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading recipe directory: %w", err)
	}

	loaded := 0
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		file := filepath.Join(dir, e.Name())
		rc, err := recipe.LoadFile(file)
		if err != nil {
			return loaded, err
		}
		if prev := r.Source(rc.Name); prev != "" {
			r.logger.Info("Recipe overridden", zap.String("recipe", rc.Name), zap.String("previous", prev), zap.String("file", file))
		}
		r.Register(rc, file)
		loaded++
	}
	r.logger.Debug("Loaded recipe directory", zap.String("dir", dir), zap.Int("count", loaded))
	return loaded, nil
}

// Register adds or replaces a recipe.
func (r *Registry) Register(rc *recipe.Recipe, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipes[rc.Name] = rc
	r.sources[rc.Name] = source
}

// Get returns the recipe called name.
func (r *Registry) Get(name string) (*recipe.Recipe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rc, ok := r.recipes[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownRecipe, name)
	}
	return rc, nil
}

// Source reports where a recipe came from, or "" when it is unknown.
func (r *Registry) Source(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// Names lists registered recipes in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.recipes))
	for name := range r.recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
