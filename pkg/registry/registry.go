// Package registry loads runbook definitions from a directory tree and keeps
// them as an immutable in-memory snapshot. Each immediate subdirectory of the
// root holding a runbook.toml manifest is one candidate definition; an
// optional runbook.md document supplies the step sequence. Reload is an
// explicit re-scan that swaps the whole snapshot, never an in-place mutation.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/runbookd/runbookd/pkg/models"
)

// ManifestFile is the mandatory definition document inside each directory.
const ManifestFile = "runbook.toml"

// StepsFile is the optional step document inside each directory.
const StepsFile = "runbook.md"

// ErrDefinitionNotFound indicates no loaded definition has the given name.
var ErrDefinitionNotFound = errors.New("definition not found")

// Registry holds the loaded definition snapshot.
type Registry struct {
	root        string
	defaultMode models.ExecutionMode
	logger      *slog.Logger

	mu   sync.RWMutex
	defs []*models.Definition
}

// NewRegistry creates a registry rooted at dir and performs the initial scan.
// Definitions that fail to parse are logged and skipped; they never prevent
// other definitions from loading.
func NewRegistry(root string, defaultMode models.ExecutionMode, logger *slog.Logger) *Registry {
	if defaultMode == "" {
		defaultMode = models.ExecutionModeSupervised
	}

	r := &Registry{
		root:        root,
		defaultMode: defaultMode,
		logger:      logger.With("module", "registry"),
	}
	r.Reload()

	return r
}

// Reload re-scans the root directory and replaces the snapshot wholesale.
func (r *Registry) Reload() {
	defs := r.scan()

	r.mu.Lock()
	r.defs = defs
	r.mu.Unlock()

	r.logger.Info("Loaded runbook definitions", "count", len(defs), "root", r.root)
}

// List returns the current snapshot, sorted by name. Callers must treat the
// returned definitions as read-only.
func (r *Registry) List() []*models.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Definition, len(r.defs))
	copy(out, r.defs)

	return out
}

// Get returns the definition with the given name or ErrDefinitionNotFound.
func (r *Registry) Get(name string) (*models.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, def := range r.defs {
		if def.Name == name {
			return def, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, name)
}

func (r *Registry) scan() []*models.Definition {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		r.logger.Warn("Cannot read definitions directory", "root", r.root, "error", err)

		return nil
	}

	var defs []*models.Definition

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(r.root, entry.Name())
		manifestPath := filepath.Join(dir, ManifestFile)

		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}

		def, err := loadDefinition(dir, r.defaultMode)
		if err != nil {
			r.logger.Warn("Failed to load definition", "dir", dir, "error", err)

			continue
		}

		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return defs
}

func loadDefinition(dir string, defaultMode models.ExecutionMode) (*models.Definition, error) {
	manifest, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	def, err := parseManifest(manifest, defaultMode)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}

	if steps, err := os.ReadFile(filepath.Join(dir, StepsFile)); err == nil {
		def.Steps = ParseSteps(string(steps))
	}

	def.Location = dir
	def.CreatedAt = time.Now().UTC()

	return def, nil
}
