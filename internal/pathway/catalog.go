// Package pathway loads investigation pathway definitions and executes
// them level-by-level for individual evidence items. A pathway is a typed
// script of up to four levels; between levels, branch conditions over the
// previous level's signals decide whether to continue, skip, or terminate.
package pathway

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"inquest/internal/logging"
	"inquest/internal/types"
)

// Catalog is a read-through cache of pathway definitions. Definitions are
// immutable process-wide state: the first request for an id loads
// <dir>/<id>.json, every later request hits the cache.
type Catalog struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*types.Pathway
}

// NewCatalog creates a catalog over the given pathway definitions directory.
func NewCatalog(dir string) *Catalog {
	return &Catalog{
		dir:   dir,
		cache: make(map[string]*types.Pathway),
	}
}

// Get returns the pathway with the given id, loading it on first use.
func (c *Catalog) Get(id string) (*types.Pathway, error) {
	c.mu.RLock()
	if p, ok := c.cache[id]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.cache[id]; ok {
		return p, nil
	}

	path := filepath.Join(c.dir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load pathway %s: %w", id, err)
	}

	var p types.Pathway
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pathway %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}

	logging.Pathway("Loaded pathway %s (%d levels)", p.ID, len(p.Levels))
	c.cache[id] = &p
	return &p, nil
}

// PathwayForType resolves an evidence type to its pathway id, or "" when
// the type is outside the taxonomy.
func (c *Catalog) PathwayForType(t types.EvidenceType) string {
	return t.PathwayID()
}

// List returns the ids of every pathway definition present on disk,
// loaded or not.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read pathways directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-len(".json")])
		}
	}
	return ids, nil
}
