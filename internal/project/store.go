// Package project manages the on-disk home of each research project: one
// directory per project holding status.json and every phase artifact
// (plan, manifests, level outputs, adjudications, graph). Only the
// pipeline mutates a project; all files have a single writer.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"inquest/internal/types"
)

const statusFile = "status.json"

// Store creates and tracks project directories under a single root.
type Store struct {
	root string
}

// NewStore returns a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create projects directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// Dir returns the directory of a project.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// Create registers a new pending project for a topic. The topic is
// immutable from here on.
func (s *Store) Create(topic string) (*types.Project, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic required")
	}
	now := time.Now().UTC()
	p := &types.Project{
		ID:      uuid.NewString(),
		Topic:   topic,
		Created: now,
		Updated: now,
		Status:  types.StatusPending,
	}
	if err := os.MkdirAll(s.Dir(p.ID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}
	if err := s.write(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads a project's status record.
func (s *Store) Load(id string) (*types.Project, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(id), statusFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read project %s: %w", id, err)
	}
	var p types.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", id, err)
	}
	return &p, nil
}

// UpdateStatus advances a project through its lifecycle. Status moves
// monotonically: a transition to an earlier phase is rejected. The error
// status is always reachable from any non-terminal state.
func (s *Store) UpdateStatus(id string, status types.ProjectStatus, detail string) (*types.Project, error) {
	p, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	if status.Order() < 0 {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	if p.Status.Terminal() {
		return nil, fmt.Errorf("project %s is terminal (%s); cannot move to %s", id, p.Status, status)
	}
	if status != types.StatusError && status.Order() < p.Status.Order() {
		return nil, fmt.Errorf("status may not regress from %s to %s", p.Status, status)
	}
	p.Status = status
	p.StatusDetail = detail
	p.Updated = time.Now().UTC()
	if err := s.write(p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns every project, newest first.
func (s *Store) List() ([]*types.Project, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	var projects []*types.Project
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := s.Load(e.Name())
		if err != nil {
			continue // a half-written directory is not a project
		}
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Created.After(projects[j].Created)
	})
	return projects, nil
}

// SaveArtifact writes a JSON artifact into the project directory.
func (s *Store) SaveArtifact(id, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(s.Dir(id), name), data, 0644)
}

// LoadArtifact reads a JSON artifact from the project directory.
func (s *Store) LoadArtifact(id, name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.Dir(id), name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (s *Store) write(p *types.Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	return os.WriteFile(filepath.Join(s.Dir(p.ID), statusFile), data, 0644)
}
