package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

// MemorySource serves plan definitions from an in-memory map.
// Safe for concurrent use.
type MemorySource struct {
	mu    sync.RWMutex
	plans map[domain.PlanKey][]byte
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{plans: make(map[domain.PlanKey][]byte)}
}

// Put registers a raw plan definition under (planID, version).
func (s *MemorySource) Put(planID, version string, definition []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[domain.PlanKey{ID: planID, Version: version}] = append([]byte(nil), definition...)
}

// GetPlan implements ports.PlanSource.
func (s *MemorySource) GetPlan(planID, version string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.plans[domain.PlanKey{ID: planID, Version: version}]
	if !ok {
		return nil, fmt.Errorf("%s@%s: %w", planID, version, domain.ErrPlanNotFound)
	}
	return append([]byte(nil), raw...), nil
}

// ListPlans implements ports.PlanSource.
func (s *MemorySource) ListPlans() ([]ports.PlanRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]ports.PlanRef, 0, len(s.plans))
	for key := range s.plans {
		refs = append(refs, ports.PlanRef{ID: key.ID, Version: key.Version})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ID != refs[j].ID {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].Version < refs[j].Version
	})
	return refs, nil
}

// FSSource serves plan definitions from a directory of .yaml, .yml, or
// .json files. Files are matched by the id and version they declare,
// not by filename, and the directory is rescanned on every call so
// edits show up without restarting (pair with Registry invalidation).
type FSSource struct {
	dir string
}

// NewFSSource creates a source over a directory.
func NewFSSource(dir string) *FSSource {
	return &FSSource{dir: dir}
}

// planHeader is the minimal parse used to identify a file.
type planHeader struct {
	ID      string `yaml:"id"`
	Version string `yaml:"version"`
}

func (s *FSSource) scan() (map[domain.PlanKey]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading plan directory %s: %w", s.dir, err)
	}

	found := make(map[domain.PlanKey]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading plan file %s: %w", path, err)
		}
		var header planHeader
		if err := yaml.Unmarshal(raw, &header); err != nil {
			// Unparseable files are skipped here; loading them directly
			// reports the malformed finding.
			continue
		}
		if header.ID == "" {
			continue
		}
		found[domain.PlanKey{ID: header.ID, Version: header.Version}] = path
	}
	return found, nil
}

// GetPlan implements ports.PlanSource.
func (s *FSSource) GetPlan(planID, version string) ([]byte, error) {
	found, err := s.scan()
	if err != nil {
		return nil, err
	}
	path, ok := found[domain.PlanKey{ID: planID, Version: version}]
	if !ok {
		return nil, fmt.Errorf("%s@%s: %w", planID, version, domain.ErrPlanNotFound)
	}
	return os.ReadFile(path)
}

// ListPlans implements ports.PlanSource.
func (s *FSSource) ListPlans() ([]ports.PlanRef, error) {
	found, err := s.scan()
	if err != nil {
		return nil, err
	}
	refs := make([]ports.PlanRef, 0, len(found))
	for key := range found {
		refs = append(refs, ports.PlanRef{ID: key.ID, Version: key.Version})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ID != refs[j].ID {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].Version < refs[j].Version
	})
	return refs, nil
}
