package registry

import (
	"sort"
	"sync"

	"github.com/starford/nbhugo/internal/models"
)

// Memory is a process-local registry. It is rebuilt by Reconstruct after a
// restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]models.Artifact
}

var _ Registry = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]models.Artifact)}
}

func (m *Memory) Record(a models.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.entries[a.Notebook]
	for i := range list {
		if list[i].Markdown == a.Markdown {
			list[i] = a
			return nil
		}
	}
	m.entries[a.Notebook] = append(list, a)
	return nil
}

func (m *Memory) Lookup(notebook string) ([]models.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Artifact(nil), m.entries[notebook]...), nil
}

func (m *Memory) Forget(notebook string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, notebook)
	return nil
}

func (m *Memory) All() ([]models.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []models.Artifact
	for _, k := range keys {
		out = append(out, m.entries[k]...)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
