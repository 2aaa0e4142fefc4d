package placement

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/mergebot/core/compositor"
)

// MemoryStore keeps placements in process. It is used when no database is
// configured; everything is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	current map[int64]compositor.Offsets
	presets map[int64]map[string]Preset
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		current: map[int64]compositor.Offsets{},
		presets: map[int64]map[string]Preset{},
		now:     time.Now,
	}
}

func (m *MemoryStore) Offsets(_ context.Context, chatID int64) (compositor.Offsets, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current[chatID], nil
}

func (m *MemoryStore) SetOffsets(_ context.Context, chatID int64, off compositor.Offsets) error {
	if err := off.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if off.IsZero() {
		delete(m.current, chatID)
	} else {
		m.current[chatID] = off
	}
	return nil
}

func (m *MemoryStore) SavePreset(_ context.Context, chatID int64, name string, off compositor.Offsets) (bool, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return false, err
	}
	if err := off.Validate(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byName := m.presets[chatID]
	if byName == nil {
		byName = map[string]Preset{}
		m.presets[chatID] = byName
	}
	_, exists := byName[name]
	if !exists && len(byName) >= MaxPresets {
		return false, ErrTooManyPresets
	}
	byName[name] = Preset{Name: name, Offsets: off, UpdatedAt: m.now().UTC()}
	return !exists, nil
}

func (m *MemoryStore) Preset(_ context.Context, chatID int64, name string) (Preset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.presets[chatID][strings.TrimSpace(name)]
	if !ok {
		return Preset{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) Presets(_ context.Context, chatID int64) ([]Preset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byName := m.presets[chatID]
	out := make([]Preset, 0, len(byName))
	for _, name := range slices.Sorted(maps.Keys(byName)) {
		out = append(out, byName[name])
	}
	return out, nil
}

func (m *MemoryStore) DeletePreset(_ context.Context, chatID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = strings.TrimSpace(name)
	if _, ok := m.presets[chatID][name]; !ok {
		return ErrNotFound
	}
	delete(m.presets[chatID], name)
	if len(m.presets[chatID]) == 0 {
		delete(m.presets, chatID)
	}
	return nil
}
