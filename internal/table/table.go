// Package table provides keyed materialized views maintained by stream
// processors. Every access is reported to the attached sensor.
package table

import (
	"sync"

	"github.com/flowmetric-io/flowmetric/internal/sensor"
	"github.com/flowmetric-io/flowmetric/internal/types"
)

// MemTable is an in-memory keyed table. It is safe for concurrent use.
type MemTable struct {
	name   string
	sensor sensor.Sensor

	mu   sync.RWMutex
	data map[string][]byte
}

var _ types.Table = (*MemTable)(nil)

// New creates an empty table with the given name. A nil sensor disables
// instrumentation.
func New(name string, s sensor.Sensor) *MemTable {
	if s == nil {
		s = sensor.Nop{}
	}
	return &MemTable{
		name:   name,
		sensor: s,
		data:   make(map[string][]byte),
	}
}

// Name returns the table name.
func (t *MemTable) Name() string { return t.name }

// Get returns a copy of the value stored under key.
func (t *MemTable) Get(key string) ([]byte, bool) {
	t.mu.RLock()
	value, ok := t.data[key]
	t.mu.RUnlock()

	t.sensor.OnTableGet(t, key)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true
}

// Set stores value under key, replacing any previous value.
func (t *MemTable) Set(key string, value []byte) {
	stored := make([]byte, len(value))
	copy(stored, value)

	t.mu.Lock()
	t.data[key] = stored
	t.mu.Unlock()

	t.sensor.OnTableSet(t, key, value)
}

// Del removes key from the table.
func (t *MemTable) Del(key string) {
	t.mu.Lock()
	delete(t.data, key)
	t.mu.Unlock()

	t.sensor.OnTableDel(t, key)
}

// Len returns the number of keys in the table.
func (t *MemTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}
