package numerator

import (
	"context"
	"sync"
	"time"
)

// In-memory collaborators. Use in unit tests and local runs without a database.

// MemorySequenceStore is a mutex-guarded per-office counter.
type MemorySequenceStore struct {
	mu     sync.Mutex
	values map[string]int64
	calls  map[string]int

	// Err, if set, is returned by NextValue.
	Err error
}

// NewMemorySequenceStore creates an empty store; every office starts at 1.
func NewMemorySequenceStore() *MemorySequenceStore {
	return &MemorySequenceStore{
		values: make(map[string]int64),
		calls:  make(map[string]int),
	}
}

// NextValue implements SequenceStore.
func (m *MemorySequenceStore) NextValue(_ context.Context, office string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[office]++
	if m.Err != nil {
		return 0, m.Err
	}
	m.values[office]++
	return m.values[office], nil
}

// Set makes the next value for office equal to next.
func (m *MemorySequenceStore) Set(office string, next int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[office] = next - 1
}

// Calls returns how many times NextValue was invoked for office.
func (m *MemorySequenceStore) Calls(office string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[office]
}

// TotalCalls returns NextValue invocations across all offices.
func (m *MemorySequenceStore) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// MemoryOracle is a set of numbers owned by live records.
type MemoryOracle struct {
	mu      sync.RWMutex
	numbers map[string]struct{}

	// ExistsFunc, if set, overrides the set lookup.
	ExistsFunc func(number string) (bool, error)
}

// NewMemoryOracle creates an oracle knowing the given numbers.
func NewMemoryOracle(numbers ...string) *MemoryOracle {
	o := &MemoryOracle{numbers: make(map[string]struct{})}
	for _, n := range numbers {
		o.numbers[n] = struct{}{}
	}
	return o
}

// Exists implements UniquenessOracle.
func (o *MemoryOracle) Exists(_ context.Context, number string) (bool, error) {
	if o.ExistsFunc != nil {
		return o.ExistsFunc(number)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.numbers[number]
	return ok, nil
}

// Insert records number as owned. It reports false if it already was,
// mimicking a unique constraint.
func (o *MemoryOracle) Insert(number string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.numbers[number]; ok {
		return false
	}
	o.numbers[number] = struct{}{}
	return true
}

// Delete forgets number.
func (o *MemoryOracle) Delete(number string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.numbers, number)
}

type memoryEntry struct {
	number     string
	releasedAt time.Time
}

// MemoryRecycleStore keeps released numbers per office in release order.
type MemoryRecycleStore struct {
	mu      sync.Mutex
	entries map[string][]memoryEntry
	index   map[string]struct{}
	clock   Clock

	// PopErr, if set, is returned by Pop.
	PopErr error
	pops   int
}

// NewMemoryRecycleStore creates an empty store. A nil clock means time.Now.
func NewMemoryRecycleStore(clock Clock) *MemoryRecycleStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryRecycleStore{
		entries: make(map[string][]memoryEntry),
		index:   make(map[string]struct{}),
		clock:   clock,
	}
}

// Add implements RecycleStore.
func (m *MemoryRecycleStore) Add(_ context.Context, office, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[number]; ok {
		return nil
	}
	m.index[number] = struct{}{}
	m.entries[office] = append(m.entries[office], memoryEntry{number: number, releasedAt: m.clock()})
	return nil
}

// Pop implements RecycleStore; the oldest release is returned first.
func (m *MemoryRecycleStore) Pop(_ context.Context, office string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pops++
	if m.PopErr != nil {
		return "", false, m.PopErr
	}
	list := m.entries[office]
	if len(list) == 0 {
		return "", false, nil
	}
	e := list[0]
	m.entries[office] = list[1:]
	delete(m.index, e.number)
	return e.number, true, nil
}

// Purge implements RecycleStore.
func (m *MemoryRecycleStore) Purge(_ context.Context, office string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.entries[office]
	for _, e := range list {
		delete(m.index, e.number)
	}
	delete(m.entries, office)
	return int64(len(list)), nil
}

// PurgeOlderThan implements RecycleStore.
func (m *MemoryRecycleStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for office, list := range m.entries {
		kept := list[:0]
		for _, e := range list {
			if e.releasedAt.Before(cutoff) {
				delete(m.index, e.number)
				removed++
				continue
			}
			kept = append(kept, e)
		}
		m.entries[office] = kept
	}
	return removed, nil
}

// Count implements RecycleStore.
func (m *MemoryRecycleStore) Count(_ context.Context, office string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries[office])), nil
}

// List implements RecycleStore.
func (m *MemoryRecycleStore) List(_ context.Context, office string, limit int) ([]RecycledNumber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.entries[office]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]RecycledNumber, 0, len(list))
	for _, e := range list {
		out = append(out, RecycledNumber{Number: e.number, Office: office, ReleasedAt: e.releasedAt})
	}
	return out, nil
}

// Pops returns how many times Pop was invoked.
func (m *MemoryRecycleStore) Pops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pops
}

// Ensure compile-time interface compliance.
var (
	_ SequenceStore    = (*MemorySequenceStore)(nil)
	_ UniquenessOracle = (*MemoryOracle)(nil)
	_ RecycleStore     = (*MemoryRecycleStore)(nil)
)
