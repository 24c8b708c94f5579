package wrap

import (
	"github.com/kotadb/kotadb/pkg/metrics"
	"github.com/kotadb/kotadb/pkg/types"
)

// MeteredIndex records per-operation timings to Prometheus histograms,
// the Index-contract analog of the Storage wrappers.
type MeteredIndex struct {
	next      Index
	component string
}

func Metered(next Index, component string) *MeteredIndex {
	return &MeteredIndex{next: next, component: component}
}

func (m *MeteredIndex) Search(q types.Query) ([]types.ID, error) {
	timer := metrics.NewTimer()
	ids, err := m.next.Search(q)
	metrics.ObserveIndexOp(m.component, "search", timer.Duration(), err)
	return ids, err
}

func (m *MeteredIndex) Flush() error {
	timer := metrics.NewTimer()
	err := m.next.Flush()
	metrics.ObserveIndexOp(m.component, "flush", timer.Duration(), err)
	return err
}

// MeteredStorage is the Storage-contract equivalent, used by the Cache
// wrapper's neighbor in the stack to expose storage-level percentiles
// alongside hit/miss counters.
type MeteredStorage struct {
	next      Storage
	component string
}

func MeteredStore(next Storage, component string) *MeteredStorage {
	return &MeteredStorage{next: next, component: component}
}

func (m *MeteredStorage) Insert(doc *types.Document) error {
	timer := metrics.NewTimer()
	err := m.next.Insert(doc)
	metrics.ObserveStorageOp(m.component, "insert", timer.Duration(), err)
	return err
}

func (m *MeteredStorage) Get(id types.ID) (*types.Document, bool) {
	timer := metrics.NewTimer()
	doc, ok := m.next.Get(id)
	metrics.ObserveStorageOp(m.component, "get", timer.Duration(), nil)
	return doc, ok
}

func (m *MeteredStorage) Update(doc *types.Document) error {
	timer := metrics.NewTimer()
	err := m.next.Update(doc)
	metrics.ObserveStorageOp(m.component, "update", timer.Duration(), err)
	return err
}

func (m *MeteredStorage) Delete(id types.ID) (bool, error) {
	timer := metrics.NewTimer()
	removed, err := m.next.Delete(id)
	metrics.ObserveStorageOp(m.component, "delete", timer.Duration(), err)
	return removed, err
}

func (m *MeteredStorage) Flush() error {
	timer := metrics.NewTimer()
	err := m.next.Flush()
	metrics.ObserveStorageOp(m.component, "flush", timer.Duration(), err)
	return err
}
