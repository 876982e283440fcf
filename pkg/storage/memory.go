package storage

// MemoryStore is a BadgerStore in BadgerDB's in-memory mode. Tests use it so
// they exercise the same code path as on-disk stores.
type MemoryStore struct {
	*BadgerStore
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() (*MemoryStore, error) {
	s, err := NewBadgerStoreInMemory()
	if err != nil {
		return nil, err
	}
	return &MemoryStore{BadgerStore: s}, nil
}
