package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quilross/aquil-symbolic-engine-sub003/store"
)

func TestCheck_AllStoresAvailable(t *testing.T) {
	kv := store.NewMemory(store.NameKV)
	rel := store.NewMemory(store.NameRelational)

	m := New([]store.Adapter{kv, rel}, "1.2.3")
	s := m.Check()

	assert.Equal(t, StatusOK, s.Status)
	assert.Equal(t, "1.2.3", s.Version)
	assert.Equal(t, StoreAvailable, s.Stores[store.NameKV])
	assert.Equal(t, StoreAvailable, s.Stores[store.NameRelational])
	assert.NotEmpty(t, s.Timestamp)
}

func TestCheck_MissingStoreDegrades(t *testing.T) {
	kv := store.NewMemory(store.NameKV)
	rel := store.NewMemory(store.NameRelational)
	rel.SetAvailable(false)

	m := New([]store.Adapter{kv, rel}, "")
	s := m.Check()

	assert.Equal(t, StatusDegraded, s.Status)
	assert.Equal(t, StoreMissing, s.Stores[store.NameRelational])
}

func TestCheck_NoStoresConfigured(t *testing.T) {
	m := New(nil, "")
	s := m.Check()

	assert.Equal(t, StatusOK, s.Status)
	assert.Empty(t, s.Stores)
}
