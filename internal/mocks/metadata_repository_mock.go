package mocks

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Olprog59/go-microservice/internal/domain"
	"github.com/Olprog59/go-microservice/internal/repository/db"
)

// MockMetadataRepository is an in-memory ports.MetadataRepository for testing
type MockMetadataRepository struct {
	mu sync.Mutex

	// Mock data storage
	Entries map[string]domain.Metadata

	// Mock behavior flags
	GetError    error
	PutError    error
	ListError   error
	DeleteError error

	// Call tracking
	GetCalls    int
	PutCalls    int
	ListCalls   int
	DeleteCalls int
}

// NewMockMetadataRepository creates an empty mock
func NewMockMetadataRepository() *MockMetadataRepository {
	return &MockMetadataRepository{Entries: make(map[string]domain.Metadata)}
}

func (m *MockMetadataRepository) Get(ctx context.Context, name string) (*domain.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++

	if m.GetError != nil {
		return nil, m.GetError
	}
	entry, ok := m.Entries[name]
	if !ok {
		return nil, db.ErrNoRecord
	}
	return &entry, nil
}

func (m *MockMetadataRepository) Put(ctx context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(name, value)
}

func (m *MockMetadataRepository) PutAll(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PutError != nil {
		m.PutCalls++
		return m.PutError
	}
	for name, value := range values {
		if err := m.putLocked(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockMetadataRepository) putLocked(name, value string) error {
	m.PutCalls++
	if m.PutError != nil {
		return m.PutError
	}

	now := time.Now().UTC()
	entry, ok := m.Entries[name]
	if !ok {
		entry = domain.Metadata{Name: name}
		entry.CreatedAt = now
	}
	entry.Value = value
	entry.UpdatedAt = now
	m.Entries[name] = entry
	return nil
}

func (m *MockMetadataRepository) List(ctx context.Context) ([]domain.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++

	if m.ListError != nil {
		return nil, m.ListError
	}
	list := make([]domain.Metadata, 0, len(m.Entries))
	for _, entry := range m.Entries {
		list = append(list, entry)
	}
	slices.SortFunc(list, func(a, b domain.Metadata) int { return strings.Compare(a.Name, b.Name) })
	return list, nil
}

func (m *MockMetadataRepository) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++

	if m.DeleteError != nil {
		return m.DeleteError
	}
	if _, ok := m.Entries[name]; !ok {
		return db.ErrNoRecord
	}
	delete(m.Entries, name)
	return nil
}
