package mocks

import (
	"context"
	"sync/atomic"
)

// MockHealthChecker is a ports.HealthChecker whose answer is set by the test
type MockHealthChecker struct {
	Err   error
	Calls atomic.Int32
}

func (p *MockHealthChecker) CheckHealth(ctx context.Context) error {
	p.Calls.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Err
}

// MockSchemaVersioner is a ports.SchemaVersioner returning fixed values
type MockSchemaVersioner struct {
	Current uint
	Dirty    bool
	Err      error
}

func (m *MockSchemaVersioner) Version(ctx context.Context) (uint, bool, error) {
	return m.Current, m.Dirty, m.Err
}
