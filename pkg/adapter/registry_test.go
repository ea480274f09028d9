package adapter

import (
	"context"
	"log/slog"
	"testing"

	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownAdapterError_Error(t *testing.T) {
	err := &UnknownAdapterError{
		Type:      "fake_db",
		Available: []string{"duckdb", "postgres"},
	}

	msg := err.Error()
	assert.Contains(t, msg, "fake_db", "error should mention the unknown type 'fake_db'")
	assert.Contains(t, msg, "pkg/adapters", "error should hint at the adapter import")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

type stubAdapter struct {
	BaseSQLAdapter
}

func (s *stubAdapter) Connect(_ context.Context, _ Config) error { return nil }

func TestRegister(t *testing.T) {
	Register("test_adapter_internal", func(_ *slog.Logger) Adapter { return &stubAdapter{} })

	assert.True(t, IsRegistered("test_adapter_internal"))
	assert.Contains(t, ListAdapters(), "test_adapter_internal")

	factory, ok := Get("test_adapter_internal")
	require.True(t, ok)
	assert.NotNil(t, factory)

	a, err := NewAdapter(Config{Type: "test_adapter_internal"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestNewAdapter_Errors(t *testing.T) {
	_, err := NewAdapter(Config{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Contains(t, err.Error(), "adapter type not specified")

	_, err = NewAdapter(Config{Type: "unknown_db"}, nil)
	var unknown *UnknownAdapterError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "unknown_db", unknown.Type)
}
