package postgres

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leapmap/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  adapter.Config
		want string
	}{
		{
			name: "defaults",
			cfg:  adapter.Config{Database: "blog"},
			want: "host=localhost port=5432 dbname=blog sslmode=disable",
		},
		{
			name: "credentials and sslmode",
			cfg: adapter.Config{
				Host:     "db.internal",
				Port:     6543,
				Database: "blog",
				Username: "app",
				Password: "s3cret",
				Options:  map[string]string{"sslmode": "require"},
			},
			want: "host=db.internal port=6543 dbname=blog sslmode=require user=app password=s3cret",
		},
		{
			name: "quoted password and extra options",
			cfg: adapter.Config{
				Database: "blog",
				Password: "it's me",
				Options:  map[string]string{"connect_timeout": "5", "application_name": "svc"},
			},
			want: `host=localhost port=5432 dbname=blog sslmode=disable password='it\'s me' application_name=svc connect_timeout=5`,
		},
		{
			name: "empty database is quoted",
			cfg:  adapter.Config{},
			want: "host=localhost port=5432 dbname='' sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildPostgresDSN(tt.cfg))
		})
	}
}

func TestNew(t *testing.T) {
	a := New(nil)
	require.NotNil(t, a.Logger)
	assert.Equal(t, "postgres", a.Dialect().Name)
	assert.Equal(t, adapter.PlaceholderDollar, a.Dialect().Placeholder)
}

func TestAdapter_NotConnected(t *testing.T) {
	a := New(nil)
	assert.False(t, a.IsConnected())
	_, err := a.Prepare(context.Background(), "SELECT 1", adapter.StatementOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not established")
}

func TestAdapter_Close(t *testing.T) {
	a := New(nil)
	assert.NoError(t, a.Close())
}

func TestAdapter_Registry(t *testing.T) {
	assert.True(t, adapter.IsRegistered("postgres"))
	a, err := adapter.NewAdapter(adapter.Config{Type: "postgres"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Adapter{}, a)
}
