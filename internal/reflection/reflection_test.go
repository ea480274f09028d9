package reflection

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type address struct {
	City string
	Zip  string `db:"postal_code"`
}

type Audit struct {
	CreatedBy string
}

type person struct {
	*Audit
	ID       int64
	UserName string
	Address  *address
	Tags     []string
	Attrs    map[string]any
	Secret   string `db:"-"`
	hidden   string
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		path    string
		want    []PathToken
		wantErr bool
	}{
		{path: "name", want: []PathToken{{Name: "name"}}},
		{path: "user.address.city", want: []PathToken{{Name: "user"}, {Name: "address"}, {Name: "city"}}},
		{path: "items[0].name", want: []PathToken{{Name: "items", Indexes: []string{"0"}}, {Name: "name"}}},
		{path: "grid[1][2]", want: []PathToken{{Name: "grid", Indexes: []string{"1", "2"}}}},
		{path: "m['k']", want: []PathToken{{Name: "m", Indexes: []string{"k"}}}},
		{path: "", wantErr: true},
		{path: "a..b", wantErr: true},
		{path: "a[0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Tokenize(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	p := &person{
		ID:       7,
		UserName: "ada",
		Address:  &address{City: "London", Zip: "N1"},
		Tags:     []string{"x", "y"},
		Attrs:    map[string]any{"level": 3, "nested": map[string]any{"ok": true}},
	}
	root := map[string]any{"user": p, "limit": 10}

	tests := []struct {
		path string
		want any
	}{
		{path: "limit", want: 10},
		{path: "user.ID", want: int64(7)},
		{path: "user.userName", want: "ada"},
		{path: "user.address.city", want: "London"},
		{path: "user.Address.postal_code", want: "N1"},
		{path: "user.tags[1]", want: "y"},
		{path: "user.attrs.level", want: 3},
		{path: "user.attrs[nested].ok", want: true},
		{path: "user.CreatedBy", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := Resolve(root, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	root := map[string]any{"user": &person{Tags: []string{"a"}}}

	_, err := Resolve(root, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = Resolve(root, "user.nope")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "nope")

	_, err = Resolve(root, "user.tags[3]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = Resolve(root, "user.Secret")
	require.ErrorIs(t, err, ErrNotFound, "db:\"-\" fields are not properties")
}

func TestResolve_NilIntermediate(t *testing.T) {
	got, err := Resolve(map[string]any{"user": &person{}}, "user.address.city")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStructMeta_FindProperty(t *testing.T) {
	m, err := Of(reflect.TypeOf(person{}))
	require.NoError(t, err)

	tests := []struct {
		name       string
		underscore bool
		want       string
		found      bool
	}{
		{name: "UserName", want: "UserName", found: true},
		{name: "USERNAME", want: "UserName", found: true},
		{name: "user_name", found: false},
		{name: "user_name", underscore: true, want: "UserName", found: true},
		{name: "created_by", underscore: true, want: "CreatedBy", found: true},
		{name: "hidden", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := m.FindProperty(tt.name, tt.underscore)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, p.Name)
			}
		})
	}

	_, err = Of(reflect.TypeOf(0))
	require.Error(t, err)
}

func TestProperty_SetAllocatesEmbeddedPointer(t *testing.T) {
	m := MustOf(reflect.TypeOf(person{}))
	p, ok := m.Property("CreatedBy")
	require.True(t, ok)

	var target person
	require.NoError(t, p.Set(reflect.ValueOf(&target), reflect.ValueOf("root")))
	require.NotNil(t, target.Audit)
	assert.Equal(t, "root", target.CreatedBy)

	id, _ := m.Property("ID")
	err := id.Set(reflect.ValueOf(&target), reflect.ValueOf("nope"))
	require.Error(t, err)
}
