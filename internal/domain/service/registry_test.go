package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minimind-os/minimind/internal/shared/types"
)

type mockProvider struct {
	id string
}

func (m *mockProvider) Definition() types.Service {
	return types.Service{
		ID:           m.id,
		Name:         "Mock Service",
		Description:  "A mock service for testing",
		Category:     types.CategoryFilesystem,
		Capabilities: []string{"read", "write"},
		Tools: []types.Tool{
			{ID: m.id + ".test", Name: "Test Tool", Returns: "string"},
		},
	}
}

func (m *mockProvider) Execute(ctx context.Context, toolID string, params map[string]interface{}, callCtx *types.Context) (*types.Result, error) {
	return &types.Result{
		Success: true,
		Data:    map[string]interface{}{"result": "success"},
	}, nil
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockProvider{id: "fs"}))

	_, ok := r.Get("fs")
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterEmptyID(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&mockProvider{id: ""}))
}

func TestListByCategory(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockProvider{id: "fs"}))

	cat := types.CategoryFilesystem
	assert.Len(t, r.List(&cat), 1)

	other := types.CategorySecurity
	assert.Empty(t, r.List(&other))
}

func TestExecute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockProvider{id: "fs"}))

	res, err := r.Execute(context.Background(), "fs.test", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = r.Execute(context.Background(), "badformat", nil, nil)
	assert.Error(t, err)

	res, err = r.Execute(context.Background(), "missing.tool", nil, nil)
	assert.Error(t, err)
	assert.False(t, res.Success)
}

func TestStats(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&mockProvider{id: "fs"}))

	stats := r.Stats()
	assert.Equal(t, 1, stats["total_services"])
	assert.Equal(t, 1, stats["total_tools"])
}
