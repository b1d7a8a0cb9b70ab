package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository(t *testing.T) {
	url := os.Getenv("VOLUME_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("VOLUME_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	repo, err := NewRepository(url)
	require.NoError(t, err)
	defer repo.Close()

	key := "test:" + t.Name()
	t.Cleanup(func() { repo.Delete(context.Background(), key) })

	_, ok, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, key, []byte(`["a"]`)))
	require.NoError(t, repo.Set(ctx, key, []byte(`["b","a"]`)))

	v, ok, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `["b","a"]`, string(v))

	require.NoError(t, repo.Delete(ctx, key))
	_, ok, err = repo.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
