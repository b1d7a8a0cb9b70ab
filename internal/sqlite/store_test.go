package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "volume.db")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	_, ok, err := s.Get(ctx, "userUUID")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "userUUID", []byte("u-1")))
	require.NoError(t, s.Set(ctx, "userUUID", []byte("u-2")))

	v, ok, err := s.Get(ctx, "userUUID")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("u-2"), v)

	require.NoError(t, s.Delete(ctx, "userUUID"))
	require.NoError(t, s.Delete(ctx, "userUUID"))
	_, ok, err = s.Get(ctx, "userUUID")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	require.NoError(t, s.Set(ctx, "savedArticleIds", []byte(`["b","a"]`)))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "savedArticleIds")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `["b","a"]`, string(v))
}
