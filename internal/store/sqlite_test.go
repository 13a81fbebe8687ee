package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/store"
)

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	kv, err := store.NewSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set(ctx, "role", "teacher"))
	require.NoError(t, kv.Set(ctx, "role", "student"))

	v, ok, err := kv.Get(ctx, "role")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "student", v)

	_, ok, err = kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Delete(ctx, "role"))
	_, ok, _ = kv.Get(ctx, "role")
	assert.False(t, ok)

	assert.True(t, kv.Healthy(ctx))
}
