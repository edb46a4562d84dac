package etcdprov

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/integralfarm/libs/xklib/kerror"
)

func TestFakeEtcdProviderGetSet(t *testing.T) {
	ctx := context.Background()
	pvd := NewFakeEtcdProvider()

	item, err := pvd.Get(ctx, "/a")
	require.Nil(t, err)
	assert.Equal(t, EtcdKvItem{Key: "/a"}, item)

	require.Nil(t, pvd.Set(ctx, "/a", "1"))
	first, _ := pvd.Get(ctx, "/a")
	require.Nil(t, pvd.Set(ctx, "/a", "2"))
	second, _ := pvd.Get(ctx, "/a")
	assert.Equal(t, "2", second.Value)
	assert.Greater(t, second.ModRevision, first.ModRevision)
	assert.Equal(t, second.ModRevision, pvd.Revision())
}

func TestFakeEtcdProviderList(t *testing.T) {
	ctx := context.Background()
	pvd := NewFakeEtcdProvider()
	for _, k := range []string{"/runs/c", "/runs/a", "/other", "/runs/b"} {
		require.Nil(t, pvd.Set(ctx, k, k))
	}
	items, err := pvd.List(ctx, "/runs/", 0)
	require.Nil(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "/runs/a", items[0].Key)
	assert.Equal(t, "/runs/c", items[2].Key)

	items, _ = pvd.List(ctx, "/runs/", 2)
	assert.Len(t, items, 2)

	items, _ = pvd.List(ctx, "/none/", 0)
	assert.Empty(t, items)
}

func TestFakeEtcdProviderDelete(t *testing.T) {
	ctx := context.Background()
	pvd := NewFakeEtcdProvider()
	require.Nil(t, pvd.Set(ctx, "/a", "1"))
	require.Nil(t, pvd.Delete(ctx, "/a", true))

	err := pvd.Delete(ctx, "/a", true)
	assert.True(t, kerror.IsType(err, "KeyNotFound"))
	assert.Nil(t, pvd.Delete(ctx, "/a", false))
}

func TestRunWithEtcdProvider(t *testing.T) {
	fake := NewFakeEtcdProvider()
	RunWithEtcdProvider(fake, func() {
		pvd, err := GetCurrentEtcdProvider(context.Background())
		require.Nil(t, err)
		assert.Same(t, fake, pvd)
	})
	ResetEtcdProvider()
}
