package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/crewsync/internal/store"
	"github.com/nhle/crewsync/internal/testutil"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// countingBlobs counts Put calls on the wrapped store.
type countingBlobs struct {
	store.Blobs
	puts atomic.Int32
	err  error
}

func (c *countingBlobs) Put(ctx context.Context, key string, value []byte) error {
	c.puts.Add(1)
	if c.err != nil {
		return c.err
	}
	return c.Blobs.Put(ctx, key, value)
}

func TestPersistent_LoadMissing(t *testing.T) {
	p := store.NewPersistent[[]item](testutil.NewTestStore(t), "crew.jobs")

	v, ok := p.Load(context.Background())
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestPersistent_SaveFlushLoad(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	p := store.NewPersistent[[]item](s, "crew.jobs")

	require.NoError(t, p.Save([]item{{ID: "1", Name: "Fence"}}))
	require.NoError(t, p.Flush(ctx))

	v, ok := p.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, []item{{ID: "1", Name: "Fence"}}, v)
}

func TestPersistent_LoadUnreadable(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	p := store.NewPersistent[[]item](s, "crew.jobs")

	for _, raw := range []string{`{not json`, `{"id":"1"}`, `null`, `  `} {
		require.NoError(t, s.Put(ctx, "crew.jobs", []byte(raw)))

		v, ok := p.Load(ctx)
		assert.False(t, ok, raw)
		assert.Nil(t, v, raw)
	}
}

func TestPersistent_DebounceCoalesces(t *testing.T) {
	ctx := context.Background()
	blobs := &countingBlobs{Blobs: testutil.NewTestStore(t)}
	p := store.NewPersistent[[]item](blobs, "crew.jobs", store.WithDebounce(30*time.Millisecond))

	for i := range 5 {
		require.NoError(t, p.Save([]item{{ID: "1", Name: string(rune('a' + i))}}))
	}

	assert.Eventually(t, func() bool {
		return blobs.puts.Load() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool {
		return blobs.puts.Load() > 1
	}, 80*time.Millisecond, 10*time.Millisecond)

	v, ok := p.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "e", v[0].Name)
}

func TestPersistent_SaveCopiesValue(t *testing.T) {
	ctx := context.Background()
	p := store.NewPersistent[[]item](testutil.NewTestStore(t), "crew.jobs")

	items := []item{{ID: "1", Name: "before"}}
	require.NoError(t, p.Save(items))
	items[0].Name = "after"
	require.NoError(t, p.Flush(ctx))

	v, ok := p.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, "before", v[0].Name)
}

func TestPersistent_ZeroDebounceWritesImmediately(t *testing.T) {
	blobs := &countingBlobs{Blobs: testutil.NewTestStore(t)}
	p := store.NewPersistent[[]item](blobs, "crew.jobs", store.WithDebounce(0))

	require.NoError(t, p.Save(nil))
	require.NoError(t, p.Save([]item{}))
	assert.Equal(t, int32(2), blobs.puts.Load())
}

func TestPersistent_FlushReportsWriteError(t *testing.T) {
	errDisk := errors.New("disk full")
	blobs := &countingBlobs{Blobs: testutil.NewTestStore(t), err: errDisk}
	p := store.NewPersistent[[]item](blobs, "crew.jobs")

	require.NoError(t, p.Save([]item{}))
	assert.ErrorIs(t, p.Flush(context.Background()), errDisk)
	assert.NoError(t, p.Flush(context.Background()))
}

func TestPersistent_Clear(t *testing.T) {
	ctx := context.Background()
	p := store.NewPersistent[[]item](testutil.NewTestStore(t), "crew.jobs")

	require.NoError(t, p.Save([]item{{ID: "1"}}))
	require.NoError(t, p.Flush(ctx))
	require.NoError(t, p.Clear(ctx))

	_, ok := p.Load(ctx)
	assert.False(t, ok)
}

func TestPersistent_SubscribeAcrossStores(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewSharedStores(t, 2)
	local, remote := stores[0], stores[1]

	var (
		mu  sync.Mutex
		got [][]item
	)
	p := store.NewPersistent[[]item](local, "crew.jobs")
	p.Subscribe(func(v []item) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
	})
	startWatch(t, local)

	// Malformed and wrongly shaped payloads are dropped.
	require.NoError(t, remote.Put(ctx, "crew.jobs", []byte(`{broken`)))
	require.NoError(t, remote.Put(ctx, "crew.jobs", []byte(`{"id":"x"}`)))

	other := store.NewPersistent[[]item](remote, "crew.jobs", store.WithDebounce(0))
	require.NoError(t, other.Save([]item{{ID: "2", Name: "Roof"}}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []item{{ID: "2", Name: "Roof"}}, got[0])
	mu.Unlock()
}
