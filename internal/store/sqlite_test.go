package store_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/crewsync/internal/logging"
	"github.com/nhle/crewsync/internal/store"
	"github.com/nhle/crewsync/internal/testutil"
)

func TestSQLiteStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	_, err := s.Get(ctx, "crew.jobs")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Put(ctx, "crew.jobs", []byte(`[1]`)))
	require.NoError(t, s.Put(ctx, "crew.jobs", []byte(`[1,2]`)))

	got, err := s.Get(ctx, "crew.jobs")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))

	require.NoError(t, s.Delete(ctx, "crew.jobs"))
	require.NoError(t, s.Delete(ctx, "crew.jobs"))

	_, err = s.Get(ctx, "crew.jobs")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteStore_WritersAreDistinct(t *testing.T) {
	stores := testutil.NewSharedStores(t, 2)
	assert.NotEmpty(t, stores[0].Writer())
	assert.NotEqual(t, stores[0].Writer(), stores[1].Writer())
}

func TestSQLiteStore_SharedFileSeesWrites(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewSharedStores(t, 2)

	require.NoError(t, stores[0].Put(ctx, "crew.chat", []byte(`[]`)))

	got, err := stores[1].Get(ctx, "crew.chat")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
}

func TestSQLiteStore_ConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewSharedStores(t, 2)

	const workers, puts = 8, 20
	var wg sync.WaitGroup
	errs := make(chan error, workers*puts)
	for w := 0; w < workers; w++ {
		s := stores[w%len(stores)]
		key := fmt.Sprintf("crew.key%d", w%4)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < puts; i++ {
				if err := s.Put(ctx, key, []byte(fmt.Sprintf("[%d]", i))); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	got, err := stores[0].Get(ctx, "crew.key0")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

type recorder struct {
	mu      sync.Mutex
	changes []store.Change
}

func (r *recorder) add(c store.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.changes))
	for i, c := range r.changes {
		out[i] = string(c.Value)
	}
	return out
}

func startWatch(t *testing.T, s *store.SQLiteStore) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, 5*time.Millisecond) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func TestSQLiteStore_WatchDeliversForeignWrites(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewSharedStores(t, 2)
	local, remote := stores[0], stores[1]

	rec := &recorder{}
	local.Subscribe("crew.jobs", rec.add)
	startWatch(t, local)

	require.NoError(t, remote.Put(ctx, "crew.jobs", []byte(`["remote"]`)))

	assert.Eventually(t, func() bool {
		return len(rec.values()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`["remote"]`}, rec.values())

	rec.mu.Lock()
	assert.Equal(t, remote.Writer(), rec.changes[0].Writer)
	rec.mu.Unlock()
}

func TestSQLiteStore_WatchSkipsOwnWritesAndOtherKeys(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewSharedStores(t, 2)
	local, remote := stores[0], stores[1]

	rec := &recorder{}
	local.Subscribe("crew.jobs", rec.add)
	startWatch(t, local)

	require.NoError(t, local.Put(ctx, "crew.jobs", []byte(`["mine"]`)))
	require.NoError(t, remote.Put(ctx, "crew.chat", []byte(`["other key"]`)))

	assert.Never(t, func() bool {
		return len(rec.values()) > 0
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestSQLiteStore_WatchIgnoresWritesBeforeOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "crewsync.db")

	remote, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { remote.Close() })

	require.NoError(t, remote.Put(ctx, "crew.jobs", []byte(`["old"]`)))

	local, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	rec := &recorder{}
	local.Subscribe("crew.jobs", rec.add)
	startWatch(t, local)

	assert.Never(t, func() bool {
		return len(rec.values()) > 0
	}, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, remote.Put(ctx, "crew.jobs", []byte(`["new"]`)))
	assert.Eventually(t, func() bool {
		return len(rec.values()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`["new"]`}, rec.values())
}

func TestSQLiteStore_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	stores := testutil.NewSharedStores(t, 2)
	local, remote := stores[0], stores[1]

	rec := &recorder{}
	unsubscribe := local.Subscribe("crew.jobs", rec.add)
	startWatch(t, local)
	unsubscribe()

	require.NoError(t, remote.Put(ctx, "crew.jobs", []byte(`[]`)))

	assert.Never(t, func() bool {
		return len(rec.values()) > 0
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestSQLiteStore_WatchInMemoryReturnsOnCancel(t *testing.T) {
	s := testutil.NewTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Watch(ctx, time.Millisecond))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSQLiteStore_WatchSurvivesReadErrors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "crewsync.db")

	logs := &syncBuffer{}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(logs, nil)))

	local, err := store.NewSQLiteStore(path, store.WithWatchLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	remote, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { remote.Close() })

	raw, err := sqlx.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	rec := &recorder{}
	local.Subscribe("crew.jobs", rec.add)
	startWatch(t, local)

	// Hide the table so the watcher's reads fail until it comes back.
	_, err = raw.Exec("ALTER TABLE blobs RENAME TO blobs_aside")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "watching for foreign writes")
	}, 2*time.Second, 5*time.Millisecond)

	_, err = raw.Exec("ALTER TABLE blobs_aside RENAME TO blobs")
	require.NoError(t, err)

	require.NoError(t, remote.Put(ctx, "crew.jobs", []byte(`["after"]`)))
	assert.Eventually(t, func() bool {
		return len(rec.values()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`["after"]`}, rec.values())
}
