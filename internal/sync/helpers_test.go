package sync_test

import (
	"bytes"
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/nhle/crewsync/internal/api"
	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/session"
	"github.com/nhle/crewsync/internal/store"
	crewsync "github.com/nhle/crewsync/internal/sync"
	"github.com/nhle/crewsync/internal/testutil"
)

var (
	owner = &model.User{ID: "u1", Name: "Ana", Role: model.RoleOwner}
	other = &model.User{ID: "u2", Name: "Ben", Role: model.RoleEmployee}

	errOffline = errors.New("dial tcp: connection refused")
)

// fakeGate is a session stand-in whose state tests set directly.
type fakeGate struct {
	mu    gosync.Mutex
	state session.State
	subs  []chan session.State
}

func newGate(u *model.User) *fakeGate {
	g := &fakeGate{}
	if u != nil {
		g.state = session.State{User: u, Epoch: 1}
	}
	return g
}

func (g *fakeGate) State() session.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *fakeGate) Subscribe() (<-chan session.State, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan session.State, 1)
	ch <- g.state
	g.subs = append(g.subs, ch)
	return ch, func() {}
}

func (g *fakeGate) set(fn func(*session.State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.state)
	for _, ch := range g.subs {
		select {
		case <-ch:
		default:
		}
		ch <- g.state
	}
}

// fakeRemote is an in-memory API collection.
type fakeRemote struct {
	mu      gosync.Mutex
	records []api.Record
	listErr error
	block   chan struct{}

	createErr error
	updateErr error
	deleteErr error
	echo      bool

	lists   atomic.Int32
	created []string
	updated []string
	deleted []string
}

func (f *fakeRemote) setRecords(records []api.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func (f *fakeRemote) List(ctx context.Context) ([]api.Record, error) {
	f.lists.Add(1)

	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeRemote) Create(_ context.Context, body any) (api.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, entityID(body))
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.echoOf(body), nil
}

func (f *fakeRemote) Update(_ context.Context, id string, body any) (api.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, id)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.echoOf(body), nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeRemote) calls() (created, updated, deleted []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...), append([]string(nil), f.updated...), append([]string(nil), f.deleted...)
}

func (f *fakeRemote) echoOf(body any) api.Record {
	if !f.echo {
		return nil
	}
	data, _ := json.Marshal(body)
	var rec api.Record
	_ = json.Unmarshal(data, &rec)
	return rec
}

func entityID(body any) string {
	if e, ok := body.(interface{ EntityID() string }); ok {
		return e.EntityID()
	}
	return ""
}

// records decodes a JSON array the way the API client does.
func records(t *testing.T, js string) []api.Record {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(js)))
	dec.UseNumber()
	var out []api.Record
	require.NoError(t, dec.Decode(&out))
	return out
}

// countingBlobs counts writes to the wrapped store.
type countingBlobs struct {
	store.Blobs
	puts atomic.Int32
}

func (c *countingBlobs) Put(ctx context.Context, key string, value []byte) error {
	c.puts.Add(1)
	return c.Blobs.Put(ctx, key, value)
}

// eventLog records container events.
type eventLog struct {
	mu     gosync.Mutex
	events []crewsync.Event
}

func (l *eventLog) add(ev crewsync.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) replacements() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.ItemsChanged {
			n++
		}
	}
	return n
}

func config[T model.Entity[T]](blobs store.Blobs, key string, remote crewsync.Remote, gate *fakeGate) crewsync.Config[T] {
	return crewsync.Config[T]{
		Interval: time.Hour,
		Remote:   remote,
		Store:    store.NewPersistent[[]T](blobs, key, store.WithDebounce(0)),
		Gate:     gate,
	}
}

func newJobs(t *testing.T, blobs store.Blobs, remote crewsync.Remote, gate *fakeGate, notifications *crewsync.Notifications) *crewsync.Jobs {
	t.Helper()
	jobs, err := crewsync.NewJobs(context.Background(), config[model.Job](blobs, crewsync.JobsKey, remote, gate), notifications)
	require.NoError(t, err)
	t.Cleanup(jobs.Wait)
	return jobs
}

func newNotifications(t *testing.T, blobs store.Blobs, remote crewsync.Remote, gate *fakeGate) *crewsync.Notifications {
	t.Helper()
	n, err := crewsync.NewNotifications(context.Background(), config[model.Notification](blobs, crewsync.NotificationsKey, remote, gate))
	require.NoError(t, err)
	t.Cleanup(n.Wait)
	return n
}

func memBlobs(t *testing.T) *countingBlobs {
	return &countingBlobs{Blobs: testutil.NewTestStore(t)}
}

// run starts c.Run and stops it when the test ends.
func run(t *testing.T, c interface{ Run(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func ids[T model.Entity[T]](items []T) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.EntityID()
	}
	return out
}

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type atomicTime struct{ v atomic.Value }

func (a *atomicTime) set(t time.Time) { a.v.Store(t) }
func (a *atomicTime) get() time.Time  { return a.v.Load().(time.Time) }
