// Package sync keeps local collections in step with the crew-management
// API. Each collection lives in a Container that polls the server while a
// session is signed in, applies local edits optimistically and shares its
// state with other processes through the store.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/nhle/crewsync/internal/api"
	"github.com/nhle/crewsync/internal/logging"
	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/session"
	"github.com/nhle/crewsync/internal/store"
)

var (
	// ErrNotFound is returned when a mutation names an unknown record.
	ErrNotFound = errors.New("record not found")

	// ErrMissingID is returned by Add for a record without an ID.
	ErrMissingID = errors.New("record has no id")

	// ErrNotFailed is returned by Retry and Discard for a record whose
	// last change did not fail.
	ErrNotFailed = errors.New("record has not failed")
)

// Remote is the server side of a collection. *api.Resource implements it.
type Remote interface {
	List(ctx context.Context) ([]api.Record, error)
	Create(ctx context.Context, body any) (api.Record, error)
	Update(ctx context.Context, id string, body any) (api.Record, error)
	Delete(ctx context.Context, id string) error
}

// Gate decides when polling may run. *session.Session implements it.
type Gate interface {
	State() session.State
	Subscribe() (<-chan session.State, func())
}

// Decoder turns a raw server record into T.
type Decoder[T any] func(raw map[string]any, now time.Time) (T, error)

// defaultRequestTimeout bounds a single list or mutation request.
const defaultRequestTimeout = 30 * time.Second

// Config wires a Container.
type Config[T model.Entity[T]] struct {
	Name     string
	Interval time.Duration
	Remote   Remote
	Store    *store.Persistent[[]T]
	Decode   Decoder[T]
	Gate     Gate
	Logger   logging.Logger

	// Seed supplies the records shown when the store holds none.
	Seed func() []T

	// RequestTimeout defaults to 30s.
	RequestTimeout time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Phase is the state of the poll loop.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "syncing"
	case PhaseError:
		return "error"
	default:
		return "idle"
	}
}

// Status summarizes a container for display.
type Status struct {
	Name      string
	Phase     Phase
	HasSynced bool
	LastSync  time.Time
	Err       error
	Items     int
	Pending   int
	Failed    int
}

// Event reports a change in a container.
type Event struct {
	Container string
	Status    Status

	// ItemsChanged is true when the collection was replaced.
	ItemsChanged bool
}

// Container is a locally cached collection kept in sync with the server.
type Container[T model.Entity[T]] struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	remote   Remote
	store    *store.Persistent[[]T]
	decode   Decoder[T]
	gate     Gate
	logger   logging.Logger
	now      func() time.Time

	trigger chan struct{}
	flight  gosync.WaitGroup

	mu        gosync.Mutex
	items     []T
	phase     Phase
	hasSynced bool
	lastSync  time.Time
	lastErr   error
	watchers  map[int]func(Event)
	nextWatch int

	// versions counts local mutations per record so a late response
	// cannot overwrite a newer edit.
	versions map[string]uint64
	// ops remembers the request a pending or failed record needs.
	ops map[string]opKind
	// deleting hides records whose delete is in flight from polls.
	deleting map[string]bool
	// creating counts in-flight creates per record.
	creating map[string]int
	// deleteAfter holds deletes waiting for a create to land, by the
	// version of the delete.
	deleteAfter map[string]uint64
}

// New builds a container and seeds it from the store, or from cfg.Seed
// when the store is empty.
func New[T model.Entity[T]](ctx context.Context, cfg Config[T]) (*Container[T], error) {
	if cfg.Name == "" {
		return nil, errors.New("container name is required")
	}
	if cfg.Remote == nil || cfg.Store == nil || cfg.Decode == nil || cfg.Gate == nil {
		return nil, fmt.Errorf("container %s: remote, store, decode and gate are required", cfg.Name)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("container %s: interval must be positive", cfg.Name)
	}

	c := &Container[T]{
		name:     cfg.Name,
		interval: cfg.Interval,
		timeout:  cfg.RequestTimeout,
		remote:   cfg.Remote,
		store:    cfg.Store,
		decode:   cfg.Decode,
		gate:     cfg.Gate,
		logger:   cfg.Logger,
		now:      cfg.Now,
		trigger:  make(chan struct{}, 1),
		watchers: make(map[int]func(Event)),
		versions: make(map[string]uint64),
		ops:      make(map[string]opKind),
		deleting: make(map[string]bool),

		creating:    make(map[string]int),
		deleteAfter: make(map[string]uint64),
	}
	if c.timeout <= 0 {
		c.timeout = defaultRequestTimeout
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	c.logger = c.logger.With("container", c.name)
	if c.now == nil {
		c.now = time.Now
	}

	if items, ok := c.store.Load(ctx); ok {
		c.items = items
	} else if cfg.Seed != nil {
		c.items = cfg.Seed()
	}
	if c.items == nil {
		c.items = []T{}
	}

	// Records restored mid-flight have no request behind them any more.
	for i, item := range c.items {
		if item.SyncState() == model.SyncStatusPending {
			c.items[i] = item.WithSyncState(model.SyncStatusFailed)
			c.ops[item.EntityID()] = opUpdate
		}
	}

	return c, nil
}

// Name returns the container name.
func (c *Container[T]) Name() string {
	return c.name
}

// Items returns a copy of the collection.
func (c *Container[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

// Get returns the record with the given ID.
func (c *Container[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := indexOf(c.items, id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// IsLoading reports whether the first poll of the current session is
// still running.
func (c *Container[T]) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.hasSynced && c.phase == PhaseRunning
}

// HasSynced reports whether a poll succeeded since the identity last
// changed.
func (c *Container[T]) HasSynced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasSynced
}

// LastError returns the error of the last poll, or nil.
func (c *Container[T]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Status returns a display summary.
func (c *Container[T]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Container[T]) statusLocked() Status {
	st := Status{
		Name:      c.name,
		Phase:     c.phase,
		HasSynced: c.hasSynced,
		LastSync:  c.lastSync,
		Err:       c.lastErr,
		Items:     len(c.items),
	}
	for _, item := range c.items {
		switch item.SyncState() {
		case model.SyncStatusPending:
			st.Pending++
		case model.SyncStatusFailed:
			st.Failed++
		}
	}
	return st
}

// Watch registers fn for every change. fn runs outside the container's
// lock and must not block. The returned function removes it.
func (c *Container[T]) Watch(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextWatch
	c.nextWatch++
	c.watchers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, id)
	}
}

// emit notifies watchers. Callers must not hold c.mu.
func (c *Container[T]) emit(itemsChanged bool) {
	c.mu.Lock()
	ev := Event{Container: c.name, Status: c.statusLocked(), ItemsChanged: itemsChanged}
	fns := make([]func(Event), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// save schedules a store write of items.
func (c *Container[T]) save(items []T) {
	if err := c.store.Save(items); err != nil {
		c.logger.Error(context.Background(), "saving collection", "err", err)
	}
}

// Flush writes pending saves to the store.
func (c *Container[T]) Flush(ctx context.Context) error {
	return c.store.Flush(ctx)
}

// replaceLocked swaps in items when they serialize differently from the
// current collection and reports whether it did.
func (c *Container[T]) replaceLocked(items []T) bool {
	if sameJSON(c.items, items) {
		return false
	}
	c.items = items
	return true
}

func sameJSON[T any](a, b []T) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}

func indexOf[T model.Entity[T]](items []T, id string) int {
	for i, item := range items {
		if item.EntityID() == id {
			return i
		}
	}
	return -1
}
