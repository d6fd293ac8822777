package sync

import (
	"context"
	"time"

	"github.com/nhle/crewsync/internal/api"
	"github.com/nhle/crewsync/internal/model"
)

// Run drives the container until ctx is done. It polls while the gate is
// ready and follows writes other processes make to the store. Every
// identity change cancels the running poll loop and resets HasSynced, so
// the next loop polls at once.
func (c *Container[T]) Run(ctx context.Context) error {
	states, unsubscribe := c.gate.Subscribe()
	defer unsubscribe()

	unwatch := c.store.Subscribe(c.applyShared)
	defer unwatch()

	var (
		cancel context.CancelFunc
		done   chan struct{}
		epoch  uint64
	)
	stop := func() {
		if cancel == nil {
			return
		}
		cancel()
		<-done
		cancel = nil
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-states:
			if st.Epoch != epoch {
				stop()
				epoch = st.Epoch
				c.resetSynced()
			}
			if !st.Ready() {
				stop()
				continue
			}
			if cancel != nil {
				continue
			}

			loopCtx, loopCancel := context.WithCancel(ctx)
			cancel = loopCancel
			done = make(chan struct{})
			go func() {
				defer close(done)
				c.loop(loopCtx)
			}()
		}
	}
}

// Refresh asks the running loop for an extra poll. It never blocks, and
// a request made while a poll runs is served after it. A request made
// while no loop runs is folded into the next loop's first poll.
func (c *Container[T]) Refresh() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// loop polls once, then on every tick or refresh. Polls run on this
// goroutine only, so they never overlap.
func (c *Container[T]) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// The first poll serves any refresh asked for before the loop ran.
	select {
	case <-c.trigger:
	default:
	}
	c.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		case <-c.trigger:
			c.poll(ctx)
		}
	}
}

func (c *Container[T]) resetSynced() {
	c.mu.Lock()
	c.hasSynced = false
	c.lastErr = nil
	c.phase = PhaseIdle
	c.mu.Unlock()
	c.emit(false)
}

// poll fetches the collection once and merges it into local state. A
// failure keeps local state and is only logged.
func (c *Container[T]) poll(ctx context.Context) {
	c.setPhase(PhaseRunning)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	records, err := c.remote.List(reqCtx)
	cancel()

	if ctx.Err() != nil {
		// Identity changed or shutting down; the result belongs to nobody.
		return
	}
	if err != nil {
		c.logger.Warn(ctx, "poll failed", "err", err, "auth", api.IsAuthError(err))
		c.mu.Lock()
		c.phase = PhaseError
		c.lastErr = err
		c.mu.Unlock()
		c.emit(false)
		return
	}

	now := c.now()
	server := c.decodeAll(ctx, records, now)

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	changed := c.replaceLocked(merge(c.items, server, c.deleting))
	c.phase = PhaseIdle
	c.hasSynced = true
	c.lastErr = nil
	c.lastSync = now
	items := c.items
	c.mu.Unlock()

	if changed {
		c.logger.Debug(ctx, "collection updated", "items", len(items))
		c.save(items)
	}
	c.emit(changed)
}

// decodeAll normalizes server records. Records without an ID are skipped
// and the first of several records sharing an ID wins.
func (c *Container[T]) decodeAll(ctx context.Context, records []api.Record, now time.Time) []T {
	out := make([]T, 0, len(records))
	seen := make(map[string]bool, len(records))

	for i, raw := range records {
		item, err := c.decode(raw, now)
		if err != nil {
			c.logger.Warn(ctx, "skipping undecodable record", "index", i, "err", err)
			continue
		}
		id := item.EntityID()
		if id == "" {
			c.logger.Warn(ctx, "skipping record without id", "index", i)
			continue
		}
		if seen[id] {
			c.logger.Debug(ctx, "skipping duplicate record", "id", id)
			continue
		}
		seen[id] = true
		out = append(out, item.WithSyncState(model.SyncStatusSynced))
	}
	return out
}

func (c *Container[T]) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
	c.emit(false)
}

// applyShared replaces the collection with one another process saved.
// The last writer wins.
func (c *Container[T]) applyShared(items []T) {
	if items == nil {
		items = []T{}
	}

	c.mu.Lock()
	changed := c.replaceLocked(items)
	c.mu.Unlock()

	if changed {
		c.logger.Debug(context.Background(), "collection replaced by another process", "items", len(items))
		c.emit(true)
	}
}
