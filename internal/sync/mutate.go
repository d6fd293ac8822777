package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nhle/crewsync/internal/api"
	"github.com/nhle/crewsync/internal/model"
)

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	default:
		return "delete"
	}
}

// Add inserts item locally as pending and sends it to the server in the
// background. An item whose ID already exists replaces it.
func (c *Container[T]) Add(item T) (T, error) {
	id := item.EntityID()
	if id == "" {
		var zero T
		return zero, ErrMissingID
	}
	item = item.WithSyncState(model.SyncStatusPending)

	c.mu.Lock()
	items := append([]T(nil), c.items...)
	if i := indexOf(items, id); i >= 0 {
		items[i] = item
	} else {
		items = append(items, item)
	}
	c.items = items
	// Adding the ID again cancels a delete still waiting for its create.
	if _, ok := c.deleteAfter[id]; ok {
		delete(c.deleteAfter, id)
		delete(c.deleting, id)
	}
	version := c.bumpLocked(id, opCreate)
	c.mu.Unlock()

	c.save(items)
	c.emit(true)
	c.send(opCreate, item, version)
	return item, nil
}

// Update replaces an existing record locally as pending and sends it to
// the server in the background.
func (c *Container[T]) Update(item T) (T, error) {
	id := item.EntityID()
	item = item.WithSyncState(model.SyncStatusPending)

	c.mu.Lock()
	i := indexOf(c.items, id)
	if i < 0 {
		c.mu.Unlock()
		var zero T
		return zero, fmt.Errorf("updating %s %q: %w", c.name, id, ErrNotFound)
	}
	op := opUpdate
	// An edit to a record the server never accepted is still a create.
	if c.ops[id] == opCreate && c.items[i].SyncState() != model.SyncStatusSynced {
		op = opCreate
	}
	items := append([]T(nil), c.items...)
	items[i] = item
	c.items = items
	version := c.bumpLocked(id, op)
	c.mu.Unlock()

	c.save(items)
	c.emit(true)
	c.send(op, item, version)
	return item, nil
}

// Delete removes a record locally and deletes it on the server in the
// background. A failed delete is logged and the record comes back with
// the next poll. Deleting a record whose create is still in flight sends
// the delete once the create has finished.
func (c *Container[T]) Delete(id string) error {
	c.mu.Lock()
	i := indexOf(c.items, id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("deleting %s %q: %w", c.name, id, ErrNotFound)
	}
	removed := c.items[i]
	items := append(append([]T(nil), c.items[:i]...), c.items[i+1:]...)
	c.items = items
	creating := c.creating[id] > 0
	localOnly := !creating && removed.SyncState() == model.SyncStatusFailed && c.ops[id] == opCreate
	version := c.bumpLocked(id, opDelete)
	switch {
	case localOnly:
		delete(c.ops, id)
	case creating:
		c.deleting[id] = true
		c.deleteAfter[id] = version
	default:
		c.deleting[id] = true
	}
	c.mu.Unlock()

	c.save(items)
	c.emit(true)
	if !localOnly && !creating {
		c.send(opDelete, removed, version)
	}
	return nil
}

// Retry re-sends the failed create or update of id and waits for it.
func (c *Container[T]) Retry(ctx context.Context, id string) error {
	c.mu.Lock()
	i := indexOf(c.items, id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("retrying %s %q: %w", c.name, id, ErrNotFound)
	}
	item := c.items[i]
	if item.SyncState() != model.SyncStatusFailed {
		c.mu.Unlock()
		return fmt.Errorf("retrying %s %q: %w", c.name, id, ErrNotFailed)
	}
	op, ok := c.ops[id]
	if !ok {
		op = opUpdate
	}
	item = item.WithSyncState(model.SyncStatusPending)
	items := append([]T(nil), c.items...)
	items[i] = item
	c.items = items
	version := c.bumpLocked(id, op)
	c.mu.Unlock()

	c.save(items)
	c.emit(true)

	c.flight.Add(1)
	defer c.flight.Done()
	return c.execute(ctx, op, item, version)
}

// Discard drops a record whose last change failed. A discarded edit of a
// server record reappears with the next poll.
func (c *Container[T]) Discard(id string) error {
	c.mu.Lock()
	i := indexOf(c.items, id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("discarding %s %q: %w", c.name, id, ErrNotFound)
	}
	if c.items[i].SyncState() != model.SyncStatusFailed {
		c.mu.Unlock()
		return fmt.Errorf("discarding %s %q: %w", c.name, id, ErrNotFailed)
	}
	items := append(append([]T(nil), c.items[:i]...), c.items[i+1:]...)
	c.items = items
	delete(c.ops, id)
	c.versions[id]++
	c.mu.Unlock()

	c.save(items)
	c.emit(true)
	return nil
}

// Wait blocks until every request started by a mutation has finished.
func (c *Container[T]) Wait() {
	c.flight.Wait()
}

// bumpLocked records a new local change of id. Every create counted here
// is settled by execute.
func (c *Container[T]) bumpLocked(id string, op opKind) uint64 {
	c.versions[id]++
	c.ops[id] = op
	if op == opCreate {
		c.creating[id]++
	}
	return c.versions[id]
}

func (c *Container[T]) send(op opKind, item T, version uint64) {
	c.flight.Add(1)
	go func() {
		defer c.flight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		_ = c.execute(ctx, op, item, version)
	}()
}

// execute performs one request and records its outcome, unless a newer
// local change to the same record superseded it.
func (c *Container[T]) execute(ctx context.Context, op opKind, item T, version uint64) error {
	id := item.EntityID()
	echo, err := c.request(ctx, op, item)

	if err != nil {
		c.logger.Warn(ctx, "request failed", "op", op.String(), "id", id, "err", err)
	} else {
		c.logger.Debug(ctx, "request succeeded", "op", op.String(), "id", id)
	}

	c.mu.Lock()
	if op == opCreate {
		c.creating[id]--
		if c.creating[id] <= 0 {
			delete(c.creating, id)
		}
		if after, ok := c.deleteAfter[id]; ok && c.creating[id] == 0 {
			delete(c.deleteAfter, id)
			c.mu.Unlock()
			c.send(opDelete, item, after)
			return err
		}
	}
	if op == opDelete {
		delete(c.deleting, id)
		if c.versions[id] == version {
			delete(c.ops, id)
		}
		c.mu.Unlock()
		return err
	}
	if c.versions[id] != version {
		c.mu.Unlock()
		return err
	}
	i := indexOf(c.items, id)
	if i < 0 {
		c.mu.Unlock()
		return err
	}

	items := append([]T(nil), c.items...)
	if err != nil {
		items[i] = items[i].WithSyncState(model.SyncStatusFailed)
	} else {
		items[i] = c.accepted(items[i], echo)
		delete(c.ops, id)
	}
	changed := c.replaceLocked(items)
	all := c.items
	c.mu.Unlock()

	if changed {
		c.save(all)
	}
	c.emit(changed)
	return err
}

func (c *Container[T]) request(ctx context.Context, op opKind, item T) (api.Record, error) {
	body := item.WithSyncState("")
	switch op {
	case opCreate:
		return c.remote.Create(ctx, body)
	case opDelete:
		return nil, c.remote.Delete(ctx, item.EntityID())
	}

	echo, err := c.remote.Update(ctx, item.EntityID(), body)
	var status *api.StatusError
	if errors.As(err, &status) && status.StatusCode == http.StatusNotFound {
		// The server never received the create.
		return c.remote.Create(ctx, body)
	}
	return echo, err
}

// accepted returns local marked synced. When the server echoed a record
// with the same ID, the echo wins.
func (c *Container[T]) accepted(local T, echo api.Record) T {
	if len(echo) > 0 {
		if item, err := c.decode(echo, c.now()); err == nil && item.EntityID() == local.EntityID() {
			return item.Inherit(local).WithSyncState(model.SyncStatusSynced)
		}
	}
	return local.WithSyncState(model.SyncStatusSynced)
}
