package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Watch polls for writes made by other store instances and delivers them
// to subscribers until ctx is done. SQLite bumps PRAGMA data_version on a
// connection whenever another connection commits, so the blob table is
// only queried after a commit.
//
// Read failures are logged and retried on the next tick with a fresh
// connection; Watch only returns once ctx is done.
func (s *SQLiteStore) Watch(ctx context.Context, interval time.Duration) error {
	if s.memory {
		<-ctx.Done()
		return nil
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var conn *sqlx.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	version := int64(-1)
	for {
		if err := s.poll(ctx, &conn, &version); err != nil && ctx.Err() == nil {
			s.logger.Warn(ctx, "watching for foreign writes", "err", err)
			if conn != nil {
				conn.Close()
				conn = nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll runs one watch step on the pinned connection, pinning one first if
// needed. version only advances once the changes it covers are delivered.
func (s *SQLiteStore) poll(ctx context.Context, conn **sqlx.Conn, version *int64) error {
	if *conn == nil {
		c, err := s.db.Connx(ctx)
		if err != nil {
			return fmt.Errorf("pinning watch connection: %w", err)
		}
		*conn = c
		// data_version is per connection, so a new one starts over.
		*version = -1
	}

	var current int64
	if err := (*conn).GetContext(ctx, &current, "PRAGMA data_version"); err != nil {
		return fmt.Errorf("reading data_version: %w", err)
	}
	if current == *version {
		return nil
	}
	if err := s.dispatch(ctx, *conn); err != nil {
		return err
	}
	*version = current
	return nil
}

// dispatch reads every write newer than the cursor and hands foreign ones
// to their subscribers. Callbacks run on the watch goroutine, outside the
// lock.
func (s *SQLiteStore) dispatch(ctx context.Context, conn *sqlx.Conn) error {
	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	var rows []Change
	err := conn.SelectContext(ctx, &rows, conn.Rebind(
		"SELECT key, value, writer, revision FROM blobs WHERE revision > ? ORDER BY revision",
	), cursor)
	if err != nil {
		return fmt.Errorf("reading changes: %w", err)
	}

	for _, change := range rows {
		for _, fn := range s.claim(change) {
			fn(change)
		}
	}
	return nil
}

// claim advances the cursor past change and returns the callbacks it
// should reach. Writes by this instance reach none.
func (s *SQLiteStore) claim(change Change) []func(Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if change.Revision > s.cursor {
		s.cursor = change.Revision
	}
	if change.Writer == s.writer {
		return nil
	}

	fns := make([]func(Change), 0, len(s.subs[change.Key]))
	for _, fn := range s.subs[change.Key] {
		fns = append(fns, fn)
	}
	return fns
}
