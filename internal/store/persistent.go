package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/nhle/crewsync/internal/logging"
)

// DefaultDebounce is the quiet period before a Save reaches the database.
const DefaultDebounce = 500 * time.Millisecond

// Persistent stores one JSON encoded value of type T under a fixed key.
//
// Save is debounced: a burst of saves produces a single write of the last
// value. Loads and subscriptions never fail loudly; unreadable data is
// logged and treated as absent.
type Persistent[T any] struct {
	blobs  Blobs
	key    string
	logger logging.Logger

	mu     sync.Mutex
	latest []byte
	saver  *debouncer

	writeMu sync.Mutex
	lastErr error
}

// PersistentOption configures a Persistent.
type PersistentOption func(*persistentOptions)

type persistentOptions struct {
	debounce time.Duration
	logger   logging.Logger
}

// WithDebounce overrides DefaultDebounce. Zero writes on every Save.
func WithDebounce(d time.Duration) PersistentOption {
	return func(o *persistentOptions) { o.debounce = d }
}

// WithLogger sets the logger used for load, save and decode failures.
func WithLogger(l logging.Logger) PersistentOption {
	return func(o *persistentOptions) { o.logger = l }
}

// NewPersistent binds key in blobs to values of type T.
func NewPersistent[T any](blobs Blobs, key string, opts ...PersistentOption) *Persistent[T] {
	o := persistentOptions{debounce: DefaultDebounce, logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Persistent[T]{
		blobs:  blobs,
		key:    key,
		logger: o.logger.With("key", key),
	}
	if o.debounce > 0 {
		p.saver = newDebouncer(o.debounce, func() {
			_ = p.write(context.Background())
		})
	}
	return p
}

// Key returns the storage key.
func (p *Persistent[T]) Key() string {
	return p.key
}

// Load returns the stored value. ok is false when nothing is stored or
// the stored bytes cannot be decoded.
func (p *Persistent[T]) Load(ctx context.Context) (T, bool) {
	var zero T

	data, err := p.blobs.Get(ctx, p.key)
	if errors.Is(err, ErrNotFound) {
		return zero, false
	}
	if err != nil {
		p.logger.Warn(ctx, "load failed", "err", err)
		return zero, false
	}

	v, err := decode[T](data)
	if err != nil {
		p.logger.Warn(ctx, "discarding unreadable value", "err", err)
		return zero, false
	}
	return v, true
}

// Save schedules v to be written. The value is encoded immediately, so
// later changes to v by the caller are not seen.
func (p *Persistent[T]) Save(v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", p.key, err)
	}

	p.mu.Lock()
	p.latest = data
	p.mu.Unlock()

	if p.saver == nil {
		return p.write(context.Background())
	}
	p.saver.Trigger()
	return nil
}

// Flush writes any pending value now and reports the last write error.
func (p *Persistent[T]) Flush(ctx context.Context) error {
	if p.saver != nil {
		p.saver.Flush()
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	err := p.lastErr
	p.lastErr = nil
	return err
}

// Close flushes any pending value.
func (p *Persistent[T]) Close(ctx context.Context) error {
	return p.Flush(ctx)
}

// Clear removes the stored value and drops any pending save.
func (p *Persistent[T]) Clear(ctx context.Context) error {
	p.mu.Lock()
	p.latest = nil
	p.mu.Unlock()

	if err := p.blobs.Delete(ctx, p.key); err != nil {
		return fmt.Errorf("clearing %s: %w", p.key, err)
	}
	return nil
}

// Subscribe calls fn with each value written to the key by another store
// instance. Payloads that do not decode as T are logged and dropped.
func (p *Persistent[T]) Subscribe(fn func(T)) func() {
	return p.blobs.Subscribe(p.key, func(c Change) {
		v, err := decode[T](c.Value)
		if err != nil {
			p.logger.Warn(context.Background(), "dropping malformed update",
				"writer", c.Writer, "revision", c.Revision, "err", err)
			return
		}
		fn(v)
	})
}

func (p *Persistent[T]) write(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	data := p.latest
	p.latest = nil
	p.mu.Unlock()

	if data == nil {
		return nil
	}

	if err := p.blobs.Put(ctx, p.key, data); err != nil {
		p.logger.Error(ctx, "save failed", "err", err)
		p.lastErr = err
		return err
	}
	return nil
}

// decode unmarshals data as T. Slice types must be encoded as a JSON
// array; null and other shapes are rejected.
func decode[T any](data []byte) (T, error) {
	var v T

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return v, errors.New("empty payload")
	}
	if reflect.TypeOf(v) != nil && reflect.TypeOf(v).Kind() == reflect.Slice && trimmed[0] != '[' {
		return v, fmt.Errorf("expected JSON array, got %q", preview(trimmed))
	}

	if err := json.Unmarshal(trimmed, &v); err != nil {
		return v, err
	}
	return v, nil
}

func preview(b []byte) string {
	const max = 32
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
