package model

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/nhle/crewsync/internal/normalize"
)

// SyncStatus tracks whether a local record matches the server.
type SyncStatus string

const (
	// SyncStatusSynced marks a record as the server last reported it.
	SyncStatusSynced SyncStatus = "synced"

	// SyncStatusPending marks an optimistic change whose request is in flight.
	SyncStatusPending SyncStatus = "pending"

	// SyncStatusFailed marks an optimistic change the server did not accept.
	SyncStatusFailed SyncStatus = "failed"
)

// syncStatusKey is the JSON key of the local sync status. It never comes
// from the server and is stripped from pass-through fields.
const syncStatusKey = "syncStatus"

// Entity is implemented by every record kept by a sync container.
type Entity[T any] interface {
	// EntityID returns the record's stable identifier.
	EntityID() string

	// SyncState returns the record's local sync status.
	SyncState() SyncStatus

	// WithSyncState returns a copy carrying the given status.
	WithSyncState(SyncStatus) T

	// Inherit returns a copy that keeps values from prev wherever this
	// record only holds a normalizer default.
	Inherit(prev T) T
}

// decodeResult decodes the canonical values of res into out and returns
// the pass-through fields, or nil when there are none.
func decodeResult(res normalize.Result, out any) (map[string]any, error) {
	if err := res.Decode(out); err != nil {
		return nil, err
	}
	return passThrough(res.Extra), nil
}

func passThrough(extra map[string]any) map[string]any {
	delete(extra, syncStatusKey)
	if len(extra) == 0 {
		return nil
	}
	return extra
}

// marshalFlat encodes canonical and merges extra keys into the same
// object. Canonical keys always win over extra keys.
func marshalFlat(canonical any, extra map[string]any) ([]byte, error) {
	data, err := json.Marshal(canonical)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return data, nil
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("flattening record: %w", err)
	}
	for k, v := range extra {
		if _, ok := flat[k]; ok {
			continue
		}
		flat[k] = v
	}
	return json.Marshal(flat)
}

// unmarshalFlat decodes data into canonical and returns every key that is
// neither a canonical field of table nor the local sync status.
func unmarshalFlat(data []byte, canonical any, table normalize.Table) (map[string]any, error) {
	if err := json.Unmarshal(data, canonical); err != nil {
		return nil, err
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, err
	}
	for _, name := range table.Names() {
		delete(flat, name)
	}
	return passThrough(flat), nil
}
