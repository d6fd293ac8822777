package sync

import "github.com/nhle/crewsync/internal/model"

// merge combines a fresh server listing with local state.
//
// Server records come first, in server order. A local pending record
// replaces its server counterpart, and local pending or failed records the
// server does not know are appended. Server records that merely restate
// defaults inherit the values already held locally. Records being deleted
// are left out.
func merge[T model.Entity[T]](local, server []T, deleting map[string]bool) []T {
	prev := make(map[string]T, len(local))
	for _, item := range local {
		prev[item.EntityID()] = item
	}

	out := make([]T, 0, len(server)+len(local))
	onServer := make(map[string]bool, len(server))

	for _, item := range server {
		id := item.EntityID()
		onServer[id] = true
		if deleting[id] {
			continue
		}

		if p, ok := prev[id]; ok {
			if p.SyncState() == model.SyncStatusPending {
				out = append(out, p)
				continue
			}
			item = item.Inherit(p)
		}
		out = append(out, item.WithSyncState(model.SyncStatusSynced))
	}

	for _, item := range local {
		if onServer[item.EntityID()] || deleting[item.EntityID()] {
			continue
		}
		switch item.SyncState() {
		case model.SyncStatusPending, model.SyncStatusFailed:
			out = append(out, item)
		}
	}

	return out
}
