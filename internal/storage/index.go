package storage

import (
	"sort"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// IndexEntry is the listing projection of one project. The index holds
// only what listing needs; everything else stays in the record.
type IndexEntry struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	UserID    string `json:"userId,omitempty"`
}

// IndexEntryFor projects p into its index entry.
func IndexEntryFor(p *project.State) IndexEntry {
	return IndexEntry{
		ID:        p.ID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		UserID:    p.OwnerID(),
	}
}

// UpsertIndexEntry replaces the entry with e's id, or appends e when
// no entry matches. The input slice may be mutated.
func UpsertIndexEntry(entries []IndexEntry, e IndexEntry) []IndexEntry {
	for i := range entries {
		if entries[i].ID == e.ID {
			entries[i] = e
			return entries
		}
	}
	return append(entries, e)
}

// RemoveIndexEntry drops the entry for id, if present.
func RemoveIndexEntry(entries []IndexEntry, id string) []IndexEntry {
	for i := range entries {
		if entries[i].ID == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

// FilterIndexByUser keeps entries owned by userID. An empty userID
// keeps everything.
func FilterIndexByUser(entries []IndexEntry, userID string) []IndexEntry {
	if userID == "" {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// SortIndex orders entries by sortBy in direction. Empty arguments
// default to createdAt descending. Ties break on id so pagination is
// stable when many records share a millisecond timestamp.
func SortIndex(entries []IndexEntry, sortBy, direction string) {
	key := func(e IndexEntry) int64 {
		if sortBy == SortByUpdatedAt {
			return e.UpdatedAt
		}
		return e.CreatedAt
	}
	asc := direction == SortAsc

	sort.SliceStable(entries, func(i, j int) bool {
		ki, kj := key(entries[i]), key(entries[j])
		if ki != kj {
			if asc {
				return ki < kj
			}
			return ki > kj
		}
		return entries[i].ID < entries[j].ID
	})
}

// PageIndex applies offset and limit. Offset past the end returns an
// empty slice; limit 0 means no cap.
func PageIndex(entries []IndexEntry, limit, offset int) []IndexEntry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}
