package storage

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// encodeRecord serializes p in its enhanced form, the representation
// the key-value backends persist.
func encodeRecord(p *project.State, threshold int) ([]byte, error) {
	enhanced := project.ToEnhancedWithThreshold(p, threshold)
	data, err := json.Marshal(enhanced)
	if err != nil {
		return nil, fmt.Errorf("encode project %s: %w", p.ID, err)
	}
	return data, nil
}

// decodeRecord rebuilds the base record from stored enhanced JSON.
func decodeRecord(data []byte) (*project.State, error) {
	var enhanced project.Enhanced
	if err := json.Unmarshal(data, &enhanced); err != nil {
		return nil, fmt.Errorf("decode project record: %w", err)
	}
	return project.FromEnhanced(&enhanced), nil
}

func encodeIndex(entries []IndexEntry) ([]byte, error) {
	if entries == nil {
		entries = []IndexEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	return data, nil
}

// decodeIndex tolerates a missing or empty index blob, returning an
// empty slice so first-write paths need no special casing.
func decodeIndex(data []byte) ([]IndexEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return entries, nil
}
