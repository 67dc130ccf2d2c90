package project

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/zeebo/xxh3"
)

// DefaultChunkThreshold is the content size above which size-limited
// backends split file contents into chunk records.
const DefaultChunkThreshold = 256 * 1024

// Deterministic defaults for enhanced fields added during up-conversion.
const (
	StatusOpen     = "open"
	PriorityNormal = "normal"
)

// SearchIndex holds derived search terms for a project. Population is
// owned by external subsystems (through the metadata bag); this layer
// only stores and defaults it.
type SearchIndex struct {
	Keywords     []string `json:"keywords"`
	Features     []string `json:"features"`
	Technologies []string `json:"technologies"`
}

// EnhancedFile extends File with derived storage attributes.
type EnhancedFile struct {
	File

	// Size is the content length in bytes.
	Size int `json:"size"`

	// MimeType is derived from the path extension.
	MimeType string `json:"mimeType"`

	// Hash is the xxh3 digest of the content, fixed-width hex.
	Hash string `json:"hash"`

	// Chunks is the number of chunk records the content occupies on
	// size-limited backends, 0 when stored inline.
	Chunks int `json:"chunks,omitempty"`
}

// EnhancedRequirementsEntry adds workflow fields to a requirements entry.
type EnhancedRequirementsEntry struct {
	RequirementsEntry

	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// EnhancedDeployment adds workflow fields to a deployment entry.
type EnhancedDeployment struct {
	Deployment

	Priority string `json:"priority"`
}

// Enhanced is the schema-rich projection of State used by backends that
// support it. Base fields are identical; the additions are derived and
// never authoritative.
type Enhanced struct {
	ID                  string                      `json:"id"`
	Name                string                      `json:"name"`
	CreatedAt           int64                       `json:"createdAt"`
	UpdatedAt           int64                       `json:"updatedAt"`
	Files               []EnhancedFile              `json:"files"`
	Requirements        []EnhancedRequirementsEntry `json:"requirements"`
	Deployments         []EnhancedDeployment        `json:"deployments"`
	CurrentDeploymentID string                      `json:"currentDeploymentId,omitempty"`
	Webhooks            []Webhook                   `json:"webhooks,omitempty"`
	Metadata            map[string]any              `json:"metadata,omitempty"`
	TenantID            string                      `json:"tenantId,omitempty"`
	SearchIndex         SearchIndex                 `json:"searchIndex"`
}

// ContentHash returns the deterministic content digest used for enhanced
// file records: xxh3, 16 hex digits.
func ContentHash(content string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(content))
}

// ToEnhanced converts a State to its enhanced projection using the
// default chunk threshold. Pure: the input is not mutated and the output
// shares no memory with it.
func ToEnhanced(s *State) *Enhanced {
	return ToEnhancedWithThreshold(s, DefaultChunkThreshold)
}

// ToEnhancedWithThreshold converts a State to its enhanced projection.
// Per-file size, hash, and mime type are computed from content; chunk
// counts reflect the given threshold; searchIndex is read from the
// metadata bag when present and defaults to empty arrays otherwise.
func ToEnhancedWithThreshold(s *State, chunkThreshold int) *Enhanced {
	if s == nil {
		return nil
	}
	base := s.Clone()

	e := &Enhanced{
		ID:                  base.ID,
		Name:                base.Name,
		CreatedAt:           base.CreatedAt,
		UpdatedAt:           base.UpdatedAt,
		Files:               make([]EnhancedFile, len(base.Files)),
		Requirements:        make([]EnhancedRequirementsEntry, len(base.Requirements)),
		Deployments:         make([]EnhancedDeployment, len(base.Deployments)),
		CurrentDeploymentID: base.CurrentDeploymentID,
		Webhooks:            base.Webhooks,
		Metadata:            base.Metadata,
		TenantID:            base.TenantID,
		SearchIndex:         searchIndexFromMetadata(base.Metadata),
	}

	for i, f := range base.Files {
		e.Files[i] = EnhancedFile{
			File:     f,
			Size:     len(f.Content),
			MimeType: mimeTypeForPath(f.Path),
			Hash:     ContentHash(f.Content),
			Chunks:   chunkCount(len(f.Content), chunkThreshold),
		}
	}
	for i, r := range base.Requirements {
		e.Requirements[i] = EnhancedRequirementsEntry{
			RequirementsEntry: r,
			Status:            StatusOpen,
			Priority:          PriorityNormal,
		}
	}
	for i, d := range base.Deployments {
		e.Deployments[i] = EnhancedDeployment{
			Deployment: d,
			Priority:   PriorityNormal,
		}
	}

	return e
}

// FromEnhanced strips the derived fields and returns the base record.
// Every base field round-trips untouched, including soft-delete flags.
func FromEnhanced(e *Enhanced) *State {
	if e == nil {
		return nil
	}

	s := &State{
		ID:                  e.ID,
		Name:                e.Name,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
		Files:               make([]File, len(e.Files)),
		Requirements:        make([]RequirementsEntry, len(e.Requirements)),
		Deployments:         make([]Deployment, len(e.Deployments)),
		CurrentDeploymentID: e.CurrentDeploymentID,
		TenantID:            e.TenantID,
	}
	for i, f := range e.Files {
		s.Files[i] = f.File
	}
	for i, r := range e.Requirements {
		s.Requirements[i] = r.RequirementsEntry
	}
	for i, d := range e.Deployments {
		s.Deployments[i] = d.Deployment
	}
	if e.Webhooks != nil {
		s.Webhooks = make([]Webhook, len(e.Webhooks))
		for i, w := range e.Webhooks {
			w.Events = append([]string(nil), w.Events...)
			s.Webhooks[i] = w
		}
	}
	s.Metadata = copyMetadata(e.Metadata)

	return s
}

func chunkCount(size, threshold int) int {
	if threshold <= 0 {
		threshold = DefaultChunkThreshold
	}
	if size <= threshold {
		return 0
	}
	return (size + threshold - 1) / threshold
}

// searchIndexFromMetadata extracts a searchIndex shape from the metadata
// bag. Loose typing is expected; anything unreadable yields the empty
// default.
func searchIndexFromMetadata(meta map[string]any) SearchIndex {
	idx := SearchIndex{
		Keywords:     []string{},
		Features:     []string{},
		Technologies: []string{},
	}
	raw, ok := meta["searchIndex"].(map[string]any)
	if !ok {
		return idx
	}
	idx.Keywords = stringsFromAny(raw["keywords"])
	idx.Features = stringsFromAny(raw["features"])
	idx.Technologies = stringsFromAny(raw["technologies"])
	return idx
}

func stringsFromAny(v any) []string {
	out := []string{}
	switch vals := v.(type) {
	case []string:
		out = append(out, vals...)
	case []any:
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// mimeTable covers the extensions generated projects actually contain.
// The local table takes precedence over the platform mime registry so
// hashes and stored types stay identical across hosts.
var mimeTable = map[string]string{
	".css":  "text/css",
	".html": "text/html",
	".js":   "text/javascript",
	".json": "application/json",
	".jsx":  "text/javascript",
	".md":   "text/markdown",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".ts":   "text/typescript",
	".tsx":  "text/typescript",
	".txt":  "text/plain",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
}

func mimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mimeTable[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
