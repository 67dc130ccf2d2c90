package project

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// Now returns the current time in Unix milliseconds, the timestamp unit
// used throughout persisted records.
func Now() int64 {
	return timeNow().UnixMilli()
}

// MetadataUserIDKey is the metadata key carrying the owning user id.
// The index and listing filters read it; nothing else interprets it.
const MetadataUserIDKey = "userId"

// State is the canonical project record.
//
// JSON field names are the persisted wire contract shared by every
// backend; they must not change.
type State struct {
	// ID is the unique project identifier (UUID), immutable after creation.
	ID string `json:"id"`

	// Name is the human-readable project name.
	Name string `json:"name"`

	// CreatedAt is the creation time in Unix milliseconds.
	CreatedAt int64 `json:"createdAt"`

	// UpdatedAt is rewritten on every mutation, Unix milliseconds.
	UpdatedAt int64 `json:"updatedAt"`

	// Files holds project files in insertion order. At most one
	// non-deleted file may exist per path.
	Files []File `json:"files"`

	// Requirements is the append-only requirements history.
	Requirements []RequirementsEntry `json:"requirements"`

	// Deployments is the append-only deployment history.
	Deployments []Deployment `json:"deployments"`

	// CurrentDeploymentID points at the most recent deployment entry.
	CurrentDeploymentID string `json:"currentDeploymentId,omitempty"`

	// Webhooks is replaced wholesale by updates when supplied. Delivery
	// is owned by external subsystems; this is state only.
	Webhooks []Webhook `json:"webhooks,omitempty"`

	// Metadata is a free-form extension bag. Shape is validated only at
	// the boundaries that read specific keys.
	Metadata map[string]any `json:"metadata,omitempty"`

	// TenantID is the optional owner scope. Empty means unscoped.
	TenantID string `json:"tenantId,omitempty"`
}

// File is a single project file. Deletion is always soft: the record
// stays with IsDeleted set and UpdatedAt bumped.
type File struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	IsDeleted bool   `json:"isDeleted,omitempty"`
}

// RequirementsEntry is one immutable requirements history entry.
type RequirementsEntry struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Timestamp int64          `json:"timestamp"`
	UserID    string         `json:"userId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Deployment is one immutable deployment history entry.
type Deployment struct {
	ID           string         `json:"id"`
	URL          string         `json:"url"`
	Provider     string         `json:"provider"`
	Timestamp    int64          `json:"timestamp"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Webhook is a registered webhook endpoint stored on the project.
type Webhook struct {
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"`
}

// CreateOptions are the inputs for creating a project record.
type CreateOptions struct {
	// Name is required and must be non-blank.
	Name string

	// InitialRequirements seeds exactly one requirements entry when
	// non-blank.
	InitialRequirements string

	// UserID is the owning user, recorded in metadata and on the seeded
	// requirements entry.
	UserID string

	// TenantID scopes the record to a tenant. Empty means unscoped.
	TenantID string

	// Metadata is copied into the record's metadata bag.
	Metadata map[string]any
}

// NewState builds a new project record: generated UUID, millisecond
// timestamps, empty histories, and at most one seeded requirements entry.
// This is the single construction path; adapters never hand-build records.
func NewState(opts CreateOptions) (*State, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}

	now := Now()
	s := &State{
		ID:           uuid.NewString(),
		Name:         opts.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
		Files:        []File{},
		Requirements: []RequirementsEntry{},
		Deployments:  []Deployment{},
		TenantID:     opts.TenantID,
	}

	if len(opts.Metadata) > 0 {
		s.Metadata = copyMetadata(opts.Metadata)
	}
	if opts.UserID != "" {
		if s.Metadata == nil {
			s.Metadata = make(map[string]any, 1)
		}
		s.Metadata[MetadataUserIDKey] = opts.UserID
	}

	if strings.TrimSpace(opts.InitialRequirements) != "" {
		s.Requirements = append(s.Requirements, RequirementsEntry{
			ID:        uuid.NewString(),
			Content:   opts.InitialRequirements,
			Timestamp: now,
			UserID:    opts.UserID,
		})
	}

	return s, nil
}

// Validate checks record consistency before persistence: non-empty id and
// name, and at most one non-deleted file per path.
func (s *State) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil project state", ErrInvalidInput)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: blank project id", ErrInvalidInput)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: blank project name", ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(s.Files))
	for _, f := range s.Files {
		if f.Path == "" {
			return fmt.Errorf("%w: file with blank path", ErrInvalidInput)
		}
		if f.IsDeleted {
			continue
		}
		if _, dup := seen[f.Path]; dup {
			return fmt.Errorf("%w: duplicate live file path %q", ErrInvalidInput, f.Path)
		}
		seen[f.Path] = struct{}{}
	}

	return nil
}

// Touch rewrites UpdatedAt to the current time.
func (s *State) Touch() {
	s.UpdatedAt = Now()
}

// OwnerID returns the owning user id recorded in metadata, or "".
func (s *State) OwnerID() string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	if v, ok := s.Metadata[MetadataUserIDKey].(string); ok {
		return v
	}
	return ""
}

// FileAt returns the index of the non-deleted file at path, or -1.
func (s *State) FileAt(path string) int {
	for i := range s.Files {
		if !s.Files[i].IsDeleted && s.Files[i].Path == path {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy. Stored records are always cloned on the way
// in and out of adapters and the cache so callers never alias them.
// Metadata bags are copied one level deep; values are treated as opaque.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	out := *s
	if s.Files != nil {
		out.Files = make([]File, len(s.Files))
		copy(out.Files, s.Files)
	}
	if s.Requirements != nil {
		out.Requirements = make([]RequirementsEntry, len(s.Requirements))
		for i, r := range s.Requirements {
			r.Metadata = copyMetadata(r.Metadata)
			out.Requirements[i] = r
		}
	}
	if s.Deployments != nil {
		out.Deployments = make([]Deployment, len(s.Deployments))
		for i, d := range s.Deployments {
			d.Metadata = copyMetadata(d.Metadata)
			out.Deployments[i] = d
		}
	}
	if s.Webhooks != nil {
		out.Webhooks = make([]Webhook, len(s.Webhooks))
		for i, w := range s.Webhooks {
			w.Events = append([]string(nil), w.Events...)
			out.Webhooks[i] = w
		}
	}
	out.Metadata = copyMetadata(s.Metadata)

	return &out
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
