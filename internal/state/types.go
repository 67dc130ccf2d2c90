package state

import "github.com/fyrsmithlabs/projectd/internal/project"

// UpdateOptions describes one read-modify-write pass over a project.
// Zero-value fields are skipped, so callers set only what they change.
type UpdateOptions struct {
	// Name renames the project when non-empty. A whitespace-only name
	// is rejected.
	Name string

	// UpdatedFiles maps path to new content. An existing live file is
	// replaced in place, keeping its createdAt; any other path gets a
	// fresh entry, including a path whose only earlier file is
	// soft-deleted.
	UpdatedFiles map[string]string

	// DeletedFiles lists paths to soft-delete. Absent or already
	// deleted paths are skipped.
	DeletedFiles []string

	// NewRequirements appends one requirements entry when non-blank.
	NewRequirements string

	// RequirementsUserID is recorded on the appended entry.
	RequirementsUserID string

	// Metadata is shallow-merged into the record's metadata bag.
	Metadata map[string]any

	// Webhooks replaces the registered webhooks wholesale when non-nil.
	// An empty non-nil slice clears them.
	Webhooks []project.Webhook
}

// UpdateResult reports what an update changed. The path slices carry
// only paths actually touched, in application order.
type UpdateResult struct {
	Success      bool           `json:"success"`
	Project      *project.State `json:"project"`
	NewFiles     []string       `json:"newFiles,omitempty"`
	UpdatedFiles []string       `json:"updatedFiles,omitempty"`
	DeletedFiles []string       `json:"deletedFiles,omitempty"`
}

// FileFilter narrows GetProjectFiles output. The zero value returns all
// live files.
type FileFilter struct {
	// IncludeDeleted also returns soft-deleted files.
	IncludeDeleted bool

	// IncludePaths restricts the result to exactly these paths.
	IncludePaths []string

	// ExcludePaths drops these paths from the result.
	ExcludePaths []string

	// Pattern is a regular expression matched against the path. An
	// invalid pattern is ErrInvalidInput.
	Pattern string
}

// ListOptions parameterizes ListProjects. TenantID scopes the caller,
// not the records; leave it empty for an unscoped caller.
type ListOptions struct {
	UserID        string
	TenantID      string
	Limit         int
	Offset        int
	SortBy        string
	SortDirection string
}

// DeploymentInput is the caller-supplied part of a deployment entry.
// The manager assigns the id and timestamp.
type DeploymentInput struct {
	URL          string
	Provider     string
	Status       string
	ErrorMessage string
	Metadata     map[string]any
}
