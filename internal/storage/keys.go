package storage

import (
	"fmt"
	"strings"
)

// Logical key layout shared by the key-value backends.
const (
	projectKeyPrefix = "project:"
	indexKey         = "projects:index"
	fileKeyPrefix    = "file:"
)

// ProjectKey returns the record key for a project id.
func ProjectKey(id string) string {
	return projectKeyPrefix + id
}

// IndexKey returns the well-known key holding the listing index.
func IndexKey() string {
	return indexKey
}

// FileChunkKey returns the key for one overflow chunk of a file's
// content.
func FileChunkKey(projectID, path string, chunk int) string {
	return fmt.Sprintf("%s%s:%s:%d", fileKeyPrefix, projectID, path, chunk)
}

// FileChunkPrefix returns the key prefix covering every chunk stored
// for a project, used to purge overflow content on delete.
func FileChunkPrefix(projectID string) string {
	return fileKeyPrefix + projectID + ":"
}

// ProjectIDFromKey extracts the project id from a record key, or ""
// when the key is not a project record key.
func ProjectIDFromKey(key string) string {
	if !strings.HasPrefix(key, projectKeyPrefix) {
		return ""
	}
	return strings.TrimPrefix(key, projectKeyPrefix)
}
