package storage

import (
	"fmt"
	"path"
	"strings"
)

// DocumentKey builds the key for one uploaded blob. uploadID is unique per
// mutation, so concurrent writers never share a key, while the content hash
// keeps a retried Put within the same mutation idempotent.
func DocumentKey(tenantID, documentID, uploadID, contentHash, originalName string) string {
	return fmt.Sprintf("tenants/%s/documents/%s/%s/%s%s", tenantID, documentID, uploadID, contentHash, Extension(originalName))
}

// Extension returns the lower cased extension of name including the dot,
// or an empty string when it has none or it is not plain alphanumeric.
func Extension(name string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/")))
	if len(ext) < 2 || len(ext) > 16 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
