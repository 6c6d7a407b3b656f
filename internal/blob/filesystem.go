package blob

import (
	"configforge/internal/infra/blob/fs"
)

// NewFilesystem returns a Store rooted at root, creating it if needed.
// An empty root uses ./exports.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
