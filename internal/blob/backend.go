package blob

import (
	"io"
	"os"
)

// Backend is the storage capability a blob Service is built on: put/get/
// delete/url, so the rest of the package is indifferent to whether bytes
// land on local disk or in an S3-compatible bucket.
type Backend interface {
	// PutFile uploads the already-validated temp file at relPath, sized
	// size bytes. The backend owns closing/removing tmp once done.
	PutFile(relPath string, tmp *os.File, size int64) error
	Open(relPath string) (io.ReadCloser, error)
	Delete(relPath string) error
	// URL returns a URL the backend can serve relPath from directly, or ""
	// if the caller should proxy bytes through the application instead
	// (the local backend has no public URL of its own).
	URL(relPath string) string
}
