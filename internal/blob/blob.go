// Package blob persists raw crawled pages.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Store writes page artifacts to a backing object store.
type Store interface {
	// PutObject writes data at path with the given content type and
	// returns the stored object's URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ObjectName builds the canonical object path for a crawled page:
// pages/<date>/<urlhash>.html.
func ObjectName(rawURL string, at time.Time) string {
	sum := sha256.Sum256([]byte(rawURL))
	return fmt.Sprintf("pages/%s/%s.html", at.UTC().Format("2006-01-02"), hex.EncodeToString(sum[:16]))
}
