// Package blob defines the opaque object-storage contract the dispatcher
// and worker call against for résumé/cover-letter artifacts and
// screenshots. Concrete backends (S3, GCS, local disk) are out of scope
// (spec §1) — this package pins the boundary the rest of the module codes
// to.
package blob

import "context"

// Store uploads opaque artifacts and returns a fetchable URL. Callers never
// inspect the URL scheme.
type Store interface {
	// Put uploads content under a caller-chosen key and returns a URL
	// suitable for storage on an Application (resume_url, cover_letter_url,
	// screenshot_url).
	Put(ctx context.Context, key string, contentType string, content []byte) (url string, err error)
}
