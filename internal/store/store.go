package store

import "context"

// Store loads and saves the whole document. Implementations must serialize
// saves internally; callers always save the authoritative in-memory copy,
// never a stale read.
type Store interface {
	// Load returns the persisted document, or an empty one when nothing
	// usable is stored. Corrupt state is swallowed, not propagated.
	Load(ctx context.Context) (*Document, error)
	// Save rewrites the entire document, replacing prior content.
	Save(ctx context.Context, doc *Document) error
	// Close releases any underlying resources.
	Close()
}
