package rule

import "context"

// CatalogSource loads a rule catalog from external storage. Interface
// owned by domain per hexagonal architecture; the file loader and test
// fixtures implement it.
type CatalogSource interface {
	// Load parses and returns a complete catalog. Any invalid rule
	// rejects the whole catalog.
	Load(ctx context.Context) (Catalog, error)
}
