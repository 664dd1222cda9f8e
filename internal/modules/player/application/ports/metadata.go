package ports

import "context"

// Lookup is one provider's best-effort answer for an (artist, title) pair.
// Genres may be empty and Year may be 0 when the provider has no guess.
type Lookup struct {
	Genres []string
	Year   int
}

// MetadataProvider is one of the independent services consulted during a
// consensus round. Implementations may be slow or fail; the resolver treats
// any error as an abstention.
type MetadataProvider interface {
	// Name identifies the provider in logs and votes.
	Name() string

	// Lookup returns the provider's guess for the pair. It must honor ctx
	// cancellation promptly since the round deadline aborts laggards.
	Lookup(ctx context.Context, artist, title string) (*Lookup, error)
}
