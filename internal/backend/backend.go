// Package backend adapts the three retrieval lanes (upstream full-text,
// internal dense/semantic, and a deterministic local stub for tests and
// offline development) behind a single interface the orchestrator drives.
package backend

import (
	"context"

	"github.com/patentfusion/rrfusion/internal/model"
)

// LaneBackend is the common surface every lane source implements, whether
// it's an HTTP call to an upstream patent database or a local stub.
type LaneBackend interface {
	// Search runs a lane query and returns a ranked document list
	// (highest-scoring first).
	Search(ctx context.Context, params model.SearchParams) ([]model.Document, error)

	// FetchSnippets retrieves the requested text fields for a batch of
	// doc ids, used to hydrate a peek/get_snippets request that misses the
	// local cache.
	FetchSnippets(ctx context.Context, docIDs []string, fields []string) ([]model.Snippet, error)

	// FetchPublication retrieves the full bibliographic record for one doc.
	// idType names the identifier namespace docID belongs to ("app_doc_id",
	// "pub_id", "exam_id", ...); empty or "app_doc_id" skips resolution.
	FetchPublication(ctx context.Context, docID string, idType string) (*model.Document, error)

	// Close releases any held resources (HTTP connections, etc).
	Close() error
}

// Registry resolves a lane name to its configured backend, sharing one
// underlying HTTP client between lanes that hit the same upstream so
// connection pooling and circuit-breaker state aren't duplicated.
type Registry struct {
	byLane  map[string]LaneBackend
	closers map[LaneBackend]struct{}
}

// NewRegistry builds a registry from an explicit lane -> backend mapping.
// Callers that want the upstream and internal-dense lanes to share a client
// should pass the same *HTTPBackend value for both lane keys.
func NewRegistry(byLane map[string]LaneBackend) *Registry {
	return &Registry{byLane: byLane}
}

// Get returns the backend configured for a lane, or ok=false if unconfigured.
func (r *Registry) Get(lane string) (LaneBackend, bool) {
	b, ok := r.byLane[lane]
	return b, ok
}

// All returns every distinct backend instance in the registry, used when a
// caller needs to fall back across lanes (e.g. hydrating a cache miss for a
// doc id that isn't tied to a specific lane).
func (r *Registry) All() []LaneBackend {
	seen := make(map[LaneBackend]struct{}, len(r.byLane))
	out := make([]LaneBackend, 0, len(r.byLane))
	for _, b := range r.byLane {
		if _, done := seen[b]; done {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}

// Close closes every distinct backend instance exactly once, even when
// multiple lanes share the same instance.
func (r *Registry) Close() error {
	seen := make(map[LaneBackend]struct{}, len(r.byLane))
	var firstErr error
	for _, b := range r.byLane {
		if _, done := seen[b]; done {
			continue
		}
		seen[b] = struct{}{}
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
