// Package ids mints the identifiers used to key cached state: query hashes,
// lane/fusion run ids, and normalized classification-code subgroups.
package ids

import (
	"crypto/sha1" //nolint:gosec // not used for security, only for deterministic cache keys
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// HashQuery returns a stable 16-hex-character digest of a query string plus
// its filters, used to key cached lane runs for a given search.
func HashQuery(query string, filters map[string]any) string {
	if filters == nil {
		filters = map[string]any{}
	}
	payload := map[string]any{"q": query, "filters": filters}
	raw, err := canonicalJSON(payload)
	if err != nil {
		// canonicalJSON only fails on unmarshalable input, which a query+filter
		// map built from JSON-safe values never is.
		panic(fmt.Sprintf("ids: failed to encode query payload: %v", err))
	}
	sum := sha1.Sum(raw) //nolint:gosec
	return hex.EncodeToString(sum[:])[:16]
}

// canonicalJSON marshals v with sorted map keys and no extra whitespace, so
// the same logical payload always hashes to the same bytes.
func canonicalJSON(v any) ([]byte, error) {
	// json.Marshal already sorts map[string]any keys lexicographically and
	// uses compact output, matching Python's json.dumps(sort_keys=True,
	// separators=(",", ":")).
	return json.Marshal(v)
}

// NewLaneRunID mints a run id for a single lane search: "{lane}-{8 hex}".
func NewLaneRunID(lane string) string {
	return fmt.Sprintf("%s-%s", lane, shortHex(8))
}

// NewFusionRunID mints a run id for a blend or mutation: "fusion-{10 hex}".
func NewFusionRunID() string {
	return fmt.Sprintf("fusion-%s", shortHex(10))
}

func shortHex(n int) string {
	id := uuid.New()
	raw := hex.EncodeToString(id[:])
	if n > len(raw) {
		n = len(raw)
	}
	return raw[:n]
}

