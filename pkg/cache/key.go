package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached response within a session.
type CacheKey struct {
	// Endpoint is host plus path (e.g. "pokeapi.co/api/v2/type/fire")
	Endpoint string

	// QueryParams are the query parameters (e.g. {"limit": "40"})
	QueryParams url.Values
}

// String generates a deterministic key string, without the session prefix.
// Format: endpoint:query1=val1:query2=val2
//
// Example:
//
//	pokeapi.co/api/v2/pokemon:limit=40
func (k CacheKey) String() string {
	parts := []string{}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
