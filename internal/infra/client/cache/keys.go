package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Key derives a deterministic cache key for an endpoint and its parameters.
// Parameter order does not matter. The key keeps the endpoint as a readable
// prefix so all entries of an endpoint can be invalidated together.
func Key(endpoint string, params map[string]string) string {
	endpoint = strings.TrimSuffix(endpoint, "/")
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	// Encode sorts by key
	canonical := endpoint + "?" + values.Encode()
	sum := sha256.Sum256([]byte(canonical))
	return EndpointPrefix(endpoint) + hex.EncodeToString(sum[:])
}

// EndpointPrefix is the prefix shared by every key of endpoint.
func EndpointPrefix(endpoint string) string {
	return strings.TrimSuffix(endpoint, "/") + "#"
}
