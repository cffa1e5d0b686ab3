package catalog

import (
	"encoding/json"
	"fmt"
)

// DeepAliasProvider is the one provider whose archives carry nested
// internal structure and therefore have a deep alias map. Generalizing
// to per-provider alias maps would only need this to become a set.
const DeepAliasProvider = "Internet_Archive"

// IndexRoot is the root catalog document listing every provider and its
// platform summaries. Fetched once at startup, immutable for the session.
type IndexRoot struct {
	Collections map[string]ProviderSummary `json:"collections"`
}

// ProviderSummary lists the platforms of one provider.
type ProviderSummary struct {
	Platforms []PlatformSummary `json:"platforms"`
}

// PlatformSummary names one platform within a provider. Count is
// advisory, for display only; it is not guaranteed to match the real
// shard length.
type PlatformSummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Entry is one downloadable file in a shard. Path is present only for
// providers with nested structure and is used as a filter predicate,
// never displayed.
type Entry struct {
	Name string   `json:"name"`
	URL  string   `json:"url"`
	Size string   `json:"size"`
	Path []string `json:"path,omitempty"`
}

// ShardRef is one or more shard file paths. Manifests encode it as
// either a bare string or a list of strings (multi-part platforms).
type ShardRef []string

func (r *ShardRef) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*r = ShardRef{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("shard ref must be a string or a list of strings: %w", err)
	}
	*r = many
	return nil
}

func (r ShardRef) MarshalJSON() ([]byte, error) {
	if len(r) == 1 {
		return json.Marshal(r[0])
	}
	return json.Marshal([]string(r))
}

// ManifestNode is one platform's manifest value.
type ManifestNode struct {
	File ShardRef `json:"file"`
}

// Manifest maps platform names to shard references for one provider.
type Manifest map[string]ManifestNode

// DeepAliasMap maps a nested internal folder name to the shard file
// that contains it. Entries resolved through an alias are filtered by
// their Path attribute down to the alias's scope.
type DeepAliasMap map[string]string
