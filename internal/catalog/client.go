package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client fetches catalog documents (index, manifests, alias map, shards)
// from the data origin. All fetches are context-bound and rate-limited.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewClient creates a catalog client rooted at baseURL. The client
// requests `{baseURL}/data/...` paths, matching the static layout the
// offline pipeline produces.
func NewClient(baseURL string, reqPerSec float64) *Client {
	if reqPerSec <= 0 {
		reqPerSec = 10.0
	}
	return &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), 8),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// BaseURL returns the configured data origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	url := c.baseURL + "/data/" + path
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

// FetchIndex retrieves the root index document.
func (c *Client) FetchIndex(ctx context.Context) (*IndexRoot, error) {
	var root IndexRoot
	if err := c.getJSON(ctx, "index.json", &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// FetchManifest retrieves the platform manifest for one provider.
func (c *Client) FetchManifest(ctx context.Context, provider string) (Manifest, error) {
	var m Manifest
	if err := c.getJSON(ctx, provider+"/_manifest.json", &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FetchAliasMap retrieves the deep alias map for the nested-structure
// provider. Absence of the map is an error here; callers treat it as
// non-fatal.
func (c *Client) FetchAliasMap(ctx context.Context) (DeepAliasMap, error) {
	var m DeepAliasMap
	if err := c.getJSON(ctx, DeepAliasProvider+"/_platform_map.json", &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FetchShard retrieves one shard file, an ordered list of entries. The
// shard path is taken verbatim from a manifest or alias map value.
func (c *Client) FetchShard(ctx context.Context, shardPath string) ([]Entry, error) {
	var entries []Entry
	if err := c.getJSON(ctx, shardPath, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
