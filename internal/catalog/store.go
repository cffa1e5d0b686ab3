package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrUnmapped reports a platform or folder with no resolvable shard
// reference in either the manifest or the deep alias map.
var ErrUnmapped = errors.New("no shard reference for platform")

// Store owns the session caches: the root index, per-provider manifests,
// the deep alias map, and decoded shard lists keyed by
// (provider, platform). Every cache is write-once-per-key and lives for
// the process lifetime; concurrent resolutions of the same key share a
// single in-flight fetch.
type Store struct {
	client *Client
	log    *slog.Logger

	mu        sync.RWMutex
	index     *IndexRoot
	manifests map[string]Manifest
	aliases   DeepAliasMap
	shards    map[string][]Entry

	group singleflight.Group
}

// NewStore creates an empty store backed by the given client.
func NewStore(c *Client, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		client:    c,
		log:       log,
		manifests: make(map[string]Manifest),
		shards:    make(map[string][]Entry),
	}
}

// Init fetches the root index and prefetches the deep alias map. An
// index failure is terminal; a missing alias map only disables deep
// alias hits and is logged as a warning.
func (s *Store) Init(ctx context.Context) error {
	index, err := s.client.FetchIndex(ctx)
	if err != nil {
		return fmt.Errorf("loading index: %w", err)
	}

	aliases, err := s.client.FetchAliasMap(ctx)
	if err != nil {
		s.log.Warn("deep alias map not available, basic navigation only", "error", err)
		aliases = nil
	}

	s.mu.Lock()
	s.index = index
	s.aliases = aliases
	s.mu.Unlock()
	return nil
}

// Index returns the root index, or nil before Init.
func (s *Store) Index() *IndexRoot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// Providers returns all provider ids in sorted order.
func (s *Store) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil
	}
	provs := make([]string, 0, len(s.index.Collections))
	for p := range s.index.Collections {
		provs = append(provs, p)
	}
	sort.Strings(provs)
	return provs
}

// Platforms returns the platform summaries of one provider in index
// order, or nil for an unknown provider.
func (s *Store) Platforms(provider string) []PlatformSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil
	}
	return s.index.Collections[provider].Platforms
}

// AliasMap returns the deep alias map, which may be nil.
func (s *Store) AliasMap() DeepAliasMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aliases
}

// Manifest returns the manifest for a provider, fetching it on first
// use. Concurrent callers share one fetch.
func (s *Store) Manifest(ctx context.Context, provider string) (Manifest, error) {
	s.mu.RLock()
	m, ok := s.manifests[provider]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do("manifest/"+provider, func() (any, error) {
		m, err := s.client.FetchManifest(fetchCtx, provider)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.manifests[provider] = m
		s.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Manifest), nil
}

func shardKey(provider, platform string) string {
	return provider + "/" + platform
}

// Cached returns the cached entry list for a key without fetching.
func (s *Store) Cached(provider, platform string) ([]Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.shards[shardKey(provider, platform)]
	return entries, ok
}

// Resolve returns the entries of a platform or deep sub-folder,
// fetching and caching them on first use. Resolution goes through the
// provider manifest, falling back to the deep alias map for the
// nested-structure provider; alias-resolved lists are filtered down to
// entries whose path contains the folder name. Multi-part shard refs
// are fetched in parallel and concatenated in ref order.
//
// A shard fetch failing with a non-success status contributes an empty
// list. The shared fetch is detached from the first caller's
// cancellation: once a population starts it runs to completion so a
// superseded search cannot poison the cache for a live one. Callers
// that were cancelled discard the returned result themselves.
func (s *Store) Resolve(ctx context.Context, provider, platform string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entries, ok := s.Cached(provider, platform); ok {
		return entries, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do("shard/"+shardKey(provider, platform), func() (any, error) {
		// A racing caller may have populated the key while we queued.
		if entries, ok := s.Cached(provider, platform); ok {
			return entries, nil
		}

		refs, filtered, err := s.resolveRefs(fetchCtx, provider, platform)
		if err != nil {
			return nil, err
		}

		entries, err := s.fetchAll(fetchCtx, refs)
		if err != nil {
			return nil, err
		}
		if filtered {
			entries = filterByPathSegment(entries, platform)
		}

		s.mu.Lock()
		s.shards[shardKey(provider, platform)] = entries
		s.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

// resolveRefs determines the shard files backing a key and whether the
// result needs alias path filtering.
func (s *Store) resolveRefs(ctx context.Context, provider, platform string) (ShardRef, bool, error) {
	manifest, err := s.Manifest(ctx, provider)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		s.log.Warn("manifest unavailable", "provider", provider, "error", err)
		manifest = nil
	}

	aliased := false
	if provider == DeepAliasProvider {
		s.mu.RLock()
		_, aliased = s.aliases[platform]
		s.mu.RUnlock()
	}

	if node, ok := manifest[platform]; ok && len(node.File) > 0 {
		return node.File, aliased, nil
	}
	if aliased {
		s.mu.RLock()
		file := s.aliases[platform]
		s.mu.RUnlock()
		return ShardRef{DeepAliasProvider + "/" + file}, true, nil
	}
	return nil, false, fmt.Errorf("%w: %s/%s", ErrUnmapped, provider, platform)
}

// fetchAll fetches every shard ref in parallel, preserving ref order
// then in-file order in the concatenated result.
func (s *Store) fetchAll(ctx context.Context, refs ShardRef) ([]Entry, error) {
	parts := make([][]Entry, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			entries, err := s.client.FetchShard(ctx, ref)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("shard fetch failed, treating as empty", "shard", ref, "error", err)
				}
				return
			}
			parts[i] = entries
		}(i, ref)
	}
	wg.Wait()

	// Never cache a list truncated by cancellation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	entries := make([]Entry, 0, total)
	for _, p := range parts {
		entries = append(entries, p...)
	}
	return entries, nil
}

// filterByPathSegment keeps entries whose path contains the folder name
// by substring or exact segment match.
func filterByPathSegment(entries []Entry, folder string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		for _, seg := range e.Path {
			if seg == folder || strings.Contains(seg, folder) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
