package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/JohnDeved/myrient-explorer/internal/catalog"
	"github.com/JohnDeved/myrient-explorer/internal/nav"
)

// Kind distinguishes the two result variants.
type Kind int

const (
	// KindFolder is a navigable platform or deep sub-folder.
	KindFolder Kind = iota
	// KindFile is a downloadable entry.
	KindFile
)

// Scope selects how far a search reaches.
type Scope int

const (
	// ScopeShallow searches only already-loaded data.
	ScopeShallow Scope = iota
	// ScopeDeep fetches and scans shard data not yet loaded.
	ScopeDeep
)

// Target selects what a search looks for.
type Target int

const (
	TargetFiles Target = iota
	TargetFolders
	TargetBoth
)

func (t Target) String() string {
	switch t {
	case TargetFolders:
		return "folders"
	case TargetBoth:
		return "both"
	default:
		return "files"
	}
}

// ParseTarget maps a flag value to a Target.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "files", "":
		return TargetFiles, nil
	case "folders":
		return TargetFolders, nil
	case "both":
		return TargetBoth, nil
	}
	return TargetFiles, fmt.Errorf("unknown search target %q (want files, folders or both)", s)
}

// Config is the orthogonal search configuration.
type Config struct {
	Scope  Scope
	Target Target
}

// Result is one engine output item. Folder results carry an advisory
// Count; file results carry the underlying Entry with the archive
// extension stripped from Name for display.
type Result struct {
	ID         string
	Name       string
	Provider   string
	Platform   string
	Count      int
	Breadcrumb string
	Kind       Kind
	Entry      *catalog.Entry
}

// Scan is the output of one Search call. Immediate holds results known
// without any deep scanning; Batches streams deep file scan matches as
// they arrive and is closed when the scan finishes or is cancelled.
type Scan struct {
	Immediate []Result
	Batches   <-chan []Result
	cancel    context.CancelFunc
}

// Cancel aborts the scan's outstanding fetches. Results from a
// cancelled scan are discarded, never merged.
func (s *Scan) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

const deepScanBatchSize = 8

// Engine resolves a query and navigation state into a result set using
// one or more strategies: browse, shallow filter, deep folder scan, and
// deep file scan. At most one deep scan is current at a time; starting
// a new search supersedes and cancels the previous one.
type Engine struct {
	store *catalog.Store
	log   *slog.Logger

	mu     sync.Mutex
	gen    int
	cancel context.CancelFunc
}

// NewEngine creates a search engine over the given store.
func NewEngine(store *catalog.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: store, log: log}
}

// CancelActive cancels any in-flight deep scan without starting a new
// search. Used when the query is cleared.
func (e *Engine) CancelActive() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()
}

// Search runs one search pass. gen orders passes: a pass cancels the
// registered one only when its generation is at least as new, so a
// delayed older pass can never kill a newer scan — it starts cancelled
// instead. Browsing into an unloaded platform resolves its shard before
// returning, so callers should treat this as a suspension point and
// pass a cancellable context.
func (e *Engine) Search(ctx context.Context, gen int, query string, state nav.State, cfg Config) (*Scan, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if gen >= e.gen {
		if e.cancel != nil {
			e.cancel()
		}
		e.gen = gen
		e.cancel = cancel
	} else {
		cancel()
	}
	e.mu.Unlock()

	scan := &Scan{cancel: cancel}

	normQuery := Normalize(strings.TrimSpace(query))
	tokens := strings.Fields(normQuery)

	// Browse: no query, list the current level.
	if len(tokens) == 0 {
		source, err := e.browseSource(scanCtx, state)
		if err != nil {
			return nil, err
		}
		scan.Immediate = source
		scan.Batches = closedBatches()
		return scan, nil
	}

	// Shallow file search filters the current view only.
	if cfg.Scope == ScopeShallow && cfg.Target == TargetFiles {
		source, err := e.browseSource(scanCtx, state)
		if err != nil {
			return nil, err
		}
		scan.Immediate = shallowFilter(source, tokens, normQuery, cfg.Target)
		scan.Batches = closedBatches()
		return scan, nil
	}

	// Folder matches come from local index data and are immediate.
	if cfg.Target == TargetFolders || cfg.Target == TargetBoth {
		scan.Immediate = append(scan.Immediate, e.folderMatches(state, tokens)...)
		if cfg.Scope == ScopeDeep {
			scan.Immediate = append(scan.Immediate, e.deepFolderMatches(state, normQuery)...)
		}
	}

	// Deep file scan streams progressively.
	if cfg.Scope == ScopeDeep && (cfg.Target == TargetFiles || cfg.Target == TargetBoth) {
		out := make(chan []Result, 1)
		scan.Batches = out
		go e.deepFileScan(scanCtx, state, tokens, out)
	} else {
		scan.Batches = closedBatches()
	}

	return scan, nil
}

func closedBatches() <-chan []Result {
	ch := make(chan []Result)
	close(ch)
	return ch
}

// browseSource lists the current navigation level: platform folders at
// the root or provider level, cached (or freshly resolved) entries
// inside a platform.
func (e *Engine) browseSource(ctx context.Context, state nav.State) ([]Result, error) {
	if state.InPlatform() {
		entries, err := e.store.Resolve(ctx, state.Provider, state.Platform)
		if err != nil {
			if errors.Is(err, catalog.ErrUnmapped) {
				e.log.Warn("platform has no shard reference", "provider", state.Provider, "platform", state.Platform)
				return nil, nil
			}
			return nil, err
		}
		return fileResults(state.Provider, state.Platform, entries), nil
	}

	var out []Result
	for _, provider := range e.store.Providers() {
		if !state.AtRoot() && state.Provider != provider {
			continue
		}
		for _, pl := range e.store.Platforms(provider) {
			out = append(out, Result{
				ID:       folderID(provider, pl.Name),
				Name:     pl.Name,
				Provider: provider,
				Count:    pl.Count,
				Kind:     KindFolder,
			})
		}
	}
	return out, nil
}

// shallowFilter keeps source items matching every query token and
// orders them by relevance: exact normalized match, then prefix match,
// then insertion order. The sort is stable so equal-rank items keep
// their relative order.
func shallowFilter(source []Result, tokens []string, normQuery string, target Target) []Result {
	out := make([]Result, 0, len(source))
	for _, item := range source {
		if target == TargetFiles && item.Kind != KindFile {
			continue
		}
		if target == TargetFolders && item.Kind != KindFolder {
			continue
		}
		candidate := Normalize(item.Name)
		if item.Kind == KindFolder {
			candidate = Normalize(item.Name + " " + item.Provider)
		}
		if matchesAll(candidate, tokens) {
			out = append(out, item)
		}
	}
	SortByRelevance(out, normQuery)
	return out
}

// folderMatches scans the platform summaries of every provider in scope.
func (e *Engine) folderMatches(state nav.State, tokens []string) []Result {
	var out []Result
	for _, provider := range e.store.Providers() {
		if !state.AtRoot() && state.Provider != provider {
			continue
		}
		for _, pl := range e.store.Platforms(provider) {
			if matchesAll(Normalize(pl.Name+" "+provider), tokens) {
				out = append(out, Result{
					ID:       folderID(provider, pl.Name),
					Name:     pl.Name,
					Provider: provider,
					Count:    pl.Count,
					Kind:     KindFolder,
				})
			}
		}
	}
	return out
}

// deepFolderMatches scans the deep alias map for nested folder names
// containing the query. Each hit carries a breadcrumb naming its parent
// shard.
func (e *Engine) deepFolderMatches(state nav.State, normQuery string) []Result {
	if !state.AtRoot() && state.Provider != catalog.DeepAliasProvider {
		return nil
	}
	aliases := e.store.AliasMap()
	if len(aliases) == 0 {
		return nil
	}

	folders := make([]string, 0, len(aliases))
	for folder := range aliases {
		folders = append(folders, folder)
	}
	sort.Strings(folders)

	var out []Result
	for _, folder := range folders {
		if !strings.Contains(Normalize(folder), normQuery) {
			continue
		}
		parent := strings.TrimSuffix(aliases[folder], ".json")
		out = append(out, Result{
			ID:         "deep-" + folderID(catalog.DeepAliasProvider, folder),
			Name:       folder,
			Provider:   catalog.DeepAliasProvider,
			Kind:       KindFolder,
			Breadcrumb: "Internet Archive › " + parent,
		})
	}
	return out
}

// deepFileScan walks every provider in scope, resolving each platform
// in the manifest and testing entry names for all query tokens. Platform
// keys are processed in fixed-size batches to bound concurrency; each
// batch's matches are emitted before the next batch starts. The
// cancellation signal is checked before every batch, and results
// arriving after cancellation are discarded.
func (e *Engine) deepFileScan(ctx context.Context, state nav.State, tokens []string, out chan<- []Result) {
	defer close(out)

	providers := e.store.Providers()
	if !state.AtRoot() {
		providers = []string{state.Provider}
	}

	for _, provider := range providers {
		if ctx.Err() != nil {
			return
		}

		manifest, err := e.store.Manifest(ctx, provider)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.log.Warn("skipping provider, manifest unavailable", "provider", provider, "error", err)
			continue
		}

		keys := make([]string, 0, len(manifest))
		for key := range manifest {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for start := 0; start < len(keys); start += deepScanBatchSize {
			if ctx.Err() != nil {
				return
			}
			end := start + deepScanBatchSize
			if end > len(keys) {
				end = len(keys)
			}
			matches := e.scanBatch(ctx, provider, keys[start:end], state, tokens)
			if ctx.Err() != nil {
				return
			}
			if len(matches) > 0 {
				select {
				case out <- matches:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// scanBatch resolves up to deepScanBatchSize platforms concurrently and
// collects matching entries. Append order within the batch is
// arrival-dependent; display ordering is the presenter's job.
func (e *Engine) scanBatch(ctx context.Context, provider string, keys []string, state nav.State, tokens []string) []Result {
	var (
		mu      sync.Mutex
		matches []Result
		wg      sync.WaitGroup
	)
	for _, key := range keys {
		// Inside a platform, deep scope still only scans that platform.
		if state.InPlatform() && key != state.Platform {
			continue
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			entries, err := e.store.Resolve(ctx, provider, key)
			if err != nil {
				if ctx.Err() == nil {
					e.log.Warn("skipping platform", "provider", provider, "platform", key, "error", err)
				}
				return
			}
			var hits []Result
			for i := range entries {
				if matchesAll(Normalize(entries[i].Name), tokens) {
					hits = append(hits, fileResult(provider, key, i, &entries[i]))
				}
			}
			if len(hits) == 0 {
				return
			}
			mu.Lock()
			matches = append(matches, hits...)
			mu.Unlock()
		}(key)
	}
	wg.Wait()
	return matches
}

func folderID(provider, name string) string {
	return "fold-" + provider + "-" + name
}

func fileResult(provider, platform string, idx int, entry *catalog.Entry) Result {
	return Result{
		ID:         fmt.Sprintf("file-%s-%s-%d", provider, platform, idx),
		Name:       stripArchiveExt(entry.Name),
		Provider:   provider,
		Platform:   platform,
		Kind:       KindFile,
		Entry:      entry,
		Breadcrumb: strings.ReplaceAll(provider, "_", " ") + " › " + platform,
	}
}

func fileResults(provider, platform string, entries []catalog.Entry) []Result {
	out := make([]Result, len(entries))
	for i := range entries {
		out[i] = fileResult(provider, platform, i, &entries[i])
	}
	return out
}

// rank orders exact normalized matches before prefix matches before
// everything else.
func rank(normName, normQuery string) int {
	switch {
	case normName == normQuery:
		return 0
	case strings.HasPrefix(normName, normQuery):
		return 1
	default:
		return 2
	}
}

// SortByRelevance stably sorts results by rank against the normalized
// query; equal-rank items keep insertion order.
func SortByRelevance(items []Result, normQuery string) {
	if normQuery == "" {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		return rank(Normalize(items[i].Name), normQuery) < rank(Normalize(items[j].Name), normQuery)
	})
}
