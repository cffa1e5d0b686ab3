package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// testServer serves a fake /data tree and counts requests per path.
func testServer(t *testing.T, docs map[string]any) (*httptest.Server, *sync.Map) {
	t.Helper()
	var hits sync.Map
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := hits.LoadOrStore(r.URL.Path, new(atomic.Int64))
		n.(*atomic.Int64).Add(1)

		doc, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func hitCount(hits *sync.Map, path string) int64 {
	n, ok := hits.Load(path)
	if !ok {
		return 0
	}
	return n.(*atomic.Int64).Load()
}

func TestShardRefUnmarshal(t *testing.T) {
	var m Manifest
	raw := `{
		"Nintendo - Game Boy": {"file": "No-Intro/nintendo___game_boy.json"},
		"Commodore - C64": {"file": ["TOSEC/c64_part1.json", "TOSEC/c64_part2.json"]}
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Equal(t, ShardRef{"No-Intro/nintendo___game_boy.json"}, m["Nintendo - Game Boy"].File)
	assert.Equal(t, ShardRef{"TOSEC/c64_part1.json", "TOSEC/c64_part2.json"}, m["Commodore - C64"].File)

	var bad ManifestNode
	assert.Error(t, json.Unmarshal([]byte(`{"file": 42}`), &bad))
}

func TestResolveMultiPartConcatOrder(t *testing.T) {
	srv, _ := testServer(t, map[string]any{
		"/data/TOSEC/_manifest.json": Manifest{
			"Commodore - C64": {File: ShardRef{"TOSEC/c64_part1.json", "TOSEC/c64_part2.json"}},
		},
		"/data/TOSEC/c64_part1.json": []Entry{{Name: "a.zip"}, {Name: "b.zip"}},
		"/data/TOSEC/c64_part2.json": []Entry{{Name: "c.zip"}},
	})

	store := NewStore(NewClient(srv.URL, 100), discardLogger())
	entries, err := store.Resolve(context.Background(), "TOSEC", "Commodore - C64")
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"a.zip", "b.zip", "c.zip"}, names)
}

func TestResolveDeepAliasFiltersByPath(t *testing.T) {
	srv, _ := testServer(t, map[string]any{
		"/data/index.json": IndexRoot{Collections: map[string]ProviderSummary{
			"Internet_Archive": {},
		}},
		"/data/Internet_Archive/_platform_map.json": DeepAliasMap{"chd_psx": "big.json"},
		"/data/Internet_Archive/_manifest.json":     Manifest{},
		"/data/Internet_Archive/big.json": []Entry{
			{Name: "inside.chd", Path: []string{"Internet Archive", "chadmaster", "chd_psx"}},
			{Name: "outside.chd", Path: []string{"Internet Archive", "chadmaster", "chd_saturn"}},
			{Name: "substring.chd", Path: []string{"chd_psx_eu"}},
		},
	})

	store := NewStore(NewClient(srv.URL, 100), discardLogger())
	require.NoError(t, store.Init(context.Background()))

	entries, err := store.Resolve(context.Background(), "Internet_Archive", "chd_psx")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "inside.chd", entries[0].Name)
	assert.Equal(t, "substring.chd", entries[1].Name)
}

func TestResolveIdempotentSingleFetch(t *testing.T) {
	srv, hits := testServer(t, map[string]any{
		"/data/No-Intro/_manifest.json": Manifest{
			"Nintendo - Game Boy": {File: ShardRef{"No-Intro/gb.json"}},
		},
		"/data/No-Intro/gb.json": []Entry{{Name: "tetris.zip"}},
	})

	store := NewStore(NewClient(srv.URL, 1000), discardLogger())

	const callers = 16
	var wg sync.WaitGroup
	results := make([][]Entry, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries, err := store.Resolve(context.Background(), "No-Intro", "Nintendo - Game Boy")
			assert.NoError(t, err)
			results[i] = entries
		}(i)
	}
	wg.Wait()

	for _, entries := range results {
		require.Len(t, entries, 1)
		assert.Equal(t, "tetris.zip", entries[0].Name)
	}
	assert.Equal(t, int64(1), hitCount(hits, "/data/No-Intro/gb.json"),
		"concurrent callers must share one shard fetch")

	// A second resolve is served from cache.
	_, err := store.Resolve(context.Background(), "No-Intro", "Nintendo - Game Boy")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hitCount(hits, "/data/No-Intro/gb.json"))
}

func TestResolveUnmapped(t *testing.T) {
	srv, _ := testServer(t, map[string]any{
		"/data/No-Intro/_manifest.json": Manifest{},
	})

	store := NewStore(NewClient(srv.URL, 100), discardLogger())
	_, err := store.Resolve(context.Background(), "No-Intro", "Nope")
	assert.ErrorIs(t, err, ErrUnmapped)
}

func TestResolveShardFetchErrorYieldsEmpty(t *testing.T) {
	srv, _ := testServer(t, map[string]any{
		"/data/No-Intro/_manifest.json": Manifest{
			"Nintendo - Game Boy": {File: ShardRef{"No-Intro/missing.json"}},
		},
	})

	store := NewStore(NewClient(srv.URL, 100), discardLogger())
	entries, err := store.Resolve(context.Background(), "No-Intro", "Nintendo - Game Boy")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolveCancelledNotCached(t *testing.T) {
	srv, _ := testServer(t, map[string]any{
		"/data/No-Intro/_manifest.json": Manifest{
			"Nintendo - Game Boy": {File: ShardRef{"No-Intro/gb.json"}},
		},
		"/data/No-Intro/gb.json": []Entry{{Name: "tetris.zip"}},
	})

	store := NewStore(NewClient(srv.URL, 100), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Resolve(ctx, "No-Intro", "Nintendo - Game Boy")
	require.Error(t, err)

	_, ok := store.Cached("No-Intro", "Nintendo - Game Boy")
	assert.False(t, ok, "cancelled resolution must not populate the cache")
}

func TestInitWithoutAliasMap(t *testing.T) {
	srv, _ := testServer(t, map[string]any{
		"/data/index.json": IndexRoot{Collections: map[string]ProviderSummary{
			"No-Intro": {Platforms: []PlatformSummary{{Name: "Nintendo - Game Boy", Count: 100}}},
			"TOSEC":    {},
		}},
	})

	store := NewStore(NewClient(srv.URL, 100), discardLogger())
	require.NoError(t, store.Init(context.Background()))
	assert.Nil(t, store.AliasMap())
	assert.Equal(t, []string{"No-Intro", "TOSEC"}, store.Providers())
	require.Len(t, store.Platforms("No-Intro"), 1)
	assert.Equal(t, 100, store.Platforms("No-Intro")[0].Count)
}
