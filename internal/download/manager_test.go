package download

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, m *Manager) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for m.HasActive() {
		if time.Now().After(deadline) {
			t.Fatal("downloads did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnqueueDownloadsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "rom bytes")
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := NewManager(&HTTPFetcher{Client: srv.Client()}, dir, 2, slog.New(slog.DiscardHandler))

	item, created := m.Enqueue("game.zip", srv.URL+"/game.zip", "No-Intro")
	require.True(t, created)
	waitDone(t, m)

	item.Mu.Lock()
	status, errv := item.Status, item.Error
	item.Mu.Unlock()
	require.NoError(t, errv)
	assert.Equal(t, StatusCompleted, status)

	data, err := os.ReadFile(filepath.Join(dir, "No-Intro", "game.zip"))
	require.NoError(t, err)
	assert.Equal(t, "rom bytes", string(data))
}

func TestEnqueueDeduplicatesByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "x")
	}))
	defer srv.Close()

	m := NewManager(&HTTPFetcher{Client: srv.Client()}, t.TempDir(), 1, slog.New(slog.DiscardHandler))
	first, created := m.Enqueue("a.zip", srv.URL+"/a.zip", "")
	require.True(t, created)
	again, created := m.Enqueue("a.zip", srv.URL+"/a.zip", "")
	assert.False(t, created)
	assert.Same(t, first, again)
	waitDone(t, m)
}

func TestProgressReadableWhileDownloading(t *testing.T) {
	gate := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "8")
		io.WriteString(w, "half")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-gate
		io.WriteString(w, "rest")
	}))
	defer srv.Close()

	m := NewManager(&HTTPFetcher{Client: srv.Client()}, t.TempDir(), 1, slog.New(slog.DiscardHandler))
	item, _ := m.Enqueue("c.zip", srv.URL+"/c.zip", "")

	// Poll the snapshot accessors from this goroutine while the
	// download goroutine is mid-transfer.
	deadline := time.Now().Add(5 * time.Second)
	for item.Progress() < 0.5 {
		if time.Now().After(deadline) {
			t.Fatal("progress never advanced")
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int64(8), item.TotalBytes.Load())

	close(gate)
	waitDone(t, m)
	assert.InDelta(t, 1.0, item.Progress(), 0.001)
}

func TestResumeFromPartFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		require.Equal(t, "bytes=4-", rng)
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, " half")
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "b.zip")
	require.NoError(t, os.WriteFile(dest+".part", []byte("back"), 0o644))

	m := NewManager(&HTTPFetcher{Client: srv.Client()}, dir, 1, slog.New(slog.DiscardHandler))
	m.Enqueue("b.zip", srv.URL+"/b.zip", "")
	waitDone(t, m)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "back half", string(data))
}

func TestUpstreamErrorMarksFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	m := NewManager(&HTTPFetcher{Client: srv.Client()}, t.TempDir(), 1, slog.New(slog.DiscardHandler))
	item, _ := m.Enqueue("c.zip", srv.URL+"/c.zip", "")
	waitDone(t, m)

	item.Mu.Lock()
	defer item.Mu.Unlock()
	assert.Equal(t, StatusFailed, item.Status)
	assert.True(t, strings.Contains(item.Error.Error(), "HTTP 404"))
}

func TestCancelStopsDownload(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	m := NewManager(&HTTPFetcher{Client: srv.Client()}, t.TempDir(), 1, slog.New(slog.DiscardHandler))
	item, _ := m.Enqueue("d.zip", srv.URL+"/d.zip", "")

	deadline := time.Now().Add(5 * time.Second)
	for {
		item.Mu.Lock()
		active := item.Status == StatusActive
		item.Mu.Unlock()
		if active {
			break
		}
		require.False(t, time.Now().After(deadline), "download never started")
		time.Sleep(10 * time.Millisecond)
	}

	m.Cancel(item.ID)
	waitDone(t, m)

	item.Mu.Lock()
	defer item.Mu.Unlock()
	assert.Equal(t, StatusFailed, item.Status)
}

func TestHTTPFetcherRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client()}
	_, _, _, err := f.OpenFile(context.Background(), srv.URL+"/x.zip", 0)
	assert.Error(t, err)
}
