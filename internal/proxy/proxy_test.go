package proxy

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLog() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDownloadMissingURL(t *testing.T) {
	h := NewDownloadHandler(nil, discardLog())
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/api/download", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadStreamsBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Chrome")
		assert.Equal(t, "https://myrient.erista.me/", r.Header.Get("Referer"))
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Length", "5")
		io.WriteString(w, "hello")
	}))
	defer upstream.Close()

	h := NewDownloadHandler(upstream.Client(), discardLog())
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/api/download?url="+upstream.URL+"/files/Super%20Mario%2064%20%28USA%29.zip", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="Super Mario 64 (USA).zip"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "hello", rec.Body.String())
}

func TestDownloadUpstreamStatusPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	h := NewDownloadHandler(upstream.Client(), discardLog())
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/api/download?url="+upstream.URL+"/gone.zip", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadUnreachableUpstream(t *testing.T) {
	h := NewDownloadHandler(&http.Client{}, discardLog())
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/api/download?url=http://127.0.0.1:1/nope.zip", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDownloadMissingContentTypeDefaults(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		io.WriteString(w, "x")
	}))
	defer upstream.Close()

	h := NewDownloadHandler(upstream.Client(), discardLog())
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/api/download?url="+upstream.URL+"/a.bin", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultContentType, rec.Header().Get("Content-Type"))
}

func TestFilename(t *testing.T) {
	cases := map[string]string{
		"https://host/a/b/Game%20%28USA%29.zip": "Game (USA).zip",
		"https://host/a/b/plain.7z?sig=abc":     "plain.7z",
		"https://host/":                         "download.zip",
	}
	for in, want := range cases {
		assert.Equal(t, want, Filename(in), in)
	}
}
