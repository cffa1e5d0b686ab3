// Package proxy implements the download relay: a stateless byte-stream
// forwarder that fetches an upstream file and streams it back with
// download-friendly headers.
package proxy

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultContentType = "application/octet-stream"

	// Upstream mirrors expect a browser-shaped request.
	upstreamUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	upstreamReferer   = "https://myrient.erista.me/"
)

// NewDownloadHandler returns the GET /api/download handler. The url
// query parameter names the upstream file; its response body is relayed
// verbatim. Upstream errors pass their status code through, anything
// else is a 500.
func NewDownloadHandler(client *http.Client, log *slog.Logger) http.HandlerFunc {
	if client == nil {
		client = &http.Client{
			// No overall timeout: large files stream for a long time.
			Timeout: 0,
		}
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("handler", "DownloadHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		if target == "" {
			http.Error(w, "Missing URL", http.StatusBadRequest)
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), "GET", target, nil)
		if err != nil {
			http.Error(w, "Invalid URL", http.StatusBadRequest)
			return
		}
		req.Header.Set("User-Agent", upstreamUserAgent)
		req.Header.Set("Referer", upstreamReferer)

		log.Info("streaming", slog.String("url", target))

		resp, err := client.Do(req)
		if err != nil {
			log.Error("upstream fetch failed", slog.String("url", target), slog.Any("error", err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			log.Warn("upstream error", slog.String("url", target), slog.Int("status", resp.StatusCode))
			http.Error(w, "Upstream Error", resp.StatusCode)
			return
		}

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = defaultContentType
		}
		w.Header().Set("Content-Type", contentType)
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			w.Header().Set("Content-Length", cl)
		}
		w.Header().Set("Content-Disposition", `attachment; filename="`+Filename(target)+`"`)

		if _, err := io.Copy(w, resp.Body); err != nil {
			// Headers are already out; all we can do is log.
			log.Warn("stream interrupted", slog.String("url", target), slog.Any("error", err))
		}
	}
}

// Filename derives a download filename from the last path segment of a
// URL, query-stripped and URL-decoded.
func Filename(target string) string {
	name := target
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSuffix(name, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "" {
		return "download.zip"
	}
	return name
}

// NewServer builds the HTTP server for the serve command: the download
// proxy plus, optionally, a static /data tree for self-hosted catalogs.
func NewServer(addr, dataDir string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /api/download", NewDownloadHandler(nil, log))
	if dataDir != "" {
		mux.Handle("GET /data/", http.StripPrefix("/data/", http.FileServer(http.Dir(dataDir))))
	}
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
