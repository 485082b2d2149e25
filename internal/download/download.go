// Package download fetches remote files over HTTP into local paths with
// atomic writes.
package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("remote file not found")

// PartSuffix marks files that are still being written.
const PartSuffix = ".part"

const userAgent = "sarprep/1.0"

// authDomains are the hosts that receive the bearer token.
var authDomains = []string{"asf.alaska.edu", "earthdata.nasa.gov"}

// Client downloads files over HTTP.
type Client struct {
	httpClient *http.Client
	token      string
	logger     *slog.Logger
}

// NewClient creates a download client with the given overall timeout per file.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithToken sets the Earthdata bearer token sent to ASF and Earthdata hosts.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Request describes a single file download.
type Request struct {
	URL  string
	Dest string
	// MD5 is the expected hex digest; empty skips verification.
	MD5 string
}

// Get fetches req.URL into req.Dest. The body is written to Dest+".part"
// and renamed into place once complete, so Dest never holds a partial file.
func (c *Client) Get(ctx context.Context, req Request) (n int64, err error) {
	if req.URL == "" {
		return 0, errors.New("download: URL is empty")
	}
	if req.Dest == "" {
		return 0, errors.New("download: destination is empty")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("download: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if c.token != "" && hostRequiresAuth(httpReq.URL.Hostname()) {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("download: fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, req.URL)
	}
	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("download: %s returned status %d: %s", req.URL, resp.StatusCode, strings.TrimSpace(string(preview)))
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); strings.Contains(ct, "text/html") {
		// Earthdata answers unauthenticated requests with a login page.
		return 0, fmt.Errorf("download: unexpected HTML response from %s (missing or expired token?)", req.URL)
	}

	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return 0, fmt.Errorf("download: create destination directory: %w", err)
	}

	tmpPath := req.Dest + PartSuffix
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("download: create temp file: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	var hasher hash.Hash
	w := io.Writer(out)
	if req.MD5 != "" {
		hasher = md5.New()
		w = io.MultiWriter(out, hasher)
	}

	started := time.Now()
	n, err = io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download: copy body: %w", err)
	}

	if hasher != nil {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(sum, req.MD5) {
			err = fmt.Errorf("download: checksum mismatch for %s: expected %s got %s", filepath.Base(req.Dest), req.MD5, sum)
			return n, err
		}
	}

	if err = out.Close(); err != nil {
		return n, fmt.Errorf("download: close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, req.Dest); err != nil {
		return n, fmt.Errorf("download: rename temp file: %w", err)
	}

	c.logger.DebugContext(ctx, "download complete",
		slog.String("url", req.URL),
		slog.String("dest", req.Dest),
		slog.String("size", humanize.IBytes(uint64(n))),
		slog.Duration("elapsed", time.Since(started)),
	)
	return n, nil
}

// Fetch reads the body of url into memory, up to limit bytes.
func (c *Client) Fetch(ctx context.Context, url string, limit int64) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("download: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: %s returned status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("download: read %s: %w", url, err)
	}
	return body, nil
}

func hostRequiresAuth(host string) bool {
	host = strings.ToLower(host)
	for _, d := range authDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
