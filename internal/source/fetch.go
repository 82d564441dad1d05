// Package source retrieves the encoded bytes of a media reference, either
// over HTTP or from the local filesystem.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FetchError reports a media source that could not be retrieved or is not
// media at all. It is a hard error: retrying will not help.
type FetchError struct {
	URL         string
	StatusCode  int
	ContentType string
	Message     string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Message)
}

// ErrInvalidContentType is the message of a FetchError for responses that
// carry a document instead of media, typically an auth page from a proxy.
const ErrInvalidContentType = "Invalid media content type. Proxy may require authentication."

// Media is a fetched media payload.
type Media struct {
	Data        []byte
	ContentType string
	Size        int64
}

// Config configures the fetcher.
type Config struct {
	Timeout   time.Duration // HTTP timeout. Default: 60s.
	MaxBytes  int64         // Max body size. Default: 512MB.
	UserAgent string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 512 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "avscope/1.0"
	}
}

// Fetcher reads media references.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves ref, an http(s) URL, a file:// URL or a local path.
// Cancellation returns ctx.Err() unwrapped.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Media, error) {
	u, err := url.Parse(ref)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return f.fetchHTTP(ctx, ref)
		case "file":
			return f.readFile(ctx, u.Path)
		}
	}
	return f.readFile(ctx, ref)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, ref string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			URL:         ref,
			StatusCode:  resp.StatusCode,
			ContentType: ct,
			Message:     errorMessage(resp),
		}
	}
	if isDocument(ct) {
		return nil, &FetchError{URL: ref, StatusCode: resp.StatusCode, ContentType: ct, Message: ErrInvalidContentType}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBytes {
		return nil, &FetchError{URL: ref, StatusCode: resp.StatusCode, ContentType: ct,
			Message: fmt.Sprintf("media exceeds %d bytes", f.config.MaxBytes)}
	}
	return &Media{Data: body, ContentType: ct, Size: int64(len(body))}, nil
}

// errorMessage prefers the "error" field of a JSON error body.
func errorMessage(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("HTTP Error: %d", resp.StatusCode)
}

func isDocument(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "text/html")
}

func (f *Fetcher) readFile(ctx context.Context, path string) (*Media, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &FetchError{URL: path, Message: "file not found"}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return nil, &FetchError{URL: path, Message: "is a directory"}
	}
	if fi.Size() > f.config.MaxBytes {
		return nil, &FetchError{URL: path, Message: fmt.Sprintf("media exceeds %d bytes", f.config.MaxBytes)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &Media{
		Data:        data,
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Size:        int64(len(data)),
	}, nil
}
