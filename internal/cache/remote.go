package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linuxmatters/avscope/internal/waveform"
)

// Remote is the shared waveform tier. Implementations treat every failure
// as a miss on read.
type Remote interface {
	Get(ctx context.Context, id string) ([]float64, bool)
	Put(ctx context.Context, id string, peaks []float64) error
}

// HTTPRemote talks to a waveform server over HTTP:
// GET and PUT {base}/waveforms/{id}.json, where a miss is a JSON null or 404.
type HTTPRemote struct {
	base   string
	client *http.Client
	log    *slog.Logger
}

// NewHTTPRemote returns a client for the server at baseURL.
func NewHTTPRemote(baseURL string, timeout time.Duration, log *slog.Logger) *HTTPRemote {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPRemote{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (r *HTTPRemote) url(id string) string {
	return r.base + "/waveforms/" + url.PathEscape(id) + ".json"
}

// Get fetches the shared waveform for id.
func (r *HTTPRemote) Get(ctx context.Context, id string) ([]float64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(id), nil)
	if err != nil {
		r.log.Warn("remote cache request", "id", id, "error", err)
		return nil, false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn("remote cache read failed", "id", id, "error", err)
		}
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false
	}
	if resp.StatusCode != http.StatusOK {
		r.log.Warn("remote cache read failed", "id", id, "status", resp.StatusCode)
		return nil, false
	}

	var peaks []float64
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&peaks); err != nil {
		r.log.Warn("remote cache entry unreadable", "id", id, "error", err)
		return nil, false
	}
	if peaks == nil {
		return nil, false
	}
	if err := waveform.Validate(peaks); err != nil {
		r.log.Warn("remote cache entry rejected", "id", id, "error", err)
		return nil, false
	}
	return peaks, true
}

// Put writes peaks as the shared waveform for id.
func (r *HTTPRemote) Put(ctx context.Context, id string, peaks []float64) error {
	body, err := json.Marshal(peaks)
	if err != nil {
		return fmt.Errorf("encode peaks: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.url(id), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("http put: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http put: status %d", resp.StatusCode)
	}
	return nil
}
