package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linuxmatters/avscope/internal/cache"
	"github.com/linuxmatters/avscope/internal/kv"
)

func newTestServer(t *testing.T) (*httptest.Server, *kv.SQLite) {
	t.Helper()
	store, err := kv.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewServer(store, log))
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(b))
}

func TestServer_GetPut(t *testing.T) {
	srv, _ := newTestServer(t)
	url := srv.URL + "/waveforms/dQw4w9WgXcQ.json"

	if code, body := do(t, http.MethodGet, url, ""); code != 200 || body != "null" {
		t.Fatalf("GET missing = %d %q, want 200 null", code, body)
	}
	if code, _ := do(t, http.MethodPut, url, "[0.5,1,0]"); code != http.StatusNoContent {
		t.Fatalf("PUT = %d, want 204", code)
	}
	if code, body := do(t, http.MethodGet, url, ""); code != 200 || body != "[0.5,1,0]" {
		t.Fatalf("GET = %d %q", code, body)
	}
	// Last writer wins.
	do(t, http.MethodPut, url, "[1]")
	if _, body := do(t, http.MethodGet, url, ""); body != "[1]" {
		t.Errorf("GET after overwrite = %q", body)
	}
}

func TestServer_RejectsInvalid(t *testing.T) {
	srv, _ := newTestServer(t)
	url := srv.URL + "/waveforms/x.json"

	long := "[" + strings.Repeat("0.5,", 10000) + "0.5]"
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"object", `{"a":1}`},
		{"empty", "[]"},
		{"out of range", "[0.5,1.5]"},
		{"negative", "[-0.1]"},
		{"too long", long},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, http.MethodPut, url, tt.body)
			if code != http.StatusBadRequest {
				t.Fatalf("PUT = %d, want 400", code)
			}
			var e map[string]string
			if json.Unmarshal([]byte(body), &e) != nil || e["error"] == "" {
				t.Errorf("error body = %q", body)
			}
		})
	}
	if _, body := do(t, http.MethodGet, url, ""); body != "null" {
		t.Errorf("rejected PUT was stored: %q", body)
	}
}

func TestServer_BadPath(t *testing.T) {
	srv, _ := newTestServer(t)
	if code, _ := do(t, http.MethodGet, srv.URL+"/waveforms/noext", ""); code != 404 {
		t.Errorf("GET without .json = %d, want 404", code)
	}
	if code, _ := do(t, http.MethodDelete, srv.URL+"/waveforms/a.json", ""); code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE = %d, want 405", code)
	}
}

func TestServer_Health(t *testing.T) {
	srv, store := newTestServer(t)
	store.Set("waveforms/a", "[1]")
	store.Set("other", "x")

	code, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if code != 200 {
		t.Fatalf("healthz = %d", code)
	}
	var h struct {
		Status    string `json:"status"`
		Waveforms int    `json:"waveforms"`
	}
	if err := json.Unmarshal([]byte(body), &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Waveforms != 1 {
		t.Errorf("healthz = %+v", h)
	}
}

func TestServer_WithHTTPRemote(t *testing.T) {
	srv, _ := newTestServer(t)
	r := cache.NewHTTPRemote(srv.URL, time.Second, nil)
	ctx := context.Background()

	if _, ok := r.Get(ctx, "1AbCdEfGhIj"); ok {
		t.Fatal("Get on empty server hit")
	}
	want := []float64{0, 0.25, 1}
	if err := r.Put(ctx, "1AbCdEfGhIj", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := r.Get(ctx, "1AbCdEfGhIj")
	if !ok || len(got) != 3 || got[1] != 0.25 {
		t.Errorf("Get = %v, %v", got, ok)
	}
	if err := r.Put(ctx, "bad", []float64{2}); err == nil {
		t.Error("Put of invalid peaks succeeded")
	}
}

func TestServer_ListenAndServe(t *testing.T) {
	store := kv.NewMemory(0)
	s := NewServer(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
