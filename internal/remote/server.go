// Package remote serves the shared waveform tier over HTTP, backed by a kv
// store. Entries are upserted last-writer-wins and never expire.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/linuxmatters/avscope/internal/kv"
	"github.com/linuxmatters/avscope/internal/waveform"
)

const keyPrefix = "waveforms/"

// maxBody bounds a PUT body: MaxBuckets values of up to ~24 bytes each.
const maxBody = waveform.MaxBuckets * 24

// Server handles GET and PUT /waveforms/{id}.json and GET /healthz.
type Server struct {
	store kv.Store
	log   *slog.Logger
	mux   *chi.Mux
}

// NewServer returns a server over store.
func NewServer(store kv.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{store: store, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/waveforms", func(r chi.Router) {
		r.Get("/{file}", s.handleGet)
		r.Put("/{file}", s.handlePut)
	})
	s.mux = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("waveform server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// assetID extracts the ID from a "{id}.json" path segment.
func assetID(r *http.Request) (string, bool) {
	id, ok := strings.CutSuffix(chi.URLParam(r, "file"), ".json")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	raw, found, err := s.store.Get(keyPrefix + id)
	if err != nil {
		s.log.Error("read waveform", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("storage error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !found {
		io.WriteString(w, "null")
		return
	}
	io.WriteString(w, raw)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	var peaks []float64
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&peaks); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if err := waveform.Validate(peaks); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	raw, _ := json.Marshal(peaks)
	if err := s.store.Set(keyPrefix+id, string(raw)); err != nil {
		if errors.Is(err, kv.ErrQuotaExceeded) {
			writeError(w, http.StatusInsufficientStorage, err)
			return
		}
		s.log.Error("write waveform", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("storage error"))
		return
	}
	s.log.Info("waveform stored", "id", id, "buckets", len(peaks))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.Keys()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	n := 0
	for _, k := range keys {
		if strings.HasPrefix(k, keyPrefix) {
			n++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "waveforms": n})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
