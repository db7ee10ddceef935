// Package collector receives capture uploads over HTTP.
//
// Every accepted upload is stamped with the sender's ip and the receive time
// in nanoseconds, written to the data directory as
// <ip>-<time_received_ns>[-n].json and indexed in SQLite. A lock file keeps
// a second collector from writing into the same directory.
//
// Example usage:
//
//	srv, err := collector.New(ctx, collector.Options{DataDir: dir})
//	if err != nil {
//	    return err
//	}
//	defer srv.Close()
//	http.ListenAndServe(":8088", srv.Handler())
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/teranos/handcap/codec"
	"github.com/teranos/handcap/pose"
)

// DefaultMaxBytes caps an upload body.
const DefaultMaxBytes = 64 << 20

// Options configures a collector.
type Options struct {
	DataDir  string
	MaxBytes int64
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server stores uploads and serves the index.
type Server struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time

	store *Store
	lock  *flock.Flock

	mu sync.Mutex // serializes file name selection
}

// New creates the data directory, takes its lock and opens the index.
func New(ctx context.Context, opts Options) (*Server, error) {
	if strings.TrimSpace(opts.DataDir) == "" {
		return nil, errors.New("collector requires a data directory")
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(opts.DataDir, ".collector.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another collector is already using %s", opts.DataDir)
	}

	store, err := OpenStore(ctx, filepath.Join(opts.DataDir, "index.db"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	s := &Server{
		dir:      opts.DataDir,
		maxBytes: opts.MaxBytes,
		logger:   opts.Logger,
		now:      opts.Now,
		store:    store,
		lock:     lock,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxBytes
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "collector")
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Store exposes the index.
func (s *Server) Store() *Store { return s.store }

// Close closes the index and releases the lock.
func (s *Server) Close() error {
	err := s.store.Close()
	if uerr := s.lock.Unlock(); uerr != nil && err == nil {
		err = fmt.Errorf("release lock: %w", uerr)
	}
	return err
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", s.handleDashboard)
	r.Post("/upload", s.handleUpload)
	r.Route("/recordings", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
	})
	return r
}

// UploadResult is the reply to a stored upload.
type UploadResult struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Frames   int    `json:"frames"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxBytes)
	rec, err := codec.Decode(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", s.maxBytes))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode recording: %w", err))
		return
	}

	received := s.now()
	rec.IP = remoteIP(r)
	rec.TimeReceivedNs = received.UnixNano()

	entry, err := s.save(rec, received)
	if err != nil {
		s.logger.Error("store upload failed", "ip", rec.IP, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.Insert(r.Context(), entry); err != nil {
		s.logger.Error("index upload failed", "id", entry.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("upload stored",
		"id", entry.ID,
		"ip", entry.IP,
		"bytes", entry.SizeBytes,
		"frames", entry.Frames,
		"file", entry.Filename)
	writeJSON(w, http.StatusOK, UploadResult{ID: entry.ID, Filename: entry.Filename, Frames: entry.Frames})
}

// save writes rec under a free file name and builds its index entry.
func (s *Server) save(rec *codec.Recording, received time.Time) (Entry, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return Entry{}, fmt.Errorf("encode recording: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.claimName(rec.IP, rec.TimeReceivedNs)
	if err != nil {
		return Entry{}, err
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), payload, 0o644); err != nil {
		return Entry{}, fmt.Errorf("write %s: %w", name, err)
	}

	return Entry{
		ID:             uuid.NewString(),
		Filename:       name,
		IP:             rec.IP,
		TimeReceivedNs: rec.TimeReceivedNs,
		Frames:         rec.Len(),
		Leaves:         rec.Descriptor.Leaves(),
		DurationMs:     span(rec),
		SizeBytes:      int64(len(payload)),
		ReceivedAt:     received,
	}, nil
}

// claimName picks <ip>-<ns>.json, or <ip>-<ns>-n.json with the smallest free
// n when that exists already.
func (s *Server) claimName(ip string, ns int64) (string, error) {
	base := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(ip) + "-" + strconv.FormatInt(ns, 10)
	name := base + ".json"
	for n := 1; ; n++ {
		_, err := os.Stat(filepath.Join(s.dir, name))
		if errors.Is(err, os.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", name, err)
		}
		name = fmt.Sprintf("%s-%d.json", base, n)
	}
}

func span(rec *codec.Recording) float64 {
	times, ok := rec.Column(pose.TimeKey)
	if !ok || len(times) < 2 {
		return 0
	}
	return times[len(times)-1] - times[0]
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	entries, err := s.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := os.ReadFile(filepath.Join(s.dir, entry.Filename))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("read %s: %w", entry.Filename, err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", entry.Filename))
	http.ServeContent(w, r, entry.Filename, entry.ReceivedAt, bytes.NewReader(data))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
