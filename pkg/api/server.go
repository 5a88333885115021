package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/manager"
	"github.com/cuemby/burrow/pkg/routine"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Documents is the document surface served over HTTP.
// *manager.Manager satisfies it.
type Documents interface {
	Save(ctx context.Context, path string, obj map[string]any, schema types.Schema, opts types.Options) (string, error)
	Remove(ctx context.Context, path string, schema types.Schema) (string, error)
	Get(ctx context.Context, path string, schema types.Schema, opts types.Options) (*routine.Result, error)
	Subscribe() manager.Subscriber
	Unsubscribe(sub manager.Subscriber)
}

// Config configures the HTTP server
type Config struct {
	Addr string

	// MaxBodySize caps request bodies in bytes
	MaxBodySize int64

	// ReadOnly rejects every write method on /v1
	ReadOnly bool
}

// Server serves the document API and the health endpoints
type Server struct {
	docs   Documents
	cfg    Config
	mux    *http.ServeMux
	http   *http.Server
	logger zerolog.Logger
}

// NewServer creates a new API server
func NewServer(docs Documents, cfg Config) *Server {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 1 << 20
	}
	s := &Server{
		docs:   docs,
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}

	registerHealth(s.mux)
	s.mux.HandleFunc("PUT /v1/docs/{path...}", s.handleSave)
	s.mux.HandleFunc("DELETE /v1/docs/{path...}", s.handleRemove)
	s.mux.HandleFunc("GET /v1/docs/{path...}", s.handleGet)
	s.mux.HandleFunc("GET /v1/notices", s.handleNotices)

	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.cfg.ReadOnly {
		h = readOnly(h)
	}
	return logRequests(s.logger, h)
}

// Start serves on the configured address until Stop is called
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	s.http = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("HTTP API listening")
	err := s.http.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type saveRequest struct {
	Object  map[string]any `json:"object"`
	Schema  types.Schema   `json:"schema"`
	Options types.Options  `json:"options"`
}

type writeResponse struct {
	OpID string `json:"opId"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodySize)

	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}

	opID, err := s.docs.Save(r.Context(), r.PathValue("path"), req.Object, req.Schema, req.Options)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, writeResponse{OpID: opID})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	opID, err := s.docs.Remove(r.Context(), r.PathValue("path"), schemaFromQuery(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, writeResponse{OpID: opID})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	opts, err := optionsFromQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.docs.Get(r.Context(), r.PathValue("path"), schemaFromQuery(r), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleNotices streams after-task notices as newline-delimited JSON
func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	sub := s.docs.Subscribe()
	if sub == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "notices are disabled"})
		return
	}
	defer s.docs.Unsubscribe(sub)

	// The stream outlives the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-sub:
			if !ok {
				return
			}
			if err := enc.Encode(n); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// schemaFromQuery reads indexed fields from repeated "index" and
// "search" parameters
func schemaFromQuery(r *http.Request) types.Schema {
	q := r.URL.Query()
	return types.Schema{
		DBSearchIndex:   q["index"],
		FullSearchIndex: q["search"],
	}
}

// optionsFromQuery maps query parameters onto read options. The where
// value is decoded as JSON when possible so numbers and lists keep their
// type; anything else is taken as a string.
func optionsFromQuery(r *http.Request) (types.Options, error) {
	q := r.URL.Query()
	opts := types.Options{
		Order:     types.Order(q.Get("order")),
		PageToken: q.Get("pageToken"),
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, &types.ValidationError{Field: "limit", Reason: "not a number"}
		}
		opts.Limit = n
	}

	if query := q.Get("q"); query != "" {
		opts.FullSearch = true
		opts.Query = query
	}

	if field := q.Get("where"); field != "" {
		op := types.Operator(q.Get("op"))
		if op == "" {
			op = types.OpEq
		}
		raw := q.Get("value")
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		opts.Where = &types.Where{Field: field, Op: op, Value: value}
	}
	return opts, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Reason, Field: verr.Field})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
