// Package server exposes the mastering pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/crysgarage/engine/internal/codec"
	"github.com/crysgarage/engine/mastering"
)

// Server holds the HTTP handlers. Analysis runs inline on the request
// goroutine; mastering goes through the pool.
type Server struct {
	pipeline *mastering.Pipeline
	pool     *mastering.Pool
	log      logrus.FieldLogger
	maxBody  int64
}

// New returns a Server. maxBody <= 0 leaves request bodies unbounded.
func New(p *mastering.Pipeline, pool *mastering.Pool, log logrus.FieldLogger, maxBody int64) *Server {
	return &Server{pipeline: p, pool: pool, log: log, maxBody: maxBody}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/analyze", s.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/v1/master", s.handleMaster).Methods(http.MethodPost)
	return r
}

type masterResponse struct {
	*mastering.Result
	OriginalWAV []byte `json:"originalWav"`
	MasteredWAV []byte `json:"masteredWav"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"workers": s.pool.Workers(),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	asset, err := s.readAsset(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.pipeline.Analyze(r.Context(), asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleMaster(w http.ResponseWriter, r *http.Request) {
	asset, err := s.readAsset(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.pool.Do(r.Context(), asset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"run_id":    res.ID,
		"asset":     asset.Name,
		"simulated": res.Simulated,
		"elapsed":   res.Elapsed,
	}).Info("mastered")
	s.writeJSON(w, http.StatusOK, masterResponse{
		Result:      res,
		OriginalWAV: res.OriginalWAV,
		MasteredWAV: res.MasteredWAV,
	})
}

// readAsset takes the raw request body as the asset. The Content-Type header
// is the asset MIME type and ?name= its file name.
func (s *Server) readAsset(w http.ResponseWriter, r *http.Request) (mastering.Asset, error) {
	body := io.Reader(r.Body)
	if s.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return mastering.Asset{}, errors.Join(mastering.ErrResourceExhausted, err)
		}
		return mastering.Asset{}, err
	}
	return mastering.Asset{
		Name: r.URL.Query().Get("name"),
		MIME: r.Header.Get("Content-Type"),
		Data: data,
	}, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	entry := s.log.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"status": code,
		"error":  err.Error(),
	})
	if code >= http.StatusInternalServerError {
		entry.Warn("request failed")
	} else {
		entry.Info("request rejected")
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, mastering.ErrResourceExhausted):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, codec.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, mastering.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, mastering.ErrQueueFull), errors.Is(err, mastering.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeJSON sends v with the given status. The status line is already out
// when encoding fails, so the failure can only be logged.
func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).WithField("status", code).Warn("write response failed")
	}
}
