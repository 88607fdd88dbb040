/*
Package server exposes the leaves of a stratification tree over HTTP so
that rows can be assigned to them by other services.
*/
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/pbanos/stratify/dataset"
	"github.com/pbanos/stratify/feature"
	"github.com/pbanos/stratify/summary"
)

/*
Server serves the leaves of a summary:

	GET /leaves returns the leaves as summary.WriteJSON writes them
	POST /assign takes a JSON object with the covariate values of a subject,
	or an array with the rows of its visits, and returns the leaf the
	subject is assigned to, or 404 if there is none. Subjects are assigned
	on the mean of their rows for continuous covariates and the value they
	share for discrete ones, as trees split them
	GET /healthz returns 200 while the server is up
*/
type Server struct {
	leaves     []*summary.Leaf
	covariates []feature.Feature
	logger     *slog.Logger
}

// Assignment is the response of POST /assign
type Assignment struct {
	Leaf       int    `json:"leaf"`
	NodeID     string `json:"node"`
	Conditions string `json:"conditions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

/*
New takes the leaves of a summary, the covariates their conditions are on
and a logger and returns a Server for them.
*/
func New(leaves []*summary.Leaf, covariates []feature.Feature, logger *slog.Logger) *Server {
	return &Server{leaves: leaves, covariates: covariates, logger: logger}
}

/*
Routes returns the http.Handler of the server.
*/
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.healthz)
	r.Get("/leaves", s.listLeaves)
	r.Post("/assign", s.assign)
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) listLeaves(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	err := summary.WriteJSON(w, s.leaves)
	if err != nil {
		s.logger.Error("writing leaves", "error", err, "request_id", middleware.GetReqID(r.Context()))
	}
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request) {
	var body interface{}
	err := render.DecodeJSON(r.Body, &body)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("decoding subject: %w", err))
		return
	}
	subject, err := s.subject(body)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	id, err := summary.AssignSubject(r.Context(), s.leaves, subject)
	if errors.Is(err, summary.ErrNoMatchingLeaf) {
		s.fail(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	for _, l := range s.leaves {
		if l.ID == id {
			render.JSON(w, r, &Assignment{Leaf: l.ID, NodeID: l.NodeID, Conditions: l.Rule()})
			return
		}
	}
}

// subject builds the subject of the rows in a decoded body: a single row
// or an array with the rows of its visits.
func (s *Server) subject(body interface{}) (*dataset.Subject, error) {
	var rows []interface{}
	switch tb := body.(type) {
	case map[string]interface{}:
		rows = []interface{}{tb}
	case []interface{}:
		rows = tb
	default:
		return nil, fmt.Errorf("expected a row or an array of rows, got %T", body)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to assign")
	}
	samples := make([]dataset.Sample, 0, len(rows))
	for i, row := range rows {
		values, ok := row.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("row %d: expected an object, got %T", i, row)
		}
		cv, err := s.covariateValues(values)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		samples = append(samples, dataset.NewSample("", cv))
	}
	return dataset.NewSubject("", samples), nil
}

// covariateValues converts the decoded JSON values of the covariates to the
// types their criteria expect. Other properties are ignored.
func (s *Server) covariateValues(body map[string]interface{}) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(s.covariates))
	for _, f := range s.covariates {
		v, ok := body[f.Name()]
		if !ok || v == nil {
			continue
		}
		switch tv := v.(type) {
		case string:
			pv, err := f.Parse(tv)
			if err != nil {
				return nil, err
			}
			values[f.Name()] = pv
		case float64:
			if _, discrete := f.(*feature.DiscreteFeature); discrete {
				pv, err := f.Parse(feature.FormatThreshold(tv))
				if err != nil {
					return nil, err
				}
				values[f.Name()] = pv
				continue
			}
			values[f.Name()] = tv
		default:
			return nil, fmt.Errorf("unexpected %T value for covariate %s", v, f.Name())
		}
	}
	return values, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logger.Debug("request failed", "path", r.URL.Path, "status", status, "error", err, "request_id", middleware.GetReqID(r.Context()))
	render.Status(r, status)
	render.JSON(w, r, &errorResponse{Error: err.Error()})
}
