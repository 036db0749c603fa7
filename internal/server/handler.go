package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/experiment"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/qrels"
	"github.com/ricesearch/rice-eval/internal/report"
	"github.com/ricesearch/rice-eval/internal/run"
)

// RunRequest is one system's run, either as entries or TREC run text.
type RunRequest struct {
	Name    string      `json:"name"`
	Entries []run.Entry `json:"entries,omitempty"`
	TREC    string      `json:"trec,omitempty"`
}

// EvaluateOptions overrides the server's evaluation defaults.
type EvaluateOptions struct {
	Baseline           *int     `json:"baseline,omitempty"`
	Test               string   `json:"test,omitempty"`
	Correction         string   `json:"correction,omitempty"`
	Alpha              *float64 `json:"alpha,omitempty"`
	Permutations       int      `json:"permutations,omitempty"`
	Seed               *uint64  `json:"seed,omitempty"`
	PerQuery           bool     `json:"per_query,omitempty"`
	RelevanceThreshold int      `json:"relevance_threshold,omitempty"`
	DuplicatePolicy    string   `json:"duplicate_policy,omitempty"`
	MissingPolicy      string   `json:"missing_policy,omitempty"`
}

// EvaluateRequest is the body of POST /v1/evaluate. Judgments may be
// given as objects or as TREC qrels text.
type EvaluateRequest struct {
	Judgments []qrels.Judgment        `json:"judgments,omitempty"`
	Qrels     string                  `json:"qrels,omitempty"`
	Topics    []qrels.Query           `json:"topics,omitempty"`
	Runs      []RunRequest            `json:"runs"`
	Fusions   []experiment.FusionSpec `json:"fusions,omitempty"`
	Metrics   []string                `json:"metrics,omitempty"`
	Options   EvaluateOptions         `json:"options"`
}

// EvaluateResponse is the JSON result of an evaluation.
type EvaluateResponse struct {
	ExperimentID string         `json:"experiment_id"`
	Report       *report.Report `json:"report"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.cfg.Version})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	format := report.FormatJSON
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := report.ParseFormat(f)
		if err != nil {
			errors.WriteError(w, err)
			return
		}
		format = parsed
	}

	var req EvaluateRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteErrorWithStatus(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := s.evaluate(r, &req)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Warn("Evaluation failed")
		errors.WriteError(w, err)
		return
	}

	switch format {
	case report.FormatJSON:
		writeJSON(w, http.StatusOK, EvaluateResponse{
			ExperimentID: result.ID,
			Report:       result.Report,
		})
	case report.FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		s.writeReport(w, r, result.Report, format)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.writeReport(w, r, result.Report, format)
	}
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, rep *report.Report, format report.Format) {
	if err := report.Write(w, rep, format); err != nil {
		s.log.WithContext(r.Context()).Error("Failed to write report", "error", err)
	}
}

// evaluate turns a request into systems and runs the experiment.
func (s *Server) evaluate(r *http.Request, req *EvaluateRequest) (*experiment.Result, error) {
	if len(req.Runs) == 0 {
		return nil, errors.InvalidRequestError("at least one run is required")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	eval := s.app.Eval
	applyOptions(&eval, req)

	policy, err := qrels.ParseDuplicatePolicy(eval.DuplicatePolicy)
	if err != nil {
		return nil, err
	}

	var q *qrels.Qrels
	switch {
	case len(req.Judgments) > 0:
		q, err = qrels.New(req.Judgments, policy)
	case strings.TrimSpace(req.Qrels) != "":
		q, err = qrels.ReadQrels(strings.NewReader(req.Qrels), "qrels", policy)
	default:
		return nil, errors.InvalidRequestError("judgments or qrels are required")
	}
	if err != nil {
		return nil, err
	}

	systems := make([]experiment.System, 0, len(req.Runs)+len(req.Fusions))
	for _, rr := range req.Runs {
		systems = append(systems, runSystem(rr))
	}
	for _, spec := range req.Fusions {
		sys, err := experiment.FusionSystem(spec, systems)
		if err != nil {
			return nil, err
		}
		systems = append(systems, sys)
	}

	engine, opts, err := experiment.Setup(eval, s.app.Cache.Mode, s.log)
	if err != nil {
		return nil, err
	}

	runner := experiment.NewRunner(engine, s.cache, s.bus, s.log.WithContext(r.Context()), opts)

	return runner.Run(r.Context(), systems, q, req.Topics)
}

func validateRequest(req *EvaluateRequest) error {
	v := security.EvaluateRequestValidator{
		Systems:      make([]string, len(req.Runs)),
		Fusions:      make([]security.FusionInput, len(req.Fusions)),
		Metrics:      len(req.Metrics),
		Topics:       len(req.Topics),
		Alpha:        req.Options.Alpha,
		Permutations: req.Options.Permutations,
	}
	for i, r := range req.Runs {
		v.Systems[i] = r.Name
	}
	for i, f := range req.Fusions {
		v.Fusions[i] = security.FusionInput{Name: f.Name, Inputs: f.Inputs, Weights: f.Weights}
	}
	if err := v.Validate(); err != nil {
		return errors.Wrap(errors.CodeValidation, err.Error(), err)
	}
	return nil
}

func applyOptions(eval *config.EvalConfig, req *EvaluateRequest) {
	o := req.Options
	if len(req.Metrics) > 0 {
		eval.Metrics = req.Metrics
	}
	if o.Baseline != nil {
		eval.Baseline = *o.Baseline
	}
	if o.Test != "" {
		eval.Test = o.Test
	}
	if o.Correction != "" {
		eval.Correction = o.Correction
	}
	if o.Alpha != nil {
		eval.Alpha = *o.Alpha
	}
	if o.Permutations > 0 {
		eval.Permutations = o.Permutations
	}
	if o.Seed != nil {
		eval.Seed = *o.Seed
	}
	if o.PerQuery {
		eval.PerQuery = true
	}
	if o.RelevanceThreshold > 0 {
		eval.RelevanceThreshold = o.RelevanceThreshold
	}
	if o.DuplicatePolicy != "" {
		eval.DuplicatePolicy = o.DuplicatePolicy
	}
	if o.MissingPolicy != "" {
		eval.MissingPolicy = o.MissingPolicy
	}
}

// runSystem builds a system from its run. A run that does not parse
// yields a failed system; the rest of the request is still evaluated.
func runSystem(rr RunRequest) experiment.System {
	var rn *run.Run
	switch {
	case len(rr.Entries) > 0:
		rn = run.FromEntries(rr.Name, rr.Entries)
	case strings.TrimSpace(rr.TREC) != "":
		parsed, err := run.Read(strings.NewReader(rr.TREC), rr.Name)
		if err != nil {
			return experiment.System{Name: rr.Name, Err: err}
		}
		parsed.Tag = rr.Name
		rn = parsed
	default:
		// A system that retrieved nothing is still evaluated
		rn = run.New(rr.Name)
	}
	return experiment.System{Name: rr.Name, Run: rn}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
