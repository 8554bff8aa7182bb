package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/gateway"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/model"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/router"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/tracker"
)

const (
	queryTimeout        = 10 * time.Second
	defaultAttemptLimit = 100
)

type completionRequest struct {
	Prompt          string `json:"prompt" validate:"required"`
	EstimatedTokens int64  `json:"estimated_tokens" validate:"gte=0"`
	MaxTokens       int    `json:"max_tokens" validate:"gte=0"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodySize)

	var body completionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), nil)
		return
	}

	req := gateway.Request{
		Prompt:          body.Prompt,
		EstimatedTokens: body.EstimatedTokens,
		MaxTokens:       body.MaxTokens,
	}
	if body.Provider != "" || body.Model != "" {
		req.Override = &router.Override{Provider: body.Provider, Model: body.Model}
	}

	res, err := s.opts.Gateway.Complete(r.Context(), req)
	if err != nil {
		s.writeCompletionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeCompletionError(w http.ResponseWriter, err error) {
	var failed *gateway.AllProvidersFailedError
	switch {
	case errors.Is(err, gateway.ErrEmptyPrompt), errors.Is(err, router.ErrInvalidOverride):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, tracker.ErrBudgetExceeded):
		writeError(w, http.StatusPaymentRequired, err.Error(), nil)
	case errors.Is(err, gateway.ErrNoProviderAvailable):
		writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
	case errors.As(err, &failed):
		writeError(w, http.StatusBadGateway, "all providers failed", failed.Reasons)
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "request canceled", nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out", nil)
	default:
		s.logger.Error("complete request", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", jsonName(fe.Field()))
	case "gte":
		return fmt.Sprintf("%s must be >= %s", jsonName(fe.Field()), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", jsonName(fe.Field()))
}

func jsonName(field string) string {
	switch field {
	case "EstimatedTokens":
		return "estimated_tokens"
	case "MaxTokens":
		return "max_tokens"
	case "Prompt":
		return "prompt"
	}
	return field
}

type providerView struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	Enabled           bool     `json:"enabled"`
	Priority          int      `json:"priority"`
	PreferredModel    string   `json:"preferred_model"`
	Models            []string `json:"models"`
	RequestsPerMin    int      `json:"requests_per_minute"`
	RemainingInWindow int      `json:"remaining_in_window"`
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	all := s.opts.Registry.All()
	out := make([]providerView, 0, len(all))
	for _, p := range all {
		v := providerView{
			Name:              p.Name,
			Type:              string(p.Type),
			Enabled:           p.Enabled,
			Priority:          p.Priority,
			PreferredModel:    s.opts.Registry.Preference(p.Name),
			RequestsPerMin:    p.RateLimit.RequestsPerMinute,
			RemainingInWindow: -1,
		}
		for _, m := range s.opts.Registry.ModelsFor(p.Name) {
			v.Models = append(v.Models, m.Name)
		}
		if s.opts.Limiter != nil {
			v.RemainingInWindow = s.opts.Limiter.Remaining(p.Name)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBudget(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Budget.Snapshot())
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	q := r.URL.Query()
	filter := tracker.AttemptFilter{
		RequestID: q.Get("request_id"),
		Provider:  q.Get("provider"),
		Model:     q.Get("model"),
		Outcome:   model.Outcome(q.Get("outcome")),
		Limit:     defaultAttemptLimit,
	}
	if filter.Outcome != "" && !filter.Outcome.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown outcome %q", filter.Outcome), nil)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		filter.Limit = n
	}

	attempts, err := s.opts.Attempts.Query(ctx, filter)
	if err != nil {
		s.logger.Error("query attempts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	if attempts == nil {
		attempts = []tracker.RoutingAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	period := tracker.BudgetPeriod(r.URL.Query().Get("period"))
	switch period {
	case "":
		period = tracker.PeriodDaily
	case tracker.PeriodDaily, tracker.PeriodMonthly:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown period %q", period), nil)
		return
	}

	start, end := tracker.PeriodBounds(period, time.Now())
	summary, err := s.opts.Attempts.Report(ctx, tracker.AttemptFilter{
		Provider:  r.URL.Query().Get("provider"),
		Outcome:   model.Outcome(r.URL.Query().Get("outcome")),
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		s.logger.Error("aggregate attempts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
