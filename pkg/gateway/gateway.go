package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/adapters"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/cache"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/model"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/router"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/tokenizer"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/tracker"
)

// Limiter admits or rejects a request to a provider.
type Limiter interface {
	TryAcquire(provider string) bool
}

// Budget holds spend for in-flight calls and settles it afterwards.
type Budget interface {
	Reserve(estimatedUSD float64) (tracker.Reservation, error)
	Commit(reservationID string, actualUSD float64) error
	Release(reservationID string) error
}

// AttemptSink receives every routing attempt.
type AttemptSink interface {
	Record(ctx context.Context, attempt *model.RoutingAttempt) error
}

// Cache stores completed responses.
type Cache interface {
	Get(ctx context.Context, key cache.Key) (*cache.Entry, error)
	Set(ctx context.Context, key cache.Key, entry *cache.Entry) error
}

// Request is a caller's completion request.
type Request struct {
	Prompt          string           `json:"prompt"`
	EstimatedTokens int64            `json:"estimated_tokens,omitempty"`
	MaxTokens       int              `json:"max_tokens,omitempty"`
	Override        *router.Override `json:"override,omitempty"`
}

// CompletionResult is returned for a successful request.
type CompletionResult struct {
	RequestID  string  `json:"request_id"`
	Text       string  `json:"text"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	CostUSD    float64 `json:"cost_usd"`
	TokensUsed int64   `json:"tokens_used"`
	Cached     bool    `json:"cached"`
}

// Gateway routes completion requests across providers, enforcing rate limits
// and the global budget.
type Gateway struct {
	router   *router.Router
	limiter  Limiter
	budget   Budget
	adapters map[string]adapters.Adapter
	sink     AttemptSink
	cache    Cache
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithAttemptSink records every attempt to sink.
func WithAttemptSink(sink AttemptSink) Option {
	return func(g *Gateway) { g.sink = sink }
}

// WithCache serves repeated requests from c.
func WithCache(c Cache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithClock overrides the time source used for attempt timestamps and latency.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a gateway. adapterSet maps provider names to their adapters.
func New(r *router.Router, limiter Limiter, budget Budget, adapterSet map[string]adapters.Adapter, opts ...Option) *Gateway {
	g := &Gateway{
		router:   r,
		limiter:  limiter,
		budget:   budget,
		adapters: adapterSet,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete serves req from the first candidate that succeeds.
//
// A rate-limited or failing candidate moves on to the next one. A budget
// rejection stops the request. If the caller's context ends during a provider
// call the reservation is released and the context error is returned.
func (g *Gateway) Complete(ctx context.Context, req Request) (*CompletionResult, error) {
	if req.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	requestID := uuid.New().String()

	tokens := req.EstimatedTokens
	if tokens <= 0 {
		tokens = tokenizer.EstimatePrompt(req.Prompt, req.MaxTokens)
	}

	key := cacheKey(req)
	if res, ok := g.lookupCache(ctx, key, requestID); ok {
		return res, nil
	}

	candidates, err := g.router.Route(router.Request{Override: req.Override, EstimatedTokens: tokens})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoProviderAvailable
	}

	var reasons []AttemptReason
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, reason, err := g.try(ctx, requestID, c, req, tokens)
		if err != nil {
			return nil, err
		}
		if res != nil {
			g.storeCache(ctx, key, res)
			return res, nil
		}
		reasons = append(reasons, AttemptReason{Provider: c.Provider.Name, Model: c.Model.Name, Reason: reason})
	}

	g.logger.Warn("all providers failed", "request_id", requestID, "attempts", len(reasons))
	return nil, &AllProvidersFailedError{Reasons: reasons}
}

// try runs one candidate. It returns a result on success, a reason when the
// next candidate should be tried, or an error that ends the request.
func (g *Gateway) try(ctx context.Context, requestID string, c router.Candidate, req Request, tokens int64) (*CompletionResult, string, error) {
	p, m := c.Provider, c.Model

	adapter, ok := g.adapters[p.Name]
	if !ok {
		g.record(ctx, requestID, c, model.OutcomeProviderError, ReasonNoAdapter, 0, 0, 0)
		return nil, ReasonNoAdapter, nil
	}

	if !g.limiter.TryAcquire(p.Name) {
		g.logger.Debug("provider rate limited", "request_id", requestID, "provider", p.Name)
		g.record(ctx, requestID, c, model.OutcomeRateLimited, ReasonRateLimited, 0, 0, 0)
		return nil, ReasonRateLimited, nil
	}

	reservation, err := g.budget.Reserve(m.EstimateCost(tokens))
	if err != nil {
		g.logger.Warn("budget exhausted", "request_id", requestID, "provider", p.Name, "model", m.Name, "error", err)
		g.record(ctx, requestID, c, model.OutcomeBudgetExceeded, err.Error(), 0, 0, 0)
		return nil, "", err
	}

	settled := false
	defer func() {
		if !settled {
			if err := g.budget.Release(reservation.ID); err != nil {
				g.logger.Error("release reservation failed", "request_id", requestID, "error", err)
			}
		}
	}()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.MaxTokens
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = providers.DefaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	start := g.now()
	out, err := adapter.Complete(callCtx, m.Name, req.Prompt, maxTokens)
	latency := g.now().Sub(start)
	cancel()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			g.record(ctx, requestID, c, model.OutcomeProviderError, ctxErr.Error(), 0, 0, latency)
			return nil, "", ctxErr
		}
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) && adapters.KindOf(err) == "" {
			reason = fmt.Sprintf("timeout after %s", timeout)
		}
		g.logger.Warn("provider call failed",
			"request_id", requestID,
			"provider", p.Name,
			"model", m.Name,
			"kind", adapters.KindOf(err),
			"error", err,
		)
		g.record(ctx, requestID, c, model.OutcomeProviderError, reason, 0, 0, latency)
		return nil, reason, nil
	}

	actual := m.EstimateCost(out.TokensUsed)
	settled = true
	if err := g.budget.Commit(reservation.ID, actual); err != nil {
		g.logger.Error("commit reservation failed", "request_id", requestID, "error", err)
	}
	g.record(ctx, requestID, c, model.OutcomeSuccess, "", actual, out.TokensUsed, latency)

	g.logger.Info("completion served",
		"request_id", requestID,
		"provider", p.Name,
		"model", m.Name,
		"tokens", out.TokensUsed,
		"cost_usd", actual,
		"latency_ms", latency.Milliseconds(),
	)
	return &CompletionResult{
		RequestID:  requestID,
		Text:       out.Text,
		Provider:   p.Name,
		Model:      m.Name,
		CostUSD:    actual,
		TokensUsed: out.TokensUsed,
	}, "", nil
}

func (g *Gateway) record(ctx context.Context, requestID string, c router.Candidate, outcome model.Outcome, reason string, cost float64, tokens int64, latency time.Duration) {
	if g.sink == nil {
		return
	}
	attempt := &model.RoutingAttempt{
		ID:         uuid.New().String(),
		RequestID:  requestID,
		Provider:   c.Provider.Name,
		Model:      c.Model.Name,
		Outcome:    outcome,
		Reason:     reason,
		CostUSD:    cost,
		TokensUsed: tokens,
		LatencyMs:  latency.Milliseconds(),
		Timestamp:  g.now(),
	}
	if err := g.sink.Record(context.WithoutCancel(ctx), attempt); err != nil {
		g.logger.Error("record attempt failed", "request_id", requestID, "provider", c.Provider.Name, "error", err)
	}
}

func cacheKey(req Request) cache.Key {
	k := cache.Key{Prompt: req.Prompt, MaxTokens: req.MaxTokens}
	if req.Override != nil {
		k.Provider = req.Override.Provider
		k.Model = req.Override.Model
	}
	return k
}

func (g *Gateway) lookupCache(ctx context.Context, key cache.Key, requestID string) (*CompletionResult, bool) {
	if g.cache == nil {
		return nil, false
	}
	entry, err := g.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			g.logger.Warn("cache lookup failed", "request_id", requestID, "error", err)
		}
		return nil, false
	}
	g.logger.Debug("cache hit", "request_id", requestID, "provider", entry.Provider, "model", entry.Model)
	return &CompletionResult{
		RequestID:  requestID,
		Text:       entry.Text,
		Provider:   entry.Provider,
		Model:      entry.Model,
		TokensUsed: entry.TokensUsed,
		Cached:     true,
	}, true
}

func (g *Gateway) storeCache(ctx context.Context, key cache.Key, res *CompletionResult) {
	if g.cache == nil {
		return
	}
	err := g.cache.Set(context.WithoutCancel(ctx), key, &cache.Entry{
		Text:       res.Text,
		Provider:   res.Provider,
		Model:      res.Model,
		TokensUsed: res.TokensUsed,
		StoredAt:   g.now(),
	})
	if err != nil {
		g.logger.Warn("cache store failed", "request_id", res.RequestID, "error", err)
	}
}
