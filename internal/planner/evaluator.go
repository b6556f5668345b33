package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/evaluation"
	"github.com/aristath/helmsman/internal/resilience"
	"github.com/rs/zerolog"
)

// Evaluator scores one batch of sequences. Implementations are an in-process
// evaluation service and an HTTP client for remote evaluator replicas.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, req evaluation.BatchRequest) (*evaluation.BatchResponse, error)
}

// LocalEvaluator runs evaluation in-process. Used when no remote endpoints
// are configured and in tests.
type LocalEvaluator struct {
	service *evaluation.Service
}

// NewLocalEvaluator wraps an evaluation service.
func NewLocalEvaluator(service *evaluation.Service) *LocalEvaluator {
	return &LocalEvaluator{service: service}
}

func (e *LocalEvaluator) Name() string { return "local" }

func (e *LocalEvaluator) Evaluate(ctx context.Context, req evaluation.BatchRequest) (*evaluation.BatchResponse, error) {
	return e.service.EvaluateBatch(ctx, req)
}

// HTTPEvaluator calls a remote evaluator replica.
type HTTPEvaluator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPEvaluator creates a client for one evaluator endpoint.
func NewHTTPEvaluator(endpoint string, timeout time.Duration) *HTTPEvaluator {
	return &HTTPEvaluator{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEvaluator) Name() string { return e.endpoint }

func (e *HTTPEvaluator) Evaluate(ctx context.Context, req evaluation.BatchRequest) (*evaluation.BatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding evaluation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/v1/evaluate-sequences", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrEvaluatorUnavailable, e.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %s returned %d: %s", domain.ErrEvaluatorUnavailable, e.endpoint, resp.StatusCode, payload)
		}
		return nil, fmt.Errorf("evaluator %s rejected batch (%d): %s", e.endpoint, resp.StatusCode, payload)
	}

	var out evaluation.BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding evaluation response from %s: %w", e.endpoint, err)
	}
	return &out, nil
}

// resilientEvaluator composes circuit breaker over retry around a delegate.
type resilientEvaluator struct {
	delegate Evaluator
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryPolicy
}

func (e *resilientEvaluator) Name() string { return e.delegate.Name() }

func (e *resilientEvaluator) Evaluate(ctx context.Context, req evaluation.BatchRequest) (*evaluation.BatchResponse, error) {
	var out *evaluation.BatchResponse
	err := e.breaker.Execute(func() error {
		return e.retry.Do(ctx, func(ctx context.Context) error {
			resp, err := e.delegate.Evaluate(ctx, req)
			if err != nil {
				return err
			}
			out = resp
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluatorPool hands out evaluators round-robin, each wrapped with its own
// breaker and a shared retry policy.
type EvaluatorPool struct {
	mu         sync.Mutex
	evaluators []Evaluator
	next       int
	log        zerolog.Logger
}

// NewEvaluatorPool wraps each evaluator in breaker∘retry. The registry keys
// breakers by evaluator name so state survives across requests.
func NewEvaluatorPool(
	evaluators []Evaluator,
	registry *resilience.BreakerRegistry,
	retry resilience.RetryPolicy,
	log zerolog.Logger,
) *EvaluatorPool {
	wrapped := make([]Evaluator, len(evaluators))
	for i, e := range evaluators {
		wrapped[i] = &resilientEvaluator{
			delegate: e,
			breaker:  registry.GetOrCreate("evaluator:" + e.Name()),
			retry:    retry,
		}
	}
	return &EvaluatorPool{
		evaluators: wrapped,
		log:        log.With().Str("component", "evaluator_pool").Logger(),
	}
}

// Size returns the number of evaluators in the pool.
func (p *EvaluatorPool) Size() int { return len(p.evaluators) }

// Dispatch sends the batch to the next evaluator round-robin. If that
// evaluator fails it walks the rest of the pool once; only when every
// evaluator has failed does it surface ErrEvaluatorUnavailable.
func (p *EvaluatorPool) Dispatch(ctx context.Context, req evaluation.BatchRequest) (*evaluation.BatchResponse, error) {
	if len(p.evaluators) == 0 {
		return nil, domain.ErrEvaluatorUnavailable
	}

	p.mu.Lock()
	start := p.next
	p.next = (p.next + 1) % len(p.evaluators)
	p.mu.Unlock()

	var lastErr error
	for i := 0; i < len(p.evaluators); i++ {
		e := p.evaluators[(start+i)%len(p.evaluators)]
		resp, err := e.Evaluate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		p.log.Warn().Str("evaluator", e.Name()).Err(err).Msg("Evaluator failed for batch")
	}

	return nil, fmt.Errorf("%w: all %d evaluators failed: %v", domain.ErrEvaluatorUnavailable, len(p.evaluators), lastErr)
}
