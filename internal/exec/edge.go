package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zenith/hydra/internal/dom"
	"github.com/zenith/hydra/internal/island"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// EdgeConfig locates the edge worker.
type EdgeConfig struct {
	Endpoint    string
	MaxAttempts int
	Backoff     BackoffConfig
	Client      *http.Client
}

// EdgeTarget posts the activation Request to an edge worker and applies
// the Plan it returns. Transport errors and 5xx answers are retried with
// exponential backoff; anything else fails at once.
type EdgeTarget struct {
	cfg EdgeConfig
	log *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewEdgeTarget(cfg EdgeConfig, log *zap.Logger) *EdgeTarget {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &EdgeTarget{
		cfg: cfg,
		log: log,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type retryable struct{ error }

func (r retryable) Unwrap() error { return r.error }

func (t *EdgeTarget) Activate(ctx context.Context, el dom.Element, d island.Descriptor, hc island.Context) error {
	body, err := json.Marshal(newRequest(d, hc))
	if err != nil {
		return fmt.Errorf("encode activation: %w", err)
	}

	var resp Response
	for attempt := 1; ; attempt++ {
		resp, err = t.post(ctx, body)
		if err == nil {
			break
		}
		var r retryable
		if !errors.As(err, &r) || attempt >= t.cfg.MaxAttempts {
			return err
		}
		t.log.Debug("edge activation retry",
			zap.String("island", d.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := t.sleepBackoff(ctx, attempt); err != nil {
			return err
		}
	}
	if err := resp.err(); err != nil {
		return err
	}
	return hc.Do(ctx, func() error {
		return resp.Plan.apply(el, hc.Scope)
	})
}

func (t *EdgeTarget) post(ctx context.Context, body []byte) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build edge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, retryable{fmt.Errorf("edge request: %w", err)}
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, res.Body)
		return Response{}, retryable{fmt.Errorf("edge worker: %s", res.Status)}
	}
	var out Response
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode edge response (%s): %w", res.Status, err)
	}
	if res.StatusCode >= 300 && out.OK {
		out.OK = false
		if out.Error == "" {
			out.Error = "edge worker: " + res.Status
		}
	}
	return out, nil
}

func (t *EdgeTarget) sleepBackoff(ctx context.Context, attempt int) error {
	t.mu.Lock()
	delay := NextBackoffDelay(t.cfg.Backoff, attempt, t.rng)
	t.mu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
