package embedding

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/fransearch/internal/apperr"
)

// GuardedEncoder bounds every Encode call by a timeout and trips a circuit
// breaker after repeated failures. All failures, including an open breaker,
// are returned as apperr.ErrEncoding.
type GuardedEncoder struct {
	Encoder
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[[]float32]
	logger  *zap.Logger
}

// GuardOption configures a GuardedEncoder.
type GuardOption func(*guardSettings)

type guardSettings struct {
	failures      uint32
	openFor       time.Duration
	logger        *zap.Logger
	onStateChange func(from, to gobreaker.State)
}

// WithBreaker sets the consecutive failures that open the breaker and how
// long it stays open before a trial call.
func WithBreaker(failures uint32, openFor time.Duration) GuardOption {
	return func(s *guardSettings) {
		if failures > 0 {
			s.failures = failures
		}
		if openFor > 0 {
			s.openFor = openFor
		}
	}
}

// WithGuardLogger sets the logger for breaker transitions.
func WithGuardLogger(l *zap.Logger) GuardOption {
	return func(s *guardSettings) { s.logger = l }
}

// OnBreakerChange registers a callback for breaker state transitions.
func OnBreakerChange(fn func(from, to gobreaker.State)) GuardOption {
	return func(s *guardSettings) { s.onStateChange = fn }
}

// NewGuardedEncoder wraps enc. A non-positive timeout disables the deadline.
func NewGuardedEncoder(enc Encoder, timeout time.Duration, opts ...GuardOption) *GuardedEncoder {
	st := guardSettings{failures: 5, openFor: 30 * time.Second, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&st)
	}
	g := &GuardedEncoder{Encoder: enc, timeout: timeout, logger: st.logger}
	g.cb = gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
		Name:        "encoder",
		MaxRequests: 1,
		Timeout:     st.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("encoder breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
			if st.onStateChange != nil {
				st.onStateChange(from, to)
			}
		},
		// Caller cancellations say nothing about encoder health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return g
}

// Encode runs the wrapped encoder under the timeout and breaker.
func (g *GuardedEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	v, err := g.cb.Execute(func() ([]float32, error) {
		return g.encodeWithTimeout(ctx, text)
	})
	if err != nil {
		return nil, apperr.Encoding("embedding.encode", err)
	}
	return v, nil
}

type encodeResult struct {
	v   []float32
	err error
}

func (g *GuardedEncoder) encodeWithTimeout(ctx context.Context, text string) ([]float32, error) {
	if g.timeout <= 0 {
		return g.Encoder.Encode(ctx, text)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan encodeResult, 1)
	go func() {
		v, err := g.Encoder.Encode(ctx, text)
		done <- encodeResult{v: v, err: err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EncodeBatch encodes texts through the wrapped encoder. Batch calls are
// training-time work and are not subject to the per-query timeout.
func (g *GuardedEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := g.Encoder.EncodeBatch(ctx, texts)
	if err != nil {
		return nil, apperr.Encoding("embedding.encode_batch", err)
	}
	return out, nil
}

// State returns the breaker state.
func (g *GuardedEncoder) State() gobreaker.State {
	return g.cb.State()
}
