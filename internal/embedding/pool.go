package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// PooledEncoder fans EncodeBatch out over a bounded goroutine pool. Results
// keep input order. Use it for thread-safe backends; the ONNX session is
// serialized internally so pooling it gains nothing.
type PooledEncoder struct {
	Encoder
	pool *ants.Pool
}

// NewPooledEncoder wraps enc with a pool of size workers.
func NewPooledEncoder(enc Encoder, size int) (*PooledEncoder, error) {
	if size <= 0 {
		size = 4
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pool: %w", err)
	}
	return &PooledEncoder{Encoder: enc, pool: pool}, nil
}

// EncodeBatch encodes every text and returns vectors in input order. The
// first error cancels the remaining work.
func (p *PooledEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}
	for i := range texts {
		i := i
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			v, err := p.Encoder.Encode(ctx, texts[i])
			if err != nil {
				fail(fmt.Errorf("text %d: %w", i, err))
				return
			}
			out[i] = v
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit text %d: %w", i, err))
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the pool and closes the wrapped encoder.
func (p *PooledEncoder) Close() error {
	p.pool.Release()
	return p.Encoder.Close()
}
