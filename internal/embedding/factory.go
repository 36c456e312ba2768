package embedding

import (
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Backend names.
const (
	BackendONNX = "onnx"
	BackendHash = "hash"
)

// Options selects and tunes the encoder stack built by New.
type Options struct {
	Backend    string
	ModelPath  string
	Dimensions int
	MaxTokens  int
	CacheSize  int
	Workers    int

	Timeout         time.Duration
	BreakerFailures uint32
	BreakerOpen     time.Duration
	OnBreakerChange func(from, to gobreaker.State)

	Logger *zap.Logger
}

// New builds backend → pool → cache → guard. When the ONNX backend cannot
// be loaded the hash encoder is used instead and a warning is logged.
func New(opts Options) (*GuardedEncoder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var base Encoder
	switch opts.Backend {
	case BackendONNX:
		onnx, err := NewONNXEncoder(opts.ModelPath, opts.Dimensions, opts.MaxTokens)
		if err == nil {
			base = onnx
			logger.Info("ONNX encoder loaded", zap.String("model", onnx.Model()))
			break
		}
		logger.Warn("ONNX encoder unavailable, falling back to hash encoder",
			zap.String("model_path", opts.ModelPath), zap.Error(err))
		fallthrough
	case BackendHash, "":
		pooled, err := NewPooledEncoder(NewHashEncoder(opts.Dimensions), opts.Workers)
		if err != nil {
			return nil, err
		}
		base = pooled
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", opts.Backend)
	}

	var enc Encoder = base
	if opts.CacheSize > 0 {
		enc = NewCachedEncoder(base, opts.CacheSize)
	}
	return NewGuardedEncoder(enc, opts.Timeout,
		WithBreaker(opts.BreakerFailures, opts.BreakerOpen),
		WithGuardLogger(logger),
		OnBreakerChange(opts.OnBreakerChange),
	), nil
}
