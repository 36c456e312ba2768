// Package model owns the active search bundle and its lifecycle. The
// Manager obtains a bundle on startup (remote backup, then local disk, then
// training) and replaces it atomically on retrain.
package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/fransearch/internal/apperr"
	"github.com/hyperjump/fransearch/internal/backup"
	"github.com/hyperjump/fransearch/internal/bundle"
	"github.com/hyperjump/fransearch/internal/dataset"
	"github.com/hyperjump/fransearch/internal/metrics"
	"github.com/hyperjump/fransearch/internal/storage"
	"github.com/hyperjump/fransearch/pkg/utils"
)

// State is the manager lifecycle state.
type State int32

const (
	StateEmpty State = iota
	StateLoading
	StateTraining
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateTraining:
		return "training"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrRetrainInProgress rejects a retrain or restore while another
	// training, restore or initialize holds the manager.
	ErrRetrainInProgress = errors.New("retrain already in progress")
	// ErrBackupDisabled is returned by restore when no remote is configured.
	ErrBackupDisabled = errors.New("remote backup is not enabled")
)

// Status is the manager view served by the status endpoints.
type Status struct {
	State          string     `json:"state"`
	BundleID       string     `json:"bundle_id,omitempty"`
	Source         string     `json:"source,omitempty"`
	EncoderModel   string     `json:"encoder_model,omitempty"`
	IndexType      string     `json:"index_type,omitempty"`
	Rows           int        `json:"trained_rows"`
	BundleVersion  int64      `json:"bundle_dataset_version"`
	DatasetVersion int64      `json:"dataset_version"`
	Stale          bool       `json:"stale"`
	TrainedAt      *time.Time `json:"trained_at,omitempty"`
	Retraining     bool       `json:"retraining"`
	LastError      string     `json:"last_error,omitempty"`
	LastErrorAt    *time.Time `json:"last_error_at,omitempty"`
}

// StorageInfo describes local and remote bundle storage.
type StorageInfo struct {
	ModelDir      string             `json:"model_dir"`
	BundlePresent bool               `json:"bundle_present"`
	SizeBytes     int64              `json:"size_bytes"`
	Files         []storage.FileInfo `json:"files"`
	BackupEnabled bool               `json:"backup_enabled"`
	Remote        *backup.Info       `json:"remote,omitempty"`
	RemoteError   string             `json:"remote_error,omitempty"`
}

// Manager owns the active bundle. Readers call Current without locking;
// initialize, retrain and restore serialize on mu.
type Manager struct {
	store    *dataset.Store
	trainer  *Trainer
	modelDir string
	backup   *backup.Service
	runs     storage.RunLog
	logger   *zap.Logger

	mu         sync.Mutex
	dirMu      sync.RWMutex
	state      atomic.Int32
	current    atomic.Pointer[bundle.Bundle]
	strategies []Strategy

	errMu     sync.RWMutex
	lastErr   string
	lastErrAt time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithBackup enables the remote strategy and post-training uploads.
func WithBackup(svc *backup.Service) Option {
	return func(m *Manager) { m.backup = svc }
}

// WithRunLog records every training run.
func WithRunLog(log storage.RunLog) Option {
	return func(m *Manager) { m.runs = log }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = utils.OrNop(l) }
}

// WithStrategies replaces the initialize chain.
func WithStrategies(build func(m *Manager) []Strategy) Option {
	return func(m *Manager) { m.strategies = build(m) }
}

// NewManager creates a manager in the empty state. Bundles are persisted
// under modelDir.
func NewManager(store *dataset.Store, trainer *Trainer, modelDir string, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		trainer:  trainer,
		modelDir: modelDir,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.strategies == nil {
		m.strategies = DefaultStrategies(m)
	}
	return m
}

// DefaultStrategies is remote, local, then train.
func DefaultStrategies(m *Manager) []Strategy {
	return []Strategy{remoteStrategy{m}, localStrategy{m}, trainStrategy{m}}
}

// LocalOnly loads the persisted bundle and never trains or downloads. It
// suits read-only tools such as the status command.
func LocalOnly(m *Manager) []Strategy {
	return []Strategy{localStrategy{m}}
}

// State returns the lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

// Current returns the active bundle, or nil before a successful initialize.
func (m *Manager) Current() *bundle.Bundle { return m.current.Load() }

// ModelDir returns the local bundle directory.
func (m *Manager) ModelDir() string { return m.modelDir }

// BackupEnabled reports whether a remote backup is configured.
func (m *Manager) BackupEnabled() bool { return m.backup != nil }

// Initialize tries each strategy in order; the first bundle wins. It is a
// no-op once a bundle is active. A freshly trained bundle is uploaded after
// the lock is released.
func (m *Manager) Initialize(ctx context.Context) error {
	b, source, err := m.initialize(ctx)
	if err != nil {
		return err
	}
	if b != nil && source == bundle.SourceTrain {
		m.upload(ctx, b.ID)
	}
	return nil
}

func (m *Manager) initialize(ctx context.Context) (*bundle.Bundle, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Load() != nil {
		return nil, "", nil
	}

	m.setState(StateLoading)
	var errs []error
	for _, s := range m.strategies {
		b, err := s.Load(ctx)
		if err == nil {
			m.publish(b)
			m.logger.Info("bundle ready",
				zap.String("source", s.Name()),
				zap.String("bundle_id", b.ID),
				zap.Int("rows", b.Len()),
				zap.Int64("dataset_version", b.DatasetVersion))
			return b, s.Name(), nil
		}
		if errors.Is(err, errUnavailable) {
			m.logger.Debug("bundle source unavailable", zap.String("source", s.Name()))
			continue
		}
		m.logger.Warn("bundle source failed", zap.String("source", s.Name()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		if ctx.Err() != nil {
			break
		}
		m.setState(StateLoading)
	}
	m.setState(StateEmpty)
	err := errors.Join(errs...)
	if err == nil {
		err = apperr.Training("initialize", "no bundle source succeeded", nil)
	}
	m.recordError(err)
	return nil, "", err
}

// Retrain trains from the current snapshot, persists the bundle and swaps
// it in. A concurrent call gets ErrRetrainInProgress. On failure the
// previous bundle keeps serving. The upload runs after the swap, outside
// the lock; its failure is only logged.
func (m *Manager) Retrain(ctx context.Context) (*bundle.Bundle, error) {
	if !m.mu.TryLock() {
		metrics.RecordRetrain(metrics.ResultRejected, 0)
		return nil, ErrRetrainInProgress
	}
	return m.retrainLocked(ctx)
}

// StartRetrain claims the manager and retrains in the background. It fails
// fast with ErrRetrainInProgress like Retrain. The returned channel yields
// the outcome once and is then closed.
func (m *Manager) StartRetrain(ctx context.Context) (<-chan error, error) {
	if !m.mu.TryLock() {
		metrics.RecordRetrain(metrics.ResultRejected, 0)
		return nil, ErrRetrainInProgress
	}
	m.setState(StateTraining)
	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := m.retrainLocked(ctx)
		done <- err
	}()
	return done, nil
}

// retrainLocked is called with mu held and releases it.
func (m *Manager) retrainLocked(ctx context.Context) (*bundle.Bundle, error) {
	b, err := m.trainAndPersist(ctx, "retrain")
	if err != nil {
		m.setState(m.restState())
		m.mu.Unlock()
		m.recordError(err)
		return nil, err
	}
	m.publish(b)
	m.mu.Unlock()

	m.logger.Info("retrain complete",
		zap.String("bundle_id", b.ID),
		zap.Int("rows", b.Len()),
		zap.Int64("dataset_version", b.DatasetVersion))
	m.upload(ctx, b.ID)
	return b, nil
}

func (m *Manager) restState() State {
	if m.current.Load() != nil {
		return StateReady
	}
	return StateEmpty
}

// RestoreFromBackup replaces the active bundle with the latest remote one.
func (m *Manager) RestoreFromBackup(ctx context.Context) (*bundle.Bundle, error) {
	if m.backup == nil {
		return nil, ErrBackupDisabled
	}
	if !m.mu.TryLock() {
		return nil, ErrRetrainInProgress
	}
	defer m.mu.Unlock()

	b, err := m.fetchRemote(ctx)
	if err != nil {
		m.recordError(err)
		return nil, err
	}
	m.publish(b)
	m.logger.Info("bundle restored from backup",
		zap.String("bundle_id", b.ID),
		zap.Int64("dataset_version", b.DatasetVersion))
	return b, nil
}

// trainAndPersist runs one recorded training run. Callers hold mu.
func (m *Manager) trainAndPersist(ctx context.Context, reason string) (*bundle.Bundle, error) {
	m.setState(StateTraining)
	snap := m.store.Snapshot()
	run := &storage.TrainingRun{Trigger: reason, Rows: snap.Len(), DatasetVersion: snap.Version}
	m.startRun(ctx, run)

	start := time.Now()
	b, err := m.trainer.Train(ctx, snap)
	if err == nil {
		if perr := m.save(b); perr != nil {
			_ = b.Close()
			b, err = nil, apperr.Persist("save bundle", perr)
		}
	}
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordRetrain(metrics.ResultFailure, elapsed)
		run.Error = err.Error()
	} else {
		metrics.RecordRetrain(metrics.ResultSuccess, elapsed)
		run.BundleID = b.ID
	}
	m.finishRun(ctx, run)
	return b, err
}

func (m *Manager) publish(b *bundle.Bundle) {
	// The replaced bundle is left to the garbage collector; in-flight
	// queries may still be reading it.
	m.current.Store(b)
	m.setState(StateReady)
	metrics.BundleRows.Set(float64(b.Len()))
	m.errMu.Lock()
	m.lastErr = ""
	m.lastErrAt = time.Time{}
	m.errMu.Unlock()
}

func (m *Manager) checkEncoder(b *bundle.Bundle) error {
	want := m.trainer.Encoder.Model()
	if b.EncoderModel != want {
		return fmt.Errorf("bundle %s was built with encoder %q, current encoder is %q", b.ID, b.EncoderModel, want)
	}
	return nil
}

// save replaces the local bundle dir. dirMu keeps an upload from reading a
// half-replaced directory.
func (m *Manager) save(b *bundle.Bundle) error {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()
	return bundle.Save(m.modelDir, b)
}

func (m *Manager) upload(ctx context.Context, bundleID string) {
	if m.backup == nil {
		return
	}
	m.dirMu.RLock()
	defer m.dirMu.RUnlock()
	if _, err := m.backup.Upload(ctx, m.modelDir); err != nil {
		m.logger.Warn("bundle upload failed", zap.String("bundle_id", bundleID), zap.Error(err))
	}
}

func (m *Manager) recordError(err error) {
	m.errMu.Lock()
	m.lastErr = err.Error()
	m.lastErrAt = time.Now().UTC()
	m.errMu.Unlock()
}

func (m *Manager) startRun(ctx context.Context, run *storage.TrainingRun) {
	if m.runs == nil {
		return
	}
	if err := m.runs.StartRun(ctx, run); err != nil {
		m.logger.Warn("record training run", zap.Error(err))
	}
}

func (m *Manager) finishRun(ctx context.Context, run *storage.TrainingRun) {
	if m.runs == nil || run.ID == "" {
		return
	}
	if err := m.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		m.logger.Warn("record training run", zap.Error(err))
	}
}

// Status reports the lifecycle state and the active bundle.
func (m *Manager) Status() Status {
	snap := m.store.Snapshot()
	st := Status{
		State:          m.State().String(),
		DatasetVersion: snap.Version,
		Retraining:     m.State() == StateTraining,
	}
	if b := m.Current(); b != nil {
		trainedAt := b.TrainedAt
		st.BundleID = b.ID
		st.Source = b.Source
		st.EncoderModel = b.EncoderModel
		st.IndexType = b.Index.Type()
		st.Rows = b.Len()
		st.BundleVersion = b.DatasetVersion
		st.Stale = b.Stale(snap.Version, snap.Fingerprint)
		st.TrainedAt = &trainedAt
	}
	m.errMu.RLock()
	if m.lastErr != "" {
		at := m.lastErrAt
		st.LastError = m.lastErr
		st.LastErrorAt = &at
	}
	m.errMu.RUnlock()
	return st
}

// RecentRuns returns up to n recorded training runs, newest first.
func (m *Manager) RecentRuns(ctx context.Context, n int) ([]storage.TrainingRun, error) {
	if m.runs == nil {
		return nil, nil
	}
	return m.runs.RecentRuns(ctx, n)
}

// RunCounts returns the total and failed training run counts.
func (m *Manager) RunCounts(ctx context.Context) (total, failed int64, err error) {
	if m.runs == nil {
		return 0, 0, nil
	}
	return m.runs.CountRuns(ctx)
}

// Backups lists remote backup sets, newest first.
func (m *Manager) Backups(ctx context.Context) ([]backup.Set, error) {
	if m.backup == nil {
		return nil, ErrBackupDisabled
	}
	return m.backup.ListBackups(ctx)
}

// StorageInfo reports local artifact sizes and, when enabled, the remote
// backup summary. A remote failure is reported in the result.
func (m *Manager) StorageInfo(ctx context.Context) (StorageInfo, error) {
	info := StorageInfo{
		ModelDir:      m.modelDir,
		BundlePresent: bundle.Exists(m.modelDir),
		BackupEnabled: m.backup != nil,
	}
	size, err := storage.DiskUsageBytes(m.modelDir)
	if err != nil {
		return info, err
	}
	info.SizeBytes = size
	if info.Files, err = storage.ListFiles(m.modelDir); err != nil {
		return info, err
	}
	if m.backup != nil {
		remote, err := m.backup.Info(ctx)
		if err != nil {
			info.RemoteError = err.Error()
		} else {
			info.Remote = &remote
		}
	}
	return info, nil
}
