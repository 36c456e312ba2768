package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/hyperjump/fransearch/internal/bundle"
)

// ErrNoBackup is returned by Restore when the store holds no latest pointer.
var ErrNoBackup = errors.New("no remote backup available")

// DefaultKeepVersions is the number of backup sets retained.
const DefaultKeepVersions = 5

const timestampLayout = "20060102_150405"

// Pointer is the latest_backup.json document.
type Pointer struct {
	Timestamp      string            `json:"timestamp"`
	Files          map[string]string `json:"files"`
	BundleID       string            `json:"bundle_id"`
	DatasetVersion int64             `json:"dataset_version"`
}

// Set is one timestamped group of uploaded artifacts.
type Set struct {
	Timestamp string   `json:"timestamp"`
	Keys      []string `json:"keys"`
	SizeBytes int64    `json:"size_bytes"`
}

// Info summarises the remote side for the storage-info endpoint.
type Info struct {
	Backend string   `json:"backend"`
	Bucket  string   `json:"bucket,omitempty"`
	Latest  *Pointer `json:"latest,omitempty"`
	Sets    int      `json:"backup_sets"`
}

// Service uploads and restores bundle directories.
type Service struct {
	store   RemoteStore
	root    string
	keep    int
	backend string
	bucket  string
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPrefix nests every key under prefix.
func WithPrefix(prefix string) Option {
	return func(s *Service) {
		if p := strings.Trim(prefix, "/"); p != "" {
			s.root = path.Join(p, "models")
		}
	}
}

// WithKeepVersions sets the retention count.
func WithKeepVersions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.keep = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDescription records backend and bucket names for Info.
func WithDescription(backend, bucket string) Option {
	return func(s *Service) {
		s.backend = backend
		s.bucket = bucket
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wraps store.
func NewService(store RemoteStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		root:   "models",
		keep:   DefaultKeepVersions,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) pointerKey() string { return path.Join(s.root, "latest_backup.json") }
func (s *Service) backupsPrefix() string { return path.Join(s.root, "backups") + "/" }

// Upload gzips every artifact of the bundle in dir, writes the latest
// pointer and prunes old sets. The pointer is written only after every
// artifact is stored.
func (s *Service) Upload(ctx context.Context, dir string) (*Pointer, error) {
	meta, err := bundle.ReadMetadata(dir)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	ts := s.now().UTC().Format(timestampLayout)
	ptr := &Pointer{
		Timestamp:      ts,
		Files:          map[string]string{},
		BundleID:       meta.ID,
		DatasetVersion: meta.DatasetVersion,
	}
	names := []string{bundle.TFIDFFile, bundle.EmbeddingsFile, meta.IndexFile, bundle.MetadataFile}
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("upload: read %s: %w", name, err)
		}
		packed, err := compress(raw)
		if err != nil {
			return nil, fmt.Errorf("upload: compress %s: %w", name, err)
		}
		key := s.backupsPrefix() + name + "_" + ts + ".gz"
		if err := s.store.Put(ctx, key, packed); err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
		ptr.Files[name] = key
	}

	data, err := json.MarshalIndent(ptr, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("upload: encode pointer: %w", err)
	}
	if err := s.store.Put(ctx, s.pointerKey(), data); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	s.logger.Info("bundle uploaded",
		zap.String("bundle_id", ptr.BundleID),
		zap.String("timestamp", ts),
		zap.Int("files", len(ptr.Files)))

	if err := s.prune(ctx); err != nil {
		s.logger.Warn("backup retention failed", zap.Error(err))
	}
	return ptr, nil
}

// Latest returns the current pointer or ErrNoBackup.
func (s *Service) Latest(ctx context.Context) (*Pointer, error) {
	data, err := s.store.Get(ctx, s.pointerKey())
	if errors.Is(err, ErrObjectNotFound) {
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, err
	}
	var ptr Pointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		return nil, fmt.Errorf("parse backup pointer: %w", err)
	}
	if len(ptr.Files) == 0 {
		return nil, ErrNoBackup
	}
	return &ptr, nil
}

// Restore downloads the latest backup set into dir, which is created if
// needed. Callers load and validate the bundle from dir afterwards.
func (s *Service) Restore(ctx context.Context, dir string) (*Pointer, error) {
	ptr, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	for name, key := range ptr.Files {
		if !bundle.IsFileName(name) {
			return nil, fmt.Errorf("restore: invalid artifact name %q", name)
		}
		packed, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("restore %s: %w", name, err)
		}
		raw := packed
		if strings.HasSuffix(key, ".gz") {
			if raw, err = decompress(packed); err != nil {
				return nil, fmt.Errorf("restore %s: %w", name, err)
			}
		}
		if err := os.WriteFile(filepath.Join(dir, name), raw, 0644); err != nil {
			return nil, fmt.Errorf("restore %s: %w", name, err)
		}
	}
	s.logger.Info("bundle downloaded",
		zap.String("bundle_id", ptr.BundleID),
		zap.String("timestamp", ptr.Timestamp))
	return ptr, nil
}

// ListBackups returns backup sets newest first.
func (s *Service) ListBackups(ctx context.Context) ([]Set, error) {
	objects, err := s.store.List(ctx, s.backupsPrefix())
	if err != nil {
		return nil, err
	}
	byTS := map[string]*Set{}
	for _, obj := range objects {
		ts, ok := keyTimestamp(obj.Key)
		if !ok {
			continue
		}
		set := byTS[ts]
		if set == nil {
			set = &Set{Timestamp: ts}
			byTS[ts] = set
		}
		set.Keys = append(set.Keys, obj.Key)
		set.SizeBytes += obj.Size
	}
	sets := make([]Set, 0, len(byTS))
	for _, set := range byTS {
		sort.Strings(set.Keys)
		sets = append(sets, *set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Timestamp > sets[j].Timestamp })
	return sets, nil
}

// Info reports the backend, the latest pointer and the set count.
func (s *Service) Info(ctx context.Context) (Info, error) {
	info := Info{Backend: s.backend, Bucket: s.bucket}
	ptr, err := s.Latest(ctx)
	switch {
	case err == nil:
		info.Latest = ptr
	case !errors.Is(err, ErrNoBackup):
		return info, err
	}
	sets, err := s.ListBackups(ctx)
	if err != nil {
		return info, err
	}
	info.Sets = len(sets)
	return info, nil
}

// Close closes the underlying store.
func (s *Service) Close() error { return s.store.Close() }

func (s *Service) prune(ctx context.Context) error {
	sets, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(sets) <= s.keep {
		return nil
	}
	var errs []error
	for _, set := range sets[s.keep:] {
		for _, key := range set.Keys {
			if err := s.store.Delete(ctx, key); err != nil {
				errs = append(errs, err)
			}
		}
		s.logger.Debug("pruned backup set", zap.String("timestamp", set.Timestamp))
	}
	return errors.Join(errs...)
}

// keyTimestamp extracts yyyymmdd_hhmmss from "<name>_<ts>.gz".
func keyTimestamp(key string) (string, bool) {
	base := strings.TrimSuffix(path.Base(key), ".gz")
	if len(base) <= len(timestampLayout)+1 {
		return "", false
	}
	ts := base[len(base)-len(timestampLayout):]
	if _, err := time.Parse(timestampLayout, ts); err != nil {
		return "", false
	}
	return ts, true
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
