// Package dataset owns the canonical listing catalogue persisted as a JSON
// file. Every mutation validates, builds a new snapshot, writes it to disk,
// and only then publishes it; a failed write leaves the previous snapshot in
// place.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hyperjump/fransearch/internal/apperr"
	"github.com/hyperjump/fransearch/internal/fileid"
	"github.com/hyperjump/fransearch/internal/models"
)

// Page limits for List.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 500
)

// Snapshot is an immutable view of the dataset at one version. Callers must
// not modify Listings.
//
// Fingerprint is the content ID of the file the snapshot was read from or
// written to, empty when no file exists yet.
type Snapshot struct {
	Listings    []models.Listing
	Version     int64
	Fingerprint string
}

// Len returns the number of listings.
func (s *Snapshot) Len() int { return len(s.Listings) }

// Find returns the listing with id.
func (s *Snapshot) Find(id int) (models.Listing, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Listings[i], true
	}
	return models.Listing{}, false
}

func (s *Snapshot) indexOf(id int) int {
	for i := range s.Listings {
		if s.Listings[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Snapshot) maxID() int {
	hi := 0
	for i := range s.Listings {
		if s.Listings[i].ID > hi {
			hi = s.Listings[i].ID
		}
	}
	return hi
}

// Stats describes the dataset file.
type Stats struct {
	Path        string `json:"path"`
	Format      Format `json:"format"`
	Listings    int    `json:"listings"`
	Version     int64  `json:"version"`
	SizeBytes   int64  `json:"size_bytes"`
	Fingerprint string `json:"fingerprint"`
}

// Store is the dataset store. Reads are lock-free; writers serialize on mu.
type Store struct {
	path     string
	logger   *zap.Logger
	validate *validator.Validate

	mu          sync.Mutex
	snap        atomic.Pointer[Snapshot]
	layout      fileLayout
	fingerprint string
	size        int64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a store for the file at path. Call Load before use.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:     path,
		logger:   zap.NewNop(),
		validate: validator.New(),
		layout:   fileLayout{format: FormatWrapped},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(&Snapshot{})
	return s
}

// Path returns the dataset file path.
func (s *Store) Path() string { return s.path }

// Load reads the dataset file and replaces the in-memory snapshot. A missing
// file is an empty dataset at version 0.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.loadLocked(false)
	return err
}

// Reload re-reads the file if its content changed since the last load or
// write. The version moves forward by at least one on change.
func (s *Store) Reload() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(true)
}

func (s *Store) loadLocked(reload bool) (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if reload {
			return false, nil
		}
		s.snap.Store(&Snapshot{})
		s.fingerprint, s.size = "", 0
		s.logger.Info("dataset file not found, starting empty", zap.String("path", s.path))
		return true, nil
	}
	if err != nil {
		return false, apperr.DataCorrupt("dataset.load", err)
	}
	fp := fileid.ContentID(data)
	if reload && fp == s.fingerprint {
		return false, nil
	}
	dec, err := decodeFile(data)
	if err != nil {
		return false, apperr.DataCorrupt("dataset.load", err)
	}
	if err := s.checkLoaded(dec.listings); err != nil {
		return false, apperr.DataCorrupt("dataset.load", err)
	}
	version := dec.version
	if reload {
		if next := s.snap.Load().Version + 1; version < next {
			version = next
		}
	}
	s.snap.Store(&Snapshot{Listings: dec.listings, Version: version, Fingerprint: fp})
	s.layout = dec.layout
	s.fingerprint, s.size = fp, int64(len(data))
	s.logger.Info("dataset loaded",
		zap.String("path", s.path),
		zap.Int("listings", len(dec.listings)),
		zap.Int64("version", version),
		zap.String("format", string(dec.layout.format)))
	return true, nil
}

func (s *Store) checkLoaded(listings []models.Listing) error {
	seen := make(map[int]struct{}, len(listings))
	for i := range listings {
		l := &listings[i]
		l.Normalize()
		if l.ID <= 0 {
			return fmt.Errorf("listing at index %d has no positive id", i)
		}
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("duplicate listing id %d", l.ID)
		}
		seen[l.ID] = struct{}{}
		if err := s.validate.Struct(l); err != nil {
			return fmt.Errorf("listing %d: %s", l.ID, describe(err))
		}
	}
	return nil
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Version returns the current dataset version.
func (s *Store) Version() int64 {
	return s.snap.Load().Version
}

// Append validates l, assigns the next id when l.ID is zero, and persists.
func (s *Store) Append(l models.Listing) (models.Listing, error) {
	l.Normalize()
	if err := s.check("dataset.append", &l); err != nil {
		return models.Listing{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	switch {
	case l.ID < 0:
		return models.Listing{}, apperr.Validation("dataset.append", "id must be positive")
	case l.ID == 0:
		l.ID = cur.maxID() + 1
	case cur.indexOf(l.ID) >= 0:
		return models.Listing{}, apperr.Validation("dataset.append", "listing id %d already exists", l.ID)
	}

	next := make([]models.Listing, len(cur.Listings), len(cur.Listings)+1)
	copy(next, cur.Listings)
	next = append(next, l)
	if err := s.commitLocked(next, cur.Version+1); err != nil {
		return models.Listing{}, err
	}
	s.logger.Info("listing added", zap.Int("id", l.ID), zap.String("title", l.Title))
	return l, nil
}

// Update applies patch to the listing with id and persists.
func (s *Store) Update(id int, patch models.ListingPatch) (models.Listing, error) {
	if patch.ID != nil && *patch.ID != id {
		return models.Listing{}, apperr.Validation("dataset.update", "listing id cannot be changed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	i := cur.indexOf(id)
	if i < 0 {
		return models.Listing{}, apperr.NotFound("dataset.update", "listing %d not found", id)
	}
	updated := patch.Apply(cur.Listings[i])
	updated.Normalize()
	if err := s.check("dataset.update", &updated); err != nil {
		return models.Listing{}, err
	}

	next := make([]models.Listing, len(cur.Listings))
	copy(next, cur.Listings)
	next[i] = updated
	if err := s.commitLocked(next, cur.Version+1); err != nil {
		return models.Listing{}, err
	}
	s.logger.Info("listing updated", zap.Int("id", id))
	return updated, nil
}

// Delete removes the listing with id and persists.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	i := cur.indexOf(id)
	if i < 0 {
		return apperr.NotFound("dataset.delete", "listing %d not found", id)
	}
	next := make([]models.Listing, 0, len(cur.Listings)-1)
	next = append(next, cur.Listings[:i]...)
	next = append(next, cur.Listings[i+1:]...)
	if err := s.commitLocked(next, cur.Version+1); err != nil {
		return err
	}
	s.logger.Info("listing deleted", zap.Int("id", id))
	return nil
}

// commitLocked writes listings to disk and publishes them. On failure the
// published snapshot is untouched.
func (s *Store) commitLocked(listings []models.Listing, version int64) error {
	data, err := encodeFile(listings, version, s.layout)
	if err != nil {
		return apperr.Persist("dataset.persist", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		s.logger.Error("dataset write failed, keeping previous snapshot",
			zap.String("path", s.path), zap.Error(err))
		return apperr.Persist("dataset.persist", err)
	}
	fp := fileid.ContentID(data)
	s.snap.Store(&Snapshot{Listings: listings, Version: version, Fingerprint: fp})
	s.fingerprint, s.size = fp, int64(len(data))
	return nil
}

func (s *Store) check(op string, l *models.Listing) error {
	if err := s.validate.Struct(l); err != nil {
		return apperr.Validation(op, "%s", describe(err))
	}
	return nil
}

// describe turns validator errors into "title is required" style messages.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, ", ")
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}

// Get returns the listing with id.
func (s *Store) Get(id int) (models.Listing, error) {
	l, ok := s.snap.Load().Find(id)
	if !ok {
		return models.Listing{}, apperr.NotFound("dataset.get", "listing %d not found", id)
	}
	return l, nil
}

// List returns one page of listings in file order. limit is clamped to
// [1, MaxPageLimit] with DefaultPageLimit for zero.
func (s *Store) List(offset, limit int) models.ListingPage {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	snap := s.snap.Load()
	total := snap.Len()
	page := models.ListingPage{Items: []models.Listing{}, Total: total, Offset: offset, Limit: limit}
	if offset >= total {
		return page
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page.Items = snap.Listings[offset:end]
	page.HasMore = end < total
	return page
}

// Filters returns the sorted distinct sectors, locations and tags.
func (s *Store) Filters() models.FilterOptions {
	snap := s.snap.Load()
	sectors := map[string]struct{}{}
	locations := map[string]struct{}{}
	tags := map[string]struct{}{}
	for i := range snap.Listings {
		l := &snap.Listings[i]
		if l.Sector != "" {
			sectors[l.Sector] = struct{}{}
		}
		if l.Location != "" {
			locations[l.Location] = struct{}{}
		}
		for _, t := range l.Tags {
			tags[t] = struct{}{}
		}
	}
	return models.FilterOptions{
		Sectors:   sortedKeys(sectors),
		Locations: sortedKeys(locations),
		Tags:      sortedKeys(tags),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Stats returns file and snapshot statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap.Load()
	return Stats{
		Path:        s.path,
		Format:      s.layout.format,
		Listings:    snap.Len(),
		Version:     snap.Version,
		SizeBytes:   s.size,
		Fingerprint: s.fingerprint,
	}
}

// Fingerprint returns the content fingerprint of the last file read or written.
func (s *Store) Fingerprint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint
}
