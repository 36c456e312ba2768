// Package search runs hybrid (keyword + semantic) ranking over the active
// model bundle, plus autocomplete and recommendations.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/fransearch/internal/apperr"
	"github.com/hyperjump/fransearch/internal/bundle"
	"github.com/hyperjump/fransearch/internal/dataset"
	"github.com/hyperjump/fransearch/internal/embedding"
	"github.com/hyperjump/fransearch/internal/keyword"
	"github.com/hyperjump/fransearch/internal/metrics"
	"github.com/hyperjump/fransearch/internal/model"
	"github.com/hyperjump/fransearch/internal/models"
	"github.com/hyperjump/fransearch/internal/vector"
	"github.com/hyperjump/fransearch/pkg/utils"
)

// ErrNotReady is returned when no bundle is active yet.
var ErrNotReady = errors.New("search index is not ready")

// Defaults.
const (
	DefaultSemanticWeight = 0.6
	DefaultTopN           = 10
	DefaultMaxTopN        = 50

	DefaultRecommendTopN = 5
	MaxRecommendTopN     = 20
	DefaultSuggestions   = 8
	MaxSuggestions       = 20
)

// Bundles is the engine's view of the model manager.
type Bundles interface {
	Current() *bundle.Bundle
	State() model.State
}

// Options tunes ranking.
type Options struct {
	DefaultSemanticWeight float64
	DefaultTopN           int
	MaxTopN               int
	Transform             vector.Transform
	// SpellCheck proposes a corrected query when no listing matches a
	// query keyword.
	SpellCheck bool
}

func (o *Options) applyDefaults() {
	if o.DefaultTopN <= 0 {
		o.DefaultTopN = DefaultTopN
	}
	if o.MaxTopN <= 0 {
		o.MaxTopN = DefaultMaxTopN
	}
	if o.Transform == "" {
		o.Transform = vector.TransformInverse
	}
	o.DefaultSemanticWeight = ClampWeight(o.DefaultSemanticWeight)
}

// DefaultOptions returns the stock ranking options.
func DefaultOptions() Options {
	return Options{
		DefaultSemanticWeight: DefaultSemanticWeight,
		DefaultTopN:           DefaultTopN,
		MaxTopN:               DefaultMaxTopN,
		Transform:             vector.TransformInverse,
		SpellCheck:            true,
	}
}

// Engine answers queries. It never mutates the dataset or the bundle.
type Engine struct {
	store   *dataset.Store
	bundles Bundles
	encoder embedding.Encoder
	opts    Options
	logger  *zap.Logger

	spellMu sync.Mutex
	spellID string
	spell   *keyword.SpellChecker
}

// NewEngine creates an engine. Zero option fields take defaults.
func NewEngine(store *dataset.Store, bundles Bundles, encoder embedding.Encoder, opts Options, logger *zap.Logger) *Engine {
	opts.applyDefaults()
	return &Engine{
		store:   store,
		bundles: bundles,
		encoder: encoder,
		opts:    opts,
		logger:  utils.OrNop(logger),
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Search ranks bundle rows by the blended score. Filters apply before
// truncation. When the encoder fails the search runs keyword-only and the
// response is marked degraded. Listings added after the last training are
// not ranked.
func (e *Engine) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	weight, topN, err := e.resolveQuery(q)
	if err != nil {
		return nil, err
	}
	b := e.bundles.Current()
	if b == nil {
		return nil, ErrNotReady
	}
	snap := e.store.Snapshot()

	var (
		kwScores  []float64
		semScores []float64
		degraded  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scores, err := b.Vectorizer.Score(q.Query, b.TFIDF)
		if err != nil {
			return apperr.Validation("search", "analyze query: %v", err)
		}
		kwScores = scores
		return nil
	})
	if weight > 0 {
		g.Go(func() error {
			// Any semantic failure, including a cancelled request context,
			// degrades to keyword-only scoring.
			scores, err := e.semanticScores(gctx, b, q.Query)
			if err != nil {
				e.logger.Warn("semantic scoring unavailable, serving keyword-only",
					zap.String("query", q.Query), zap.Error(err))
				degraded = true
				return nil
			}
			semScores = scores
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if degraded {
		weight = 0
	}

	byID := listingsByID(snap)
	candidates := make([]Candidate, 0, len(b.ListingIDs))
	for row, id := range b.ListingIDs {
		l, ok := byID[id]
		if !ok || !q.Filters.Match(l) {
			continue
		}
		c := Candidate{Listing: *l, KeywordScore: kwScores[row]}
		if semScores != nil {
			c.SemanticScore = semScores[row]
		}
		c.Score = Blend(c.SemanticScore, c.KeywordScore, weight)
		if c.Score <= 0 {
			continue
		}
		candidates = append(candidates, c)
	}
	SortCandidates(candidates)

	resp := &models.SearchResponse{
		Query:          q.Query,
		Results:        toResults(candidates, topN),
		Total:          len(candidates),
		SemanticWeight: weight,
		Degraded:       degraded,
		Stale:          b.Stale(snap.Version, snap.Fingerprint),
	}
	if e.opts.SpellCheck && !anyPositive(kwScores) {
		if corrected, ok := e.correct(b, q.Query); ok {
			resp.DidYouMean = corrected
		}
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	metrics.RecordSearch(degraded)
	return resp, nil
}

func (e *Engine) semanticScores(ctx context.Context, b *bundle.Bundle, query string) ([]float64, error) {
	vec, err := e.encoder.Encode(ctx, query)
	if err != nil {
		return nil, err
	}
	unit := append([]float32(nil), vec...)
	utils.NormalizeL2(unit)
	ns, err := b.Index.Search(ctx, unit, b.Len())
	if err != nil {
		return nil, apperr.Encoding("similarity search", err)
	}
	return SemanticScores(ns, b.Len(), e.opts.Transform), nil
}

func (e *Engine) correct(b *bundle.Bundle, query string) (string, bool) {
	e.spellMu.Lock()
	if e.spellID != b.ID || e.spell == nil {
		sc, err := keyword.NewSpellChecker(b.Vectorizer)
		if err != nil {
			e.spellMu.Unlock()
			return "", false
		}
		e.spell, e.spellID = sc, b.ID
	}
	sc := e.spell
	e.spellMu.Unlock()
	return sc.Correct(strings.ToLower(query))
}

// Recommend returns listings nearest to the given listing's embedding,
// excluding the listing itself. With sameSector only listings in its
// sector are returned.
func (e *Engine) Recommend(ctx context.Context, listingID, topN int, sameSector bool) (*models.SearchResponse, error) {
	start := time.Now()
	b := e.bundles.Current()
	if b == nil {
		return nil, ErrNotReady
	}
	row, ok := b.Row(listingID)
	if !ok {
		return nil, apperr.NotFound("recommend", "listing %d is not in the search index", listingID)
	}
	snap := e.store.Snapshot()
	byID := listingsByID(snap)
	target, ok := byID[listingID]
	if !ok {
		return nil, apperr.NotFound("recommend", "listing %d not found", listingID)
	}
	topN = clampTopN(topN, DefaultRecommendTopN, MaxRecommendTopN)

	ns, err := b.Index.Search(ctx, b.Embeddings[row], b.Len())
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(ns))
	for _, n := range ns {
		if n.Row == row {
			continue
		}
		l, ok := byID[b.ListingIDs[n.Row]]
		if !ok {
			continue
		}
		if sameSector && !strings.EqualFold(l.Sector, target.Sector) {
			continue
		}
		sim := e.opts.Transform.Similarity(n.Distance)
		candidates = append(candidates, Candidate{Listing: *l, Score: sim, SemanticScore: sim})
	}
	SortCandidates(candidates)
	return &models.SearchResponse{
		Results:        toResults(candidates, topN),
		Total:          len(candidates),
		SemanticWeight: 1,
		Stale:          b.Stale(snap.Version, snap.Fingerprint),
		QueryTime:      time.Since(start).Milliseconds(),
	}, nil
}

// Health reports dataset and bundle state.
func (e *Engine) Health() models.Health {
	snap := e.store.Snapshot()
	h := models.Health{
		Listings:       snap.Len(),
		DatasetVersion: snap.Version,
		ModelState:     e.bundles.State().String(),
	}
	b := e.bundles.Current()
	switch {
	case b != nil:
		h.Status = "ok"
		h.BundleLoaded = true
		h.BundleVersion = b.DatasetVersion
		h.BundleRows = b.Len()
		h.Stale = b.Stale(snap.Version, snap.Fingerprint)
	case e.bundles.State() == model.StateLoading || e.bundles.State() == model.StateTraining:
		h.Status = "initializing"
	default:
		h.Status = "unavailable"
	}
	return h
}

func listingsByID(snap *dataset.Snapshot) map[int]*models.Listing {
	m := make(map[int]*models.Listing, snap.Len())
	for i := range snap.Listings {
		m[snap.Listings[i].ID] = &snap.Listings[i]
	}
	return m
}

func anyPositive(xs []float64) bool {
	for _, x := range xs {
		if x > 0 {
			return true
		}
	}
	return false
}
