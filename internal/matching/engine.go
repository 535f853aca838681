// Package matching finds the registered identity whose embedding is similar
// enough to a probe. Candidates are compared concurrently and the scan stops
// as soon as any comparison reaches the threshold.
package matching

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/facereg/internal/domain"
	"github.com/kailas-cloud/facereg/internal/metrics"
)

// Comparer computes the similarity of two embeddings. It is treated as a
// black box; only comparison against the threshold interprets its result.
type Comparer interface {
	Compare(a, b []float32) (float64, error)
}

// ComparerFunc adapts a function to Comparer.
type ComparerFunc func(a, b []float32) (float64, error)

// Compare calls f(a, b).
func (f ComparerFunc) Compare(a, b []float32) (float64, error) { return f(a, b) }

// Cosine is the default comparer.
var Cosine Comparer = ComparerFunc(domain.CosineSimilarity)

// Match is the identity that reached the threshold.
type Match struct {
	Key        string
	Similarity float64
}

// Comparison is the result of comparing two embeddings directly.
type Comparison struct {
	Similarity float64
	Distance   float64
	Matched    bool
}

// Engine scans candidate sets.
type Engine struct {
	comparer  Comparer
	threshold float64
	workers   int
	logger    *zap.Logger
}

// New creates an engine with the default threshold and one worker per CPU.
func New(comparer Comparer) *Engine {
	if comparer == nil {
		comparer = Cosine
	}
	return &Engine{
		comparer:  comparer,
		threshold: domain.DefaultThreshold,
		workers:   runtime.GOMAXPROCS(0),
		logger:    zap.NewNop(),
	}
}

// WithThreshold sets the inclusive similarity threshold.
func (e *Engine) WithThreshold(threshold float64) *Engine {
	if threshold > 0 {
		e.threshold = threshold
	}
	return e
}

// WithWorkers caps the scan fan-out.
func (e *Engine) WithWorkers(n int) *Engine {
	if n > 0 {
		e.workers = n
	}
	return e
}

// WithLogger sets the engine logger.
func (e *Engine) WithLogger(logger *zap.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Threshold returns the similarity threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Compare compares two embeddings against the threshold.
func (e *Engine) Compare(a, b []float32) (Comparison, error) {
	sim, err := e.comparer.Compare(a, b)
	if err != nil {
		return Comparison{}, fmt.Errorf("%w: %w", domain.ErrEngineFailure, err)
	}
	return Comparison{
		Similarity: sim,
		Distance:   domain.Distance(sim),
		Matched:    sim >= e.threshold,
	}, nil
}

// scanState records the first decisive event of a scan. Later events are
// dropped, so a late comparison can never overwrite a decided result.
type scanState struct {
	once    sync.Once
	match   Match
	found   bool
	failure error
}

func (s *scanState) decideMatch(m Match) bool {
	won := false
	s.once.Do(func() {
		s.match, s.found, won = m, true, true
	})
	return won
}

func (s *scanState) decideFailure(err error) {
	s.once.Do(func() {
		s.failure = err
	})
}

// Scan compares probe against every candidate and returns the first one whose
// similarity is at or above the threshold. found is false when the scan is
// exhausted without a hit. Which match wins among several qualifying
// candidates is unspecified.
//
// An empty candidate set yields domain.ErrNoCandidates. A comparer failure
// aborts the scan with domain.ErrEngineFailure.
func (e *Engine) Scan(
	ctx context.Context, probe []float32, candidates []domain.Identity,
) (match Match, found bool, err error) {
	if len(candidates) == 0 {
		metrics.MatchScanTotal.WithLabelValues("no_candidates").Inc()
		return Match{}, false, domain.ErrNoCandidates
	}

	start := time.Now()
	var compared atomic.Int64
	defer func() {
		metrics.MatchScanDuration.Observe(time.Since(start).Seconds())
		metrics.MatchComparisonsTotal.Add(float64(compared.Load()))
		metrics.MatchScanTotal.WithLabelValues(scanOutcome(found, err)).Inc()
		e.logger.Debug("Scan finished",
			zap.Int("candidates", len(candidates)),
			zap.Int64("compared", compared.Load()),
			zap.Bool("found", found),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &scanState{}
	var next atomic.Int64

	g, gctx := errgroup.WithContext(scanCtx)
	for range min(e.workers, len(candidates)) {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return nil
				}
				i := int(next.Add(1) - 1)
				if i >= len(candidates) {
					return nil
				}

				c := candidates[i]
				sim, cmpErr := e.comparer.Compare(probe, c.Embedding)
				compared.Add(1)
				if cmpErr != nil {
					cmpErr = fmt.Errorf("compare %q: %w", c.Key, cmpErr)
					state.decideFailure(cmpErr)
					return cmpErr
				}
				if sim >= e.threshold {
					if state.decideMatch(Match{Key: c.Key, Similarity: sim}) {
						cancel()
					}
					return nil
				}
			}
		})
	}
	_ = g.Wait()

	switch {
	case state.found:
		return state.match, true, nil
	case state.failure != nil:
		return Match{}, false, fmt.Errorf("%w: %w", domain.ErrEngineFailure, state.failure)
	case compared.Load() < int64(len(candidates)) && ctx.Err() != nil:
		return Match{}, false, fmt.Errorf("scan aborted: %w", ctx.Err())
	}
	return Match{}, false, nil
}

func scanOutcome(found bool, err error) string {
	switch {
	case found:
		return "match"
	case errors.Is(err, domain.ErrNoCandidates):
		return "no_candidates"
	case err != nil:
		return "error"
	default:
		return "no_match"
	}
}
