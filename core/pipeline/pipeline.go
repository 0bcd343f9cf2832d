package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"ChromaFM/core/feature"
	"ChromaFM/core/similarity"
	"ChromaFM/logger"
	"ChromaFM/model"
	"ChromaFM/repository"
)

const (
	defaultBatchSize = 128
	maxWorkers       = 8
	progressEvery    = 10
)

// Options tunes one Extract run. Zero values fall back to defaults.
type Options struct {
	// BatchSize is how many freshly extracted vectors accumulate before a
	// store-then-index flush.
	BatchSize int
	// Workers caps the number of concurrent extractor processes. Zero
	// means one per CPU, capped at a fixed ceiling.
	Workers int
	// Progress, when set, is called from the consumer goroutine as items
	// finish. It must be cheap; it blocks the pipeline.
	Progress func(current, total int, message string)
}

// Report summarizes an Extract run. A track counts as successful when its
// features are persisted, whether extracted this run or already complete
// before it started.
type Report struct {
	SuccessfulIDs map[int64]struct{}
	Errors        []string
}

// Pipeline drives feature extraction for a set of audio files: resolve
// paths to track IDs, skip tracks whose features are already complete,
// extract the rest concurrently, and flush results to the store and the
// live indexes in batches.
type Pipeline struct {
	repo      repository.FeatureRepository
	indexes   *similarity.IndexSet
	extractor feature.Extractor
}

func New(repo repository.FeatureRepository, indexes *similarity.IndexSet, extractor feature.Extractor) *Pipeline {
	return &Pipeline{repo: repo, indexes: indexes, extractor: extractor}
}

type extracted struct {
	trackID int64
	vector  *model.FeatureVector
	path    string
	err     error
}

// Extract processes the given file paths and returns a per-track report.
// Unresolvable paths and failed extractions are reported as errors but do
// not abort the run; only context cancellation does.
func (p *Pipeline) Extract(ctx context.Context, paths []string, opts Options) (*Report, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
		if opts.Workers > maxWorkers {
			opts.Workers = maxWorkers
		}
	}

	report := &Report{SuccessfulIDs: make(map[int64]struct{})}

	idByPath, err := p.repo.ResolveIDs(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve track ids: %w", err)
	}
	pathByID := make(map[int64]string, len(idByPath))
	resolved := make([]int64, 0, len(idByPath))
	for _, path := range paths {
		id, ok := idByPath[path]
		if !ok {
			report.Errors = append(report.Errors, (&feature.ErrUnresolvedTrack{Path: path}).Error())
			continue
		}
		pathByID[id] = path
		resolved = append(resolved, id)
	}

	missing, complete, err := p.repo.MissingVsComplete(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to partition tracks by feature state: %w", err)
	}
	for id := range complete {
		report.SuccessfulIDs[id] = struct{}{}
	}

	todo := make([]int64, 0, len(missing))
	for _, id := range resolved {
		if _, ok := missing[id]; ok {
			todo = append(todo, id)
		}
	}

	total := len(paths)
	done := len(complete) + (len(paths) - len(resolved))
	if opts.Progress != nil {
		opts.Progress(done, total, fmt.Sprintf("extracting features for %d of %d tracks", len(todo), total))
	}
	if len(todo) == 0 {
		return report, nil
	}

	jobs := make(chan int64)
	results := make(chan extracted, opts.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Workers; i++ {
		g.Go(func() error {
			for id := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				path := pathByID[id]
				fv, err := p.extractor.Extract(gctx, path)
				select {
				case results <- extracted{trackID: id, vector: fv, path: path, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for _, id := range todo {
			select {
			case jobs <- id:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		batch := make(map[int64]*model.FeatureVector, opts.BatchSize)
		for res := range results {
			done++
			if res.err != nil {
				report.Errors = append(report.Errors, feature.NewExtractionFailure(res.path, res.err).Error())
			} else {
				batch[res.trackID] = res.vector
			}
			if opts.Progress != nil && (done%progressEvery == 0 || done == total) {
				opts.Progress(done, total, fmt.Sprintf("processed %s", res.path))
			}
			if len(batch) >= opts.BatchSize {
				p.flush(ctx, batch, report)
				batch = make(map[int64]*model.FeatureVector, opts.BatchSize)
			}
		}
		if len(batch) > 0 {
			p.flush(ctx, batch, report)
		}
	}()

	werr := g.Wait()
	close(results)
	<-consumerDone
	if werr != nil {
		return report, werr
	}

	logger.Info("feature extraction finished",
		logger.Int("successful", len(report.SuccessfulIDs)),
		logger.Int("errors", len(report.Errors)))
	return report, nil
}

// flush persists one batch and then indexes it. Persisting first keeps the
// store authoritative: an indexed vector always exists on disk, while a
// stored vector that missed the index is recovered on the next bootstrap.
func (p *Pipeline) flush(ctx context.Context, batch map[int64]*model.FeatureVector, report *Report) {
	stored, err := p.repo.UpsertBatch(ctx, batch)
	if err != nil {
		ids := make([]int64, 0, len(batch))
		for id := range batch {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			report.Errors = append(report.Errors, fmt.Sprintf("failed to store features for track %d: %v", id, err))
		}
		return
	}
	for id := range stored {
		report.SuccessfulIDs[id] = struct{}{}
	}
	for _, msg := range p.indexes.AddBatch(batch) {
		report.Errors = append(report.Errors, msg)
	}
}
