// Package analysis runs the segmentation and reduction algorithms on behalf of
// callers. It resolves per-request parameters from the configuration, gives
// every request its own seeded random generator, computes quality metrics and
// runs batches concurrently.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"medseg/internal/logging"
	"medseg/internal/models"
	"medseg/pkg/config"
	"medseg/pkg/denoise"
	"medseg/pkg/kmeans"
	"medseg/pkg/otsu"
	"medseg/pkg/pca"
	"medseg/pkg/regiongrow"
	"medseg/pkg/watershed"
)

// Analyzer dispatches requests to the algorithm packages. It holds no
// per-request state and is safe for concurrent use.
type Analyzer struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewAnalyzer creates an analyzer. A nil configuration selects the defaults.
//
// Parameters:
//   - cfg: configuration supplying algorithm defaults, the base seed and the
//     batch concurrency
//   - logger: parent logger, tagged with component=analysis
//
// Returns:
//   - A new Analyzer
func NewAnalyzer(cfg *config.Config, logger zerolog.Logger) *Analyzer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Analyzer{
		cfg:    cfg,
		logger: logging.Component(logger, "analysis"),
	}
}

// SeedFor returns the seed a request's generator is built from: the explicit
// request seed, or the configured seed mixed with the FNV-1a hash of the ID
func (a *Analyzer) SeedFor(req Request) uint64 {
	if req.Seed != nil {
		return *req.Seed
	}
	h := fnv.New64a()
	h.Write([]byte(req.ID))
	return a.cfg.Random.Seed ^ h.Sum64()
}

// Run executes a single request
func (a *Analyzer) Run(ctx context.Context, req Request) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := a.logger.With().
		Str("request", req.ID).
		Str("algorithm", string(req.Algorithm)).
		Logger()

	start := time.Now()
	out := &Outcome{
		ID:        req.ID,
		Algorithm: req.Algorithm,
		Seed:      a.SeedFor(req),
	}

	req, err := a.preprocess(req)
	if err != nil {
		log.Error().Err(err).Msg("preprocessing failed")
		return nil, fmt.Errorf("request %s: %w", req.ID, err)
	}

	switch req.Algorithm {
	case Otsu:
		err = a.runOtsu(req, out)
	case KMeans:
		err = a.runKMeans(req, out)
	case PCA:
		err = a.runPCA(req, out)
	case RegionGrow:
		err = a.runRegionGrow(req, out)
	case Watershed:
		err = a.runWatershed(req, out, nil)
	case OtsuWatershed:
		err = a.runOtsuWatershed(req, out)
	default:
		err = fmt.Errorf("unknown algorithm %q: %w", req.Algorithm, models.ErrInvalidInput)
	}
	if err != nil {
		log.Error().Err(err).Msg("analysis failed")
		return nil, fmt.Errorf("request %s: %w", req.ID, err)
	}

	out.Duration = time.Since(start)
	if out.Degenerate {
		log.Warn().Err(models.ErrNumericalDegenerate).Msg("result comes from a fallback path")
	}
	log.Info().
		Uint64("seed", out.Seed).
		Dur("duration", out.Duration).
		Int("regions", out.Metrics.RegionCount).
		Float64("foreground", out.Metrics.ForegroundFraction).
		Msg("analysis complete")

	return out, nil
}

// RunBatch runs the requests concurrently, at most cfg.Processing.NumCores at
// a time. Outcomes are returned in request order. The first failure cancels
// the requests that have not started and is returned.
func (a *Analyzer) RunBatch(ctx context.Context, reqs []Request) ([]*Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := a.cfg.Processing.NumCores
	if workers < 1 {
		workers = 1
	}

	type batchResult struct {
		index   int
		outcome *Outcome
		err     error
	}
	resultChan := make(chan batchResult, len(reqs))
	sem := make(chan struct{}, workers)

	for i := range reqs {
		go func(index int) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				resultChan <- batchResult{index: index, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			out, err := a.Run(ctx, reqs[index])
			resultChan <- batchResult{index: index, outcome: out, err: err}
		}(i)
	}

	outcomes := make([]*Outcome, len(reqs))
	var firstErr error
	for completed := 0; completed < len(reqs); completed++ {
		res := <-resultChan
		if res.err != nil {
			// Prefer a real failure over the cancellations it caused
			if firstErr == nil || (errors.Is(firstErr, context.Canceled) && !errors.Is(res.err, context.Canceled)) {
				firstErr = res.err
			}
			cancel()
			continue
		}
		outcomes[res.index] = res.outcome
		a.logger.Debug().
			Int("completed", completed+1).
			Int("total", len(reqs)).
			Msg("batch progress")
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return outcomes, nil
}

// preprocess smooths the request inputs when a denoise sigma is configured
func (a *Analyzer) preprocess(req Request) (Request, error) {
	sigma := a.cfg.Processing.DenoiseSigma
	if sigma == 0 {
		return req, nil
	}

	if req.Algorithm == PCA && len(req.Batch) > 0 {
		batch := make([]models.GrayscaleBuffer, len(req.Batch))
		for i, img := range req.Batch {
			smoothed, err := denoise.Smooth(img, sigma)
			if err != nil {
				return req, fmt.Errorf("batch image %d: %w", i, err)
			}
			batch[i] = smoothed
		}
		req.Batch = batch
		return req, nil
	}

	smoothed, err := denoise.Smooth(req.Image, sigma)
	if err != nil {
		return req, err
	}
	req.Image = smoothed
	return req, nil
}

func (a *Analyzer) runOtsu(req Request, out *Outcome) error {
	res, err := otsu.Apply(req.Image)
	if err != nil {
		return err
	}
	out.Otsu = &res
	out.Source = req.Image
	out.Metrics = maskMetrics(req.Image, otsu.ToBinaryMask(res.Mask, req.Image.Width, req.Image.Height))
	return nil
}

func (a *Analyzer) runKMeans(req Request, out *Outcome) error {
	params := a.cfg.KMeansParams(out.Seed)
	if req.Overrides.K > 0 {
		params.K = req.Overrides.K
	}
	if req.Overrides.MaxIterations > 0 {
		params.MaxIterations = req.Overrides.MaxIterations
	}

	res, err := kmeans.Cluster(req.Image, params)
	if err != nil {
		return err
	}
	out.KMeans = &res
	out.Source = req.Image

	darkest := 0
	for i, c := range res.Centroids {
		if c < res.Centroids[darkest] {
			darkest = i
		}
	}
	outside := 0
	for _, l := range res.Labels {
		if l != darkest {
			outside++
		}
	}

	regions := regionStats(req.Image, res.Labels, false)
	out.Metrics = Metrics{
		ForegroundFraction: fraction(outside, req.Image.Len()),
		RegionCount:        len(regions),
		Regions:            regions,
	}
	return nil
}

func (a *Analyzer) runPCA(req Request, out *Outcome) error {
	batch := req.Batch
	if len(batch) == 0 {
		batch = []models.GrayscaleBuffer{req.Image}
	}

	params := a.cfg.PCAParams()
	if req.Overrides.Components > 0 {
		params.Components = req.Overrides.Components
	}

	res, err := pca.Reduce(batch, params)
	if err != nil {
		return err
	}
	out.PCA = &res
	out.Source = batch[0]
	out.Degenerate = res.Degenerate

	original := normalize(batch[0].Pix)
	reconstructed := normalize(res.Reconstructed.Pix)
	out.Metrics = Metrics{
		RMSE:              calculateRMSE(original, reconstructed),
		SSIM:              calculateSSIM(original, reconstructed),
		ExplainedVariance: res.ExplainedVariance,
	}
	return nil
}

func (a *Analyzer) runRegionGrow(req Request, out *Outcome) error {
	if err := req.Image.Validate(); err != nil {
		return fmt.Errorf("regiongrow: %w", err)
	}

	params := a.cfg.RegionGrowParams(req.Image)
	if req.Overrides.RegionSeed != nil {
		params.Seed = *req.Overrides.RegionSeed
	}
	if req.Overrides.Tolerance != nil {
		params.Tolerance = *req.Overrides.Tolerance
	}

	res, err := regiongrow.Grow(req.Image, params)
	if err != nil {
		return err
	}
	out.Region = &res
	out.Source = req.Image
	out.Metrics = maskMetrics(req.Image, res.Mask)
	return nil
}

func (a *Analyzer) runWatershed(req Request, out *Outcome, mask *models.BinaryMask) error {
	params := a.cfg.WatershedParams()
	params.Mask = mask

	res, err := watershed.Segment(req.Image, params)
	if err != nil {
		return err
	}
	out.Watershed = &res
	out.Source = req.Image

	labeled := 0
	for _, l := range res.Labels.Labels {
		if l > 0 {
			labeled++
		}
	}
	regions := regionStats(req.Image, res.Labels.Labels, true)
	out.Metrics = Metrics{
		ForegroundFraction: fraction(labeled, req.Image.Len()),
		RegionCount:        len(regions),
		Regions:            regions,
	}
	return nil
}

// runOtsuWatershed feeds the Otsu mask into the watershed
func (a *Analyzer) runOtsuWatershed(req Request, out *Outcome) error {
	th, err := otsu.Apply(req.Image)
	if err != nil {
		return err
	}
	out.Otsu = &th

	mask := otsu.ToBinaryMask(th.Mask, req.Image.Width, req.Image.Height)
	return a.runWatershed(req, out, &mask)
}
