package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"medseg/internal/logging"
	"medseg/internal/models"
	"medseg/pkg/config"
)

// halves returns an image with a dark left half and a bright right half
func halves(width, height int) models.GrayscaleBuffer {
	buf := models.NewGrayscaleBuffer(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				buf.Pix[y*width+x] = 30
			} else {
				buf.Pix[y*width+x] = 200
			}
		}
	}
	return buf
}

// gradient returns a deterministic image with many distinct intensities
func gradient(width, height, offset int) models.GrayscaleBuffer {
	buf := models.NewGrayscaleBuffer(width, height)
	for i := range buf.Pix {
		buf.Pix[i] = uint8((i*37 + offset*11) % 256)
	}
	return buf
}

func disks(width, height, r int, centers ...models.Point) models.GrayscaleBuffer {
	buf := models.NewGrayscaleBuffer(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			buf.Pix[y*width+x] = 20
			for _, c := range centers {
				dx, dy := x-c.X, y-c.Y
				if dx*dx+dy*dy <= r*r {
					buf.Pix[y*width+x] = 220
				}
			}
		}
	}
	return buf
}

func newTestAnalyzer() *Analyzer {
	cfg := config.DefaultConfig()
	cfg.Processing.NumCores = 4
	return NewAnalyzer(cfg, zerolog.Nop())
}

func TestRunOtsu(t *testing.T) {
	a := newTestAnalyzer()
	out, err := a.Run(context.Background(), Request{ID: "otsu", Algorithm: Otsu, Image: halves(8, 4)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Otsu == nil {
		t.Fatalf("Expected an Otsu result")
	}
	if out.Metrics.ForegroundFraction != 0.5 {
		t.Errorf("Expected foreground fraction 0.5, got %f", out.Metrics.ForegroundFraction)
	}
	if out.Metrics.RegionCount != 1 {
		t.Fatalf("Expected 1 region, got %d", out.Metrics.RegionCount)
	}
	r := out.Metrics.Regions[0]
	if r.Size != 16 || r.MeanIntensity != 200 || r.StdDev != 0 {
		t.Errorf("Expected 16 pixels of mean 200, got %+v", r)
	}
}

func TestRunKMeans(t *testing.T) {
	a := newTestAnalyzer()
	out, err := a.Run(context.Background(), Request{
		ID:        "kmeans",
		Algorithm: KMeans,
		Image:     halves(8, 4),
		Overrides: Overrides{K: 2},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.KMeans == nil || len(out.KMeans.Centroids) != 2 {
		t.Fatalf("Expected 2 centroids, got %+v", out.KMeans)
	}
	if out.Metrics.RegionCount != 2 {
		t.Errorf("Expected 2 clusters, got %d", out.Metrics.RegionCount)
	}
	if out.Metrics.ForegroundFraction != 0.5 {
		t.Errorf("Expected half the pixels outside the darkest cluster, got %f", out.Metrics.ForegroundFraction)
	}
}

func TestSeedFor(t *testing.T) {
	a := newTestAnalyzer()

	explicit := uint64(42)
	if got := a.SeedFor(Request{ID: "x", Seed: &explicit}); got != 42 {
		t.Errorf("Expected explicit seed 42, got %d", got)
	}

	s1 := a.SeedFor(Request{ID: "slice-1"})
	s2 := a.SeedFor(Request{ID: "slice-2"})
	if s1 == s2 {
		t.Errorf("Expected different IDs to derive different seeds")
	}
	if s1 != a.SeedFor(Request{ID: "slice-1"}) {
		t.Errorf("Expected the derived seed to be stable")
	}
}

// TestRunBatchDeterministic runs identical seeded k-means requests
// concurrently and checks every outcome carries the same labels
func TestRunBatchDeterministic(t *testing.T) {
	a := newTestAnalyzer()
	img := gradient(32, 32, 0)
	seed := uint64(7)

	reqs := make([]Request, 16)
	for i := range reqs {
		reqs[i] = Request{
			ID:        fmt.Sprintf("req-%d", i),
			Algorithm: KMeans,
			Image:     img,
			Seed:      &seed,
			Overrides: Overrides{K: 4},
		}
	}

	outs, err := a.RunBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if len(outs) != len(reqs) {
		t.Fatalf("Expected %d outcomes, got %d", len(reqs), len(outs))
	}

	want := outs[0].KMeans.Labels
	for i, out := range outs {
		if out.ID != reqs[i].ID {
			t.Errorf("Outcome %d has ID %s, expected %s", i, out.ID, reqs[i].ID)
		}
		for j := range want {
			if out.KMeans.Labels[j] != want[j] {
				t.Fatalf("Outcome %d differs at pixel %d", i, j)
			}
		}
	}
}

func TestRunBatchMixed(t *testing.T) {
	a := newTestAnalyzer()
	img := disks(40, 20, 6, models.Point{X: 9, Y: 9}, models.Point{X: 30, Y: 10})

	reqs := []Request{
		{ID: "a", Algorithm: Otsu, Image: img},
		{ID: "b", Algorithm: Watershed, Image: img},
		{ID: "c", Algorithm: RegionGrow, Image: img},
		{ID: "d", Algorithm: PCA, Batch: []models.GrayscaleBuffer{gradient(6, 5, 0), gradient(6, 5, 1), gradient(6, 5, 2)}},
	}
	outs, err := a.RunBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	for i, out := range outs {
		if out.Algorithm != reqs[i].Algorithm {
			t.Errorf("Outcome %d ran %s, expected %s", i, out.Algorithm, reqs[i].Algorithm)
		}
	}
	if outs[1].Metrics.RegionCount != 2 {
		t.Errorf("Expected 2 watershed regions, got %d", outs[1].Metrics.RegionCount)
	}
}

func TestRunBatchFailure(t *testing.T) {
	a := newTestAnalyzer()
	reqs := []Request{
		{ID: "ok", Algorithm: Otsu, Image: halves(4, 4)},
		{ID: "bad", Algorithm: KMeans, Image: models.GrayscaleBuffer{Pix: make([]uint8, 3), Width: 2, Height: 2}},
	}
	if _, err := a.RunBatch(context.Background(), reqs); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestRunOtsuWatershed(t *testing.T) {
	a := newTestAnalyzer()
	img := disks(40, 20, 6, models.Point{X: 9, Y: 9}, models.Point{X: 30, Y: 10})

	out, err := a.Run(context.Background(), Request{ID: "ow", Algorithm: OtsuWatershed, Image: img})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Otsu == nil || out.Watershed == nil {
		t.Fatalf("Expected both Otsu and watershed results")
	}
	if out.Metrics.RegionCount != 2 {
		t.Errorf("Expected 2 regions, got %d", out.Metrics.RegionCount)
	}
	for _, r := range out.Metrics.Regions {
		if r.MeanIntensity != 220 {
			t.Errorf("Expected blob mean 220, got %+v", r)
		}
	}
}

func TestRunRegionGrowOverrides(t *testing.T) {
	a := newTestAnalyzer()
	img := halves(8, 4)
	tol := 0

	out, err := a.Run(context.Background(), Request{
		ID:        "rg",
		Algorithm: RegionGrow,
		Image:     img,
		Overrides: Overrides{Tolerance: &tol, RegionSeed: &models.Point{X: 0, Y: 0}},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Region.Size != 16 {
		t.Errorf("Expected the dark half of 16 pixels, got %d", out.Region.Size)
	}
	if out.Metrics.Regions[0].MeanIntensity != 30 {
		t.Errorf("Expected region mean 30, got %f", out.Metrics.Regions[0].MeanIntensity)
	}
}

func TestRunPCASingleImage(t *testing.T) {
	a := newTestAnalyzer()
	img := gradient(5, 4, 3)

	out, err := a.Run(context.Background(), Request{ID: "pca", Algorithm: PCA, Image: img})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Degenerate {
		t.Errorf("Expected a single-image batch to be degenerate")
	}
	if out.Metrics.RMSE != 0 {
		t.Errorf("Expected RMSE 0, got %f", out.Metrics.RMSE)
	}
	if math.Abs(out.Metrics.SSIM-1) > 1e-12 {
		t.Errorf("Expected SSIM 1, got %f", out.Metrics.SSIM)
	}
}

func TestRunPCABatch(t *testing.T) {
	a := newTestAnalyzer()
	batch := []models.GrayscaleBuffer{gradient(6, 5, 0), gradient(6, 5, 1), gradient(6, 5, 2), gradient(6, 5, 3)}

	out, err := a.Run(context.Background(), Request{
		ID:        "pca",
		Algorithm: PCA,
		Batch:     batch,
		Overrides: Overrides{Components: 3},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	sum := 0.0
	for _, r := range out.Metrics.ExplainedVariance {
		sum += r
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("Expected explained variance to sum to 1, got %f", sum)
	}
	if out.Metrics.RMSE > 1.0/255 {
		t.Errorf("Expected the full basis to reconstruct within one level, RMSE %f", out.Metrics.RMSE)
	}
}

func TestRunInvalid(t *testing.T) {
	a := newTestAnalyzer()

	_, err := a.Run(context.Background(), Request{ID: "x", Algorithm: "sharpen", Image: halves(4, 4)})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unknown algorithm, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Run(ctx, Request{ID: "x", Algorithm: Otsu, Image: halves(4, 4)}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, alg := range Algorithms() {
		got, err := ParseAlgorithm(strings.ToUpper(string(alg)))
		if err != nil || got != alg {
			t.Errorf("ParseAlgorithm(%q) = %v, %v", alg, got, err)
		}
	}
	if _, err := ParseAlgorithm("blur"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestRunLogsCompletion(t *testing.T) {
	var buf bytes.Buffer
	a := NewAnalyzer(config.DefaultConfig(), logging.New(&buf, zerolog.InfoLevel))

	if _, err := a.Run(context.Background(), Request{ID: "logged", Algorithm: Otsu, Image: halves(4, 4)}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"component":"analysis"`, `"request":"logged"`, `"message":"analysis complete"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log output to contain %s, got %s", want, out)
		}
	}
}

func TestRegionStats(t *testing.T) {
	buf := models.GrayscaleBuffer{Pix: []uint8{10, 20, 100, 100, 7, 0}, Width: 3, Height: 2}
	labels := []int{1, 1, 2, 2, 3, 0}

	stats := regionStats(buf, labels, true)
	if len(stats) != 3 {
		t.Fatalf("Expected 3 regions, got %v", stats)
	}
	if stats[0].MeanIntensity != 15 || math.Abs(stats[0].StdDev-math.Sqrt(50)) > 1e-12 {
		t.Errorf("Unexpected stats for label 1: %+v", stats[0])
	}
	if stats[1].StdDev != 0 {
		t.Errorf("Expected zero spread for label 2, got %f", stats[1].StdDev)
	}
	if stats[2].Size != 1 || stats[2].MeanIntensity != 7 {
		t.Errorf("Unexpected stats for label 3: %+v", stats[2])
	}
}

func TestCalculateRMSEAndSSIM(t *testing.T) {
	a := []float64{0, 0.5, 1, 0.25}
	if got := calculateRMSE(a, a); got != 0 {
		t.Errorf("Expected RMSE 0, got %f", got)
	}
	if got := calculateSSIM(a, a); math.Abs(got-1) > 1e-12 {
		t.Errorf("Expected SSIM 1, got %f", got)
	}

	b := []float64{1, 0.5, 0, 0.75}
	if got := calculateSSIM(a, b); got >= 0 {
		t.Errorf("Expected negative SSIM for an inverted signal, got %f", got)
	}
	if got := calculateRMSE([]float64{0, 0}, []float64{1, 1}); got != 1 {
		t.Errorf("Expected RMSE 1, got %f", got)
	}
}

func TestRunWithDenoise(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Processing.DenoiseSigma = 1
	a := NewAnalyzer(cfg, zerolog.Nop())

	img := halves(16, 8)
	out, err := a.Run(context.Background(), Request{ID: "smooth", Algorithm: Otsu, Image: img})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if img.Pix[7] != 30 {
		t.Errorf("Denoising modified the caller's image")
	}
	if math.Abs(out.Metrics.ForegroundFraction-0.5) > 0.1 {
		t.Errorf("Expected about half the smoothed image in the foreground, got %f", out.Metrics.ForegroundFraction)
	}
}
