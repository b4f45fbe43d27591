package analysis

import (
	"fmt"
	"strings"
	"time"

	"medseg/internal/models"
	"medseg/pkg/kmeans"
	"medseg/pkg/otsu"
	"medseg/pkg/pca"
	"medseg/pkg/regiongrow"
	"medseg/pkg/watershed"
)

// Algorithm names one of the analyses an Analyzer can run
type Algorithm string

const (
	Otsu          Algorithm = "otsu"
	KMeans        Algorithm = "kmeans"
	PCA           Algorithm = "pca"
	RegionGrow    Algorithm = "regiongrow"
	Watershed     Algorithm = "watershed"
	OtsuWatershed Algorithm = "otsu-watershed"
)

// Algorithms lists every supported algorithm in CLI order
func Algorithms() []Algorithm {
	return []Algorithm{Otsu, KMeans, PCA, RegionGrow, Watershed, OtsuWatershed}
}

// ParseAlgorithm maps a case-insensitive name to an Algorithm
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Algorithms() {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown algorithm %q: %w", name, models.ErrInvalidInput)
}

// Overrides replaces configured parameters for a single request. Zero values
// and nil pointers keep the configuration.
type Overrides struct {
	K             int
	MaxIterations int
	Components    int
	Tolerance     *int
	RegionSeed    *models.Point
}

// Request describes one analysis
type Request struct {
	// ID identifies the request in logs and derives its default seed
	ID string

	// Algorithm selects the analysis to run
	Algorithm Algorithm

	// Image is the input for every algorithm except PCA
	Image models.GrayscaleBuffer

	// Batch is the PCA input. When empty, PCA runs on Image alone.
	Batch []models.GrayscaleBuffer

	// Seed fixes the request's random generator. When nil the seed is
	// derived from the configured seed and the ID.
	Seed *uint64

	Overrides Overrides
}

// Outcome holds the result of one request. Only the fields of the algorithm
// that ran are set; otsu-watershed sets both Otsu and Watershed.
type Outcome struct {
	ID        string
	Algorithm Algorithm

	// Seed is the seed the request's generator was built from
	Seed uint64

	Otsu      *otsu.Result
	KMeans    *kmeans.Result
	PCA       *pca.Result
	Region    *regiongrow.Result
	Watershed *watershed.Result

	// Source is the image the result refers to, the first of the batch for PCA
	Source models.GrayscaleBuffer

	Metrics Metrics

	// Degenerate is set when the result comes from a fallback path
	Degenerate bool

	Duration time.Duration
}
