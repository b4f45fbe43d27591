// Package kmeans clusters pixel intensities of a grayscale buffer.
//
// Every call owns its random generator: Cluster seeds a fresh PCG source from
// Params.Seed and ClusterWithRand uses the generator handed in by the caller.
// No state survives between calls, so concurrent requests stay reproducible.
package kmeans

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"

	"medseg/internal/models"
)

const (
	// DefaultK is the cluster count used when none is configured
	DefaultK = 3

	// DefaultMaxIterations bounds the number of assignment passes
	DefaultMaxIterations = 100

	// seedStream is the second PCG word; the first comes from Params.Seed
	seedStream = 0x9e3779b97f4a7c15
)

// Params configures a clustering run
type Params struct {
	// K is the number of clusters, at least 1
	K int

	// MaxIterations caps the assignment passes, at least 1
	MaxIterations int

	// Seed initializes the call-local generator used for centroid selection
	Seed uint64
}

// DefaultParams returns K=3, MaxIterations=100 and seed 0
func DefaultParams() Params {
	return Params{K: DefaultK, MaxIterations: DefaultMaxIterations}
}

// Result is the outcome of a clustering run
type Result struct {
	// Labels holds a cluster index in [0, K) per pixel
	Labels []int

	// Centroids are the final cluster means
	Centroids []float64

	// Iterations is the number of assignment passes performed
	Iterations int

	// Converged is false when MaxIterations was reached while labels were
	// still changing. The labeling is still the last one computed.
	Converged bool
}

// NewRand returns the generator Cluster builds for a seed
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seedStream))
}

// Cluster partitions the buffer intensities into params.K clusters
func Cluster(buf models.GrayscaleBuffer, params Params) (Result, error) {
	return ClusterWithRand(buf, params.K, params.MaxIterations, NewRand(params.Seed))
}

// ClusterWithRand runs k-means using the caller's generator for
// initialization. The generator must not be shared with concurrent calls.
func ClusterWithRand(buf models.GrayscaleBuffer, k, maxIterations int, rng *rand.Rand) (Result, error) {
	if err := buf.Validate(); err != nil {
		return Result{}, fmt.Errorf("kmeans: %w", err)
	}
	if k < 1 {
		return Result{}, fmt.Errorf("kmeans: cluster count %d must be at least 1: %w", k, models.ErrInvalidInput)
	}
	if maxIterations < 1 {
		return Result{}, fmt.Errorf("kmeans: max iterations %d must be at least 1: %w", maxIterations, models.ErrInvalidInput)
	}
	if rng == nil {
		return Result{}, fmt.Errorf("kmeans: nil random generator: %w", models.ErrInvalidInput)
	}

	centroids := initialCentroids(distinctIntensities(buf), k, rng)

	labels := make([]int, len(buf.Pix))
	for i := range labels {
		labels[i] = -1
	}

	res := Result{Labels: labels, Centroids: centroids}
	var levelLabel [256]int

	for res.Iterations < maxIterations {
		res.Iterations++

		// Assignment depends only on intensity, so resolve each level once
		for v := 0; v < 256; v++ {
			levelLabel[v] = nearest(float64(v), centroids)
		}

		changed := 0
		for i, v := range buf.Pix {
			l := levelLabel[v]
			if labels[i] != l {
				labels[i] = l
				changed++
			}
		}

		if changed == 0 {
			res.Converged = true
			break
		}

		updateCentroids(buf, labels, centroids)
	}

	return res, nil
}

// distinctIntensities returns the intensities present in the buffer, ascending
func distinctIntensities(buf models.GrayscaleBuffer) []float64 {
	var present [256]bool
	for _, v := range buf.Pix {
		present[v] = true
	}
	out := make([]float64, 0, 256)
	for v, ok := range present {
		if ok {
			out = append(out, float64(v))
		}
	}
	return out
}

// initialCentroids picks k distinct values without replacement and, when
// fewer than k exist, fills the rest by sampling with replacement
func initialCentroids(distinct []float64, k int, rng *rand.Rand) []float64 {
	centroids := make([]float64, k)
	perm := rng.Perm(len(distinct))

	n := k
	if n > len(distinct) {
		n = len(distinct)
	}
	for i := 0; i < n; i++ {
		centroids[i] = distinct[perm[i]]
	}
	for i := n; i < k; i++ {
		centroids[i] = distinct[rng.IntN(len(distinct))]
	}
	return centroids
}

// nearest returns the index of the closest centroid, preferring the lowest
// index on ties
func nearest(v float64, centroids []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for j, c := range centroids {
		d := math.Abs(v - c)
		if d < bestDist {
			bestDist = d
			best = j
		}
	}
	return best
}

// updateCentroids recomputes each centroid as the mean of its members.
// Per-cluster histograms weight the 256 levels so the mean is exact.
func updateCentroids(buf models.GrayscaleBuffer, labels []int, centroids []float64) {
	k := len(centroids)
	weights := make([][]float64, k)
	for j := range weights {
		weights[j] = make([]float64, 256)
	}
	for i, v := range buf.Pix {
		weights[labels[i]][v]++
	}

	for j := 0; j < k; j++ {
		members := 0.0
		for _, w := range weights[j] {
			members += w
		}
		if members == 0 {
			// Empty cluster keeps its previous centroid
			continue
		}
		centroids[j] = stat.Mean(levels[:], weights[j])
	}
}

// levels holds the intensity values 0..255 as weights' companion vector
var levels = func() [256]float64 {
	var l [256]float64
	for i := range l {
		l[i] = float64(i)
	}
	return l
}()

// SortedCentroids returns a copy of the centroids in ascending order
func (r Result) SortedCentroids() []float64 {
	out := make([]float64, len(r.Centroids))
	copy(out, r.Centroids)
	sort.Float64s(out)
	return out
}

// ClusterSizes counts the pixels assigned to each cluster
func (r Result) ClusterSizes() []int {
	sizes := make([]int, len(r.Centroids))
	for _, l := range r.Labels {
		if l >= 0 && l < len(sizes) {
			sizes[l]++
		}
	}
	return sizes
}
