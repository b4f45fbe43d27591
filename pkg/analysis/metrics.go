package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"medseg/internal/models"
)

// RegionStats summarizes the source intensities under one label
type RegionStats struct {
	Label         int
	Size          int
	MeanIntensity float64
	StdDev        float64
}

// Metrics holds the quality figures computed for an outcome.
//
// ForegroundFraction is the share of pixels in the mask for Otsu and region
// growing, of labeled pixels for watershed, and of pixels outside the darkest
// cluster for k-means. RMSE and SSIM compare the first PCA image with its
// reconstruction on the [0,1] scale.
type Metrics struct {
	ForegroundFraction float64
	RegionCount        int
	Regions            []RegionStats

	RMSE              float64
	SSIM              float64
	ExplainedVariance []float64
}

// regionStats groups the source intensities by label. Label 0 is skipped
// when skipZero is set.
func regionStats(buf models.GrayscaleBuffer, labels []int, skipZero bool) []RegionStats {
	groups := make(map[int][]float64)
	for i, l := range labels {
		if skipZero && l == 0 {
			continue
		}
		groups[l] = append(groups[l], float64(buf.Pix[i]))
	}

	keys := make([]int, 0, len(groups))
	for l := range groups {
		keys = append(keys, l)
	}
	sort.Ints(keys)

	stats := make([]RegionStats, 0, len(keys))
	for _, l := range keys {
		values := groups[l]
		rs := RegionStats{Label: l, Size: len(values)}
		if len(values) == 1 {
			rs.MeanIntensity = values[0]
		} else {
			rs.MeanIntensity, rs.StdDev = stat.MeanStdDev(values, nil)
		}
		stats = append(stats, rs)
	}
	return stats
}

// maskMetrics describes a {0,1} mask as a single region labeled 1
func maskMetrics(buf models.GrayscaleBuffer, mask models.BinaryMask) Metrics {
	labels := make([]int, len(mask.Pix))
	for i, v := range mask.Pix {
		labels[i] = int(v)
	}
	regions := regionStats(buf, labels, true)
	return Metrics{
		ForegroundFraction: fraction(mask.Count(), buf.Len()),
		RegionCount:        len(regions),
		Regions:            regions,
	}
}

func fraction(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

// normalize maps intensities to [0,1]
func normalize(pix []uint8) []float64 {
	out := make([]float64, len(pix))
	for i, v := range pix {
		out[i] = float64(v) / 255.0
	}
	return out
}

// calculateRMSE computes the root mean square error
func calculateRMSE(original, reconstructed []float64) float64 {
	n := len(original)
	if n != len(reconstructed) || n == 0 {
		return 0
	}

	mse := 0.0
	for i := 0; i < n; i++ {
		diff := original[i] - reconstructed[i]
		mse += diff * diff
	}
	mse /= float64(n)

	return math.Sqrt(mse)
}

// calculateSSIM computes a global structural similarity index over data in
// [0,1]
func calculateSSIM(original, reconstructed []float64) float64 {
	const L = 1.0
	const k1 = 0.01
	const k2 = 0.03

	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	n := len(original)
	if n != len(reconstructed) || n == 0 {
		return 0
	}

	muX := stat.Mean(original, nil)
	muY := stat.Mean(reconstructed, nil)

	// Sample variances need two values
	var sigmaX, sigmaY, sigmaXY float64
	if n > 1 {
		sigmaX = stat.Variance(original, nil)
		sigmaY = stat.Variance(reconstructed, nil)
		sigmaXY = stat.Covariance(original, reconstructed, nil)
	}

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)

	if den > 0 {
		return num / den
	}
	return 0
}
