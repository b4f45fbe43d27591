// Package otsu implements global binary thresholding with Otsu's method.
package otsu

import (
	"fmt"

	"medseg/internal/models"
)

// Foreground is the mask value used for pixels at or above the threshold
const Foreground = 255

// Result holds the selected threshold and the mask it produces
type Result struct {
	// Threshold is the intensity that maximizes between-class variance
	Threshold uint8

	// Mask holds 255 for pixels >= Threshold and 0 otherwise
	Mask []uint8
}

// Histogram counts the pixels at each of the 256 intensity levels
func Histogram(buf models.GrayscaleBuffer) [256]int {
	var hist [256]int
	for _, v := range buf.Pix {
		hist[v]++
	}
	return hist
}

// Threshold computes the optimal global threshold of the buffer.
//
// The returned value is the lowest intensity of the foreground class, so
// Binarize(buf, t) puts every pixel above the optimal split at 255. The sweep
// keeps the first split reaching the maximal between-class variance, since a
// candidate only replaces the best one on a strictly greater variance. A
// uniform image has no split and yields threshold 0.
func Threshold(buf models.GrayscaleBuffer) (uint8, error) {
	if err := buf.Validate(); err != nil {
		return 0, fmt.Errorf("otsu threshold: %w", err)
	}
	return thresholdFromHistogram(Histogram(buf), len(buf.Pix)), nil
}

func thresholdFromHistogram(hist [256]int, total int) uint8 {
	// Total intensity sum over all pixels
	sum := 0.0
	for t, count := range hist {
		sum += float64(t) * float64(count)
	}

	var (
		sumB   float64
		wB     int
		maxVar float64
		best   int
	)

	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}

		sumB += float64(t) * float64(hist[t])
		meanB := sumB / float64(wB)
		meanF := (sum - sumB) / float64(wF)

		between := float64(wB) * float64(wF) * (meanB - meanF) * (meanB - meanF)
		if between > maxVar {
			maxVar = between
			// Background is [0, t], so the first foreground level is t+1.
			// wF > 0 guarantees t < 255 here.
			best = t + 1
		}
	}

	return uint8(best)
}

// Binarize maps pixels >= threshold to 255 and the rest to 0
func Binarize(buf models.GrayscaleBuffer, threshold uint8) []uint8 {
	mask := make([]uint8, len(buf.Pix))
	for i, v := range buf.Pix {
		if v >= threshold {
			mask[i] = Foreground
		}
	}
	return mask
}

// Apply computes the threshold and the corresponding {0,255} mask
func Apply(buf models.GrayscaleBuffer) (Result, error) {
	t, err := Threshold(buf)
	if err != nil {
		return Result{}, err
	}
	return Result{Threshold: t, Mask: Binarize(buf, t)}, nil
}

// ToBinaryMask converts a {0,255} mask into the {0,1} convention used by
// the watershed segmenter
func ToBinaryMask(pix []uint8, width, height int) models.BinaryMask {
	mask := models.NewBinaryMask(width, height)
	for i, v := range pix {
		if i >= len(mask.Pix) {
			break
		}
		if v != 0 {
			mask.Pix[i] = 1
		}
	}
	return mask
}
