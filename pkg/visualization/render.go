// Package visualization turns analysis results into grayscale images and
// extracts orthogonal views from stacks of slices.
//
// Every renderer returns a models.GrayscaleBuffer, ready for imageio.
package visualization

import (
	"fmt"
	"math"

	"medseg/internal/models"
)

// Mask renders a {0,1} mask as black and white
func Mask(mask models.BinaryMask) models.GrayscaleBuffer {
	return models.GrayscaleBuffer{Pix: mask.Scale255(), Width: mask.Width, Height: mask.Height}
}

// Labels spreads positive labels evenly over (0,255]: the highest label is
// white and background stays black
func Labels(labels models.LabelBuffer) models.GrayscaleBuffer {
	out := models.NewGrayscaleBuffer(labels.Width, labels.Height)

	maxLabel := 0
	for _, l := range labels.Labels {
		if l > maxLabel {
			maxLabel = l
		}
	}
	if maxLabel == 0 {
		return out
	}

	for i, l := range labels.Labels {
		if l > 0 {
			out.Pix[i] = uint8(l * 255 / maxLabel)
		}
	}
	return out
}

// Clusters paints every pixel with the rounded centroid of its cluster
func Clusters(labels []int, centroids []float64, width, height int) (models.GrayscaleBuffer, error) {
	if len(labels) != width*height {
		return models.GrayscaleBuffer{}, fmt.Errorf("%d labels for a %dx%d image: %w", len(labels), width, height, models.ErrInvalidInput)
	}

	levels := make([]uint8, len(centroids))
	for i, c := range centroids {
		levels[i] = clamp(c)
	}

	out := models.NewGrayscaleBuffer(width, height)
	for i, l := range labels {
		if l < 0 || l >= len(levels) {
			return models.GrayscaleBuffer{}, fmt.Errorf("label %d outside %d clusters: %w", l, len(levels), models.ErrInvalidInput)
		}
		out.Pix[i] = levels[l]
	}
	return out, nil
}

// Distance scales a distance map so its maximum is white
func Distance(dist []float64, width, height int) models.GrayscaleBuffer {
	out := models.NewGrayscaleBuffer(width, height)

	maxDist := 0.0
	for _, d := range dist {
		if d > maxDist && !math.IsInf(d, 1) {
			maxDist = d
		}
	}
	if maxDist == 0 {
		return out
	}

	for i, d := range dist {
		out.Pix[i] = clamp(d / maxDist * 255)
	}
	return out
}

// Boundaries copies the source and whitens every labeled pixel that touches a
// different label in its 4-neighborhood
func Boundaries(src models.GrayscaleBuffer, labels models.LabelBuffer) (models.GrayscaleBuffer, error) {
	if src.Width != labels.Width || src.Height != labels.Height || len(labels.Labels) != src.Len() {
		return models.GrayscaleBuffer{}, fmt.Errorf("label buffer does not match the %dx%d image: %w", src.Width, src.Height, models.ErrInvalidInput)
	}

	out := src.Clone()
	w, h := src.Width, src.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			l := labels.Labels[y*w+x]
			if l <= 0 {
				continue
			}
			if (x > 0 && labels.Labels[y*w+x-1] != l) ||
				(x < w-1 && labels.Labels[y*w+x+1] != l) ||
				(y > 0 && labels.Labels[(y-1)*w+x] != l) ||
				(y < h-1 && labels.Labels[(y+1)*w+x] != l) {
				out.Pix[y*w+x] = 255
			}
		}
	}
	return out, nil
}

func clamp(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
