package watershed

import (
	"math"

	"medseg/internal/models"
)

// DistanceTransform approximates the Euclidean distance from every foreground
// pixel to the nearest background pixel with a two-pass 1/√2 chamfer.
//
// Background pixels (mask value 0) are distance 0, so blob interiors receive
// the largest values. Pixels outside the image are ignored rather than
// treated as background. If the mask has no background at all the whole image
// is a single plateau at width+height.
func DistanceTransform(mask models.BinaryMask) []float64 {
	w, h := mask.Width, mask.Height
	dist := make([]float64, len(mask.Pix))
	inf := math.Inf(1)
	for i, v := range mask.Pix {
		if v != 0 {
			dist[i] = inf
		}
	}

	// Forward pass: left, up-left, up, up-right
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if dist[i] == 0 {
				continue
			}
			d := dist[i]
			if x > 0 {
				d = math.Min(d, dist[i-1]+1)
			}
			if y > 0 {
				up := i - w
				d = math.Min(d, dist[up]+1)
				if x > 0 {
					d = math.Min(d, dist[up-1]+math.Sqrt2)
				}
				if x < w-1 {
					d = math.Min(d, dist[up+1]+math.Sqrt2)
				}
			}
			dist[i] = d
		}
	}

	// Backward pass: right, down-right, down, down-left
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			i := y*w + x
			if dist[i] == 0 {
				continue
			}
			d := dist[i]
			if x < w-1 {
				d = math.Min(d, dist[i+1]+1)
			}
			if y < h-1 {
				down := i + w
				d = math.Min(d, dist[down]+1)
				if x < w-1 {
					d = math.Min(d, dist[down+1]+math.Sqrt2)
				}
				if x > 0 {
					d = math.Min(d, dist[down-1]+math.Sqrt2)
				}
			}
			dist[i] = d
		}
	}

	plateau := float64(w + h)
	for i, d := range dist {
		if math.IsInf(d, 1) {
			dist[i] = plateau
		}
	}
	return dist
}
