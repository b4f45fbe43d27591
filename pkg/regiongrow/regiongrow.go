// Package regiongrow segments an 8-connected region around a seed pixel.
package regiongrow

import (
	"fmt"

	"medseg/internal/models"
)

// DefaultTolerance is the intensity tolerance used when none is configured
const DefaultTolerance = 20

// Params configures a region growing run
type Params struct {
	// Seed is the starting pixel, it must lie inside the image
	Seed models.Point

	// Tolerance is the maximum absolute difference to the seed intensity
	Tolerance int
}

// Result holds the grown region
type Result struct {
	// Mask has 1 for every pixel of the region, the seed included
	Mask models.BinaryMask

	// Size is the number of pixels in the region
	Size int
}

// neighbors8 lists the offsets of the 8-connected neighborhood
var neighbors8 = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// CenterSeed returns the central pixel of the buffer, the usual default seed
func CenterSeed(buf models.GrayscaleBuffer) models.Point {
	return models.Point{X: buf.Width / 2, Y: buf.Height / 2}
}

// Grow floods outward from the seed, admitting every unvisited in-bounds
// neighbor whose intensity is within Tolerance of the seed intensity.
//
// The comparison is always against the original seed intensity, never a
// running mean, so a larger tolerance can only grow the region.
func Grow(buf models.GrayscaleBuffer, params Params) (Result, error) {
	if err := buf.Validate(); err != nil {
		return Result{}, fmt.Errorf("region growing: %w", err)
	}
	seed := params.Seed
	if !buf.InBounds(seed.X, seed.Y) {
		return Result{}, fmt.Errorf("region growing: seed (%d,%d) outside %dx%d image: %w",
			seed.X, seed.Y, buf.Width, buf.Height, models.ErrInvalidInput)
	}
	if params.Tolerance < 0 {
		return Result{}, fmt.Errorf("region growing: negative tolerance %d: %w", params.Tolerance, models.ErrInvalidInput)
	}

	w, h := buf.Width, buf.Height
	mask := models.NewBinaryMask(w, h)
	seedValue := int(buf.At(seed.X, seed.Y))

	// Every pixel is enqueued at most once, so a W*H arena never overflows
	queue := make([]int, w*h)
	head, tail := 0, 0

	start := buf.Index(seed.X, seed.Y)
	mask.Pix[start] = 1
	queue[tail] = start
	tail++

	for head < tail {
		idx := queue[head]
		head++
		x, y := idx%w, idx/w

		for _, d := range neighbors8 {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			n := ny*w + nx
			if mask.Pix[n] != 0 {
				continue
			}
			diff := int(buf.Pix[n]) - seedValue
			if diff < 0 {
				diff = -diff
			}
			if diff > params.Tolerance {
				continue
			}
			mask.Pix[n] = 1
			queue[tail] = n
			tail++
		}
	}

	return Result{Mask: mask, Size: tail}, nil
}
