package models

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidInput is returned when a buffer, coordinate or parameter
	// fails validation. Callers match it with errors.Is.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNumericalDegenerate marks results produced by a fallback path
	// rather than the full computation (for example a single-image PCA batch).
	ErrNumericalDegenerate = errors.New("numerically degenerate input")
)

// Point is a pixel coordinate
type Point struct {
	X, Y int
}

// GrayscaleBuffer represents a single-channel 8-bit image stored in row-major
// order, so the intensity at (x, y) lives at Pix[y*Width+x].
type GrayscaleBuffer struct {
	// Pix holds the intensities, len(Pix) == Width*Height
	Pix []uint8

	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int
}

// NewGrayscaleBuffer allocates a zeroed buffer of the given size
func NewGrayscaleBuffer(width, height int) GrayscaleBuffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return GrayscaleBuffer{
		Pix:    make([]uint8, width*height),
		Width:  width,
		Height: height,
	}
}

// Validate checks the buffer dimensions against its pixel slice
func (b GrayscaleBuffer) Validate() error {
	return validateShape(len(b.Pix), b.Width, b.Height)
}

// Len returns the number of pixels
func (b GrayscaleBuffer) Len() int { return b.Width * b.Height }

// Index converts a coordinate to a flat index
func (b GrayscaleBuffer) Index(x, y int) int { return y*b.Width + x }

// InBounds reports whether (x, y) addresses a pixel of the buffer
func (b GrayscaleBuffer) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

// At returns the intensity at (x, y)
func (b GrayscaleBuffer) At(x, y int) uint8 { return b.Pix[y*b.Width+x] }

// Clone returns a deep copy of the buffer
func (b GrayscaleBuffer) Clone() GrayscaleBuffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return GrayscaleBuffer{Pix: pix, Width: b.Width, Height: b.Height}
}

// SameShape reports whether two buffers have identical dimensions
func (b GrayscaleBuffer) SameShape(other GrayscaleBuffer) bool {
	return b.Width == other.Width && b.Height == other.Height
}

// BinaryMask marks membership with values restricted to {0,1}
type BinaryMask struct {
	Pix    []uint8
	Width  int
	Height int
}

// NewBinaryMask allocates an empty mask
func NewBinaryMask(width, height int) BinaryMask {
	return BinaryMask{
		Pix:    make([]uint8, width*height),
		Width:  width,
		Height: height,
	}
}

// Validate checks the mask dimensions and that every value is 0 or 1
func (m BinaryMask) Validate() error {
	if err := validateShape(len(m.Pix), m.Width, m.Height); err != nil {
		return err
	}
	for i, v := range m.Pix {
		if v > 1 {
			return fmt.Errorf("mask value %d at index %d is not binary: %w", v, i, ErrInvalidInput)
		}
	}
	return nil
}

// Contains reports whether (x, y) is set
func (m BinaryMask) Contains(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x] == 1
}

// Count returns the number of set pixels
func (m BinaryMask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Scale255 converts the mask to the {0,255} display convention
func (m BinaryMask) Scale255() []uint8 {
	out := make([]uint8, len(m.Pix))
	for i, v := range m.Pix {
		if v != 0 {
			out[i] = 255
		}
	}
	return out
}

// LabelBuffer assigns a signed label to every pixel. Zero is background,
// positive values identify regions or clusters.
type LabelBuffer struct {
	Labels []int
	Width  int
	Height int
}

// Distinct returns the sorted set of positive labels present in the buffer
func (l LabelBuffer) Distinct() []int {
	seen := make(map[int]struct{})
	for _, v := range l.Labels {
		if v > 0 {
			seen[v] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// At returns the label at (x, y)
func (l LabelBuffer) At(x, y int) int { return l.Labels[y*l.Width+x] }

func validateShape(n, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("dimensions %dx%d must be positive: %w", width, height, ErrInvalidInput)
	}
	if n != width*height {
		return fmt.Errorf("buffer length %d does not match %dx%d: %w", n, width, height, ErrInvalidInput)
	}
	return nil
}
