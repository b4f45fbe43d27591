package visualization

import (
	"fmt"
	"image"
	"path/filepath"

	"medseg/internal/models"
	"medseg/pkg/imageio"
)

// Viewer extracts orthogonal views from an ordered stack of same-sized slices,
// such as a directory loaded for PCA
type Viewer struct {
	// slices holds the stack, slice z at index z
	slices []models.GrayscaleBuffer

	// dimensions of the stack
	width  int
	height int
	depth  int
}

// NewViewer creates a viewer over the stack. All slices must share the shape
// of the first one.
func NewViewer(slices []models.GrayscaleBuffer) (*Viewer, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("empty slice stack: %w", models.ErrInvalidInput)
	}
	for i, s := range slices {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("slice %d: %w", i, err)
		}
		if !s.SameShape(slices[0]) {
			return nil, fmt.Errorf("slice %d is %dx%d, expected %dx%d: %w",
				i, s.Width, s.Height, slices[0].Width, slices[0].Height, models.ErrInvalidInput)
		}
	}

	return &Viewer{
		slices: slices,
		width:  slices[0].Width,
		height: slices[0].Height,
		depth:  len(slices),
	}, nil
}

// ExtractSlice extracts a 2D view of the stack at a position along an axis.
// The z axis returns a stored slice; x and y cut across the stack with the
// slice index as one image dimension.
func (v *Viewer) ExtractSlice(axis string, position int) (models.GrayscaleBuffer, error) {
	if position < 0 {
		return models.GrayscaleBuffer{}, fmt.Errorf("position must be non-negative")
	}

	switch axis {
	case "x", "X":
		// YZ plane: columns are slices, rows are image rows
		if position >= v.width {
			return models.GrayscaleBuffer{}, fmt.Errorf("position %d exceeds width %d", position, v.width)
		}
		out := models.NewGrayscaleBuffer(v.depth, v.height)
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				out.Pix[y*v.depth+z] = v.slices[z].At(position, y)
			}
		}
		return out, nil

	case "y", "Y":
		// XZ plane: rows are slices
		if position >= v.height {
			return models.GrayscaleBuffer{}, fmt.Errorf("position %d exceeds height %d", position, v.height)
		}
		out := models.NewGrayscaleBuffer(v.width, v.depth)
		for z := 0; z < v.depth; z++ {
			row := v.slices[z].Pix[position*v.width : (position+1)*v.width]
			copy(out.Pix[z*v.width:], row)
		}
		return out, nil

	case "z", "Z":
		if position >= v.depth {
			return models.GrayscaleBuffer{}, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}
		return v.slices[position].Clone(), nil

	default:
		return models.GrayscaleBuffer{}, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// ExtractRegion crops the same rectangle out of every slice
func (v *Viewer) ExtractRegion(rect image.Rectangle) ([]models.GrayscaleBuffer, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	if !rect.In(image.Rect(0, 0, v.width, v.height)) {
		return nil, fmt.Errorf("region extends beyond slice boundaries")
	}

	region := make([]models.GrayscaleBuffer, v.depth)
	for z, s := range v.slices {
		crop := models.NewGrayscaleBuffer(rect.Dx(), rect.Dy())
		for y := 0; y < rect.Dy(); y++ {
			src := (rect.Min.Y+y)*s.Width + rect.Min.X
			copy(crop.Pix[y*crop.Width:], s.Pix[src:src+rect.Dx()])
		}
		region[z] = crop
	}
	return region, nil
}

// SaveSlice saves an extracted view, PNG or JPEG by extension
func (v *Viewer) SaveSlice(buf models.GrayscaleBuffer, filename string) error {
	return imageio.SaveBuffer(filename, buf)
}

// SaveSliceSequence extracts and saves every view along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	case "z", "Z":
		maxPos = v.depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		buf, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(buf, filename); err != nil {
			return err
		}
	}

	return nil
}
