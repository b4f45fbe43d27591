// Package imageio converts between image files and grayscale buffers.
//
// PNG, JPEG and TIFF are supported for reading and writing. Color input is
// reduced to luminance.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"medseg/internal/models"
)

// JPEGQuality is used when saving .jpg/.jpeg files
const JPEGQuality = 90

// FromImage converts any image to an 8-bit grayscale buffer
func FromImage(img image.Image) models.GrayscaleBuffer {
	bounds := img.Bounds()
	buf := models.NewGrayscaleBuffer(bounds.Dx(), bounds.Dy())

	if gray, ok := img.(*image.Gray); ok {
		for y := 0; y < buf.Height; y++ {
			row := gray.Pix[y*gray.Stride : y*gray.Stride+buf.Width]
			copy(buf.Pix[y*buf.Width:], row)
		}
		return buf
	}

	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			c := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			buf.Pix[y*buf.Width+x] = c.Y
		}
	}
	return buf
}

// ToImage wraps a copy of the buffer in an image.Gray
func ToImage(buf models.GrayscaleBuffer) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, buf.Width, buf.Height))
	copy(img.Pix, buf.Pix)
	return img
}

// Resize scales the buffer to width x height with Catmull-Rom interpolation
func Resize(buf models.GrayscaleBuffer, width, height int) (models.GrayscaleBuffer, error) {
	if err := buf.Validate(); err != nil {
		return models.GrayscaleBuffer{}, err
	}
	if width <= 0 || height <= 0 {
		return models.GrayscaleBuffer{}, fmt.Errorf("target size %dx%d must be positive: %w", width, height, models.ErrInvalidInput)
	}
	if buf.Width == width && buf.Height == height {
		return buf.Clone(), nil
	}

	src := ToImage(buf)
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), draw.Src, nil)
	return FromImage(dst), nil
}

// Conform resizes every buffer to the shape of the first one. It reports
// whether any buffer had to be resized.
func Conform(buffers []models.GrayscaleBuffer) ([]models.GrayscaleBuffer, bool, error) {
	if len(buffers) == 0 {
		return buffers, false, nil
	}

	out := make([]models.GrayscaleBuffer, len(buffers))
	resized := false
	for i, buf := range buffers {
		if buf.SameShape(buffers[0]) {
			out[i] = buf
			continue
		}
		scaled, err := Resize(buf, buffers[0].Width, buffers[0].Height)
		if err != nil {
			return nil, false, fmt.Errorf("image %d: %w", i, err)
		}
		out[i] = scaled
		resized = true
	}
	return out, resized, nil
}

// Load decodes a PNG, JPEG or TIFF file into a grayscale buffer
func Load(path string) (models.GrayscaleBuffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.GrayscaleBuffer{}, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return models.GrayscaleBuffer{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return FromImage(img), nil
}

// LoadDir loads every PNG, JPEG and TIFF image of a directory, ordered by the number
// embedded in the file name (slice2 before slice10). It returns the buffers
// and their file names.
func LoadDir(dir string) ([]models.GrayscaleBuffer, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isImageFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}

	if len(names) == 0 {
		return nil, nil, fmt.Errorf("no PNG, JPEG or TIFF images found in %s", dir)
	}

	sort.SliceStable(names, func(i, j int) bool {
		numI := extractNumber(names[i])
		numJ := extractNumber(names[j])
		if numI != numJ {
			return numI < numJ
		}
		return names[i] < names[j]
	})

	buffers := make([]models.GrayscaleBuffer, 0, len(names))
	for _, name := range names {
		buf, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		buffers = append(buffers, buf)
	}

	return buffers, names, nil
}

// Save encodes img to path, choosing the format from the extension. Parent
// directories are created as needed.
func Save(path string, img image.Image) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !isImageFile(path) {
		return fmt.Errorf("unsupported image format %q: %w", ext, models.ErrInvalidInput)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer file.Close()

	switch ext {
	case ".png":
		err = png.Encode(file, img)
	case ".tif", ".tiff":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: JPEGQuality})
	}
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	return file.Close()
}

// SaveBuffer writes a grayscale buffer to path
func SaveBuffer(path string, buf models.GrayscaleBuffer) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	return Save(path, ToImage(buf))
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return true
	}
	return false
}

// extractNumber extracts the digits of a file name as one number, 0 if none
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	if digits.Len() > 0 {
		num, err := strconv.Atoi(digits.String())
		if err == nil {
			return num
		}
	}
	return 0
}
