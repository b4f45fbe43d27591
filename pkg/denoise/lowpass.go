// Package denoise smooths grayscale buffers in the frequency domain before
// segmentation.
package denoise

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"medseg/internal/models"
)

// Smooth applies a Gaussian low-pass filter of standard deviation sigma
// pixels. The image is treated as periodic, so strong edges on one border
// bleed slightly into the opposite one. Sigma 0 returns an unchanged copy.
//
// Parameters:
//   - buf: the image to smooth
//   - sigma: filter width in pixels, not negative
//
// Returns:
//   - A new buffer with the filtered intensities rounded to [0,255]
func Smooth(buf models.GrayscaleBuffer, sigma float64) (models.GrayscaleBuffer, error) {
	if err := buf.Validate(); err != nil {
		return models.GrayscaleBuffer{}, fmt.Errorf("denoise: %w", err)
	}
	if sigma < 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return models.GrayscaleBuffer{}, fmt.Errorf("denoise: sigma %f must be a finite non-negative number: %w", sigma, models.ErrInvalidInput)
	}
	if sigma == 0 {
		return buf.Clone(), nil
	}

	w, h := buf.Width, buf.Height
	half := w/2 + 1

	rowFFT := fourier.NewFFT(w)
	colFFT := fourier.NewCmplxFFT(h)

	// Row transforms keep only the non-redundant half spectrum of real input
	spectrum := make([]complex128, h*half)
	row := make([]float64, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			row[x] = float64(buf.Pix[y*w+x])
		}
		rowFFT.Coefficients(spectrum[y*half:(y+1)*half], row)
	}

	// Column transforms, filter, and inverse column transforms
	col := make([]complex128, h)
	coeff := make([]complex128, h)
	for u := 0; u < half; u++ {
		for y := 0; y < h; y++ {
			col[y] = spectrum[y*half+u]
		}
		colFFT.Coefficients(coeff, col)

		fu := frequency(u, w)
		for v := 0; v < h; v++ {
			fv := frequency(v, h)
			gain := math.Exp(-2 * math.Pi * math.Pi * sigma * sigma * (fu*fu + fv*fv))
			coeff[v] *= complex(gain, 0)
		}

		colFFT.Sequence(col, coeff)
		for y := 0; y < h; y++ {
			spectrum[y*half+u] = col[y]
		}
	}

	// Inverse row transforms; gonum leaves both directions unnormalized
	out := models.NewGrayscaleBuffer(w, h)
	scale := 1 / float64(w*h)
	for y := 0; y < h; y++ {
		rowFFT.Sequence(row, spectrum[y*half:(y+1)*half])
		for x := 0; x < w; x++ {
			out.Pix[y*w+x] = clamp(row[x] * scale)
		}
	}

	return out, nil
}

// frequency returns the signed frequency in cycles per pixel of bin k out of n
func frequency(k, n int) float64 {
	if k > n/2 {
		k -= n
	}
	return float64(k) / float64(n)
}

func clamp(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
