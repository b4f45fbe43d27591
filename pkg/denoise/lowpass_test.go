package denoise

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"

	"medseg/internal/models"
)

func toFloat(pix []uint8) []float64 {
	out := make([]float64, len(pix))
	for i, v := range pix {
		out[i] = float64(v)
	}
	return out
}

func TestSmoothZeroSigma(t *testing.T) {
	buf := models.NewGrayscaleBuffer(5, 3)
	for i := range buf.Pix {
		buf.Pix[i] = uint8(i * 13)
	}

	out, err := Smooth(buf, 0)
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	for i := range buf.Pix {
		if out.Pix[i] != buf.Pix[i] {
			t.Fatalf("Expected an unchanged copy, pixel %d differs", i)
		}
	}
	out.Pix[0] = 99
	if buf.Pix[0] == 99 {
		t.Errorf("Result shares pixels with the input")
	}
}

func TestSmoothUniform(t *testing.T) {
	// Odd sizes exercise the non power of two transforms
	buf := models.NewGrayscaleBuffer(7, 5)
	for i := range buf.Pix {
		buf.Pix[i] = 140
	}

	out, err := Smooth(buf, 2)
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}
	for i, v := range out.Pix {
		if v != 140 {
			t.Fatalf("Expected uniform 140, got %d at %d", v, i)
		}
	}
}

func TestSmoothReducesNoise(t *testing.T) {
	// Checkerboard noise around 128
	buf := models.NewGrayscaleBuffer(16, 12)
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			if (x+y)%2 == 0 {
				buf.Pix[y*16+x] = 148
			} else {
				buf.Pix[y*16+x] = 108
			}
		}
	}

	out, err := Smooth(buf, 1.5)
	if err != nil {
		t.Fatalf("Smooth failed: %v", err)
	}

	before := stat.Variance(toFloat(buf.Pix), nil)
	after := stat.Variance(toFloat(out.Pix), nil)
	if after >= before/10 {
		t.Errorf("Expected variance to drop well below %f, got %f", before, after)
	}
	if mean := stat.Mean(toFloat(out.Pix), nil); math.Abs(mean-128) > 1 {
		t.Errorf("Expected mean near 128, got %f", mean)
	}
}

func TestSmoothInvalid(t *testing.T) {
	buf := models.NewGrayscaleBuffer(4, 4)
	if _, err := Smooth(buf, -1); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for negative sigma, got %v", err)
	}
	if _, err := Smooth(models.GrayscaleBuffer{Width: 2, Height: 2}, 1); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for an invalid buffer, got %v", err)
	}
}

func TestFrequency(t *testing.T) {
	if frequency(0, 8) != 0 || frequency(4, 8) != 0.5 || frequency(5, 8) != -0.375 {
		t.Errorf("Unexpected frequencies for n=8")
	}
	if frequency(3, 7) != 3.0/7 || frequency(4, 7) != -3.0/7 {
		t.Errorf("Unexpected frequencies for n=7")
	}
}
