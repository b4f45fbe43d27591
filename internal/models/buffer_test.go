package models

import (
	"errors"
	"testing"
)

func TestGrayscaleBufferValidate(t *testing.T) {
	tests := []struct {
		name  string
		buf   GrayscaleBuffer
		valid bool
	}{
		{"ok", NewGrayscaleBuffer(3, 2), true},
		{"short pixels", GrayscaleBuffer{Pix: make([]uint8, 5), Width: 3, Height: 2}, false},
		{"zero width", GrayscaleBuffer{Width: 0, Height: 2}, false},
		{"negative size", NewGrayscaleBuffer(-1, 4), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.buf.Validate()
			if tc.valid && err != nil {
				t.Errorf("Expected valid buffer, got %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestGrayscaleBufferAccess(t *testing.T) {
	buf := NewGrayscaleBuffer(4, 3)
	buf.Pix[buf.Index(2, 1)] = 42

	if buf.At(2, 1) != 42 {
		t.Errorf("Expected 42 at (2,1), got %d", buf.At(2, 1))
	}
	if buf.Len() != 12 {
		t.Errorf("Expected 12 pixels, got %d", buf.Len())
	}
	if !buf.InBounds(3, 2) || buf.InBounds(4, 0) || buf.InBounds(0, -1) {
		t.Errorf("InBounds disagrees with a 4x3 buffer")
	}

	clone := buf.Clone()
	clone.Pix[0] = 7
	if buf.Pix[0] == 7 {
		t.Errorf("Clone shares pixels with the original")
	}
	if !clone.SameShape(buf) || clone.SameShape(NewGrayscaleBuffer(3, 4)) {
		t.Errorf("SameShape gave the wrong answer")
	}
}

func TestBinaryMask(t *testing.T) {
	mask := NewBinaryMask(3, 2)
	mask.Pix[1] = 1
	mask.Pix[5] = 1

	if err := mask.Validate(); err != nil {
		t.Fatalf("Expected valid mask, got %v", err)
	}
	if mask.Count() != 2 {
		t.Errorf("Expected 2 set pixels, got %d", mask.Count())
	}
	if !mask.Contains(1, 0) || mask.Contains(0, 0) || mask.Contains(5, 5) {
		t.Errorf("Contains gave the wrong answer")
	}

	scaled := mask.Scale255()
	if scaled[1] != 255 || scaled[0] != 0 {
		t.Errorf("Expected {0,255} values, got %v", scaled)
	}

	mask.Pix[2] = 255
	if err := mask.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for a non-binary value, got %v", err)
	}
}

func TestLabelBufferDistinct(t *testing.T) {
	labels := LabelBuffer{Labels: []int{0, 3, 3, 1, 0, 7}, Width: 3, Height: 2}

	got := labels.Distinct()
	want := []int{1, 3, 7}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}
	if labels.At(2, 1) != 7 {
		t.Errorf("Expected label 7 at (2,1), got %d", labels.At(2, 1))
	}
}
