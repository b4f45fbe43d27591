// Package watershed segments touching or separate blobs of a binary mask.
//
// Segmentation runs in three stages:
//  1. a chamfer distance transform of the mask, zero on the background
//  2. marker detection at the local maxima of the distance map
//  3. flooding from the markers over the foreground, highest distance first
//
// The mask is either supplied by the caller (typically the Otsu output) or
// derived with a fixed midpoint threshold.
package watershed

import (
	"fmt"
	"math"

	"medseg/internal/models"
)

// Method selects the flooding discipline
type Method int

const (
	// MethodPriority floods in descending distance order
	MethodPriority Method = iota

	// MethodFIFO floods breadth-first. Lower quality fallback.
	MethodFIFO
)

// String returns the configuration name of the method
func (m Method) String() string {
	switch m {
	case MethodPriority:
		return "priority"
	case MethodFIFO:
		return "fifo"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps a configuration name to a Method
func ParseMethod(name string) (Method, error) {
	switch name {
	case "", "priority":
		return MethodPriority, nil
	case "fifo":
		return MethodFIFO, nil
	default:
		return 0, fmt.Errorf("unknown watershed method %q: %w", name, models.ErrInvalidInput)
	}
}

const (
	// MidpointThreshold separates foreground (> 127) from background when no
	// mask is supplied
	MidpointThreshold = 127

	// DefaultMinMarkerDistance rejects maxima on the blob rim
	DefaultMinMarkerDistance = 1.0

	// DefaultMarkerSeparation merges maxima up to two pixels apart, which
	// joins plateaus and the stepped ridges the chamfer leaves in elongated
	// blobs
	DefaultMarkerSeparation = 2.0
)

// Params configures a segmentation
type Params struct {
	// Mask is an optional precomputed {0,1} mask of the image's shape
	Mask *models.BinaryMask

	// MinMarkerDistance is the distance a maximum must exceed to be a marker
	MinMarkerDistance float64

	// MarkerSeparation is the radius within which markers share a label.
	// Zero keeps one label per marker.
	MarkerSeparation float64

	// Method selects priority or FIFO flooding
	Method Method
}

// DefaultParams returns priority flooding with the default marker settings
func DefaultParams() Params {
	return Params{
		MinMarkerDistance: DefaultMinMarkerDistance,
		MarkerSeparation:  DefaultMarkerSeparation,
		Method:            MethodPriority,
	}
}

// Result holds the segmentation
type Result struct {
	// Labels has 0 for background and a positive region label elsewhere
	Labels models.LabelBuffer

	// Markers are the local maxima that seeded the flood, in discovery order
	Markers []models.Point

	// MarkerLabels holds the label given to each marker
	MarkerLabels []int

	// Distance is the chamfer distance map the markers were taken from
	Distance []float64
}

// RegionCount returns the number of distinct positive labels
func (r Result) RegionCount() int {
	return len(r.Labels.Distinct())
}

// Segment runs the full watershed pipeline on the buffer
func Segment(buf models.GrayscaleBuffer, params Params) (Result, error) {
	if err := buf.Validate(); err != nil {
		return Result{}, fmt.Errorf("watershed: %w", err)
	}
	if params.MinMarkerDistance < 0 || math.IsNaN(params.MinMarkerDistance) {
		return Result{}, fmt.Errorf("watershed: negative marker distance %f: %w", params.MinMarkerDistance, models.ErrInvalidInput)
	}
	if params.MarkerSeparation < 0 || math.IsNaN(params.MarkerSeparation) {
		return Result{}, fmt.Errorf("watershed: negative marker separation %f: %w", params.MarkerSeparation, models.ErrInvalidInput)
	}
	if params.Method != MethodPriority && params.Method != MethodFIFO {
		return Result{}, fmt.Errorf("watershed: unknown method %v: %w", params.Method, models.ErrInvalidInput)
	}

	var mask models.BinaryMask
	if params.Mask != nil {
		if err := params.Mask.Validate(); err != nil {
			return Result{}, fmt.Errorf("watershed mask: %w", err)
		}
		if params.Mask.Width != buf.Width || params.Mask.Height != buf.Height {
			return Result{}, fmt.Errorf("watershed: mask is %dx%d, image is %dx%d: %w",
				params.Mask.Width, params.Mask.Height, buf.Width, buf.Height, models.ErrInvalidInput)
		}
		mask = *params.Mask
	} else {
		mask = MidpointMask(buf)
	}

	w, h := buf.Width, buf.Height

	// Stage 1: distance transform
	dist := DistanceTransform(mask)

	// Stage 2: markers
	markers := FindMarkers(dist, w, h, params.MinMarkerDistance)
	markerLabels := LabelMarkers(markers, params.MarkerSeparation)

	// Stage 3: flooding
	var labels []int
	if params.Method == MethodFIFO {
		labels = FloodFIFO(dist, w, h, markers, markerLabels)
	} else {
		labels = Flood(dist, w, h, markers, markerLabels)
	}

	return Result{
		Labels:       models.LabelBuffer{Labels: labels, Width: w, Height: h},
		Markers:      markers,
		MarkerLabels: markerLabels,
		Distance:     dist,
	}, nil
}

// MidpointMask marks pixels brighter than MidpointThreshold
func MidpointMask(buf models.GrayscaleBuffer) models.BinaryMask {
	mask := models.NewBinaryMask(buf.Width, buf.Height)
	for i, v := range buf.Pix {
		if v > MidpointThreshold {
			mask.Pix[i] = 1
		}
	}
	return mask
}
