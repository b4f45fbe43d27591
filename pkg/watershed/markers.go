package watershed

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"medseg/internal/models"
)

// FindMarkers returns the local maxima of the distance map in row-major
// order. A pixel qualifies when its distance exceeds minDistance and none of
// its 8 neighbors is strictly greater, so equal neighbors on a plateau are
// all reported.
func FindMarkers(dist []float64, width, height int, minDistance float64) []models.Point {
	var markers []models.Point
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := dist[y*width+x]
			if v <= minDistance {
				continue
			}
			if isLocalMax(dist, width, height, x, y, v) {
				markers = append(markers, models.Point{X: x, Y: y})
			}
		}
	}
	return markers
}

func isLocalMax(dist []float64, width, height, x, y int, v float64) bool {
	for _, d := range neighbors8 {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || ny < 0 || nx >= width || ny >= height {
			continue
		}
		if dist[ny*width+nx] > v {
			return false
		}
	}
	return true
}

// LabelMarkers assigns a positive label to every marker. Markers closer than
// separation (Euclidean, in pixels) end up in the same group, transitively,
// so a plateau or a ridge of maxima becomes one region. Groups are numbered
// 1..L in the order their first marker was found. A separation <= 0 gives
// every marker its own label.
func LabelMarkers(markers []models.Point, separation float64) []int {
	labels := make([]int, len(markers))
	if len(markers) == 0 {
		return labels
	}
	if separation <= 0 {
		for i := range labels {
			labels[i] = i + 1
		}
		return labels
	}

	points := make(markerPoints, len(markers))
	for i, m := range markers {
		points[i] = markerPoint{X: float64(m.X), Y: float64(m.Y), Index: i}
	}
	tree := kdtree.New(append(markerPoints(nil), points...), false)

	parent := make([]int, len(markers))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	radius := separation * separation
	for _, p := range points {
		keeper := kdtree.NewDistKeeper(radius)
		tree.NearestSet(keeper, p)
		for _, item := range keeper.Heap {
			// Skip the sentinel value
			if item.Comparable == nil {
				continue
			}
			q := item.Comparable.(markerPoint)
			a, b := find(p.Index), find(q.Index)
			if a == b {
				continue
			}
			// The earlier marker stays the root so numbering follows discovery
			if a < b {
				parent[b] = a
			} else {
				parent[a] = b
			}
		}
	}

	next := 0
	rootLabel := make(map[int]int)
	for i := range markers {
		r := find(i)
		l, ok := rootLabel[r]
		if !ok {
			next++
			l = next
			rootLabel[r] = l
		}
		labels[i] = l
	}
	return labels
}

// markerPoint is a marker coordinate that satisfies kdtree.Comparable
type markerPoint struct {
	X, Y  float64
	Index int
}

// Compare implements the kdtree.Comparable interface
func (p markerPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(markerPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p markerPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two markers
func (p markerPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(markerPoint)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// markerPoints is a collection of markerPoint that satisfies kdtree.Interface
type markerPoints []markerPoint

func (p markerPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p markerPoints) Len() int                              { return len(p) }
func (p markerPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p markerPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(markerPlane{markerPoints: p, Dim: d}, kdtree.MedianOfRandoms(markerPlane{markerPoints: p, Dim: d}, 100))
}

// markerPlane implements sort.Interface and kdtree.SortSlicer for markerPoints
type markerPlane struct {
	markerPoints
	kdtree.Dim
}

func (p markerPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.markerPoints[i].X < p.markerPoints[j].X
	case 1:
		return p.markerPoints[i].Y < p.markerPoints[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p markerPlane) Slice(start, end int) kdtree.SortSlicer {
	return markerPlane{markerPoints: p.markerPoints[start:end], Dim: p.Dim}
}

func (p markerPlane) Swap(i, j int) {
	p.markerPoints[i], p.markerPoints[j] = p.markerPoints[j], p.markerPoints[i]
}
