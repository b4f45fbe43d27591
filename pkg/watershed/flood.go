package watershed

import (
	"container/heap"

	"medseg/internal/models"
)

const (
	// unlabeled marks pixels not yet reached by any flood front
	unlabeled = -1

	// background is the final label of pixels never reached
	background = 0
)

// neighbors8 lists the offsets of the 8-connected neighborhood
var neighbors8 = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// floodItem is a labeled pixel waiting to spread to its neighbors
type floodItem struct {
	index    int
	label    int
	priority float64
	seq      int
}

// floodQueue is a max-heap on priority; equal priorities pop in push order
type floodQueue []floodItem

func (q floodQueue) Len() int { return len(q) }

func (q floodQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q floodQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *floodQueue) Push(x any) { *q = append(*q, x.(floodItem)) }

func (q *floodQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// newLabels returns a label slice with every pixel unlabeled except the
// markers, which carry markerLabels
func newLabels(n, width int, markers []models.Point, markerLabels []int) []int {
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unlabeled
	}
	for i, m := range markers {
		labels[m.Y*width+m.X] = markerLabels[i]
	}
	return labels
}

// Flood grows every marker label over the foreground of the distance map in
// descending distance order, so basins fill from their centers outward. A
// pixel keeps the first label that reaches it. Background pixels (distance 0)
// and foreground never reached end up as label 0.
func Flood(dist []float64, width, height int, markers []models.Point, markerLabels []int) []int {
	labels := newLabels(len(dist), width, markers, markerLabels)

	q := make(floodQueue, 0, len(markers))
	seq := 0
	for i, m := range markers {
		idx := m.Y*width + m.X
		q = append(q, floodItem{index: idx, label: markerLabels[i], priority: dist[idx], seq: seq})
		seq++
	}
	heap.Init(&q)

	for q.Len() > 0 {
		item := heap.Pop(&q).(floodItem)
		x, y := item.index%width, item.index/width

		for _, d := range neighbors8 {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= width || ny >= height {
				continue
			}
			n := ny*width + nx
			if labels[n] != unlabeled || dist[n] <= 0 {
				continue
			}
			labels[n] = item.label
			heap.Push(&q, floodItem{index: n, label: item.label, priority: dist[n], seq: seq})
			seq++
		}
	}

	finalize(labels)
	return labels
}

// FloodFIFO is the breadth-first variant: fronts advance one ring per step
// regardless of distance. It is cheaper but does not follow basin order, so
// boundaries between touching regions are less accurate than Flood's.
func FloodFIFO(dist []float64, width, height int, markers []models.Point, markerLabels []int) []int {
	labels := newLabels(len(dist), width, markers, markerLabels)

	queue := make([]int, len(dist))
	head, tail := 0, 0
	for _, m := range markers {
		queue[tail] = m.Y*width + m.X
		tail++
	}

	for head < tail {
		idx := queue[head]
		head++
		x, y := idx%width, idx/width
		for _, d := range neighbors8 {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= width || ny >= height {
				continue
			}
			n := ny*width + nx
			if labels[n] != unlabeled || dist[n] <= 0 {
				continue
			}
			labels[n] = labels[idx]
			queue[tail] = n
			tail++
		}
	}

	finalize(labels)
	return labels
}

// finalize resolves every pixel still unlabeled to background
func finalize(labels []int) {
	for i, l := range labels {
		if l == unlabeled {
			labels[i] = background
		}
	}
}
