package tail

import "math"

// window is a fixed-capacity ring of absolute sample values with a running
// sum, giving the mean absolute amplitude of a sliding window in O(1) per
// step.
type window struct {
	data     []float64
	size     int
	readPos  int
	writePos int
	sum      float64
}

func newWindow(capacity int) *window {
	return &window{data: make([]float64, max(capacity, 1))}
}

// push adds |v|; the window must not be full.
func (w *window) push(v float64) {
	a := math.Abs(v)
	w.data[w.writePos] = a
	w.sum += a
	w.size++
	w.writePos++
	if w.writePos == len(w.data) {
		w.writePos = 0
		w.resync()
	}
}

// pop removes the oldest value.
func (w *window) pop() {
	if w.size == 0 {
		return
	}
	w.sum -= w.data[w.readPos]
	w.data[w.readPos] = 0
	w.readPos++
	if w.readPos == len(w.data) {
		w.readPos = 0
	}
	w.size--
}

// mean returns the mean of the held values, or 0 when empty.
func (w *window) mean() float64 {
	if w.size == 0 {
		return 0
	}
	return w.sum / float64(w.size)
}

// resync recomputes the sum from scratch once per lap so rounding error
// from long runs of add/subtract cannot accumulate. Popped slots are zero.
func (w *window) resync() {
	var sum float64
	for _, v := range w.data {
		sum += v
	}
	w.sum = sum
}
