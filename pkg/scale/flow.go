package scale

import "time"

const (

	// FlowHistorySize denotes the number of instantaneous samples the flow rate is averaged over
	FlowHistorySize = 5

	minFlowInterval = 0.01
	maxFlowInterval = 1.0
)

// FlowHistory denotes a bounded window of instantaneous flow rate samples
type FlowHistory struct {
	samples []float64

	prevWeight    float64
	prevTimestamp time.Time
}

// Update feeds a new weight reading and returns the smoothed flow rate and whether
// the reading produced a sample. Intervals outside (0.01s, 1.0s) are discarded
func (h *FlowHistory) Update(weight float64, ts time.Time) (float64, bool) {
	defer func() {
		h.prevWeight = weight
		h.prevTimestamp = ts
	}()

	if h.prevTimestamp.IsZero() {
		return h.Mean(), false
	}

	dt := ts.Sub(h.prevTimestamp).Seconds()
	if dt <= minFlowInterval || dt >= maxFlowInterval {
		return h.Mean(), false
	}

	h.samples = append(h.samples, (weight-h.prevWeight)/dt)
	if len(h.samples) > FlowHistorySize {
		h.samples = h.samples[len(h.samples)-FlowHistorySize:]
	}

	return h.Mean(), true
}

// Mean returns the arithmetic mean of the current samples
func (h *FlowHistory) Mean() float64 {
	if len(h.samples) == 0 {
		return 0.
	}

	var sum float64
	for _, s := range h.samples {
		sum += s
	}

	return sum / float64(len(h.samples))
}

// Len returns the number of samples in the window
func (h *FlowHistory) Len() int {
	return len(h.samples)
}

// Reset clears all samples and the reference reading
func (h *FlowHistory) Reset() {
	h.samples = nil
	h.prevWeight = 0
	h.prevTimestamp = time.Time{}
}
