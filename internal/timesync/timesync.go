// Package timesync implements the frame-wait recommendation described in
// spec.md §4.4: a sliding window of local/remote frame-advantage samples
// that tells the host to pause a few frames when it's running meaningfully
// ahead of its peer.
package timesync

import "sort"

// WindowSize is the number of samples retained (spec.md FRAME_WINDOW_SIZE).
const WindowSize = 40

// MinFrameAdvantage is the minimum lead, in frames, before a wait is ever
// recommended (spec.md MIN_FRAME_ADVANTAGE).
const MinFrameAdvantage = 3

// MinUniqueFrames is how far the local frame counter must have moved since
// the last recommendation before another one is issued (spec.md
// MIN_UNIQUE_FRAMES).
const MinUniqueFrames = 10

// Sample is one tick's observed frame-advantage pair.
type Sample struct {
	Local  int
	Remote int
}

// Estimator holds the sliding window and the bookkeeping needed to avoid
// recommending a wait more often than MinUniqueFrames apart.
type Estimator struct {
	samples        []Sample
	lastRecommendAt int
	haveLast        bool
}

// New returns an empty Estimator.
func New() *Estimator {
	return &Estimator{samples: make([]Sample, 0, WindowSize)}
}

// RecordSample appends a (local, remote) frame-advantage observation,
// evicting the oldest sample once the window is full.
func (e *Estimator) RecordSample(localAdvantage, remoteAdvantage int) {
	s := Sample{Local: localAdvantage, Remote: remoteAdvantage}
	if len(e.samples) < WindowSize {
		e.samples = append(e.samples, s)
		return
	}
	copy(e.samples, e.samples[1:])
	e.samples[len(e.samples)-1] = s
}

// RecommendFrameWait returns the number of frames the host should pause this
// tick. currentFrame is the local simulation frame, used only to space
// successive recommendations at least MinUniqueFrames apart.
func (e *Estimator) RecommendFrameWait(currentFrame int) uint {
	if len(e.samples) == 0 {
		return 0
	}
	localMedian := medianOf(e.samples, func(s Sample) int { return s.Local })
	remoteMedian := medianOf(e.samples, func(s Sample) int { return s.Remote })

	advantage := localMedian - remoteMedian
	if advantage <= MinFrameAdvantage {
		return 0
	}
	if e.haveLast && currentFrame-e.lastRecommendAt < MinUniqueFrames {
		return 0
	}
	skip := advantage / 2
	if skip <= 0 {
		return 0
	}
	e.lastRecommendAt = currentFrame
	e.haveLast = true
	return uint(skip)
}

func medianOf(samples []Sample, pick func(Sample) int) int {
	vals := make([]int, len(samples))
	for i, s := range samples {
		vals[i] = pick(s)
	}
	sort.Ints(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}
