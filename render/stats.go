// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"sync"
	"time"

	"github.com/periscope-project/periscope/lib/clock"
)

// fpsWindow is the number of recent frames the rolling FPS covers.
const fpsWindow = 60

// FrameStats tracks frame arrivals: a total count and a rolling
// frames-per-second figure over the last 60 frames. Deduplicated and
// discarded frames still count as arrivals.
type FrameStats struct {
	clock clock.Clock

	mu      sync.Mutex
	total   uint64
	arrived [fpsWindow]time.Time
	filled  int
	head    int
}

// NewFrameStats creates FrameStats on the given clock.
func NewFrameStats(clk clock.Clock) *FrameStats {
	if clk == nil {
		clk = clock.Real()
	}
	return &FrameStats{clock: clk}
}

// Record counts one frame arrival.
func (s *FrameStats) Record() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.arrived[s.head] = s.clock.Now()
	s.head = (s.head + 1) % fpsWindow
	if s.filled < fpsWindow {
		s.filled++
	}
}

// Total returns the number of frames recorded since creation.
func (s *FrameStats) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// FPS returns the rolling frame rate over the recorded window. Zero
// until at least two frames have arrived.
func (s *FrameStats) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filled < 2 {
		return 0
	}

	newest := s.arrived[(s.head+fpsWindow-1)%fpsWindow]
	oldest := s.arrived[(s.head+fpsWindow-s.filled)%fpsWindow]
	elapsed := newest.Sub(oldest)
	if elapsed <= 0 {
		return 0
	}
	return float64(s.filled-1) / elapsed.Seconds()
}
