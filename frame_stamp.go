package frameloop

import (
	"fmt"
	"time"
)

// FrameStamp identifies one iteration of the frame loop.
//
// FrameStamp is a value type: a new one is produced every frame and copies
// retained by in-flight work never change.
type FrameStamp struct {
	// FrameCount is the frame epoch. It starts at 0 and increases by one
	// per frame.
	FrameCount uint64

	// Time is the wall clock time at which the frame started.
	Time time.Time

	// SimulationTime is the simulation time of the frame, in seconds.
	SimulationTime float64
}

// NewFrameStamp returns the stamp of the first frame.
func NewFrameStamp(t time.Time, simulationTime float64) FrameStamp {
	return FrameStamp{Time: t, SimulationTime: simulationTime}
}

// Next returns the stamp of the frame following s.
func (s FrameStamp) Next(t time.Time, simulationTime float64) FrameStamp {
	return FrameStamp{
		FrameCount:     s.FrameCount + 1,
		Time:           t,
		SimulationTime: simulationTime,
	}
}

// String returns a human-readable form of the stamp.
func (s FrameStamp) String() string {
	return fmt.Sprintf("Frame[%d, sim=%.3fs]", s.FrameCount, s.SimulationTime)
}
