// Package frameloop drives a frame-paced GPU submission loop.
//
// # Overview
//
// frameloop ties together the pieces a renderer needs to keep the CPU a
// bounded number of frames ahead of the device without freeing anything the
// device may still read:
//
//   - DeleteQueue defers the release of dropped resources for a fixed number
//     of frames (the retention window).
//   - TransferQueue stages host-to-device buffer copies and walks each one
//     through Pending, Recorded and ReadyToClear before releasing its source.
//   - StagingPool recycles staging buffers under a memory budget.
//   - RecordAndSubmitTask records command graphs for one device and tracks
//     the fences of its in-flight frames.
//   - Viewer orchestrates the loop: events, frame advance, compile, record,
//     submit and present, optionally recording tasks on worker goroutines.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/frameloop"
//		"github.com/gogpu/frameloop/backend/simulated"
//	)
//
//	dev := simulated.NewDevice(simulated.Config{})
//	defer dev.Close()
//
//	v, err := frameloop.NewViewer(frameloop.WithThreads(2))
//	if err != nil {
//		log.Fatal(err)
//	}
//	v.AddPresentationTarget(target)
//	v.AddTask(frameloop.NewRecordAndSubmitTask("main", dev, graph))
//	v.SetupThreading()
//	defer v.Close()
//
//	for v.AdvanceToNextFrame(frameloop.UseTimeSinceStart) {
//		v.HandleEvents()
//		v.Update()
//		if err := v.RecordAndSubmit(); err != nil {
//			log.Print(err)
//			continue
//		}
//		v.Present()
//	}
//
// # Frame Epochs
//
// Every frame gets a FrameStamp whose FrameCount is the frame epoch. It is
// written only by the goroutine driving the loop and never decreases.
// Command buffers, fences, delete queue entries and recorded copies are all
// tagged with the epoch they belong to.
//
// # Backends
//
// Device, CommandBuffer and Fence abstract the GPU. backend/halgpu
// implements them on top of gogpu/wgpu's HAL; backend/simulated runs
// submissions on a goroutine for tests and demos. Package backend lets
// either be opened by name.
//
// # Logging
//
// The package is silent by default. Use SetLogger to route diagnostics to
// a slog.Logger.
package frameloop

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
