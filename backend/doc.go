// Package backend is a registry of frameloop device backends.
//
// Backend packages register themselves from init() functions and are
// selected at runtime by name:
//
//	import _ "github.com/gogpu/frameloop/backend/simulated"
//
//	b, err := backend.Open(backend.Simulated)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	pool := frameloop.NewStagingPool(b.Staging(), frameloop.StagingPoolConfig{})
//	task := frameloop.NewRecordAndSubmitTask("main", b.Device())
//
// OpenDefault opens the first backend that works, in priority order.
//
// # Available Backends
//
//   - "simulated": host-memory device with configurable latency (always available)
//   - "headless": the hal device on the noop HAL (excluded by the nogpu tag)
package backend
