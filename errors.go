package frameloop

import "errors"

// Frame loop errors.
var (
	// ErrTimeout is returned when a device wait exceeded its bound.
	// It is not fatal: the caller may retry or skip the frame.
	ErrTimeout = errors.New("frameloop: timeout waiting for device")

	// ErrInactiveViewer is returned when an operation needs an active viewer.
	ErrInactiveViewer = errors.New("frameloop: viewer is not active")

	// ErrPresentationTargetLost is returned by a PresentationTarget whose
	// surface or device became invalid. The viewer removes the target and
	// keeps running.
	ErrPresentationTargetLost = errors.New("frameloop: presentation target lost")

	// ErrOrderingViolation reports an epoch regression or a release attempted
	// before the device finished with a resource.
	ErrOrderingViolation = errors.New("frameloop: ordering violation")

	// ErrInvalidConfig is returned by NewViewer for inconsistent options.
	ErrInvalidConfig = errors.New("frameloop: invalid configuration")

	// ErrNoStagingAllocator is returned by TransferQueue.Copy without an allocator.
	ErrNoStagingAllocator = errors.New("frameloop: no staging allocator")

	// ErrStagingBudgetExceeded is returned when a staging allocation would
	// exceed the pool budget.
	ErrStagingBudgetExceeded = errors.New("frameloop: staging budget exceeded")

	// ErrStagingPoolClosed is returned when acquiring from a closed pool.
	ErrStagingPoolClosed = errors.New("frameloop: staging pool closed")
)
