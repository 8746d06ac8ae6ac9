package kestrel

import "github.com/ehrlich-b/kestrel/internal/constants"

// Re-export constants for public API
const (
	DefaultHeapSize          = constants.DefaultHeapSize
	DefaultFreeQueueCapacity = constants.DefaultFreeQueueCapacity
	DefaultMaxDrivers        = constants.DefaultMaxDrivers
	DefaultTimerGranularity  = constants.DefaultTimerGranularity
	DefaultIdleSleepCap      = constants.DefaultIdleSleepCap
	DefaultSermuxMaxPorts    = constants.DefaultSermuxMaxPorts
	DefaultSermuxMaxFrame    = constants.DefaultSermuxMaxFrame
	DefaultPortCapacity      = constants.DefaultPortCapacity
	DefaultServiceQueueDepth = constants.DefaultServiceQueueDepth
	DefaultSpawnTimeout      = constants.DefaultSpawnTimeout
)
