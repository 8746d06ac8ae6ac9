package registry

import "github.com/google/uuid"

// Well-known driver UUIDs. Every registered driver carries a stable
// 128-bit identity; the kernel's own services live here so clients and
// servers agree without importing each other.
var (
	SerialMuxUUID    = uuid.MustParse("54c983fa-736f-4223-b90d-c4360a308647")
	SimpleSerialUUID = uuid.MustParse("f06aac01-2773-4266-8681-583ffe756554")
	SpawnulatorUUID  = uuid.MustParse("1734935a-c8d6-4a8a-8616-3db6a244cd2a")
	KeyboardMuxUUID  = uuid.MustParse("70861d1c-9f01-4e9b-89e6-ede77d8f26d8")
	BlockStoreUUID   = uuid.MustParse("9c1c1ad9-71a7-4e22-8bf1-36a279f67dcf")
	SpiUUID          = uuid.MustParse("b5fd3487-08c4-4c0c-ae97-65dd1b151138")
	PcmSinkUUID      = uuid.MustParse("5a9f4bb4-e1f9-4b2b-9021-7d9e1aa8b7b3")
	TraceUUID        = uuid.MustParse("9bad27a4-d8fa-4fe0-86b7-53a07d3e876a")
)
