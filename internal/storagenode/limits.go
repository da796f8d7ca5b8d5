package storagenode

// Admission-control limits, enforced before any state mutation. Content
// size is bounded separately by concept.MaxContentBytes; the message
// bound here caps a whole frame, batch included.
const (
	MaxMessageBytes   = 100 * 1024 * 1024
	MaxBatchItems     = 1000
	MaxTraversalDepth = 20
	MaxSearchK        = 1000
)
