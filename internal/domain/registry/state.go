package registry

// State is a patient's position in the consultation pipeline.
type State string

const (
	StateRegistered State = "registered"
	StateQueued     State = "queued"
	StateProcessed  State = "processed"
	StatePrescribed State = "prescribed"
)
