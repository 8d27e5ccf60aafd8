package core

// Line priority scale. Values map onto the platform's thread priority
// mechanism where one exists; PriorityNorm is the platform default.
const (
	PriorityMin  = 1
	PriorityNorm = 5
	PriorityMax  = 10
)

func clampPriority(value int) int {
	if value < PriorityMin {
		return PriorityMin
	}
	if value > PriorityMax {
		return PriorityMax
	}
	return value
}
