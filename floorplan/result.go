package floorplan

// Result is the response document. Points and Classes are index-aligned.
type Result struct {
	Points      []Box        `json:"points"`
	Classes     []ClassLabel `json:"classes"`
	Width       int          `json:"Width"`
	Height      int          `json:"Height"`
	AverageDoor float64      `json:"averageDoor"`
}

func Assemble(boxes []Box, labels []ClassLabel, width, height int, averageDoor float64) *Result {
	if boxes == nil {
		boxes = []Box{}
	}
	if labels == nil {
		labels = []ClassLabel{}
	}
	return &Result{
		Points:      boxes,
		Classes:     labels,
		Width:       width,
		Height:      height,
		AverageDoor: averageDoor,
	}
}
