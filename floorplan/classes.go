package floorplan

// Class ids emitted by the model; 0 is background.
const (
	ClassBackground = 0
	ClassWall       = 1
	ClassWindow     = 2
	ClassDoor       = 3
)

var classNames = map[int]string{
	ClassWall:   "wall",
	ClassWindow: "window",
	ClassDoor:   "door",
}

// ClassLabel is either labeled with a name or unlabeled. An unlabeled record
// serializes as {}.
type ClassLabel struct {
	Name string `json:"name,omitempty"`
}

func (l ClassLabel) Labeled() bool {
	return l.Name != ""
}

// ResolveClass maps a class id to its label. Unknown ids give an unlabeled
// record so one stray detection cannot fail the response.
func ResolveClass(id int) ClassLabel {
	return ClassLabel{Name: classNames[id]}
}

func ResolveClasses(ids []int) []ClassLabel {
	labels := make([]ClassLabel, len(ids))
	for i, id := range ids {
		labels[i] = ResolveClass(id)
	}
	return labels
}
