package floorplan

import (
	"math"

	iface "FloorPlanServer/interface"
)

// Box is in image (x, y) order.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Scale multiplies normalized coordinates. The zero value behaves as identity.
type Scale struct {
	X float64
	Y float64
}

var IdentityScale = Scale{X: 1, Y: 1}

func (s Scale) orIdentity() Scale {
	if s.X == 0 {
		s.X = 1
	}
	if s.Y == 0 {
		s.Y = 1
	}
	return s
}

// Span is the longer side of the box. A door is long in its opening
// direction whichever way it is drawn.
func (b Box) Span() float64 {
	return math.Max(math.Abs(b.X2-b.X1), math.Abs(b.Y2-b.Y1))
}

// Normalize swaps raw (y1, x1, y2, x2) boxes into (x1, y1, x2, y2), applies
// scale and returns the mean door span. Output order matches input order.
func Normalize(dets []iface.RawDetection, scale Scale) ([]Box, float64) {
	scale = scale.orIdentity()
	boxes := make([]Box, len(dets))
	doorCount := 0
	doorSum := 0.0
	for i, d := range dets {
		b := Box{
			X1: d.Box[1] * scale.X,
			Y1: d.Box[0] * scale.Y,
			X2: d.Box[3] * scale.X,
			Y2: d.Box[2] * scale.Y,
		}
		boxes[i] = b
		if d.ClassID == ClassDoor {
			doorCount++
			doorSum += b.Span()
		}
	}
	if doorCount == 0 {
		return boxes, 0
	}
	return boxes, doorSum / float64(doorCount)
}
