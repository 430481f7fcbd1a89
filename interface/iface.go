package iface

import "fmt"

// RawDetection is one instance reported by a backend. Box is (y1, x1, y2, x2)
// in the backend's working frame.
type RawDetection struct {
	Box     [4]float64
	ClassID int
	Score   float64
}

// Detections keeps box, class and score of an instance in one record so the
// three can never drift apart. FrameWidth/FrameHeight describe the working
// frame of the model and are 0 when the backend does not report them.
type Detections struct {
	Items       []RawDetection
	FrameWidth  int
	FrameHeight int
}

func (d Detections) Len() int {
	return len(d.Items)
}

// FromParallel zips the parallel rois/class_ids/scores arrays most models emit.
func FromParallel(rois [][]float64, classIDs []int, scores []float64) ([]RawDetection, error) {
	if len(rois) != len(classIDs) || len(rois) != len(scores) {
		return nil, fmt.Errorf("misaligned detections: %d rois, %d class ids, %d scores", len(rois), len(classIDs), len(scores))
	}
	items := make([]RawDetection, len(rois))
	for i, roi := range rois {
		if len(roi) != 4 {
			return nil, fmt.Errorf("roi %d has %d values, want 4", i, len(roi))
		}
		items[i] = RawDetection{
			Box:     [4]float64{roi[0], roi[1], roi[2], roi[3]},
			ClassID: classIDs[i],
			Score:   scores[i],
		}
	}
	return items, nil
}

// ImageData is a decoded 8-bit BGR image plus the bytes it was decoded from.
type ImageData struct {
	Data     []byte
	Width    int
	Height   int
	Channels int
	Encoded  []byte
}

type EngineConfig struct {
	Backend      string    `yaml:"backend" json:"backend"`
	ModelPath    string    `yaml:"modelPath" json:"modelPath"`
	ConfigPath   string    `yaml:"configPath" json:"configPath,omitempty"`
	URL          string    `yaml:"url" json:"url,omitempty"`
	Conf         float32   `yaml:"conf" json:"conf"`
	MaxInstances int       `yaml:"maxInstances" json:"maxInstances"`
	InputSize    int       `yaml:"inputSize" json:"inputSize"`
	Mean         []float64 `yaml:"mean" json:"mean,omitempty"`
	SwapRB       bool      `yaml:"swapRB" json:"swapRB"`
	UseGPU       bool      `yaml:"useGPU" json:"useGPU"`
	TimeoutSec   int       `yaml:"timeoutSec" json:"timeoutSec,omitempty"`
}

type Backend interface {
	LoadModel(cfg EngineConfig) error
	Detect(img ImageData) (Detections, error)
	CheckConfig() EngineConfig
	Destroy()
}
