package floorplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	iface "FloorPlanServer/interface"
	"FloorPlanServer/logger"
	"FloorPlanServer/monitor"

	"go.uber.org/zap"
)

var (
	ErrIngestion = errors.New("invalid image")
	ErrDetection = errors.New("detection failed")
)

type Loader interface {
	Load(raw []byte) (iface.ImageData, error)
}

type Detector interface {
	Detect(ctx context.Context, img iface.ImageData) (iface.Detections, error)
}

type Options struct {
	// RescaleToImage maps boxes from the detector frame to the image size.
	// Off by default: boxes stay in the detector frame while Width/Height
	// report the uploaded image.
	RescaleToImage bool
}

type Analyzer struct {
	loader   Loader
	detector Detector
	opts     Options
}

func NewAnalyzer(loader Loader, detector Detector, opts Options) *Analyzer {
	return &Analyzer{
		loader:   loader,
		detector: detector,
		opts:     opts,
	}
}

func (a *Analyzer) Analyze(ctx context.Context, raw []byte) (*Result, error) {
	img, err := a.loader.Load(raw)
	if err != nil {
		if errors.Is(err, ErrIngestion) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrIngestion, err)
	}

	start := time.Now()
	dets, err := a.detector.Detect(ctx, img)
	monitor.ObserveInference(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	logger.Log().Debug("detections received",
		zap.Int("count", dets.Len()),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height))

	result := Build(dets, img.Width, img.Height, a.scaleFor(dets, img))
	for _, l := range result.Classes {
		if l.Labeled() {
			monitor.ObserveDetection(l.Name)
		} else {
			monitor.ObserveDetection("unknown")
		}
	}
	return result, nil
}

func (a *Analyzer) scaleFor(dets iface.Detections, img iface.ImageData) Scale {
	if !a.opts.RescaleToImage || dets.FrameWidth <= 0 || dets.FrameHeight <= 0 {
		return IdentityScale
	}
	return Scale{
		X: float64(img.Width) / float64(dets.FrameWidth),
		Y: float64(img.Height) / float64(dets.FrameHeight),
	}
}

// Build turns raw detections into the response document. It is pure: the
// same input always produces the same document.
func Build(dets iface.Detections, width, height int, scale Scale) *Result {
	ids := make([]int, len(dets.Items))
	for i, d := range dets.Items {
		ids[i] = d.ClassID
	}
	labels := ResolveClasses(ids)
	boxes, averageDoor := Normalize(dets.Items, scale)
	return Assemble(boxes, labels, width, height, averageDoor)
}
