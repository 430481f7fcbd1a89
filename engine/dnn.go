package engine

import (
	iface "FloorPlanServer/interface"
	"errors"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
)

// Output layer of an OpenCV-exported Mask R-CNN graph. Rows are
// (image, class, score, left, top, right, bottom), coordinates in [0,1].
const detectionOutputLayer = "detection_out_final"

const detectionRowSize = 7

// DNNDetector runs a model in-process through OpenCV's dnn module.
type DNNDetector struct {
	cfg  iface.EngineConfig
	net  gocv.Net
	open bool
}

func (d *DNNDetector) LoadModel(cfg iface.EngineConfig) error {
	if cfg.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return fmt.Errorf("stat model: %w", err)
	}
	net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
	if net.Empty() {
		return fmt.Errorf("unable to read network from %s", cfg.ModelPath)
	}
	if cfg.UseGPU {
		if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
			_ = net.Close()
			return fmt.Errorf("set cuda backend: %w", err)
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err != nil {
			_ = net.Close()
			return fmt.Errorf("set cuda target: %w", err)
		}
	} else {
		if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
			_ = net.Close()
			return fmt.Errorf("set default backend: %w", err)
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
			_ = net.Close()
			return fmt.Errorf("set cpu target: %w", err)
		}
	}
	d.cfg = cfg
	d.net = net
	d.open = true
	return nil
}

func (d *DNNDetector) CheckConfig() iface.EngineConfig {
	return d.cfg
}

func (d *DNNDetector) Destroy() {
	if d.open {
		_ = d.net.Close()
		d.open = false
	}
	d.cfg = iface.EngineConfig{}
}

func (d *DNNDetector) Detect(img iface.ImageData) (iface.Detections, error) {
	if !d.open {
		return iface.Detections{}, errors.New("model not loaded")
	}
	if img.Channels != 3 || len(img.Data) != img.Width*img.Height*3 {
		return iface.Detections{}, fmt.Errorf("expected %dx%d 3-channel image, got %d bytes with %d channels", img.Width, img.Height, len(img.Data), img.Channels)
	}
	mat, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Data)
	if err != nil {
		return iface.Detections{}, fmt.Errorf("build input mat: %w", err)
	}
	defer mat.Close()

	size := d.cfg.InputSize
	blob := gocv.BlobFromImage(mat, 1.0, image.Pt(size, size), d.meanScalar(), d.cfg.SwapRB, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward(detectionOutputLayer)
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return iface.Detections{}, fmt.Errorf("read detection output: %w", err)
	}
	items := parseDetectionOutput(data, size, d.cfg.Conf, d.cfg.MaxInstances)
	return iface.Detections{Items: items, FrameWidth: size, FrameHeight: size}, nil
}

func (d *DNNDetector) meanScalar() gocv.Scalar {
	var m [3]float64
	copy(m[:], d.cfg.Mean)
	return gocv.NewScalar(m[0], m[1], m[2], 0)
}

// parseDetectionOutput converts flat detection rows into records with boxes in
// the model's frame (frame x frame pixels), keeping model order.
func parseDetectionOutput(data []float32, frame int, conf float32, maxInstances int) []iface.RawDetection {
	rows := len(data) / detectionRowSize
	items := make([]iface.RawDetection, 0, rows)
	f := float64(frame)
	for i := 0; i < rows; i++ {
		row := data[i*detectionRowSize : (i+1)*detectionRowSize]
		score := row[2]
		if score < conf {
			continue
		}
		left, top, right, bottom := clamp01(row[3]), clamp01(row[4]), clamp01(row[5]), clamp01(row[6])
		items = append(items, iface.RawDetection{
			Box:     [4]float64{top * f, left * f, bottom * f, right * f},
			ClassID: int(row[1]),
			Score:   float64(score),
		})
		if maxInstances > 0 && len(items) == maxInstances {
			break
		}
	}
	return items
}

func clamp01(v float32) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return float64(v)
}
