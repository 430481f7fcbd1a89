package engine

import (
	iface "FloorPlanServer/interface"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteDetector forwards images to an inference sidecar that hosts the model.
type RemoteDetector struct {
	cfg    iface.EngineConfig
	client *resty.Client
}

type remoteResponse struct {
	Rois     [][]float64 `json:"rois"`
	ClassIDs []int       `json:"class_ids"`
	Scores   []float64   `json:"scores"`
	Width    int         `json:"width"`
	Height   int         `json:"height"`
}

type remoteError struct {
	Error string `json:"error"`
}

func (d *RemoteDetector) LoadModel(cfg iface.EngineConfig) error {
	if cfg.URL == "" {
		return errors.New("remote backend requires url")
	}
	d.cfg = cfg
	d.client = resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(time.Duration(cfg.TimeoutSec) * time.Second)
	return nil
}

func (d *RemoteDetector) CheckConfig() iface.EngineConfig {
	return d.cfg
}

func (d *RemoteDetector) Destroy() {
	d.client = nil
	d.cfg = iface.EngineConfig{}
}

func (d *RemoteDetector) Detect(img iface.ImageData) (iface.Detections, error) {
	if d.client == nil {
		return iface.Detections{}, errors.New("model not loaded")
	}
	if len(img.Encoded) == 0 {
		return iface.Detections{}, errors.New("remote backend needs the encoded image")
	}
	var body remoteResponse
	var failure remoteError
	resp, err := d.client.R().
		SetFileReader("image", "image", bytes.NewReader(img.Encoded)).
		SetResult(&body).
		SetError(&failure).
		Post("/detect")
	if err != nil {
		return iface.Detections{}, fmt.Errorf("request error: %w", err)
	}
	if resp.IsError() {
		if failure.Error != "" {
			return iface.Detections{}, fmt.Errorf("sidecar returned %s: %s", resp.Status(), failure.Error)
		}
		return iface.Detections{}, fmt.Errorf("sidecar returned %s", resp.Status())
	}
	items, err := iface.FromParallel(body.Rois, body.ClassIDs, body.Scores)
	if err != nil {
		return iface.Detections{}, err
	}
	items = filterByScore(items, d.cfg.Conf, d.cfg.MaxInstances)
	return iface.Detections{Items: items, FrameWidth: body.Width, FrameHeight: body.Height}, nil
}

func filterByScore(items []iface.RawDetection, conf float32, maxInstances int) []iface.RawDetection {
	kept := make([]iface.RawDetection, 0, len(items))
	for _, it := range items {
		if it.Score < float64(conf) {
			continue
		}
		kept = append(kept, it)
		if maxInstances > 0 && len(kept) == maxInstances {
			break
		}
	}
	return kept
}
