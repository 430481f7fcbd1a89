package engine

import (
	iface "FloorPlanServer/interface"
	"FloorPlanServer/logger"
	"fmt"

	"go.uber.org/zap"
)

const (
	BackendDNN    = "dnn"
	BackendRemote = "remote"
)

const (
	DefaultConf         = 0.7
	DefaultMaxInstances = 50
	DefaultInputSize    = 768
	DefaultTimeoutSec   = 60
)

func applyDefaults(cfg iface.EngineConfig) iface.EngineConfig {
	if cfg.Conf <= 0 {
		cfg.Conf = DefaultConf
	}
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = DefaultMaxInstances
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = DefaultTimeoutSec
	}
	return cfg
}

// LoadBackend builds the backend named by cfg.Backend and loads its model.
// Any failure here means the service cannot answer requests at all.
func LoadBackend(cfg iface.EngineConfig) (iface.Backend, error) {
	cfg = applyDefaults(cfg)
	if cfg.Conf > 1.0 {
		return nil, fmt.Errorf("%w: confidence must be between 0.0 and 1.0, got %f", ErrDetectorUnavailable, cfg.Conf)
	}
	var b iface.Backend
	switch cfg.Backend {
	case BackendDNN:
		b = &DNNDetector{}
	case BackendRemote:
		b = &RemoteDetector{}
	default:
		return nil, fmt.Errorf("%w: unsupported backend %q", ErrDetectorUnavailable, cfg.Backend)
	}
	if err := b.LoadModel(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}
	logger.Log().Info("backend loaded",
		zap.String("backend", cfg.Backend),
		zap.String("modelPath", cfg.ModelPath),
		zap.String("url", cfg.URL),
		zap.Float32("conf", cfg.Conf),
		zap.Int("inputSize", cfg.InputSize),
		zap.Bool("useGPU", cfg.UseGPU))
	return b, nil
}
