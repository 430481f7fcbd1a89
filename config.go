package main

import (
	"FloorPlanServer/engine"
	iface "FloorPlanServer/interface"
	"FloorPlanServer/weights"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type logConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

type configStruct struct {
	HTTPPort    int  `yaml:"HTTPPort"`
	RPCPort     int  `yaml:"RPCPort"`
	MonitorPort int  `yaml:"MonitorPort"`
	QueueSize   int  `yaml:"queueSize"`
	GPU         bool `yaml:"gpu"`

	UseRegServer  bool   `yaml:"UseRegServer"`
	RegServerPort int    `yaml:"RegServerPort"`
	RegServerHost string `yaml:"RegServerHost"`

	MaxUploadMB    int     `yaml:"maxUploadMB"`
	RateLimit      float64 `yaml:"rateLimit"`
	RateBurst      int     `yaml:"rateBurst"`
	RescaleToImage bool    `yaml:"rescaleToImage"`

	Log     logConfig          `yaml:"log"`
	Engine  iface.EngineConfig `yaml:"engine"`
	Weights *weights.Config    `yaml:"weights"`
}

func defaultConfig() configStruct {
	return configStruct{
		HTTPPort:    8080,
		MaxUploadMB: 16,
		QueueSize:   16,
		Engine: iface.EngineConfig{
			Backend:      engine.BackendDNN,
			Conf:         engine.DefaultConf,
			MaxInstances: engine.DefaultMaxInstances,
			InputSize:    engine.DefaultInputSize,
			SwapRB:       true,
		},
	}
}

func loadConfig(path string) (configStruct, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *configStruct) validate() error {
	var errs []error
	if c.HTTPPort <= 0 {
		errs = append(errs, fmt.Errorf("HTTPPort must be positive, got %d", c.HTTPPort))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("maxUploadMB must be positive, got %d", c.MaxUploadMB))
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1
	}
	if c.Engine.Conf < 0 || c.Engine.Conf > 1 {
		errs = append(errs, fmt.Errorf("engine.conf must be between 0.0 and 1.0, got %f", c.Engine.Conf))
	}
	switch c.Engine.Backend {
	case engine.BackendDNN:
		if c.Engine.ModelPath == "" && c.Weights == nil {
			errs = append(errs, errors.New("engine.modelPath or weights is required for the dnn backend"))
		}
	case engine.BackendRemote:
		if c.Engine.URL == "" {
			errs = append(errs, errors.New("engine.url is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported engine.backend %q", c.Engine.Backend))
	}
	if c.UseRegServer && (c.RegServerHost == "" || c.RegServerPort <= 0) {
		errs = append(errs, errors.New("RegServerHost and RegServerPort are required when UseRegServer is set"))
	}
	if c.Weights != nil {
		if c.Weights.Dir == "" {
			c.Weights.Dir = "./weights"
		}
		if c.Weights.FileName == "" {
			errs = append(errs, errors.New("weights.fileName is required"))
		}
		if c.Engine.ModelPath == "" {
			c.Engine.ModelPath = filepath.Join(c.Weights.Dir, c.Weights.FileName)
		}
	}
	c.Engine.UseGPU = c.Engine.UseGPU || c.GPU
	return errors.Join(errs...)
}
