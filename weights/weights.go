package weights

import (
	"FloorPlanServer/logger"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultMinSize rejects truncated downloads of the Mask R-CNN weights.
const DefaultMinSize = 100_000_000

type Config struct {
	Dir      string `yaml:"dir"`
	FileName string `yaml:"fileName"`
	URL      string `yaml:"url"`
	SHA256   string `yaml:"sha256"`
	MinSize  int64  `yaml:"minSize"`
	// TimeoutMin bounds the whole download.
	TimeoutMin int `yaml:"timeoutMin"`
}

func (c Config) Path() string {
	return filepath.Join(c.Dir, c.FileName)
}

// Ensure returns the local weights path, downloading the file first when it is
// missing or fails verification.
func Ensure(ctx context.Context, cfg Config) (string, error) {
	if cfg.FileName == "" {
		return "", errors.New("weights file name cannot be empty")
	}
	if cfg.MinSize == 0 {
		cfg.MinSize = DefaultMinSize
	}
	path := cfg.Path()
	if err := verify(path, cfg); err == nil {
		logger.Log().Info("weights file already present", zap.String("path", path))
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		logger.Log().Warn("weights file invalid, downloading again", zap.String("path", path), zap.Error(err))
	}
	if cfg.URL == "" {
		return "", fmt.Errorf("weights missing at %s and no download url configured", path)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create weights dir: %w", err)
	}

	tmp := path + ".part"
	defer os.Remove(tmp)

	timeout := time.Duration(cfg.TimeoutMin) * time.Minute
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	client := resty.New().SetTimeout(timeout)
	logger.Log().Info("downloading weights", zap.String("url", cfg.URL), zap.String("path", path))
	resp, err := client.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("download weights: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("download weights: server returned %s", resp.Status())
	}
	if err := verify(tmp, cfg); err != nil {
		return "", fmt.Errorf("download incomplete: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("move weights into place: %w", err)
	}
	logger.Log().Info("weights downloaded", zap.String("path", path))
	return path, nil
}

func verify(path string, cfg Config) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() < cfg.MinSize {
		return fmt.Errorf("file too small: %d bytes, want at least %d", info.Size(), cfg.MinSize)
	}
	if cfg.SHA256 == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	if sum := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(sum, cfg.SHA256) {
		return fmt.Errorf("checksum mismatch: got %s", sum)
	}
	return nil
}
