package Adhoc

import (
	"FloorPlanServer/logger"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CpuInstance = 0x2002
	GpuInstance = 0x2003
)

const DefaultInterval = 5 * time.Second

type RegisterRequest struct {
	Id            string `json:"id"`
	IP            string `json:"ip"`
	Port          int    `json:"port"`
	InstanceClass int    `json:"instanceClass"`
	TimeStamp     int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Addr     string
	Port     int
	Interval time.Duration
}

func (reg RegServerConfig) url() string {
	return fmt.Sprintf("http://%s:%d/api/register", reg.Addr, reg.Port)
}

// SendAliveMessage announces this instance to the registration server
// immediately and then every reg.Interval until ctx is cancelled.
func SendAliveMessage(ctx context.Context, reg RegServerConfig, ip string, port int, instanceClass int, wg *sync.WaitGroup) {
	defer wg.Done()
	interval := reg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	client := resty.New().SetTimeout(interval)
	id := uuid.NewString()
	url := reg.url()

	send := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error("SendAliveMessage panic recovered", zap.Any("panic", r))
			}
		}()
		var respBody RegisterResponse
		resp, err := client.R().
			SetContext(ctx).
			SetBody(RegisterRequest{
				Id:            id,
				IP:            ip,
				Port:          port,
				InstanceClass: instanceClass,
				TimeStamp:     time.Now().Unix(),
			}).
			SetResult(&respBody).
			Post(url)
		if err != nil {
			if ctx.Err() == nil {
				logger.Log().Error("register request error", zap.Error(err))
			}
			return
		}
		if resp.IsError() {
			logger.Log().Error("register server returned error", zap.String("status", resp.Status()), zap.String("body", resp.String()))
			return
		}
		if !respBody.Success {
			logger.Log().Warn("register server rejected instance", zap.String("id", id))
		}
	}

	send()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			send()
		}
	}
}
