package engine

import (
	iface "FloorPlanServer/interface"
	"FloorPlanServer/logger"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

var (
	ErrDetectorUnavailable = errors.New("detector unavailable")
	ErrGatewayClosed       = errors.New("gateway closed")
)

type jobPackage struct {
	image  iface.ImageData
	result chan jobResult
}

type jobResult struct {
	dets iface.Detections
	err  error
}

// Gateway owns the one backend of the process. Every Detect call goes through
// a single worker goroutine, so inference never runs concurrently against the
// shared model.
type Gateway struct {
	backend iface.Backend

	mu    sync.Mutex
	state int

	jobs      chan jobPackage
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewGateway(backend iface.Backend, queueSize int) *Gateway {
	if queueSize <= 0 {
		queueSize = 1
	}
	g := &Gateway{
		backend: backend,
		state:   REGISTERED,
		jobs:    make(chan jobPackage, queueSize),
		done:    make(chan struct{}),
	}
	return g
}

func (g *Gateway) Start() {
	g.setState(IDLE)
	g.wg.Add(1)
	go g.runWorker()
}

func (g *Gateway) State() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gateway) setState(s int) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

func (g *Gateway) Ready() bool {
	s := g.State()
	return s == IDLE || s == BUSY
}

func (g *Gateway) CheckConfig() iface.EngineConfig {
	return g.backend.CheckConfig()
}

// Detect queues img for inference and waits for the result. ctx only bounds
// the wait for a queue slot; a job that reached the worker runs to completion.
func (g *Gateway) Detect(ctx context.Context, img iface.ImageData) (iface.Detections, error) {
	switch g.State() {
	case UNREGISTERED:
		return iface.Detections{}, ErrGatewayClosed
	case REGISTERED:
		return iface.Detections{}, fmt.Errorf("%w: worker not started", ErrDetectorUnavailable)
	}
	job := jobPackage{
		image:  img,
		result: make(chan jobResult, 1),
	}
	select {
	case g.jobs <- job:
	case <-g.done:
		return iface.Detections{}, ErrGatewayClosed
	case <-ctx.Done():
		return iface.Detections{}, ctx.Err()
	}
	select {
	case res := <-job.result:
		return res.dets, res.err
	case <-g.done:
		select {
		case res := <-job.result:
			return res.dets, res.err
		default:
			return iface.Detections{}, ErrGatewayClosed
		}
	}
}

func (g *Gateway) runWorker() {
	defer g.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	logger.Log().Info("detector worker started")
	for {
		select {
		case <-g.done:
			return
		case job := <-g.jobs:
			job.result <- g.run(job)
		}
	}
}

func (g *Gateway) run(job jobPackage) (res jobResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error("detector panic recovered", zap.Any("panic", r))
			res = jobResult{err: fmt.Errorf("detector panic: %v", r)}
			// give the native runtime a moment before the next job
			time.Sleep(1 * time.Second)
		}
		g.setState(IDLE)
	}()
	g.setState(BUSY)
	dets, err := g.backend.Detect(job.image)
	return jobResult{dets: dets, err: err}
}

func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		close(g.done)
		g.wg.Wait()
		// fail jobs that were queued but never picked up
		for {
			select {
			case job := <-g.jobs:
				job.result <- jobResult{err: ErrGatewayClosed}
			default:
				g.backend.Destroy()
				g.setState(UNREGISTERED)
				logger.Log().Info("detector gateway closed")
				return
			}
		}
	})
}
