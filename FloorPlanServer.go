package main

import (
	adhoc "FloorPlanServer/Adhoc"
	"FloorPlanServer/engine"
	"FloorPlanServer/floorplan"
	backend "FloorPlanServer/gRPC"
	"FloorPlanServer/ingest"
	"FloorPlanServer/logger"
	"FloorPlanServer/monitor"
	"FloorPlanServer/weights"
	"FloorPlanServer/web"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func GetOutboundIP() (string, error) {
	// UDP dial sends nothing; it only resolves the outbound route.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP.String(), nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.Log().Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(configPath string) error {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	if err := logger.Init(config.Log.Development, config.Log.Level); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		return err
	}
	defer logger.Sync()
	log := logger.Log()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.Weights != nil {
		path, err := weights.Ensure(ctx, *config.Weights)
		if err != nil {
			return fmt.Errorf("%w: %v", engine.ErrDetectorUnavailable, err)
		}
		log.Info("weights ready", zap.String("path", path))
	}

	detector, err := engine.LoadBackend(config.Engine)
	if err != nil {
		return err
	}
	gateway := engine.NewGateway(detector, config.QueueSize)
	gateway.Start()
	defer gateway.Close()

	analyzer := floorplan.NewAnalyzer(ingest.Loader{}, gateway, floorplan.Options{
		RescaleToImage: config.RescaleToImage,
	})

	var wg sync.WaitGroup

	if config.MonitorPort > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.StartMon(ctx, config.MonitorPort)
		}()
	}

	if config.RPCPort > 0 {
		lis, err := backend.Listen(config.RPCPort)
		if err != nil {
			return err
		}
		grpcServer, health := backend.StartGRPCServer(lis, analyzer)
		backend.SetServing(health, gateway.Ready())
		defer grpcServer.GracefulStop()
	}

	if config.UseRegServer {
		ip, err := GetOutboundIP()
		if err != nil {
			log.Warn("failed to get outbound ip, skipping registration", zap.Error(err))
		} else {
			instanceClass := adhoc.CpuInstance
			if config.Engine.UseGPU {
				instanceClass = adhoc.GpuInstance
			}
			reg := adhoc.RegServerConfig{Addr: config.RegServerHost, Port: config.RegServerPort}
			wg.Add(1)
			go adhoc.SendAliveMessage(ctx, reg, ip, config.HTTPPort, instanceClass, &wg)
		}
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", config.HTTPPort),
		Handler: web.New(analyzer, gateway, web.Options{
			MaxUploadSize: int64(config.MaxUploadMB) << 20,
			RateLimit:     config.RateLimit,
			RateBurst:     config.RateBurst,
			Debug:         config.Log.Development,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	stop()
	wg.Wait()
	log.Info("Safely exited")
	return nil
}
