package web

import (
	"FloorPlanServer/floorplan"
	iface "FloorPlanServer/interface"
	"FloorPlanServer/logger"
	"FloorPlanServer/monitor"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MaxUploadSize is the largest accepted request body.
const MaxUploadSize = 16 << 20

const requestIDHeader = "X-Request-Id"

type Analyzer interface {
	Analyze(ctx context.Context, raw []byte) (*floorplan.Result, error)
}

// Engine reports the state of the detector gateway.
type Engine interface {
	State() int
	Ready() bool
	CheckConfig() iface.EngineConfig
}

type Options struct {
	MaxUploadSize int64
	// RateLimit is requests per second across all clients; 0 disables it.
	RateLimit float64
	RateBurst int
	Debug     bool
}

type Server struct {
	analyzer Analyzer
	engine   Engine
	opts     Options
	limiter  *rate.Limiter
}

func New(analyzer Analyzer, engine Engine, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = MaxUploadSize
	}
	s := &Server{
		analyzer: analyzer,
		engine:   engine,
		opts:     opts,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Handler returns the routes wrapped in a CORS policy that allows every origin.
func (s *Server) Handler() http.Handler {
	if !s.opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = s.opts.MaxUploadSize
	r.Use(gin.Recovery(), requestID(), accessLog())
	if s.limiter != nil {
		r.Use(s.rateLimit())
	}

	r.POST("/", s.handlePredict)
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/engine", s.handleEngine)
	r.GET("/ws", s.handleStream)

	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	})(r)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log().Info("request",
			zap.String("requestID", c.GetString("requestID")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func (s *Server) handlePredict(c *gin.Context) {
	if c.Request.ContentLength > s.opts.MaxUploadSize {
		s.fail(c, "http", http.StatusRequestEntityTooLarge, errors.New("image exceeds upload limit"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadSize)
	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(c, "http", http.StatusRequestEntityTooLarge, errors.New("image exceeds upload limit"))
			return
		}
		s.fail(c, "http", http.StatusBadRequest, errors.New("missing multipart field \"image\""))
		return
	}
	f, err := file.Open()
	if err != nil {
		s.fail(c, "http", http.StatusBadRequest, err)
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, "http", http.StatusBadRequest, err)
		return
	}

	result, err := s.analyzer.Analyze(c.Request.Context(), raw)
	if err != nil {
		s.fail(c, "http", statusFor(err), err)
		return
	}
	monitor.ObserveRequest("http", strconv.Itoa(http.StatusOK))
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleEngine(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"state":  s.engine.State(),
		"ready":  s.engine.Ready(),
		"config": s.engine.CheckConfig(),
	}})
}

func (s *Server) fail(c *gin.Context, transport string, code int, err error) {
	monitor.ObserveRequest(transport, strconv.Itoa(code))
	logger.Log().Warn("analyze failed",
		zap.String("requestID", c.GetString("requestID")),
		zap.Int("status", code),
		zap.Error(err))
	c.JSON(code, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, floorplan.ErrIngestion):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
