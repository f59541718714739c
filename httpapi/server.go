package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"WasteDetServer/analyzer"
	"WasteDetServer/engine"
	"WasteDetServer/health"
	"WasteDetServer/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxImageBytes bounds a single uploaded image.
const MaxImageBytes = 10 << 20

const wsReadLimit = 20 << 20

// Server serves the classification API over HTTP and websocket.
type Server struct {
	Pipeline *engine.Pipeline
	Pool     *engine.Pool
	// Threshold is used when a request does not carry its own confidence.
	Threshold float64
	// Analyzer is nil when no API key is configured.
	Analyzer  *analyzer.Client
	Health    func() health.Report
	ModelsDir string
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(requestID(), accessLog(), gin.Recovery())

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/health", s.handleHealth)
	r.GET("/api/models", s.handleListModels)
	r.POST("/api/models/upload", s.handleUploadModel)
	r.POST("/api/classify", s.handleClassify)
	r.POST("/api/classify/batch", s.handleClassifyBatch)
	r.POST("/api/analyze", s.handleAnalyze)
	r.GET("/ws/classify", s.handleWS)
	return r
}

// Handler is Router with CORS applied for every origin.
func (s *Server) Handler() http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})(s.Router())
}

// Start serves the API on port in the background.
func (s *Server) Start(port int) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Log().Info("HTTP server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("HTTP server ListenAndServe error", zap.Error(err))
		}
	}()
	return srv
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log().Info("http request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}

// statusFor maps an error kind to the status of a request-level failure.
func statusFor(err error) int {
	switch engine.KindOf(err) {
	case engine.ErrValidation:
		return http.StatusBadRequest
	case engine.ErrModel:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
