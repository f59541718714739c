package httpapi

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"WasteDetServer/engine"
	"WasteDetServer/health"
	"WasteDetServer/imagesource"
	iface "WasteDetServer/interface"
	"WasteDetServer/logger"
	"WasteDetServer/monitor"
	"WasteDetServer/report"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(c *gin.Context) {
	if s.Health == nil {
		c.JSON(http.StatusServiceUnavailable, report.Envelope{Error: "health check not configured"})
		return
	}
	r := s.Health()
	status := http.StatusOK
	if !r.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, r)
}

func (s *Server) handleListModels(c *gin.Context) {
	models, err := health.ListModels(s.ModelsDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, report.Envelope{Error: "Failed to list models: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "models": models})
}

func (s *Server) handleUploadModel(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, report.Envelope{Error: "File upload failed: " + err.Error()})
		return
	}
	name := file.Filename
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == ".." {
		c.JSON(http.StatusBadRequest, report.Envelope{Error: "Invalid model file name"})
		return
	}
	if err := os.MkdirAll(s.ModelsDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, report.Envelope{Error: "Failed to save file: " + err.Error()})
		return
	}
	modelPath := filepath.Join(s.ModelsDir, name)
	if err := c.SaveUploadedFile(file, modelPath); err != nil {
		c.JSON(http.StatusInternalServerError, report.Envelope{Error: "Failed to save file: " + err.Error()})
		return
	}
	logger.Log().Info("model uploaded", zap.String("path", modelPath), zap.Int64("size", file.Size))
	c.JSON(http.StatusOK, gin.H{"success": true, "data": modelPath})
}

// threshold reads the optional confidence form field.
func (s *Server) threshold(c *gin.Context) (float64, error) {
	raw := strings.TrimSpace(c.PostForm("confidence"))
	if raw == "" {
		raw = strings.TrimSpace(c.Query("confidence"))
	}
	if raw == "" {
		return s.Threshold, engine.ValidateThreshold(s.Threshold)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, engine.Validationf("confidence must be a number, got %q", raw)
	}
	return v, engine.ValidateThreshold(v)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > MaxImageBytes {
		return nil, engine.Validationf("Image too large: %s", fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, engine.Resourcef("Could not read image: %s", fh.Filename)
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return nil, engine.Resourcef("Could not read image: %s", fh.Filename)
	}
	if len(raw) > MaxImageBytes {
		return nil, engine.Validationf("Image too large: %s", fh.Filename)
	}
	return raw, nil
}

// classifyOne runs one in-memory image through the pool.
func (s *Server) classifyOne(c *gin.Context, loader *imagesource.MemoryLoader, id string, threshold float64) (iface.ImageResult, error) {
	pipeline := s.Pipeline.WithLoader(loader)
	var res iface.ImageResult
	err := s.Pool.Submit(c.Request.Context(), func(model iface.Model) {
		res = pipeline.Classify(id, model, threshold)
	})
	return res, err
}

func (s *Server) handleClassify(c *gin.Context) {
	monitor.RequestsTotal.WithLabelValues("http").Inc()
	threshold, err := s.threshold(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, report.Failure(err))
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, report.Envelope{Error: "No image file provided"})
		return
	}
	raw, err := readUpload(fh)
	if err != nil && engine.KindOf(err) == engine.ErrValidation {
		c.JSON(http.StatusBadRequest, report.Failure(err))
		return
	}
	loader := imagesource.NewMemoryLoader()
	id := loader.Add(fh.Filename, raw)
	res, err := s.classifyOne(c, loader, id, threshold)
	if err != nil {
		c.JSON(statusFor(err), report.Failure(err))
		return
	}
	c.JSON(http.StatusOK, report.FromImage(res))
}

func (s *Server) handleClassifyBatch(c *gin.Context) {
	monitor.RequestsTotal.WithLabelValues("http").Inc()
	threshold, err := s.threshold(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, report.Failure(err))
		return
	}
	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil {
		files = form.File["images"]
	}
	if err := s.Pipeline.ValidateBatch(len(files)); err != nil {
		c.JSON(http.StatusBadRequest, report.FromBatch(engine.BatchFailure(len(files), err)))
		return
	}

	loader := imagesource.NewMemoryLoader()
	ids := make([]string, 0, len(files))
	for _, fh := range files {
		raw, err := readUpload(fh)
		if err != nil && engine.KindOf(err) == engine.ErrValidation {
			c.JSON(http.StatusBadRequest, report.FromBatch(engine.BatchFailure(len(files), err)))
			return
		}
		// an unreadable upload is stored empty and fails on its own
		ids = append(ids, loader.Add(fh.Filename, raw))
	}

	pipeline := s.Pipeline.WithLoader(loader)
	var res iface.BatchResult
	var batchErr error
	err = s.Pool.Submit(c.Request.Context(), func(model iface.Model) {
		res, batchErr = pipeline.ClassifyBatch(ids, model, threshold)
	})
	if err != nil {
		c.JSON(statusFor(err), report.FromBatch(engine.BatchFailure(len(ids), err)))
		return
	}
	if batchErr != nil {
		c.JSON(statusFor(batchErr), report.FromBatch(res))
		return
	}
	c.JSON(http.StatusOK, report.FromBatch(res))
}

func (s *Server) handleAnalyze(c *gin.Context) {
	monitor.RequestsTotal.WithLabelValues("http").Inc()
	if s.Analyzer == nil {
		c.JSON(http.StatusServiceUnavailable, report.Envelope{Error: "GROQ_API_KEY environment variable not set"})
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, report.Envelope{Error: "No image file provided"})
		return
	}
	raw, err := readUpload(fh)
	if err != nil {
		c.JSON(statusFor(err), report.Failure(err))
		return
	}
	img, err := imagesource.Decode(fh.Filename, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, report.Failure(err))
		return
	}
	res := s.Analyzer.Analyze(c.Request.Context(), img)
	if !res.Success {
		c.JSON(http.StatusBadGateway, res)
		return
	}
	c.JSON(http.StatusOK, res)
}
