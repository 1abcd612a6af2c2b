package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"docmark/internal/artifact"
	"docmark/internal/models"
	"docmark/internal/service"
	"docmark/internal/worker"
)

// Handler wires HTTP routes to the conversion service and gates artifact
// reads through the path resolver.
type Handler struct {
	service        *service.Service
	resolver       *artifact.Resolver
	maxUploadBytes int64
}

// NewHandler constructs a Handler instance.
func NewHandler(svc *service.Service, resolver *artifact.Resolver, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &Handler{
		service:        svc,
		resolver:       resolver,
		maxUploadBytes: maxUploadBytes,
	}
}

// allowedExtensions are the document types the external converter accepts.
var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".docx": {},
	".xlsx": {},
	".pptx": {},
	".hwp":  {},
	".hwpx": {},
}

// RegisterRoutes attaches all HTTP routes to the router. Every request also
// samples the opportunistic sweeper; with no standing scheduler process,
// garbage collection piggybacks on traffic.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(func(c *gin.Context) {
		h.service.SweepOpportunistic()
		c.Next()
	})
	router.GET("/healthz", h.health)
	api := router.Group("/api")
	api.POST("/convert", h.convertDocument)
	api.GET("/serve-artifact", h.serveArtifact)
	api.POST("/cleanup", h.cleanup)
	api.GET("/recent", h.recentConversions)
}

func (h *Handler) convertDocument(c *gin.Context) {
	// Declared length is checked before the multipart form is touched so an
	// oversized body is rejected before any write.
	if c.Request.ContentLength > h.maxUploadBytes+(1<<20) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": models.ErrFileTooLarge.Error()})
		return
	}
	// Chunked uploads carry no declared length; cap the body itself so the
	// multipart parse cannot spill an oversized stream to temp files.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": models.ErrFileTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrMissingFile.Error()})
		return
	}
	if file.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": models.ErrFileTooLarge.Error()})
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrUnsupportedType.Error()})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open uploaded file failed"})
		return
	}
	defer src.Close()

	resp, err := h.service.ConvertUpload(c.Request.Context(), service.UploadRequest{
		Filename:       filepath.Base(file.Filename),
		Size:           file.Size,
		Content:        src,
		PreserveLayout: formFlag(c, "preserveLayout"),
		ExtractImages:  formFlag(c, "extractImages"),
		ExtractCharts:  formFlag(c, "extractCharts"),
	})
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) serveArtifact(c *gin.Context) {
	sessionID := c.Query("session")
	reqPath := c.Query("path")
	if sessionID == "" || reqPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session and path are required"})
		return
	}

	resolved, err := h.resolver.Resolve(sessionID, reqPath)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidSession), errors.Is(err, models.ErrInvalidPath):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrExpiredSession):
			c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrArtifactNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Header("Content-Type", contentTypeByExt(resolved))
	c.Header("Cache-Control", "public, max-age=3600")
	c.File(resolved)
}

func (h *Handler) cleanup(c *gin.Context) {
	removed := h.service.SweepNow(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Cleaned up %d old files", removed),
	})
}

func (h *Handler) recentConversions(c *gin.Context) {
	recs, err := h.service.Recent(c.Request.Context(), 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(recs) == 0 {
		c.JSON(http.StatusOK, gin.H{"conversions": make([]*models.ConversionRecord, 0)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversions": recs})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func formFlag(c *gin.Context, name string) bool {
	switch strings.ToLower(c.PostForm(name)) {
	case "true", "1", "on", "yes":
		return true
	}
	return false
}

func contentTypeByExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".zip":
		return "application/zip"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		// Extracted images default to png.
		return "image/png"
	}
}
