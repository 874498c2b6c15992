// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compliance

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/check42/pkg/version"
	"github.com/AleutianAI/check42/services/compliance/rules"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CheckRequest is the body of POST /v1/compliance/check.
type CheckRequest struct {
	Directory string `json:"directory" binding:"required"`
	Project   string `json:"project" binding:"required"`
	SkipBuild bool   `json:"skip_build"`
	SkipStyle bool   `json:"skip_style"`
}

// ProjectInfo describes one registry entry.
type ProjectInfo struct {
	Name             string   `json:"name"`
	Key              string   `json:"key"`
	Artifact         string   `json:"artifact,omitempty"`
	AllowedFunctions []string `json:"allowed_functions"`
	RequiredPaths    []string `json:"required_paths"`
}

// HandlerOptions configures the API handlers.
type HandlerOptions struct {
	// RateLimit is check requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int

	// Roots restricts check directories to these trees. Empty allows any.
	Roots []string

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
}

// Handlers serves the compliance API.
type Handlers struct {
	checker *Checker
	limiter *rate.Limiter
	roots   []string
	metrics http.Handler
}

// NewHandlers creates the API handlers around checker.
func NewHandlers(checker *Checker, opts HandlerOptions) *Handlers {
	h := &Handlers{checker: checker, metrics: opts.Metrics}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	for _, r := range opts.Roots {
		if abs, err := filepath.Abs(r); err == nil {
			h.roots = append(h.roots, resolve(abs))
		}
	}
	return h
}

// NewRouter returns a gin engine with recovery, tracing and all routes.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("check42"))
	SetupRoutes(router, h)
	return router
}

// SetupRoutes registers the compliance API on router.
func SetupRoutes(router *gin.Engine, h *Handlers) {
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	v1 := router.Group("/v1/compliance")
	{
		v1.GET("/health", h.HandleHealth)
		v1.GET("/projects", h.HandleProjects)
		v1.POST("/check", h.rateLimited(), h.HandleCheck)
	}
}

// HandleHealth handles GET /v1/compliance/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"version":  version.Version,
		"projects": h.checker.Registry().Len(),
	})
}

// HandleProjects handles GET /v1/compliance/projects.
func (h *Handlers) HandleProjects(c *gin.Context) {
	reg := h.checker.Registry()
	names := reg.Names()
	out := make([]ProjectInfo, 0, len(names))
	for _, name := range names {
		p, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		out = append(out, projectInfo(p))
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

// HandleCheck handles POST /v1/compliance/check.
//
// Response:
//
//	200 OK: Report (compliant or not)
//	400 Bad Request: malformed body or unusable directory
//	403 Forbidden: directory outside the configured roots
//	404 Not Found: unknown project
//	429 Too Many Requests: rate limited
//	500 Internal Server Error: aborted run
func (h *Handlers) HandleCheck(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCheck")

	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if !h.allowedDirectory(req.Directory) {
		logger.Warn("Directory outside allowed roots", "directory", req.Directory)
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error: "directory is outside the allowed roots",
			Code:  "FORBIDDEN_DIRECTORY",
		})
		return
	}

	report, err := h.checker.Check(c.Request.Context(), Request{
		Directory: req.Directory,
		Project:   req.Project,
		SkipBuild: req.SkipBuild,
		SkipStyle: req.SkipStyle,
	})
	if err != nil {
		status := http.StatusInternalServerError
		code := "CHECK_FAILED"
		switch {
		case errors.Is(err, rules.ErrUnknownProject):
			status, code = http.StatusNotFound, "UNKNOWN_PROJECT"
		case errors.Is(err, ErrInvalidDirectory):
			status, code = http.StatusBadRequest, "INVALID_DIRECTORY"
		case errors.Is(err, context.DeadlineExceeded):
			status, code = http.StatusGatewayTimeout, "CHECK_TIMEOUT"
		}
		logger.Error("Check failed", "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handlers) rateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter != nil && !h.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "too many check requests",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

func (h *Handlers) allowedDirectory(dir string) bool {
	if len(h.roots) == 0 {
		return true
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	abs = resolve(abs)
	for _, root := range h.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// resolve follows symlinks when path exists so a link cannot escape a root.
func resolve(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return filepath.Clean(path)
}

func projectInfo(p *rules.Policy) ProjectInfo {
	return ProjectInfo{
		Name:             p.Name(),
		Key:              p.Key(),
		Artifact:         p.Artifact(),
		AllowedFunctions: p.Allowed(),
		RequiredPaths:    p.RequiredPaths(),
	}
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
