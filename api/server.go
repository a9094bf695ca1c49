package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/core"
	"github.com/hupe1980/urldex/query"
)

// DefaultLimit is the page size used when the limit parameter is absent.
const DefaultLimit = 1000

// defaultRequestTimeout bounds one request end to end. On expiry, partial
// pages are returned with a next_offset.
const defaultRequestTimeout = 30 * time.Second

// Server serves the wire API over a query service.
type Server struct {
	service *query.Service
	logger  *urldex.Logger
	timeout time.Duration
	engine  *gin.Engine
}

// NewServer creates the HTTP server. The query loader must be loaded before
// requests arrive.
func NewServer(service *query.Service, logger *urldex.Logger) *Server {
	if logger == nil {
		logger = urldex.NoopLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		service: service,
		logger:  logger,
		timeout: defaultRequestTimeout,
		engine:  engine,
	}

	engine.GET("/", s.handleHealth)
	engine.GET("/v1/domain/:domain", s.handleDomain)
	engine.GET("/v1/domain/:domain/datasets/:dataset_id/urls", s.handleURLs)

	return s
}

// Handler returns the http.Handler of the server.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDomain(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	domain := c.Param("domain")
	if domain == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "domain must not be empty"})
		return
	}

	result, err := s.service.DatasetsOf(ctx, domain)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toDomainResponse(result))
}

func (s *Server) handleURLs(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	domain := c.Param("domain")
	if domain == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "domain must not be empty"})
		return
	}

	datasetID, err := strconv.ParseUint(c.Param("dataset_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "dataset_id must be an unsigned integer"})
		return
	}

	offset := uint64(0)
	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "offset must be an unsigned integer"})
			return
		}
	}

	limit := DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be an unsigned integer"})
			return
		}
		limit = int(parsed)
	}
	if max := s.service.MaxLimit(); limit > max {
		// Clamped, surfaced as a warning header.
		c.Header("Warning", fmt.Sprintf(`299 - "limit clamped to %d"`, max))
		limit = max
	}

	result, err := s.service.URLsOf(ctx, domain, core.DatasetID(datasetID), offset, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toURLsResponse(result))
}

// fail maps the error taxonomy to status codes. Transient failures and a
// missing version are retriable (503); corrupt artifacts need a rebuild and
// report 500.
func (s *Server) fail(c *gin.Context, err error) {
	s.logger.ErrorContext(c.Request.Context(), "request failed",
		"path", c.Request.URL.Path,
		"error", err,
	)

	var (
		corrupt   *urldex.ErrArtifactCorrupt
		transient *urldex.ErrTransientIO
	)
	switch {
	case errors.Is(err, urldex.ErrInputMalformed):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, urldex.ErrVersionMissing), errors.As(err, &transient):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case errors.As(err, &corrupt):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
