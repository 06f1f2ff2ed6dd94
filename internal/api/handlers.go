package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/romangod6/site-mapper/config"
	"github.com/romangod6/site-mapper/internal/blacklist"
	"github.com/romangod6/site-mapper/internal/generator"
	"github.com/romangod6/site-mapper/internal/models"
	"github.com/romangod6/site-mapper/internal/storage"
)

// Runner performs one sitemap generation. *generator.Generator satisfies it.
type Runner interface {
	Run(ctx context.Context, req generator.Request) (*models.GenerationRun, error)
}

type Handler struct {
	store  storage.Store
	runner Runner
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PaginationResponse struct {
	Data       interface{} `json:"data"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalCount int         `json:"total_count,omitempty"`
}

func NewHandler(store storage.Store, runner Runner) *Handler {
	return &Handler{store: store, runner: runner}
}

// runRequest is what a client may override. The output path is fixed by
// configuration and cannot be chosen over HTTP.
type runRequest struct {
	Domain    string `json:"domain"`
	Root      string `json:"root"`
	LiveCheck *bool  `json:"liveCheck"`
}

func (h *Handler) CreateRun(c *gin.Context) {
	var body runRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid run request"})
		return
	}

	req := generator.Request{
		Domain:    body.Domain,
		Root:      body.Root,
		LiveCheck: body.LiveCheck,
	}

	run, err := h.runner.Run(c.Request.Context(), req)
	if err != nil {
		log.Printf("Sitemap generation failed: %v", err)
		if run == nil && isPreconditionError(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, run)
}

func isPreconditionError(err error) bool {
	return errors.Is(err, config.ErrDomainMissing) ||
		errors.Is(err, config.ErrRootMissing) ||
		errors.Is(err, config.ErrOutputNotWritable) ||
		errors.Is(err, blacklist.ErrMissingRules) ||
		errors.Is(err, generator.ErrPathNotAllowed)
}

func (h *Handler) ListRuns(c *gin.Context) {
	page, limit := getPaginationParams(c)
	offset := (page - 1) * limit

	runs, err := h.store.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch runs"})
		return
	}

	if runs == nil {
		runs = []*models.GenerationRun{}
	}

	c.JSON(http.StatusOK, PaginationResponse{
		Data:  runs,
		Page:  page,
		Limit: limit,
	})
}

func (h *Handler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid run ID"})
		return
	}

	run, err := h.store.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch run"})
		return
	}

	if run == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Run not found"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// GetSitemap serves the document written by the latest completed run.
func (h *Handler) GetSitemap(c *gin.Context) {
	run, err := h.store.LatestRun(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch latest run"})
		return
	}

	if run == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No sitemap has been generated yet"})
		return
	}

	data, err := os.ReadFile(run.Output)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Sitemap file is missing"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to read sitemap"})
		return
	}

	c.Data(http.StatusOK, "application/xml; charset=utf-8", data)
}

func getPaginationParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	return page, limit
}
