package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/riptide-lab/riptide/internal/core/aggregation"
	"github.com/riptide-lab/riptide/internal/core/catalog"
	httperr "github.com/riptide-lab/riptide/internal/core/errors"
)

// Handler exposes the realtime service over HTTP.
type Handler struct {
	service  *Service
	getGroup singleflight.Group // Dedupe identical concurrent window queries
}

// NewHandler creates the HTTP handler for a realtime service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers all realtime API routes on the given router.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/realtime/create", h.HandleCreate)
	r.POST("/v1/realtime/get", h.HandleGet)
	r.GET("/v1/realtime/list", h.HandleList)
	r.DELETE("/v1/realtime/:project/:table_name", h.HandleDelete)
}

// CreateResponse acknowledges report creation with the derived table name.
type CreateResponse struct {
	Success   bool   `json:"success"`
	TableName string `json:"table_name"`
}

// StatusResponse acknowledges a state-changing call.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HandleCreate handles POST /v1/realtime/create
func (h *Handler) HandleCreate(c *gin.Context) {
	var def ReportDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid report definition",
			Details:   err.Error(),
		})
		return
	}

	created, err := h.service.Create(c.Request.Context(), def)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateResponse{Success: true, TableName: created.TableName})
}

// HandleGet handles POST /v1/realtime/get
func (h *Handler) HandleGet(c *gin.Context) {
	var spec WindowQuerySpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid window query",
			Details:   err.Error(),
		})
		return
	}

	result, err := h.getDeduplicated(c.Request.Context(), spec)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// getDeduplicated collapses identical concurrent window queries into one
// service call. The dedupe key is the canonical JSON form of the spec.
func (h *Handler) getDeduplicated(ctx context.Context, spec WindowQuerySpec) (*QueryResult, error) {
	key, err := json.Marshal(spec)
	if err != nil {
		return h.service.Get(ctx, spec)
	}

	result, err, _ := h.getGroup.Do(string(key), func() (interface{}, error) {
		return h.service.Get(ctx, spec)
	})
	if err != nil {
		return nil, err
	}
	return result.(*QueryResult), nil
}

// HandleList handles GET /v1/realtime/list?project=
func (h *Handler) HandleList(c *gin.Context) {
	var query struct {
		Project string `form:"project" binding:"required"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	reports, err := h.service.List(c.Request.Context(), query.Project)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, reports)
}

// HandleDelete handles DELETE /v1/realtime/:project/:table_name
func (h *Handler) HandleDelete(c *gin.Context) {
	var uri struct {
		Project   string `uri:"project" binding:"required"`
		TableName string `uri:"table_name" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}

	if err := h.service.Delete(c.Request.Context(), uri.Project, uri.TableName); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{Success: true})
}

// writeServiceError maps service errors onto HTTP statuses and error types.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, aggregation.ErrNotSupported):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotSupportedError,
			Message:   "Aggregation not supported for continuous computation",
			Details:   err.Error(),
		})
	case errors.Is(err, aggregation.ErrUnsupported):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpUnsupportedAggregationError,
			Message:   "Unsupported aggregation types",
			Details:   err.Error(),
		})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidReportError,
			Message:   "Invalid realtime request",
			Details:   err.Error(),
		})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpReportNotFoundError,
			Message:   "Realtime report not found",
			Details:   err.Error(),
		})
	case errors.Is(err, catalog.ErrAlreadyExists):
		c.JSON(http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpAlreadyExistsError,
			Message:   "Realtime report already exists",
			Details:   err.Error(),
		})
	case errors.Is(err, ErrExecution):
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpQueryFailedError,
			Message:   "Query execution failed",
			Details:   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Internal error",
			Details:   err.Error(),
		})
	}
}
