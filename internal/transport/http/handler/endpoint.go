package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weskerllc/cronicorn/internal/usecase"
)

type EndpointHandler struct {
	endpoints *usecase.EndpointUsecase
	logger    *slog.Logger
}

func NewEndpointHandler(endpoints *usecase.EndpointUsecase, logger *slog.Logger) *EndpointHandler {
	return &EndpointHandler{endpoints: endpoints, logger: logger.With("component", "endpoint_handler")}
}

type scheduleRequest struct {
	CronExpr           *string `json:"cronExpr"`
	BaselineIntervalMs *int64  `json:"baselineIntervalMs" binding:"omitempty,min=1000"`
	MinIntervalMs      *int64  `json:"minIntervalMs"      binding:"omitempty,min=1000"`
	MaxIntervalMs      *int64  `json:"maxIntervalMs"      binding:"omitempty,min=1000"`
}

func (r scheduleRequest) toInput() usecase.EndpointScheduleInput {
	return usecase.EndpointScheduleInput{
		CronExpr:           r.CronExpr,
		BaselineIntervalMs: r.BaselineIntervalMs,
		MinIntervalMs:      r.MinIntervalMs,
		MaxIntervalMs:      r.MaxIntervalMs,
	}
}

type createEndpointRequest struct {
	Name        string  `json:"name" binding:"required,max=120"`
	Description *string `json:"description"`

	Schedule scheduleRequest `json:"schedule"`

	URL                string            `json:"url"    binding:"required,url"`
	Method             string            `json:"method" binding:"required,oneof=GET POST PUT PATCH DELETE"`
	Headers            map[string]string `json:"headers"`
	Body               *string           `json:"body"`
	TimeoutMs          *int64            `json:"timeoutMs"          binding:"omitempty,min=100"`
	MaxExecutionTimeMs *int64            `json:"maxExecutionTimeMs" binding:"omitempty,min=100"`
	MaxResponseSizeKb  *int64            `json:"maxResponseSizeKb"  binding:"omitempty,min=1"`
}

func (h *EndpointHandler) Create(c *gin.Context) {
	var req createEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ep, err := h.endpoints.CreateEndpoint(c.Request.Context(), usecase.CreateEndpointInput{
		JobID:              c.Param("id"),
		UserID:             c.GetString("userID"),
		Name:               req.Name,
		Description:        req.Description,
		Schedule:           req.Schedule.toInput(),
		URL:                req.URL,
		Method:             req.Method,
		Headers:            req.Headers,
		Body:               req.Body,
		TimeoutMs:          req.TimeoutMs,
		MaxExecutionTimeMs: req.MaxExecutionTimeMs,
		MaxResponseSizeKb:  req.MaxResponseSizeKb,
	})
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "create endpoint", "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ep)
}

func (h *EndpointHandler) ListByJob(c *gin.Context) {
	endpoints, err := h.endpoints.ListEndpoints(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": endpoints})
}

func (h *EndpointHandler) GetByID(c *gin.Context) {
	ep, err := h.endpoints.GetEndpoint(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ep)
}

type updateEndpointRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=120"`
	Description *string `json:"description"`

	Schedule *scheduleRequest `json:"schedule"`

	URL                *string           `json:"url"    binding:"omitempty,url"`
	Method             *string           `json:"method" binding:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Headers            map[string]string `json:"headers"`
	Body               *string           `json:"body"`
	TimeoutMs          *int64            `json:"timeoutMs"          binding:"omitempty,min=100"`
	MaxExecutionTimeMs *int64            `json:"maxExecutionTimeMs" binding:"omitempty,min=100"`
	MaxResponseSizeKb  *int64            `json:"maxResponseSizeKb"  binding:"omitempty,min=1"`
}

func (h *EndpointHandler) Update(c *gin.Context) {
	var req updateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := usecase.UpdateEndpointInput{
		Name:               req.Name,
		Description:        req.Description,
		URL:                req.URL,
		Method:             req.Method,
		Headers:            req.Headers,
		Body:               req.Body,
		TimeoutMs:          req.TimeoutMs,
		MaxExecutionTimeMs: req.MaxExecutionTimeMs,
		MaxResponseSizeKb:  req.MaxResponseSizeKb,
	}
	if req.Schedule != nil {
		s := req.Schedule.toInput()
		input.Schedule = &s
	}

	ep, err := h.endpoints.UpdateEndpoint(c.Request.Context(), c.Param("id"), c.GetString("userID"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ep)
}

func (h *EndpointHandler) Archive(c *gin.Context) {
	if err := h.endpoints.ArchiveEndpoint(c.Request.Context(), c.Param("id"), c.GetString("userID")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type pauseRequest struct {
	Until *time.Time `json:"until"`
}

func (h *EndpointHandler) Pause(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.endpoints.PauseEndpoint(c.Request.Context(), c.Param("id"), c.GetString("userID"), req.Until); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EndpointHandler) Resume(c *gin.Context) {
	if err := h.endpoints.PauseEndpoint(c.Request.Context(), c.Param("id"), c.GetString("userID"), nil); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EndpointHandler) ClearHints(c *gin.Context) {
	if err := h.endpoints.ClearHints(c.Request.Context(), c.Param("id"), c.GetString("userID")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TestRun dispatches immediately and returns the recorded run.
func (h *EndpointHandler) TestRun(c *gin.Context) {
	run, err := h.endpoints.TestRun(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "test run", "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *EndpointHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, err := h.endpoints.ListRuns(c.Request.Context(), c.Param("id"), c.GetString("userID"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *EndpointHandler) ListSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	sessions, err := h.endpoints.ListSessions(c.Request.Context(), c.Param("id"), c.GetString("userID"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *EndpointHandler) Usage(c *gin.Context) {
	usage, err := h.endpoints.GetUsage(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "get usage", "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}
