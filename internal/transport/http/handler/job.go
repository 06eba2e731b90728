package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/usecase"
)

type JobHandler struct {
	jobs   *usecase.JobUsecase
	logger *slog.Logger
}

func NewJobHandler(jobs *usecase.JobUsecase, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger.With("component", "job_handler")}
}

type createJobRequest struct {
	Name        string  `json:"name" binding:"required,max=120"`
	Description *string `json:"description"`
}

func (h *JobHandler) Create(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), usecase.CreateJobInput{
		UserID:      c.GetString("userID"),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "create job", "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *JobHandler) List(c *gin.Context) {
	jobs, err := h.jobs.ListJobs(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "list jobs", "error", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *JobHandler) GetByID(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type updateJobRequest struct {
	Name        *string           `json:"name" binding:"omitempty,max=120"`
	Description *string           `json:"description"`
	Status      *domain.JobStatus `json:"status" binding:"omitempty,oneof=active paused"`
}

func (h *JobHandler) Update(c *gin.Context) {
	var req updateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.UpdateJob(c.Request.Context(), c.Param("id"), c.GetString("userID"), usecase.UpdateJobInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Archive soft-deletes the job and all child endpoints.
func (h *JobHandler) Archive(c *gin.Context) {
	if err := h.jobs.ArchiveJob(c.Request.Context(), c.Param("id"), c.GetString("userID")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
