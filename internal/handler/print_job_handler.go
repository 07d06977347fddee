package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/models"
	"github.com/noah-isme/sma-print-api/internal/service"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
	"github.com/noah-isme/sma-print-api/pkg/response"
)

type printJobService interface {
	Submit(ctx context.Context, req dto.SubmitPrintJobRequest, urgent bool) (*dto.SubmitPrintJobResult, error)
	Cancel(ctx context.Context, id string) (*models.PrintJob, error)
	SetPriority(ctx context.Context, id string, urgent bool) (*models.PrintJob, error)
	Queue(ctx context.Context) ([]models.PrintJob, error)
	ListMine(ctx context.Context, userID string, page, pageSize int) (*dto.PrintJobList, error)
	History(ctx context.Context, query dto.PrintJobQuery) (*dto.PrintJobList, error)
}

// PrintJobHandler exposes print submission and queue management endpoints.
type PrintJobHandler struct {
	service        printJobService
	maxUploadBytes int64
}

// NewPrintJobHandler constructs a PrintJobHandler.
func NewPrintJobHandler(service printJobService, maxUploadBytes int64) *PrintJobHandler {
	return &PrintJobHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Submit godoc
// @Summary Upload a PDF for printing
// @Description Debits the caller's monthly quota and queues the job. Only admins may submit urgent jobs.
// @Tags PrintJobs
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "PDF document"
// @Param copies formData int false "Copies (default 1)"
// @Param sheetsPerSide formData int false "Pages per sheet side: 1, 2 or 4"
// @Param duplex formData bool false "Print on both sides"
// @Param orientation formData string false "portrait or landscape"
// @Param pageRange formData string false "Page range, e.g. 1-3,5"
// @Param urgent formData bool false "Urgent priority (admins only)"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /print-jobs [post]
func (h *PrintJobHandler) Submit(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "cannot read uploaded file"))
		return
	}
	defer file.Close()

	var reader io.Reader = file
	if h.maxUploadBytes > 0 {
		reader = io.LimitReader(file, h.maxUploadBytes+1)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "cannot read uploaded file"))
		return
	}

	req := dto.SubmitPrintJobRequest{
		UserID:      claims.UserID,
		FileName:    header.Filename,
		Content:     content,
		Orientation: strings.ToLower(strings.TrimSpace(c.PostForm("orientation"))),
		PageRange:   c.PostForm("pageRange"),
	}
	if req.Copies, err = formInt(c, "copies", 1); err != nil {
		response.Error(c, err)
		return
	}
	if req.SheetsPerSide, err = formInt(c, "sheetsPerSide", 1); err != nil {
		response.Error(c, err)
		return
	}
	if req.Duplex, err = formBool(c, "duplex"); err != nil {
		response.Error(c, err)
		return
	}
	urgent, err := formBool(c, "urgent")
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.service.Submit(c.Request.Context(), req, urgent && claims.IsAdmin())
	if err != nil {
		var exceeded *service.QuotaExceededError
		if errors.As(err, &exceeded) {
			response.ErrorWithMeta(c, err, map[string]interface{}{
				"requested": exceeded.Requested,
				"remaining": exceeded.Remaining,
			})
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Mine godoc
// @Summary List the caller's print jobs
// @Tags PrintJobs
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /print-jobs/mine [get]
func (h *PrintJobHandler) Mine(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("pageSize"))
	list, err := h.service.ListMine(c.Request.Context(), claims.UserID, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list.Items, &list.Pagination)
}

// Queue godoc
// @Summary Live print queue
// @Description The printing job first, then pending jobs in dispatch order.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/print-jobs/queue [get]
func (h *PrintJobHandler) Queue(c *gin.Context) {
	jobs, err := h.service.Queue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, nil)
}

// History godoc
// @Summary Print job history
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "Comma separated statuses"
// @Param userId query string false "Owner filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/print-jobs [get]
func (h *PrintJobHandler) History(c *gin.Context) {
	var query dto.PrintJobQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	list, err := h.service.History(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list.Items, &list.Pagination)
}

// Cancel godoc
// @Summary Cancel a pending print job
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/print-jobs/{id}/cancel [post]
func (h *PrintJobHandler) Cancel(c *gin.Context) {
	job, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// SetPriority godoc
// @Summary Mark a pending job urgent or normal
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Param payload body dto.UpdatePriorityRequest true "Priority payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/print-jobs/{id}/priority [put]
func (h *PrintJobHandler) SetPriority(c *gin.Context) {
	var req dto.UpdatePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid priority payload"))
		return
	}
	job, err := h.service.SetPriority(c.Request.Context(), c.Param("id"), *req.Urgent)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

func formInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be an integer", key))
	}
	return v, nil
}

func formBool(c *gin.Context, key string) (bool, error) {
	raw := strings.ToLower(strings.TrimSpace(c.PostForm(key)))
	switch raw {
	case "":
		return false, nil
	case "on", "yes":
		return true, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be a boolean", key))
	}
	return v, nil
}
