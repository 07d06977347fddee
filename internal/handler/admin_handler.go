package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-print-api/internal/dto"
	"github.com/noah-isme/sma-print-api/internal/models"
	appErrors "github.com/noah-isme/sma-print-api/pkg/errors"
	"github.com/noah-isme/sma-print-api/pkg/response"
)

type teacherService interface {
	List(ctx context.Context) ([]dto.TeacherSummary, error)
	Create(ctx context.Context, req dto.CreateTeacherRequest) (*dto.TeacherSummary, error)
	UpdateLoad(ctx context.Context, id string, req dto.UpdateTeacherLoadRequest) (*models.TeacherLoad, error)
}

type resourceService interface {
	List(ctx context.Context) ([]models.Resource, error)
	Create(ctx context.Context, req dto.CreateResourceRequest) (*models.Resource, error)
	SetActive(ctx context.Context, id string, active bool) (*models.Resource, error)
}

// AdminHandler exposes teacher and resource administration.
type AdminHandler struct {
	teachers  teacherService
	resources resourceService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(teachers teacherService, resources resourceService) *AdminHandler {
	return &AdminHandler{teachers: teachers, resources: resources}
}

// ListTeachers godoc
// @Summary Teachers with workload and current quota
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/teachers [get]
func (h *AdminHandler) ListTeachers(c *gin.Context) {
	items, err := h.teachers.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateTeacher godoc
// @Summary Register a teacher
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateTeacherRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/teachers [post]
func (h *AdminHandler) CreateTeacher(c *gin.Context) {
	var req dto.CreateTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teacher payload"))
		return
	}
	teacher, err := h.teachers.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, teacher)
}

// UpdateTeacherLoad godoc
// @Summary Replace a teacher's workload
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Teacher user ID"
// @Param payload body dto.UpdateTeacherLoadRequest true "Load payload"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers/{id}/load [put]
func (h *AdminHandler) UpdateTeacherLoad(c *gin.Context) {
	var req dto.UpdateTeacherLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid load payload"))
		return
	}
	load, err := h.teachers.UpdateLoad(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, load, nil)
}

// ListResources godoc
// @Summary All resources, including inactive ones
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/resources [get]
func (h *AdminHandler) ListResources(c *gin.Context) {
	resources, err := h.resources.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resources, nil)
}

// CreateResource godoc
// @Summary Register a resource
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateResourceRequest true "Resource payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/resources [post]
func (h *AdminHandler) CreateResource(c *gin.Context) {
	var req dto.CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resource payload"))
		return
	}
	resource, err := h.resources.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resource)
}

// SetResourceStatus godoc
// @Summary Activate or deactivate a resource
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Resource ID"
// @Param payload body dto.UpdateResourceStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /admin/resources/{id}/status [put]
func (h *AdminHandler) SetResourceStatus(c *gin.Context) {
	var req dto.UpdateResourceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	resource, err := h.resources.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}
