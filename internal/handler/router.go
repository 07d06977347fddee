package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-print-api/internal/middleware"
	"github.com/noah-isme/sma-print-api/internal/models"
)

// Handlers groups the handlers mounted under the API prefix.
type Handlers struct {
	Auth         *AuthHandler
	PrintJobs    *PrintJobHandler
	Quotas       *QuotaHandler
	Reservations *ReservationHandler
	Admin        *AdminHandler

	// AuditLog receives one line per successful admin mutation. Nil disables it.
	AuditLog *zap.Logger
}

// RegisterRoutes mounts the API on group. Every route except login requires a bearer token;
// /admin routes additionally require the admin role.
func RegisterRoutes(group *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator) {
	group.POST("/auth/login", h.Auth.Login)

	authed := group.Group("")
	authed.Use(middleware.JWT(tokens))
	authed.GET("/auth/me", h.Auth.Me)

	authed.POST("/print-jobs", h.PrintJobs.Submit)
	authed.GET("/print-jobs/mine", h.PrintJobs.Mine)

	authed.GET("/quotas/me", h.Quotas.Me)

	authed.GET("/reservations/resources", h.Reservations.Resources)
	authed.GET("/reservations/options", h.Reservations.Options)
	authed.GET("/reservations", h.Reservations.List)
	authed.POST("/reservations", h.Reservations.Create)
	authed.POST("/reservations/:id/cancel", h.Reservations.Cancel)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/print-jobs/queue", h.PrintJobs.Queue)
	admin.GET("/print-jobs", h.PrintJobs.History)
	admin.POST("/print-jobs/:id/cancel", middleware.Audit(h.AuditLog, "print_job.cancel"), h.PrintJobs.Cancel)
	admin.PUT("/print-jobs/:id/priority", middleware.Audit(h.AuditLog, "print_job.priority"), h.PrintJobs.SetPriority)

	admin.GET("/quotas/rules", h.Quotas.Rules)
	admin.PUT("/quotas/rules", middleware.Audit(h.AuditLog, "quota.rules.update"), h.Quotas.UpdateRules)
	admin.POST("/quotas/recalculate", middleware.Audit(h.AuditLog, "quota.recalculate"), h.Quotas.Recalculate)

	admin.GET("/teachers", h.Admin.ListTeachers)
	admin.POST("/teachers", middleware.Audit(h.AuditLog, "teacher.create"), h.Admin.CreateTeacher)
	admin.PUT("/teachers/:id/load", middleware.Audit(h.AuditLog, "teacher.load.update"), h.Admin.UpdateTeacherLoad)

	admin.GET("/resources", h.Admin.ListResources)
	admin.POST("/resources", middleware.Audit(h.AuditLog, "resource.create"), h.Admin.CreateResource)
	admin.PUT("/resources/:id/status", middleware.Audit(h.AuditLog, "resource.status.update"), h.Admin.SetResourceStatus)
}
