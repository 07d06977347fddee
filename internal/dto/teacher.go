package dto

import "github.com/noah-isme/sma-print-api/internal/models"

// CreateTeacherRequest registers a teacher account with its workload.
type CreateTeacherRequest struct {
	FullName      string   `json:"fullName" validate:"required,max=120"`
	Email         string   `json:"email" validate:"required,email"`
	Password      string   `json:"password" validate:"required,min=8"`
	BirthDate     string   `json:"birthDate"`
	WeeklyLessons int      `json:"weeklyLessons" validate:"gte=0,lte=80"`
	Classes       []string `json:"classes" validate:"dive,required"`
	Subjects      []string `json:"subjects" validate:"dive,required"`
}

// UpdateTeacherLoadRequest replaces a teacher's workload.
type UpdateTeacherLoadRequest struct {
	WeeklyLessons int      `json:"weeklyLessons" validate:"gte=0,lte=80"`
	Classes       []string `json:"classes" validate:"dive,required"`
	Subjects      []string `json:"subjects" validate:"dive,required"`
}

// TeacherSummary is a teacher with their workload and current month quota.
type TeacherSummary struct {
	ID            string                `json:"id"`
	FullName      string                `json:"fullName"`
	Email         string                `json:"email"`
	WeeklyLessons int                   `json:"weeklyLessons"`
	Classes       []string              `json:"classes"`
	Subjects      []string              `json:"subjects"`
	Quota         *models.QuotaSnapshot `json:"quota,omitempty"`
}
