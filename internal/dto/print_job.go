package dto

import "github.com/noah-isme/sma-print-api/internal/models"

// SubmitPrintJobRequest carries an uploaded document and its print settings.
type SubmitPrintJobRequest struct {
	UserID        string `json:"-" validate:"required"`
	FileName      string `json:"fileName" validate:"required"`
	Content       []byte `json:"-"`
	Copies        int    `json:"copies" validate:"gte=1,lte=500"`
	SheetsPerSide int    `json:"sheetsPerSide" validate:"oneof=1 2 4"`
	Duplex        bool   `json:"duplex"`
	Orientation   string `json:"orientation" validate:"oneof=portrait landscape"`
	PageRange     string `json:"pageRange" validate:"max=200"`
}

// SubmitPrintJobResult reports the accepted job and its quota impact.
type SubmitPrintJobResult struct {
	JobID          string `json:"jobId"`
	DocumentPages  int    `json:"documentPages"`
	SelectedPages  int    `json:"selectedPages"`
	Copies         int    `json:"copies"`
	ConsumedPages  int    `json:"consumedPages"`
	RemainingPages int    `json:"remainingPages"`
}

// UpdatePriorityRequest toggles the urgent flag on a pending job.
type UpdatePriorityRequest struct {
	Urgent *bool `json:"urgent" binding:"required"`
}

// PrintJobQuery filters the admin history view.
type PrintJobQuery struct {
	Status   string `form:"status"`
	UserID   string `form:"userId"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// PrintJobList is a paginated page of jobs.
type PrintJobList struct {
	Items      []models.PrintJob
	Pagination models.Pagination
}
