package models

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// PrintJobStatus captures the print job lifecycle.
type PrintJobStatus string

const (
	PrintJobPending   PrintJobStatus = "PENDING"
	PrintJobPrinting  PrintJobStatus = "PRINTING"
	PrintJobCompleted PrintJobStatus = "COMPLETED"
	PrintJobError     PrintJobStatus = "ERROR"
	PrintJobCancelled PrintJobStatus = "CANCELLED"
)

// Terminal reports whether no normal operation may move the job out of this state.
func (s PrintJobStatus) Terminal() bool {
	return s == PrintJobCompleted || s == PrintJobError || s == PrintJobCancelled
}

// Valid reports whether s is a known status.
func (s PrintJobStatus) Valid() bool {
	switch s {
	case PrintJobPending, PrintJobPrinting, PrintJobCompleted, PrintJobError, PrintJobCancelled:
		return true
	}
	return false
}

const (
	PriorityNormal = 0
	PriorityUrgent = 1
)

// Orientation of the printed page.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// MaxErrorMessageLength bounds the error text stored on a failed job.
const MaxErrorMessageLength = 1000

// PrintJob is a queued print request. TotalPages is fixed at submission.
type PrintJob struct {
	ID            string         `db:"id" json:"id"`
	UserID        string         `db:"user_id" json:"user_id"`
	FileName      string         `db:"file_name" json:"file_name"`
	StoredPath    string         `db:"stored_path" json:"-"`
	Copies        int            `db:"copies" json:"copies"`
	SheetsPerSide int            `db:"sheets_per_side" json:"sheets_per_side"`
	Duplex        bool           `db:"duplex" json:"duplex"`
	Orientation   Orientation    `db:"orientation" json:"orientation"`
	PageRange     string         `db:"page_range" json:"page_range,omitempty"`
	TotalPages    int            `db:"total_pages" json:"total_pages"`
	Priority      int            `db:"priority" json:"priority"`
	Status        PrintJobStatus `db:"status" json:"status"`
	RawOptions    sql.NullString `db:"options" json:"-"`
	PrinterName   *string        `db:"printer_name" json:"printer_name,omitempty"`
	ExternalJobID *string        `db:"external_job_id" json:"external_job_id,omitempty"`
	ErrorMessage  *string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	StartedAt     *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// PrintJobFilter narrows job listings.
type PrintJobFilter struct {
	UserID   string
	Statuses []PrintJobStatus
	Page     int
	PageSize int
}

// CUPSOptions is the option set passed to the print system and persisted as JSON per job.
type CUPSOptions struct {
	NumberUp             int    `json:"number-up"`
	Sides                string `json:"sides"`
	OrientationRequested int    `json:"orientation-requested"`
	PageRanges           string `json:"page-ranges,omitempty"`
}

const (
	SidesOneSided          = "one-sided"
	SidesTwoSidedLongEdge  = "two-sided-long-edge"
	SidesTwoSidedShortEdge = "two-sided-short-edge"

	orientationCodePortrait  = 3
	orientationCodeLandscape = 4
)

// BuildCUPSOptions derives the print-system options from the submission fields.
func BuildCUPSOptions(sheetsPerSide int, duplex bool, orientation Orientation, pageRange string) CUPSOptions {
	opts := CUPSOptions{
		NumberUp:             sheetsPerSide,
		Sides:                SidesOneSided,
		OrientationRequested: orientationCodePortrait,
		PageRanges:           strings.TrimSpace(pageRange),
	}
	if opts.NumberUp <= 0 {
		opts.NumberUp = 1
	}
	if orientation == OrientationLandscape {
		opts.OrientationRequested = orientationCodeLandscape
	}
	if duplex {
		if orientation == OrientationLandscape {
			opts.Sides = SidesTwoSidedShortEdge
		} else {
			opts.Sides = SidesTwoSidedLongEdge
		}
	}
	return opts
}

// Map flattens the options into key/value pairs, skipping empty values.
func (o CUPSOptions) Map() map[string]string {
	out := map[string]string{
		"number-up":             strconv.Itoa(o.NumberUp),
		"orientation-requested": strconv.Itoa(o.OrientationRequested),
	}
	if o.Sides != "" {
		out["sides"] = o.Sides
	}
	if o.PageRanges != "" {
		out["page-ranges"] = o.PageRanges
	}
	return out
}

// OptionSource tags how a job's options were obtained.
type OptionSource string

const (
	OptionSourceStructured OptionSource = "structured"
	OptionSourceLegacy     OptionSource = "legacy"
)

// LegacyColumns are the discrete option columns of jobs stored before the JSON encoding.
type LegacyColumns struct {
	SheetsPerSide int
	Duplex        bool
	Orientation   Orientation
	PageRange     string
}

// JobOptions is either the persisted structured options or the legacy columns.
// Exactly one of Structured and Legacy is set, matching Source.
type JobOptions struct {
	Source     OptionSource
	Structured *CUPSOptions
	Legacy     *LegacyColumns
}

// Resolve returns the option set to submit.
func (o JobOptions) Resolve() CUPSOptions {
	if o.Source == OptionSourceStructured && o.Structured != nil {
		return *o.Structured
	}
	if o.Legacy == nil {
		return BuildCUPSOptions(1, false, OrientationPortrait, "")
	}
	return BuildCUPSOptions(o.Legacy.SheetsPerSide, o.Legacy.Duplex, o.Legacy.Orientation, o.Legacy.PageRange)
}

// EncodeOptions stores opts on the job's JSON column.
func (j *PrintJob) EncodeOptions(opts CUPSOptions) error {
	raw, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	j.RawOptions = sql.NullString{String: string(raw), Valid: true}
	return nil
}

// Options reads the job's options. A missing or unreadable JSON column falls back to the
// legacy columns.
func (j *PrintJob) Options() JobOptions {
	if j.RawOptions.Valid {
		raw := strings.TrimSpace(j.RawOptions.String)
		if strings.HasPrefix(raw, "{") {
			var opts CUPSOptions
			if err := json.Unmarshal([]byte(raw), &opts); err == nil && opts.NumberUp > 0 {
				return JobOptions{Source: OptionSourceStructured, Structured: &opts}
			}
		}
	}
	return JobOptions{
		Source: OptionSourceLegacy,
		Legacy: &LegacyColumns{
			SheetsPerSide: j.SheetsPerSide,
			Duplex:        j.Duplex,
			Orientation:   j.Orientation,
			PageRange:     j.PageRange,
		},
	}
}

// TruncateError bounds msg to MaxErrorMessageLength runes.
func TruncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxErrorMessageLength {
		return msg
	}
	return string(runes[:MaxErrorMessageLength])
}
