package models

import "time"

// MonthLayout is the layout of quota months, e.g. 2024-05.
const MonthLayout = "2006-01"

// Quota is a per-user, per-month page budget.
type Quota struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Month      string    `db:"month" json:"month"`
	LimitPages int       `db:"limit_pages" json:"limit_pages"`
	UsedPages  int       `db:"used_pages" json:"used_pages"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Remaining returns the unused pages, never negative.
func (q Quota) Remaining() int {
	if q.UsedPages >= q.LimitPages {
		return 0
	}
	return q.LimitPages - q.UsedPages
}

// Upper bounds of the rule values. The validate tags below repeat them.
const (
	MaxBasePages          = 100000
	MaxPagesPerUnit       = 10000
	MaxSchoolMonthlyTotal = 100000000
)

// QuotaRules is the singleton rule set feeding the allocator.
type QuotaRules struct {
	BasePages          int       `db:"base_pages" json:"base_pages" validate:"gte=0,lte=100000"`
	PagesPerLesson     int       `db:"pages_per_lesson" json:"pages_per_lesson" validate:"gte=0,lte=10000"`
	PagesPerClass      int       `db:"pages_per_class" json:"pages_per_class" validate:"gte=0,lte=10000"`
	SchoolMonthlyTotal int       `db:"school_monthly_total" json:"school_monthly_total" validate:"gte=0,lte=100000000"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// QuotaSnapshot is the read view of a user's current quota.
type QuotaSnapshot struct {
	UserID    string `json:"user_id"`
	Month     string `json:"month"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}

// Snapshot converts the row to its read view.
func (q Quota) Snapshot() QuotaSnapshot {
	return QuotaSnapshot{
		UserID:    q.UserID,
		Month:     q.Month,
		Limit:     q.LimitPages,
		Used:      q.UsedPages,
		Remaining: q.Remaining(),
	}
}
