package dto

// RecalculateQuotaRequest selects the month to recalculate. Empty means the current month.
type RecalculateQuotaRequest struct {
	Month string `json:"month"`
}

// RecalculateQuotaResult reports the limits written by a recalculation.
type RecalculateQuotaResult struct {
	Month  string         `json:"month"`
	Limits map[string]int `json:"limits"`
}
