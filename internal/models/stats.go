package models

import "time"

// DayTotals is the raw per-day sum of frozen session breakdowns, in seconds.
type DayTotals struct {
	Date          time.Time
	StudySec      int
	DistractedSec int
	AwaySec       int
	TotalSec      int
}

// DayStats is the display form of one day's totals: minutes rounded per
// state independently (their sum may differ from the total by rounding) and
// a blended focus rate over the summed seconds.
type DayStats struct {
	Date              string  `json:"date"`
	StudyMinutes      int     `json:"study_minutes"`
	DistractedMinutes int     `json:"distracted_minutes"`
	AwayMinutes       int     `json:"away_minutes"`
	FocusRate         float64 `json:"focus_rate"`
}
