package domain

const (
	DefaultStatsMinutes = 60
	MaxStatsMinutes     = 7 * 24 * 60
)

type StatsRequest struct {
	Minutes int `json:"minutes"`
}

// CaseStats summarises the cases created in the trailing window.
type CaseStats struct {
	Minutes       int                  `json:"minutes"`
	Total         int64                `json:"total"`
	UniqueVictims int64                `json:"uniqueVictims"`
	ByStatus      map[CaseStatus]int64 `json:"byStatus"`
}
