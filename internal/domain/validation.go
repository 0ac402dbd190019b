package domain

// ValidationResult is the revalidator output. It is never persisted.
type ValidationResult struct {
	Valid       bool    `json:"valid"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason,omitempty"`
	FailedStage int     `json:"failedStage,omitempty"`
}
