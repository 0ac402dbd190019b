// Package revalidator re-scores received crash metrics server-side. It is the
// authoritative accept/reject gate for SOS ingestion.
package revalidator

import (
	"fmt"
	"math"

	"trafficSOS/internal/domain"
)

// Thresholds mirror the device pipeline. Speeds are km/h.
type Thresholds struct {
	Stage1GForce     float64
	HighGAutoConfirm float64
	MLConfidence     float64
	LowSpeedBypass   float64
	SpeedDrop        float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Stage1GForce:     4.0,
		HighGAutoConfirm: 8.0,
		MLConfidence:     0.75,
		LowSpeedBypass:   15,
		SpeedDrop:        20,
	}
}

const (
	scoreStage1        = 30
	scoreHighGFloor    = 90
	scoreExplicitCrash = 30
	scoreInferredCrash = 20
	scoreStationary    = 10
	scoreSpeedDrop     = 25
	scoreRollover      = 15
	maxScore           = 100
)

type Validator struct {
	th Thresholds
}

func New(th Thresholds) *Validator {
	return &Validator{th: th}
}

// Validate never mutates anything and returns the same result for identical input.
func (v *Validator) Validate(m domain.CrashMetrics) domain.ValidationResult {
	th := v.th

	if m.GForce < th.Stage1GForce {
		return domain.ValidationResult{
			Valid:       false,
			Score:       0,
			Reason:      fmt.Sprintf("g-force %.2f below threshold %.2f", m.GForce, th.Stage1GForce),
			FailedStage: 1,
		}
	}
	score := float64(scoreStage1)

	if m.GForce >= th.HighGAutoConfirm {
		score = math.Max(score, scoreHighGFloor)
		if m.RolloverDetected {
			score += scoreRollover
		}
		return domain.ValidationResult{Valid: true, Score: capScore(score), Reason: "high-g auto-confirm"}
	}

	if m.MLConfidence < th.MLConfidence {
		return domain.ValidationResult{
			Valid:       false,
			Score:       score,
			Reason:      fmt.Sprintf("ml confidence %.2f below threshold %.2f", m.MLConfidence, th.MLConfidence),
			FailedStage: 2,
		}
	}
	if m.CrashType == domain.CrashConfirmed {
		score += scoreExplicitCrash
	} else {
		score += scoreInferredCrash
	}

	if m.SpeedBefore < th.LowSpeedBypass {
		score += scoreStationary
	} else {
		drop := math.Max(0, m.SpeedBefore-m.SpeedAfter)
		if drop < th.SpeedDrop {
			return domain.ValidationResult{
				Valid:       false,
				Score:       score,
				Reason:      fmt.Sprintf("speed drop %.1f km/h below threshold %.1f", drop, th.SpeedDrop),
				FailedStage: 3,
			}
		}
		score += scoreSpeedDrop
	}

	if m.RolloverDetected {
		score += scoreRollover
	}

	return domain.ValidationResult{Valid: true, Score: capScore(score)}
}

func capScore(s float64) float64 {
	if s > maxScore {
		return maxScore
	}
	return s
}
