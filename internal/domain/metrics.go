package domain

type CrashType string

const (
	CrashConfirmed CrashType = "CONFIRMED_CRASH"
	CrashProbable  CrashType = "PROBABLE_CRASH"
	CrashRollover  CrashType = "ROLLOVER"
	CrashUnknown   CrashType = "UNKNOWN"
)

func (t CrashType) Valid() bool {
	switch t {
	case CrashConfirmed, CrashProbable, CrashRollover, CrashUnknown:
		return true
	}
	return false
}

type ImpactDirection string

const (
	ImpactFront ImpactDirection = "FRONT"
	ImpactRear  ImpactDirection = "REAR"
	ImpactLeft  ImpactDirection = "LEFT"
	ImpactRight ImpactDirection = "RIGHT"
)

// CrashMetrics is the evidence produced once per candidate event. Speeds are km/h.
type CrashMetrics struct {
	GForce           float64          `json:"gForce" validate:"gte=0,lte=100"`
	SpeedBefore      float64          `json:"speedBefore" validate:"gte=0,lte=400"`
	SpeedAfter       float64          `json:"speedAfter" validate:"gte=0,lte=400"`
	MLConfidence     float64          `json:"mlConfidence" validate:"gte=0,lte=1"`
	CrashType        CrashType        `json:"crashType" validate:"required,crash_type"`
	RolloverDetected bool             `json:"rolloverDetected"`
	ImpactDirection  *ImpactDirection `json:"impactDirection,omitempty" validate:"omitempty,oneof=FRONT REAR LEFT RIGHT"`
}
