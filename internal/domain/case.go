package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

type CaseStatus string

const (
	StatusDetected   CaseStatus = "DETECTED"
	StatusDispatched CaseStatus = "DISPATCHED"
	StatusEnRoute    CaseStatus = "EN_ROUTE"
	StatusArrived    CaseStatus = "ARRIVED"
	StatusResolved   CaseStatus = "RESOLVED"
	StatusCancelled  CaseStatus = "CANCELLED"
)

var AllStatuses = []CaseStatus{
	StatusDetected, StatusDispatched, StatusEnRoute, StatusArrived, StatusResolved, StatusCancelled,
}

func (s CaseStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s CaseStatus) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

var transitions = map[CaseStatus][]CaseStatus{
	StatusDetected:   {StatusDispatched, StatusCancelled, StatusResolved},
	StatusDispatched: {StatusEnRoute, StatusResolved},
	StatusEnRoute:    {StatusArrived, StatusResolved},
	StatusArrived:    {StatusResolved},
	// resubmitting RESOLVED is accepted and leaves resolvedAt untouched
	StatusResolved: {StatusResolved},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to CaseStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type CaseRecord struct {
	AccidentID     string         `json:"accidentId"`
	VictimUserID   string         `json:"victimUserId"`
	ResponderID    *string        `json:"responderId,omitempty"`
	Location       GeoPoint       `json:"location"`
	Metrics        CrashMetrics   `json:"metrics"`
	MedicalProfile MedicalProfile `json:"medicalProfile"`
	Status         CaseStatus     `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	ResolvedAt     *time.Time     `json:"resolvedAt,omitempty"`
	// Version starts at 1 and grows by one on every status change.
	Version int64 `json:"version"`
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (c *CaseRecord) Clone() *CaseRecord {
	if c == nil {
		return nil
	}
	out := *c
	if c.ResponderID != nil {
		v := *c.ResponderID
		out.ResponderID = &v
	}
	if c.ResolvedAt != nil {
		v := *c.ResolvedAt
		out.ResolvedAt = &v
	}
	out.MedicalProfile.Allergies = append([]string(nil), c.MedicalProfile.Allergies...)
	out.MedicalProfile.Medications = append([]string(nil), c.MedicalProfile.Medications...)
	out.MedicalProfile.Conditions = append([]string(nil), c.MedicalProfile.Conditions...)
	out.MedicalProfile.EmergencyContacts = append([]EmergencyContact(nil), c.MedicalProfile.EmergencyContacts...)
	return &out
}

const accidentIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var accidentIDPattern = regexp.MustCompile(`^ACC-\d{4}-[A-Z0-9]{6}$`)

func ValidAccidentID(id string) bool {
	return accidentIDPattern.MatchString(id)
}

// NewAccidentID returns ACC-<year>-<6 alphanumerics> for the year of now.
func NewAccidentID(now time.Time) (string, error) {
	buf := make([]byte, 6)
	max := big.NewInt(int64(len(accidentIDAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = accidentIDAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ACC-%04d-%s", now.Year(), buf), nil
}
