package domain

import "fmt"

type EventKind string

const (
	EventCaseCreated   EventKind = "CASE_CREATED"
	EventStatusChanged EventKind = "STATUS_CHANGED"
)

// CaseEvent is one fan-out message. Topic is case/<id> or case/<id>/status.
// Version is the record version the event was built from; consumers drop
// events whose version is not above the last one they applied for the case.
type CaseEvent struct {
	Topic          string               `json:"topic"`
	Kind           EventKind            `json:"kind"`
	PreviousStatus CaseStatus           `json:"previousStatus,omitempty"`
	Version        int64                `json:"version"`
	Envelope       Envelope[CaseRecord] `json:"envelope"`
	Redelivery     *Redelivery          `json:"redelivery,omitempty"`
}

// Redelivery marks an event put back on the queue after some brokers
// exhausted their retries. Only the listed brokers are published to again.
type Redelivery struct {
	Attempt int      `json:"attempt"`
	Brokers []string `json:"brokers"`
}

func CaseTopic(accidentID string) string {
	return fmt.Sprintf("case/%s", accidentID)
}

func StatusTopic(accidentID string) string {
	return fmt.Sprintf("case/%s/status", accidentID)
}
