package domain

// SOSPayload is the ingress body carried inside an Envelope.
type SOSPayload struct {
	Location       GeoPoint       `json:"location"`
	Metrics        CrashMetrics   `json:"metrics"`
	MedicalProfile MedicalProfile `json:"medicalProfile"`
}

type SOSCreated struct {
	AccidentID string     `json:"accidentId"`
	Status     CaseStatus `json:"status"`
}

type SOSRejected struct {
	Error  string  `json:"error"`
	Reason string  `json:"reason"`
	Stage  int     `json:"stage"`
	Score  float64 `json:"score"`
}

type StatusUpdateRequest struct {
	Status      CaseStatus `json:"status" validate:"required"`
	ResponderID *string    `json:"responderId,omitempty" validate:"omitempty,max=128"`
}

type ListCasesRequest struct {
	Status CaseStatus
	Limit  int
	Offset int
}

type ListCasesResponse struct {
	Cases []CaseRecord `json:"cases"`
	Total int          `json:"total"`
}
