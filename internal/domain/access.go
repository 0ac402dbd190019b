package domain

type Action string

const (
	ActionCreate    Action = "create"
	ActionRead      Action = "read"
	ActionCancel    Action = "cancel"
	ActionSetStatus Action = "set_status"
	ActionStats     Action = "stats"
)

// AccessRequest is the input to the role policy. OwnerID is the victim of the
// case being acted on, empty for create, list and stats.
type AccessRequest struct {
	Action    Action     `json:"action"`
	Principal Principal  `json:"principal"`
	OwnerID   string     `json:"owner_id,omitempty"`
	Target    CaseStatus `json:"target,omitempty"`
}
