package domain

type EmergencyContact struct {
	Name     string `json:"name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"required,e164"`
	Relation string `json:"relation,omitempty" validate:"omitempty,max=60"`
}

// MedicalProfile is a snapshot taken at dispatch time. The server never refreshes it.
type MedicalProfile struct {
	BloodType         string             `json:"bloodType,omitempty" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies         []string           `json:"allergies,omitempty" validate:"omitempty,max=50,dive,max=120"`
	Medications       []string           `json:"medications,omitempty" validate:"omitempty,max=50,dive,max=120"`
	Conditions        []string           `json:"conditions,omitempty" validate:"omitempty,max=50,dive,max=120"`
	EmergencyContacts []EmergencyContact `json:"emergencyContacts,omitempty" validate:"omitempty,max=10,dive"`
	OrganDonor        *bool              `json:"organDonor,omitempty"`
	Notes             string             `json:"notes,omitempty" validate:"omitempty,max=1000"`
}
