package domain

// GeoPoint is an immutable location snapshot. Speed is in km/h, heading in degrees.
type GeoPoint struct {
	Lat      float64  `json:"lat" validate:"lat"` // -90..90
	Lng      float64  `json:"lng" validate:"lng"` // -180..180
	Accuracy *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Heading  *float64 `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	Speed    *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
}
