package dispatch

// Config defines matching parameters. Radius and result caps are tunable,
// not protocol invariants.
type Config struct {
	// DefaultRadiusKm bounds the ranking for console reports. Zero means
	// unrestricted.
	DefaultRadiusKm float64 `json:"default_radius_km"`
	// SOSRadiusKm bounds the ranking for mobile SOS reports.
	SOSRadiusKm float64 `json:"sos_radius_km"`
	// MaxNearby caps the candidate list returned for mobile SOS reports.
	MaxNearby int `json:"max_nearby"`
	// UrgentNotifyCount is how many of the closest teams receive a targeted
	// urgent notice.
	UrgentNotifyCount int `json:"urgent_notify_count"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.SOSRadiusKm <= 0 {
		c.SOSRadiusKm = 20
	}
	if c.MaxNearby <= 0 {
		c.MaxNearby = 5
	}
	if c.UrgentNotifyCount <= 0 {
		c.UrgentNotifyCount = 3
	}
}
