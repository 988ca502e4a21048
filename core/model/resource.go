package model

import "fmt"

// ResourceType categorizes a team or vehicle. It drives the rescue-capacity
// estimation coefficient when the source does not supply a capacity.
type ResourceType string

const (
	ResourceMedical     ResourceType = "medical"
	ResourceFire        ResourceType = "fire"
	ResourceStructural  ResourceType = "structural"
	ResourceSearch      ResourceType = "search"
	ResourceEngineering ResourceType = "engineering"
	ResourceTransport   ResourceType = "transport"
)

// ResourceStatus reflects the operational state of a resource.
type ResourceStatus string

const (
	StatusAvailable   ResourceStatus = "available"
	StatusStandby     ResourceStatus = "standby"
	StatusDeployed    ResourceStatus = "deployed"
	StatusUnavailable ResourceStatus = "unavailable"
)

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ResourceCandidate is a read-only snapshot of a rescue team or vehicle as
// returned by the catalog. The core never mutates candidates; commit-time
// state changes go through the catalog.
type ResourceCandidate struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Type               ResourceType     `json:"type"`
	Capabilities       []CapabilityCode `json:"capabilities"`
	AvailablePersonnel int              `json:"available_personnel"`

	// RescueCapacity is the number of affected persons the resource can
	// process within the operational window. Zero means the source did not
	// supply a value and it must be estimated before any allocation
	// decision.
	RescueCapacity int `json:"rescue_capacity"`

	Location GeoPoint       `json:"location"`
	Area     string         `json:"area"`
	Status   ResourceStatus `json:"status"`

	// ETAMinutes is the estimated travel time to the scene, provided by an
	// external routing capability.
	ETAMinutes  float64 `json:"eta_minutes"`
	CostPerHour float64 `json:"cost_per_hour"`

	// RiskFactor estimates the operational risk of deploying this resource,
	// in [0,1].
	RiskFactor float64 `json:"risk_factor"`
}

// Validate checks that the candidate is usable for allocation.
func (r ResourceCandidate) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("resource id is required")
	}
	if r.AvailablePersonnel < 0 {
		return fmt.Errorf("resource %s: negative personnel count", r.ID)
	}
	if r.RiskFactor < 0 || r.RiskFactor > 1 {
		return fmt.Errorf("resource %s: risk factor out of [0,1]", r.ID)
	}
	return nil
}

// HasCapability reports whether the resource provides the given capability.
func (r ResourceCandidate) HasCapability(c CapabilityCode) bool {
	for _, have := range r.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// CapabilitySet returns the resource capabilities as a set.
func (r ResourceCandidate) CapabilitySet() map[CapabilityCode]struct{} {
	set := make(map[CapabilityCode]struct{}, len(r.Capabilities))
	for _, c := range r.Capabilities {
		set[c] = struct{}{}
	}
	return set
}

// Deployable reports whether the resource may be selected for a new plan.
func (r ResourceCandidate) Deployable() bool {
	return r.Status == StatusAvailable || r.Status == StatusStandby
}
