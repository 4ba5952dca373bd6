package geoprivacy

import (
	id "naturewatch/pkg/domain"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ZoneStatus classifies where a raw coordinate falls relative to protected areas.
type ZoneStatus string

const (
	// ZoneStatusNone: outside every protected area, full precision disclosure.
	ZoneStatusNone ZoneStatus = "none"
	// ZoneStatusBuffer: inside the approach ring around a core zone;
	// disclosure needs explicit contributor confirmation.
	ZoneStatusBuffer ZoneStatus = "buffer"
	// ZoneStatusCore: inside the strict interior; disclosure is always blurred.
	ZoneStatusCore ZoneStatus = "core"
)

// Zone is a protected area supplied by the platform operators. Read-only to
// the core. Geometry is either point+radius (RadiusMeters > 0) or a polygon
// ring (len(Polygon) >= 3).
type Zone struct {
	ID           id.ZoneID
	Name         string
	Category     string // IUCN-style category, informational
	Center       Coordinate
	RadiusMeters float64
	Polygon      []Coordinate
	BufferMeters float64 // width of the approach ring outside the core boundary
	BlurMeters   float64 // blur radius applied to core-zone disclosures
}

// Disclosure is the decided publication policy for a raw coordinate.
// The transform is pure; the caller persists the disclosed coordinate and the
// forced privacy flag.
type Disclosure struct {
	Status               ZoneStatus `json:"zone_status"`
	Disclosed            Coordinate `json:"disclosed_coordinate"`
	PrecisionMeters      float64    `json:"disclosure_precision_meters"`
	RequiresConfirmation bool       `json:"requires_confirmation"`
	ForcePrivate         bool       `json:"-"`
	ZoneID               id.ZoneID  `json:"-"`
}
