package geoprivacy

import (
	"math"
	"math/rand"
	"sync"
)

const (
	earthRadiusMeters = 6371000.0
	metersPerDegLat   = 111320.0
)

// Transformer decides disclosure policy for raw coordinates. It is stateless
// apart from its random source; callers persist the result once at write time
// so repeated reads never re-blur (a per-request draw would let repeated
// queries triangulate the raw point).
type Transformer struct {
	precisionMin float64
	precisionMax float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTransformer builds a transformer with the configured buffer-zone
// precision bounds (meters).
func NewTransformer(precisionMinMeters, precisionMaxMeters float64, seed int64) *Transformer {
	return &Transformer{
		precisionMin: precisionMinMeters,
		precisionMax: precisionMaxMeters,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// Apply computes the disclosure policy for raw against the zone set.
//
// requestedPrecision is the contributor-selected buffer-zone precision in
// meters; zero means "use the default midpoint". Overlapping zones resolve to
// the most restrictive one (smallest blur radius).
func (t *Transformer) Apply(raw Coordinate, zones []Zone, requestedPrecision float64) Disclosure {
	var core *Zone
	var buffer *Zone
	for i := range zones {
		z := &zones[i]
		switch classify(raw, z) {
		case ZoneStatusCore:
			if core == nil || z.BlurMeters < core.BlurMeters {
				core = z
			}
		case ZoneStatusBuffer:
			if buffer == nil || z.BlurMeters < buffer.BlurMeters {
				buffer = z
			}
		}
	}

	if core != nil {
		return Disclosure{
			Status:          ZoneStatusCore,
			Disclosed:       t.perturb(raw, core.BlurMeters),
			PrecisionMeters: core.BlurMeters,
			// Confirmation is implied: privacy is applied automatically.
			RequiresConfirmation: false,
			ForcePrivate:         true,
			ZoneID:               core.ID,
		}
	}

	if buffer != nil {
		precision := t.clampPrecision(requestedPrecision)
		return Disclosure{
			Status:               ZoneStatusBuffer,
			Disclosed:            t.perturb(raw, precision),
			PrecisionMeters:      precision,
			RequiresConfirmation: true,
			ZoneID:               buffer.ID,
		}
	}

	return Disclosure{
		Status:    ZoneStatusNone,
		Disclosed: raw,
	}
}

func (t *Transformer) clampPrecision(requested float64) float64 {
	if requested == 0 {
		return (t.precisionMin + t.precisionMax) / 2
	}
	return math.Min(math.Max(requested, t.precisionMin), t.precisionMax)
}

// perturb offsets the point by a magnitude uniformly sampled in [0, radius]
// per axis, with independent random signs.
func (t *Transformer) perturb(raw Coordinate, radiusMeters float64) Coordinate {
	t.mu.Lock()
	dy := t.rng.Float64() * radiusMeters
	dx := t.rng.Float64() * radiusMeters
	if t.rng.Intn(2) == 0 {
		dy = -dy
	}
	if t.rng.Intn(2) == 0 {
		dx = -dx
	}
	t.mu.Unlock()

	lat := raw.Lat + dy/metersPerDegLat
	lonScale := metersPerDegLat * math.Cos(raw.Lat*math.Pi/180)
	if lonScale < 1 {
		lonScale = 1
	}
	lon := raw.Lon + dx/lonScale
	return Coordinate{Lat: lat, Lon: lon}
}

// classify places a point relative to a single zone's core and buffer ring.
func classify(p Coordinate, z *Zone) ZoneStatus {
	if len(z.Polygon) >= 3 {
		if pointInPolygon(p, z.Polygon) {
			return ZoneStatusCore
		}
		if z.BufferMeters > 0 && distanceToRing(p, z.Polygon) <= z.BufferMeters {
			return ZoneStatusBuffer
		}
		return ZoneStatusNone
	}

	d := Haversine(p, z.Center)
	switch {
	case d <= z.RadiusMeters:
		return ZoneStatusCore
	case z.BufferMeters > 0 && d <= z.RadiusMeters+z.BufferMeters:
		return ZoneStatusBuffer
	default:
		return ZoneStatusNone
	}
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// pointInPolygon runs a standard ray cast over the ring.
func pointInPolygon(p Coordinate, ring []Coordinate) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		yi, xi := ring[i].Lat, ring[i].Lon
		yj, xj := ring[j].Lat, ring[j].Lon
		if (yi > p.Lat) != (yj > p.Lat) &&
			p.Lon < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// distanceToRing returns the distance in meters from p to the nearest polygon
// edge, using a local equirectangular projection around p. Good enough at
// buffer-ring scales.
func distanceToRing(p Coordinate, ring []Coordinate) float64 {
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	toXY := func(c Coordinate) (float64, float64) {
		return (c.Lon - p.Lon) * metersPerDegLat * cosLat, (c.Lat - p.Lat) * metersPerDegLat
	}

	minDist := math.Inf(1)
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		x1, y1 := toXY(ring[j])
		x2, y2 := toXY(ring[i])
		minDist = math.Min(minDist, pointSegmentDistance(x1, y1, x2, y2))
		j = i
	}
	return minDist
}

// pointSegmentDistance returns the distance from the origin to segment
// (x1,y1)-(x2,y2) in the projected plane.
func pointSegmentDistance(x1, y1, x2, y2 float64) float64 {
	dx, dy := x2-x1, y2-y1
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(x1, y1)
	}
	t := -(x1*dx + y1*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(x1+t*dx, y1+t*dy)
}
