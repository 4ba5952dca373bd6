package geoprivacy

import "context"

// ZoneStore is the read view of the protected-zone registry. The core never
// creates or edits zones.
type ZoneStore interface {
	ListZones(ctx context.Context) ([]Zone, error)
}
