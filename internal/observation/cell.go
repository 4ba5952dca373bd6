package observation

import (
	"fmt"

	"naturewatch/internal/geoprivacy"
)

// CellKey buckets a coordinate into a grid cell by rounding both axes to the
// given number of decimal places. Observations sharing a cell are "spatially
// close" for conflict detection (3 decimals is roughly a 110m cell).
func CellKey(c geoprivacy.Coordinate, decimals int) string {
	return fmt.Sprintf("%.*f:%.*f", decimals, c.Lat, decimals, c.Lon)
}
