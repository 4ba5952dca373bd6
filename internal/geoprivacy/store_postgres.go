package geoprivacy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "naturewatch/pkg/domain"
)

// PostgresZoneStore reads the protected-zone registry table maintained by the
// platform operators.
type PostgresZoneStore struct {
	db *sql.DB
}

func NewPostgresZoneStore(db *sql.DB) *PostgresZoneStore {
	return &PostgresZoneStore{db: db}
}

func (s *PostgresZoneStore) ListZones(ctx context.Context) ([]Zone, error) {
	query := `
		SELECT id, name, category, center_lat, center_lon, radius_m, polygon, buffer_m, blur_m
		FROM protected_zones
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	var zones []Zone
	for rows.Next() {
		var (
			z       Zone
			zoneID  uuid.UUID
			polygon []byte
		)
		if err := rows.Scan(&zoneID, &z.Name, &z.Category,
			&z.Center.Lat, &z.Center.Lon, &z.RadiusMeters,
			&polygon, &z.BufferMeters, &z.BlurMeters); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		z.ID = id.ZoneID(zoneID)
		if len(polygon) > 0 {
			if err := json.Unmarshal(polygon, &z.Polygon); err != nil {
				return nil, fmt.Errorf("decode zone polygon: %w", err)
			}
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
