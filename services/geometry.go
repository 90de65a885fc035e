package services

import (
	"github.com/fleetgate/backend/models"
)

// PointInPolygon reports whether a coordinate lies inside the outer
// ring of a GeoJSON polygon, using the even-odd ray casting rule. The
// closing edge from the last vertex back to the first is included by
// wrap-around indexing. Points exactly on an edge may fall on either
// side; callers must not rely on boundary behavior.
func PointInPolygon(lat, lng float64, polygon models.GeoPolygon) bool {
	ring := polygon.OuterRing()
	if len(ring) == 0 {
		return false
	}

	inside := false
	n := len(ring)
	j := n - 1
	for i := 0; i < n; i++ {
		if len(ring[i]) < 2 || len(ring[j]) < 2 {
			return false
		}
		// GeoJSON vertices are (lng, lat)
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]

		if (yi > lat) != (yj > lat) && lng < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}

	return inside
}
