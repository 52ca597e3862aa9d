package matrix

import (
	"context"
	"math"

	"routeflow/internal/model"
)

const (
	earthRadiusM    = 6371000.0
	metersPerMile   = 1609.344
	DefaultSpeedMph = 30.0
)

// HaversineProvider is the default metric: great-circle distance converted to
// travel minutes at a fixed average speed. Pure and deterministic.
type HaversineProvider struct {
	SpeedMph float64
}

func NewHaversineProvider(speedMph float64) *HaversineProvider {
	if speedMph <= 0 {
		speedMph = DefaultSpeedMph
	}
	return &HaversineProvider{SpeedMph: speedMph}
}

func (p *HaversineProvider) Compute(_ context.Context, stops []model.Stop, depot *model.GeoPoint) (*Matrix, error) {
	locs := locations(stops, depot)
	m := newEmpty(len(locs))
	if depot != nil {
		m.Depot = len(locs) - 1
	}
	for i := range locs {
		for j := range locs {
			if i == j {
				continue
			}
			miles := haversineMeters(locs[i].Lat, locs[i].Lng, locs[j].Lat, locs[j].Lng) / metersPerMile
			m.Miles[i][j] = miles
			m.Minutes[i][j] = miles / p.SpeedMph * 60
		}
	}
	return m, nil
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
