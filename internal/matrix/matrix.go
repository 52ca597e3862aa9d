package matrix

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"routeflow/internal/model"
)

// Matrix holds pairwise travel cost between locations. Index layout: stops
// occupy 0..len(stops)-1 in input order; when a depot is present it is the
// final index (Depot). A Matrix is immutable once built and may be shared
// across concurrent runs.
type Matrix struct {
	Minutes  [][]float64
	Miles    [][]float64
	Depot    int // index of the depot row/column, -1 when absent
	Degraded bool
}

// Size returns the number of locations covered, including the depot.
func (m *Matrix) Size() int { return len(m.Minutes) }

// Provider computes a travel cost matrix for a stop set. Implementations must
// be pure: same stops, depot and configuration produce the same matrix.
type Provider interface {
	Compute(ctx context.Context, stops []model.Stop, depot *model.GeoPoint) (*Matrix, error)
}

// Fingerprint identifies a (stop set, depot, metric, speed) combination for
// cache keying. It is order-sensitive on purpose: matrix indices are.
func Fingerprint(stops []model.Stop, depot *model.GeoPoint, metric model.DistanceMetric, speedMph float64) string {
	h := sha256.New()
	buf := make([]byte, 8)
	writeF := func(f float64) {
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		h.Write(buf)
	}
	for _, s := range stops {
		h.Write([]byte(s.ID))
		writeF(s.Location.Lat)
		writeF(s.Location.Lng)
	}
	if depot != nil {
		h.Write([]byte{1})
		writeF(depot.Lat)
		writeF(depot.Lng)
	}
	h.Write([]byte(metric))
	writeF(speedMph)
	return hex.EncodeToString(h.Sum(nil))
}

func newEmpty(n int) *Matrix {
	minutes := make([][]float64, n)
	miles := make([][]float64, n)
	for i := range minutes {
		minutes[i] = make([]float64, n)
		miles[i] = make([]float64, n)
	}
	return &Matrix{Minutes: minutes, Miles: miles, Depot: -1}
}

func locations(stops []model.Stop, depot *model.GeoPoint) []model.GeoPoint {
	locs := make([]model.GeoPoint, 0, len(stops)+1)
	for _, s := range stops {
		locs = append(locs, s.Location)
	}
	if depot != nil {
		locs = append(locs, *depot)
	}
	return locs
}
