package feed

import (
	"math"

	"github.com/edume/internal/model"
)

// earthRadiusMeters: средний радиус Земли (IUGG).
const earthRadiusMeters = 6371008.8

// DefaultRadiusMeters: радиус ленты по умолчанию, 50 миль.
const DefaultRadiusMeters = 80467.0

// Distance: расстояние по дуге большого круга (haversine), в метрах.
func Distance(a, b model.Coordinates) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
