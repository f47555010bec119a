package feed

import (
	"fmt"
	"math"
	"sort"

	"github.com/edume/internal/model"
)

// Filter: параметры видимости ленты для одного зрителя.
// Viewer == nil, фильтр по расстоянию не применяется. Category == "", все категории.
// RadiusMeters <= 0 при известном Viewer заменяется на DefaultRadiusMeters.
type Filter struct {
	Viewer       *model.Coordinates
	RadiusMeters float64
	Category     model.Category
}

// Visible: чистая проекция кэша ленты: фильтры расстояния и категории, сортировка по
// времени создания (новые первыми, при равенстве, по id). Входной срез не изменяется.
// Посты без координат зрителю с известным местоположением не показываются.
func Visible(posts []model.Post, f Filter) []model.Post {
	radius := f.RadiusMeters
	if !(radius > 0) || math.IsInf(radius, 1) {
		radius = DefaultRadiusMeters
	}
	out := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Viewer != nil {
			at, ok := p.Coordinates()
			if !ok || Distance(*f.Viewer, at) > radius {
				continue
			}
		}
		out = append(out, p)
	}
	SortNewestFirst(out)
	return out
}

func SortNewestFirst(posts []model.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i].Timestamp, posts[j].Timestamp
		if !a.Equal(b) {
			return a.After(b)
		}
		return posts[i].ID < posts[j].ID
	})
}

// NewFilter собирает фильтр из параметров запроса клиента. Координаты учитываются только парой;
// radius <= 0 заменяется на defaultRadius; пустая категория, все категории.
func NewFilter(lat, lon *float64, radius float64, category string, defaultRadius float64) (Filter, error) {
	var f Filter
	if !finite(radius) {
		return Filter{}, fmt.Errorf("radius is not a finite number: %v", radius)
	}
	if lat != nil && lon != nil {
		if !ValidCoordinates(*lat, *lon) {
			return Filter{}, fmt.Errorf("coordinates out of range: %v,%v", *lat, *lon)
		}
		f.Viewer = &model.Coordinates{Latitude: *lat, Longitude: *lon}
	}
	f.RadiusMeters = radius
	if f.RadiusMeters <= 0 {
		f.RadiusMeters = defaultRadius
	}
	if category != "" {
		c, err := model.ParseCategory(category)
		if err != nil {
			return Filter{}, err
		}
		f.Category = c
	}
	return f, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidCoordinates: обе координаты конечны и в пределах WGS84.
func ValidCoordinates(lat, lon float64) bool {
	return finite(lat) && finite(lon) && lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
