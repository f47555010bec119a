package feed

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edume/internal/model"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func post(id string, cat model.Category, age time.Duration, coords ...float64) model.Post {
	p := model.Post{
		ID:        id,
		Title:     id,
		Category:  cat,
		Timestamp: t0.Add(-age),
		UserID:    "u-" + id,
		UserName:  "User " + id,
	}
	if len(coords) == 2 {
		lat, lon := coords[0], coords[1]
		p.Latitude = &lat
		p.Longitude = &lon
	}
	return p
}

func postIDs(posts []model.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 0, Distance(model.Coordinates{}, model.Coordinates{}), 1e-9)
	// 0.0001 градуса долготы на экваторе ≈ 11.1 м.
	assert.InDelta(t, 11.12, Distance(model.Coordinates{}, model.Coordinates{Longitude: 0.0001}), 0.05)
	// Нью-Йорк, Лос-Анджелес ≈ 3936 км.
	nyc := model.Coordinates{Latitude: 40.7128, Longitude: -74.0060}
	la := model.Coordinates{Latitude: 34.0522, Longitude: -118.2437}
	assert.InDelta(t, 3936e3, Distance(nyc, la), 10e3)
	assert.InDelta(t, Distance(nyc, la), Distance(la, nyc), 1e-6)
}

func TestVisible_RadiusScenario(t *testing.T) {
	posts := []model.Post{
		post("A", model.CategoryTutoring, time.Minute, 0, 0.0001),
		post("B", model.CategoryTutoring, 2*time.Minute, 10, 10),
	}
	out := Visible(posts, Filter{Viewer: &model.Coordinates{}, RadiusMeters: 1000})
	assert.Equal(t, []string{"A"}, postIDs(out))
}

func TestVisible_PostsWithoutCoordinatesHiddenFromLocatedViewer(t *testing.T) {
	posts := []model.Post{
		post("located", model.CategoryPets, time.Minute, 1, 1),
		post("nowhere", model.CategoryPets, 0),
	}
	located := Visible(posts, Filter{Viewer: &model.Coordinates{Latitude: 1, Longitude: 1}})
	assert.Equal(t, []string{"located"}, postIDs(located))

	anywhere := Visible(posts, Filter{})
	assert.Equal(t, []string{"nowhere", "located"}, postIDs(anywhere))
}

func TestVisible_DefaultRadiusWhenUnset(t *testing.T) {
	// ~44 км, внутри 50 миль; ~111 км, снаружи.
	posts := []model.Post{
		post("near", model.CategoryRides, time.Minute, 0.4, 0),
		post("far", model.CategoryRides, time.Minute, 1.0, 0),
	}
	out := Visible(posts, Filter{Viewer: &model.Coordinates{}})
	assert.Equal(t, []string{"near"}, postIDs(out))
}

func TestVisible_CategoryFilter(t *testing.T) {
	posts := []model.Post{
		post("tutor", model.CategoryTutoring, time.Minute),
		post("pets", model.CategoryPets, time.Minute),
	}
	out := Visible(posts, Filter{Category: model.CategoryPets})
	assert.Equal(t, []string{"pets"}, postIDs(out))
}

func TestVisible_NewestFirstTiesByID(t *testing.T) {
	posts := []model.Post{
		post("old", model.CategoryOther, time.Hour),
		post("b", model.CategoryOther, 0),
		post("a", model.CategoryOther, 0),
	}
	out := Visible(posts, Filter{})
	assert.Equal(t, []string{"a", "b", "old"}, postIDs(out))
	assert.Equal(t, []string{"old", "b", "a"}, postIDs(posts), "input must not be reordered")
}

func TestNewFilter(t *testing.T) {
	lat, lon := 40.0, -74.0
	f, err := NewFilter(&lat, &lon, 0, "Tech", 5000)
	require.NoError(t, err)
	require.NotNil(t, f.Viewer)
	assert.Equal(t, 5000.0, f.RadiusMeters)
	assert.Equal(t, model.CategoryTech, f.Category)

	f, err = NewFilter(&lat, nil, 1200, "", 5000)
	require.NoError(t, err)
	assert.Nil(t, f.Viewer, "a single coordinate is ignored")
	assert.Equal(t, 1200.0, f.RadiusMeters)

	bad := 91.0
	_, err = NewFilter(&bad, &lon, 0, "", 5000)
	assert.Error(t, err)

	_, err = NewFilter(nil, nil, 0, "Gardening", 5000)
	assert.Error(t, err)
}

func TestNewFilter_RejectsNonFinite(t *testing.T) {
	zero := 0.0
	nan, inf := math.NaN(), math.Inf(1)

	_, err := NewFilter(&zero, &zero, nan, "", 5000)
	assert.Error(t, err, "NaN radius")
	_, err = NewFilter(&zero, &zero, inf, "", 5000)
	assert.Error(t, err, "Inf radius")
	_, err = NewFilter(&nan, &zero, 1000, "", 5000)
	assert.Error(t, err, "NaN latitude")
	_, err = NewFilter(&zero, &inf, 1000, "", 5000)
	assert.Error(t, err, "Inf longitude")

	assert.True(t, ValidCoordinates(0, 0))
	assert.False(t, ValidCoordinates(nan, 0))
	assert.False(t, ValidCoordinates(0, 181))
}

func TestVisible_NaNRadiusFallsBackToDefault(t *testing.T) {
	farLat, farLon := 10.0, 10.0
	far := model.Post{ID: "far", Category: model.CategoryTech, Latitude: &farLat, Longitude: &farLon}
	viewer := &model.Coordinates{Latitude: 0, Longitude: 0}

	got := Visible([]model.Post{far}, Filter{Viewer: viewer, RadiusMeters: math.NaN()})
	assert.Empty(t, got)
}
