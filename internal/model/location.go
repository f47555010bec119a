package model

import "fmt"

const metersPerMile = 1609.34

// Coordinates is a WGS84 point in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UserLocation is the viewer's service area as supplied by the location collaborator.
// AreaRadius is in meters and belongs to the viewer, not to posts.
type UserLocation struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AreaRadius float64 `json:"area_radius"`
	City       *string `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
}

func (l *UserLocation) Coordinates() Coordinates {
	return Coordinates{Latitude: l.Latitude, Longitude: l.Longitude}
}

// DisplayText is the label snapshotted onto a post at creation time.
func (l *UserLocation) DisplayText() string {
	switch {
	case l.City != nil && l.State != nil:
		return *l.City + ", " + *l.State
	case l.City != nil:
		return *l.City
	}
	return "Location shared"
}

func (l *UserLocation) AreaDescription() string {
	return fmt.Sprintf("~%.0f mile radius", l.AreaRadius/metersPerMile)
}

// Participant identifies one side of a chat or the sender of a message.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
