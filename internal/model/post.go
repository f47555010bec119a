package model

import (
	"fmt"
	"math"
	"time"
)

type Category string

const (
	CategoryTutoring  Category = "Tutoring"
	CategoryErrands   Category = "Errands"
	CategoryTech      Category = "Tech"
	CategoryCleaning  Category = "Cleaning"
	CategoryMoving    Category = "Moving"
	CategoryPets      Category = "Pets"
	CategoryRides     Category = "Rides"
	CategoryHandyman  Category = "Handyman"
	CategoryChildcare Category = "Childcare"
	CategoryFitness   Category = "Fitness"
	CategoryCooking   Category = "Cooking"
	CategoryOther     Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryTutoring, CategoryErrands, CategoryTech, CategoryCleaning,
	CategoryMoving, CategoryPets, CategoryRides, CategoryHandyman,
	CategoryChildcare, CategoryFitness, CategoryCooking, CategoryOther,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// ParseCategory accepts the exact display name of a category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Post is immutable once written; the only mutation is deletion by its author.
type Post struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Category          Category  `json:"category"`
	Timestamp         time.Time `json:"timestamp"`
	UserID            string    `json:"user_id"`
	UserName          string    `json:"user_name"`
	UserLocation      *string   `json:"user_location,omitempty"`
	Latitude          *float64  `json:"latitude,omitempty"`
	Longitude         *float64  `json:"longitude,omitempty"`
	Price             *float64  `json:"price,omitempty"`
	IsPriceNegotiable bool      `json:"is_price_negotiable"`
	ContactEmail      *string   `json:"contact_email,omitempty"`
}

// Coordinates returns the post location; ok is false when either coordinate is missing.
func (p *Post) Coordinates() (Coordinates, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return Coordinates{}, false
	}
	return Coordinates{Latitude: *p.Latitude, Longitude: *p.Longitude}, true
}

// PriceDisplay renders the price for a card; ok is false when the post is not for sale.
func (p *Post) PriceDisplay() (string, bool) {
	if p.Price == nil {
		return "", false
	}
	if *p.Price == 0 {
		return "Free", true
	}
	s := fmt.Sprintf("$%.0f", math.Round(*p.Price))
	if p.IsPriceNegotiable {
		s += " (negotiable)"
	}
	return s, true
}

func (p *Post) TimeAgo(now time.Time) string {
	return relativeTime(p.Timestamp, now)
}

func (p *Post) ToDocument() map[string]any {
	doc := map[string]any{
		"id":                p.ID,
		"title":             p.Title,
		"description":       p.Description,
		"category":          string(p.Category),
		"timestamp":         p.Timestamp,
		"userId":            p.UserID,
		"userName":          p.UserName,
		"isPriceNegotiable": p.IsPriceNegotiable,
	}
	if p.UserLocation != nil {
		doc["userLocation"] = *p.UserLocation
	}
	if p.Latitude != nil {
		doc["latitude"] = *p.Latitude
	}
	if p.Longitude != nil {
		doc["longitude"] = *p.Longitude
	}
	if p.Price != nil {
		doc["price"] = *p.Price
	}
	if p.ContactEmail != nil {
		doc["contactEmail"] = *p.ContactEmail
	}
	return doc
}

// PostFromDocument decodes a stored post. A missing or malformed required field is an error.
func PostFromDocument(id string, data map[string]any) (Post, error) {
	f := fields{data: data}
	p := Post{
		ID:                f.stringOr("id", id),
		Title:             f.requiredString("title"),
		Description:       f.requiredString("description"),
		Timestamp:         f.timeOr("timestamp", time.Time{}),
		UserID:            f.requiredString("userId"),
		UserName:          f.requiredString("userName"),
		UserLocation:      f.optionalString("userLocation"),
		Latitude:          f.optionalFloat("latitude"),
		Longitude:         f.optionalFloat("longitude"),
		Price:             f.optionalFloat("price"),
		IsPriceNegotiable: f.boolOr("isPriceNegotiable", false),
		ContactEmail:      f.optionalString("contactEmail"),
	}
	cat, err := ParseCategory(f.requiredString("category"))
	if err != nil && f.err == nil {
		f.err = err
	}
	p.Category = cat
	if f.err != nil {
		return Post{}, fmt.Errorf("post %s: %w", id, f.err)
	}
	return p, nil
}
