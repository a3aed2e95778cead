// internal/model/entity.go
// Package model defines the data structures used throughout the Monastery360 service.
// These structures represent the core domain objects: monasteries, virtual tours,
// audio guides, manuscripts and the geographic points attached to them.
package model

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID generates a new entity identifier.
// ULIDs are used so identifiers sort lexicographically by creation time
// while remaining collision resistant.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// GeoPoint is a WGS-84 coordinate pair.
// Coordinates are stored and queried as [longitude, latitude] (GeoJSON order),
// reversed from the common "lat,lng" reading order. Every storage backend and
// every index query follows this order; only HTTP query parameters speak lat/lng.
type GeoPoint struct {
	Coordinates [2]float64 `json:"coordinates" db:"coordinates"` // [longitude, latitude]
}

// NewGeoPoint builds a GeoPoint from a longitude/latitude pair.
func NewGeoPoint(longitude, latitude float64) GeoPoint {
	return GeoPoint{Coordinates: [2]float64{longitude, latitude}}
}

// Longitude returns the first coordinate.
func (p GeoPoint) Longitude() float64 { return p.Coordinates[0] }

// Latitude returns the second coordinate.
func (p GeoPoint) Latitude() float64 { return p.Coordinates[1] }

// Validate checks the WGS-84 bounds.
func (p GeoPoint) Validate() error {
	if p.Coordinates[0] < -180 || p.Coordinates[0] > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Coordinates[0])
	}
	if p.Coordinates[1] < -90 || p.Coordinates[1] > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Coordinates[1])
	}
	return nil
}

// MonasteryStatus is the lifecycle flag for monasteries.
// Anything other than active is excluded from search and lookup paths.
type MonasteryStatus string

const (
	StatusActive            MonasteryStatus = "active"
	StatusInactive          MonasteryStatus = "inactive"
	StatusUnderConstruction MonasteryStatus = "under_construction"
)

// Monastery is the central entity. All other entities may reference one.
type Monastery struct {
	ID               string          `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	Description      string          `json:"description" db:"description"`
	ShortDescription string          `json:"shortDescription" db:"short_description"`
	Location         *GeoPoint       `json:"location,omitempty" db:"location"`
	Address          string          `json:"address,omitempty" db:"address"`
	District         string          `json:"district,omitempty" db:"district"`
	State            string          `json:"state,omitempty" db:"state"`
	Sect             string          `json:"sect,omitempty" db:"sect"`
	Tags             []string        `json:"tags,omitempty" db:"tags"`
	VirtualTourAvail bool            `json:"virtualTourAvailable" db:"virtual_tour_available"`
	AudioGuideAvail  bool            `json:"audioGuideAvailable" db:"audio_guide_available"`
	RatingAverage    float64         `json:"ratingAverage" db:"rating_average"`
	RatingCount      int             `json:"ratingCount" db:"rating_count"`
	Status           MonasteryStatus `json:"status" db:"status"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// SearchableText is the derived text-index view of a monastery.
// It is recomputed from the source fields on every call and never stored.
func (m Monastery) SearchableText() string {
	parts := []string{m.Name, m.Description, m.ShortDescription}
	parts = append(parts, m.Tags...)
	return strings.Join(parts, " ")
}

// GuideCategory classifies audio guides. Location-based guides carry their
// own coordinates and fire only within a small activation radius.
type GuideCategory string

const (
	CategoryGeneral       GuideCategory = "general"
	CategoryHistory       GuideCategory = "history"
	CategoryArchitecture  GuideCategory = "architecture"
	CategorySpiritual     GuideCategory = "spiritual"
	CategoryLocationBased GuideCategory = "location-based"
)

// AudioGuide is a narrated track, usually attached to a monastery.
// MonasteryID is advisory: it may be empty or dangle, and lookups tolerate both.
type AudioGuide struct {
	ID            string        `json:"id" db:"id"`
	MonasteryID   string        `json:"monasteryId,omitempty" db:"monastery_id"`
	Title         string        `json:"title" db:"title"`
	Description   string        `json:"description,omitempty" db:"description"`
	Transcript    string        `json:"transcript,omitempty" db:"transcript"`
	AudioURL      string        `json:"audioUrl" db:"audio_url"`
	Duration      int           `json:"duration" db:"duration"` // seconds
	Language      string        `json:"language" db:"language"`
	Category      GuideCategory `json:"category" db:"category"`
	Location      *GeoPoint     `json:"location,omitempty" db:"location"`
	TriggerRadius float64       `json:"triggerRadius,omitempty" db:"trigger_radius"` // meters
	IsActive      bool          `json:"isActive" db:"is_active"`
	PlayCount     int64         `json:"playCount" db:"play_count"`
	RatingAverage float64       `json:"ratingAverage" db:"rating_average"`
	RatingCount   int           `json:"ratingCount" db:"rating_count"`
	Tags          []string      `json:"tags,omitempty" db:"tags"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`
}

// SearchableText is the derived text-index view of an audio guide.
func (g AudioGuide) SearchableText() string {
	parts := []string{g.Title, g.Description, g.Transcript}
	parts = append(parts, g.Tags...)
	return strings.Join(parts, " ")
}

// VirtualTour is a 360° tour of a monastery.
type VirtualTour struct {
	ID          string    `json:"id" db:"id"`
	MonasteryID string    `json:"monasteryId,omitempty" db:"monastery_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description,omitempty" db:"description"`
	Views       int64     `json:"views" db:"views"`
	IsActive    bool      `json:"isActive" db:"is_active"`
	Tags        []string  `json:"tags,omitempty" db:"tags"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// SearchableText is the derived text-index view of a virtual tour.
func (t VirtualTour) SearchableText() string {
	parts := []string{t.Title, t.Description}
	parts = append(parts, t.Tags...)
	return strings.Join(parts, " ")
}

// Manuscript is a digitized document held by a monastery.
// IsPublic plays the lifecycle-flag role the other entities express with IsActive.
type Manuscript struct {
	ID                 string    `json:"id" db:"id"`
	MonasteryID        string    `json:"monasteryId,omitempty" db:"monastery_id"`
	Title              string    `json:"title" db:"title"`
	Description        string    `json:"description,omitempty" db:"description"`
	OriginalLanguage   string    `json:"originalLanguage,omitempty" db:"original_language"`
	AvailableLanguages []string  `json:"availableLanguages,omitempty" db:"available_languages"`
	IsPublic           bool      `json:"isPublic" db:"is_public"`
	Tags               []string  `json:"tags,omitempty" db:"tags"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}

// SearchableText is the derived text-index view of a manuscript.
func (ms Manuscript) SearchableText() string {
	parts := []string{ms.Title, ms.Description}
	parts = append(parts, ms.Tags...)
	return strings.Join(parts, " ")
}

// MonasteryStats summarizes the active corpus.
type MonasteryStats struct {
	TotalMonasteries     int     `json:"totalMonasteries"`
	AverageRating        float64 `json:"averageRating"`
	TotalWithVirtualTour int     `json:"totalWithVirtualTour"`
	TotalWithAudioGuide  int     `json:"totalWithAudioGuide"`
}

// JobStatus is the lifecycle of a translation job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobCompleted JobStatus = "completed"
)

// TranslationJob is an asynchronous job persisted through the store.
// Jobs are created queued and completed by a background runner.
type TranslationJob struct {
	ID          string            `json:"id" db:"id"`
	Type        string            `json:"type" db:"type"`
	Status      JobStatus         `json:"status" db:"status"`
	Payload     map[string]string `json:"payload,omitempty" db:"payload"`
	Result      map[string]string `json:"result,omitempty" db:"result"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
	CompletedAt *time.Time        `json:"completedAt,omitempty" db:"completed_at"`
}
