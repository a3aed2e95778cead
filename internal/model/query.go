// internal/model/query.go
// Query and result structures for search and resolution operations.
package model

// EntityType tags the four searchable collections.
type EntityType string

const (
	TypeAll          EntityType = "all"
	TypeMonasteries  EntityType = "monasteries"
	TypeVirtualTours EntityType = "virtual-tours"
	TypeAudioGuides  EntityType = "audio-guides"
	TypeManuscripts  EntityType = "manuscripts"
)

// ValidEntityType reports whether t names a searchable collection or "all".
func ValidEntityType(t EntityType) bool {
	switch t {
	case TypeAll, TypeMonasteries, TypeVirtualTours, TypeAudioGuides, TypeManuscripts:
		return true
	}
	return false
}

// TextQuery is a relevance query against one collection's text index.
// Skip/Limit drive pagination; Language applies to audio guides only.
type TextQuery struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Skip     int    `json:"skip"`
	Limit    int    `json:"limit"`
}

// MonasteryFilter is the explicit filter-criteria form of the advanced search.
// Each optional field maps to a store predicate only when present; nil or
// zero-valued fields are never sent to the store.
type MonasteryFilter struct {
	Text           string   `json:"text,omitempty"`
	District       string   `json:"district,omitempty"`
	Sect           string   `json:"sect,omitempty"`
	HasVirtualTour *bool    `json:"hasVirtualTour,omitempty"`
	HasAudioGuide  *bool    `json:"hasAudioGuide,omitempty"`
	MinRating      *float64 `json:"minRating,omitempty"`
	Skip           int      `json:"skip"`
	Limit          int      `json:"limit"`
}

// GuideFilter selects audio guides for the advanced search.
type GuideFilter struct {
	Text        string `json:"text,omitempty"`
	Language    string `json:"language,omitempty"`
	Category    string `json:"category,omitempty"`
	MonasteryID string `json:"monasteryId,omitempty"`
	Skip        int    `json:"skip"`
	Limit       int    `json:"limit"`
}

// Pagination is computed only for single-type searches.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalItems  int  `json:"totalItems"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

// SearchResults groups per-collection matches, relevance descending.
type SearchResults struct {
	Monasteries  []Monastery   `json:"monasteries,omitempty"`
	VirtualTours []VirtualTour `json:"virtualTours,omitempty"`
	AudioGuides  []AudioGuide  `json:"audioGuides,omitempty"`
	Manuscripts  []Manuscript  `json:"manuscripts,omitempty"`
}

// SearchResultSet is the response payload of the unified search.
// For type=all, TotalCount is the sum of the capped per-type slices, an
// intentionally approximate figure, and Pagination is nil.
type SearchResultSet struct {
	Query      string        `json:"query"`
	Type       EntityType    `json:"type"`
	Results    SearchResults `json:"results"`
	TotalCount int           `json:"totalCount"`
	Pagination *Pagination   `json:"pagination,omitempty"`
}

// Suggestion is a single autocomplete hit.
type Suggestion struct {
	Text string `json:"text"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ResolvedMonastery is the monastery summary embedded in a resolution payload.
type ResolvedMonastery struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Coordinates *[2]float64 `json:"coordinates,omitempty"` // [longitude, latitude]
}

// AudioResolution is the ephemeral result of the guide resolution pipelines.
// It is never persisted. IsMockData marks a synthesized placeholder; real
// guides carry GuideID and omit the flag entirely.
type AudioResolution struct {
	GuideID            string            `json:"guideId,omitempty"`
	Title              string            `json:"title"`
	AudioURL           string            `json:"audioUrl"`
	Duration           int               `json:"duration"`
	Description        string            `json:"description"`
	Language           string            `json:"language"`
	Monastery          ResolvedMonastery `json:"monastery"`
	Distance           *int              `json:"distance,omitempty"` // whole meters
	AllNearbyGuides    int               `json:"allNearbyGuides,omitempty"`
	RecognizedLocation string            `json:"recognizedLocation,omitempty"`
	Confidence         float64           `json:"confidence,omitempty"`
	IsMockData         bool              `json:"isMockData,omitempty"`
}
