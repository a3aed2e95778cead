// internal/storage/memory.go
// Package storage provides implementations of the Store interface
// for both in-memory and PostgreSQL storage backends.
package storage

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/monastery360/monastery360-go/internal/geo"
	"github.com/monastery360/monastery360-go/internal/model"
)

// Standard errors returned by the storage layer
var (
	ErrNotFound = errors.New("not found") // Returned when an entity is not found
	ErrConflict = errors.New("conflict")  // Returned when an entity already exists
)

// Store defines the storage operations required by the Monastery360 service.
// The text-relevance queries treat the backend's scoring as an opaque total
// order: results come back relevance-descending and are never re-sorted by
// callers. The geospatial queries come back distance-ascending.
type Store interface {
	// Monastery operations
	CreateMonastery(ctx context.Context, m model.Monastery) error
	GetMonastery(ctx context.Context, id string) (*model.Monastery, error)
	UpdateMonastery(ctx context.Context, id string, patch model.MonasteryPatch) (*model.Monastery, error)
	DeactivateMonastery(ctx context.Context, id string) error
	ListMonasteries(ctx context.Context) ([]model.Monastery, error)

	// FindMonasteriesNear returns active monasteries within maxDistanceMeters
	// of pt, ascending by distance. An empty result is not an error.
	FindMonasteriesNear(ctx context.Context, pt model.GeoPoint, maxDistanceMeters float64) ([]model.Monastery, error)

	SearchMonasteries(ctx context.Context, q model.TextQuery) ([]model.Monastery, error)
	CountMonasteries(ctx context.Context, q model.TextQuery) (int, error)
	FilterMonasteries(ctx context.Context, f model.MonasteryFilter) ([]model.Monastery, int, error)
	SuggestMonasteries(ctx context.Context, q string, limit int) ([]model.Suggestion, error)
	MonasteryStats(ctx context.Context) (*model.MonasteryStats, error)

	// Audio guide operations
	CreateAudioGuide(ctx context.Context, g model.AudioGuide) error
	GetAudioGuide(ctx context.Context, id string) (*model.AudioGuide, error)
	DeactivateAudioGuide(ctx context.Context, id string) error

	// FindGuidesByMonasteries returns active guides in the given language whose
	// monastery reference is in monasteryIDs. Order follows monasteryIDs
	// (nearest monastery first); guides of the same monastery come back
	// most-recently-created first.
	FindGuidesByMonasteries(ctx context.Context, monasteryIDs []string, language string) ([]model.AudioGuide, error)
	FindGuidesByMonastery(ctx context.Context, monasteryID, language string) ([]model.AudioGuide, error)

	// FindTriggeredGuidesNear returns active location-based guides whose own
	// coordinates fall within maxDistanceMeters of pt, ascending by distance.
	FindTriggeredGuidesNear(ctx context.Context, pt model.GeoPoint, maxDistanceMeters float64) ([]model.AudioGuide, error)

	SearchAudioGuides(ctx context.Context, q model.TextQuery) ([]model.AudioGuide, error)
	CountAudioGuides(ctx context.Context, q model.TextQuery) (int, error)
	FilterAudioGuides(ctx context.Context, f model.GuideFilter) ([]model.AudioGuide, int, error)
	IncrementPlayCount(ctx context.Context, id string) error
	UpdateGuideRating(ctx context.Context, id string, average float64, count int) error

	// Virtual tour operations
	CreateVirtualTour(ctx context.Context, t model.VirtualTour) error
	SearchVirtualTours(ctx context.Context, q model.TextQuery) ([]model.VirtualTour, error)
	CountVirtualTours(ctx context.Context, q model.TextQuery) (int, error)

	// Manuscript operations
	CreateManuscript(ctx context.Context, ms model.Manuscript) error
	SearchManuscripts(ctx context.Context, q model.TextQuery) ([]model.Manuscript, error)
	CountManuscripts(ctx context.Context, q model.TextQuery) (int, error)

	// Translation job operations
	CreateJob(ctx context.Context, job model.TranslationJob) error
	GetJob(ctx context.Context, id string) (*model.TranslationJob, error)
	CompleteJob(ctx context.Context, id string, result map[string]string) error
}

// memory implements the Store interface using in-memory maps.
// It's intended for development and testing purposes. Text relevance is a
// naive term-frequency score over the derived searchable text; ties break
// most-recently-created first, which is this store's defined order.
type memory struct {
	mu          sync.RWMutex
	monasteries map[string]*model.Monastery
	guides      map[string]*model.AudioGuide
	tours       map[string]*model.VirtualTour
	manuscripts map[string]*model.Manuscript
	jobs        map[string]*model.TranslationJob

	// Insertion orders, kept for store-default ordering of suggestions.
	monasteryOrder []string
}

// NewMemory creates a new in-memory storage implementation.
func NewMemory() Store {
	return &memory{
		monasteries: make(map[string]*model.Monastery),
		guides:      make(map[string]*model.AudioGuide),
		tours:       make(map[string]*model.VirtualTour),
		manuscripts: make(map[string]*model.Manuscript),
		jobs:        make(map[string]*model.TranslationJob),
	}
}

// textScore is the naive relevance score: number of query terms present in
// the searchable text, each weighted by its occurrence count.
func textScore(searchable, query string) float64 {
	haystack := strings.ToLower(searchable)
	score := 0.0
	for _, term := range strings.Fields(strings.ToLower(query)) {
		score += float64(strings.Count(haystack, term))
	}
	return score
}

func (s *memory) CreateMonastery(ctx context.Context, m model.Monastery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.monasteries[m.ID]; exists {
		return ErrConflict
	}
	cp := m
	s.monasteries[m.ID] = &cp
	s.monasteryOrder = append(s.monasteryOrder, m.ID)
	return nil
}

func (s *memory) GetMonastery(ctx context.Context, id string) (*model.Monastery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.monasteries[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memory) UpdateMonastery(ctx context.Context, id string, patch model.MonasteryPatch) (*model.Monastery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.monasteries[id]
	if !exists {
		return nil, ErrNotFound
	}
	patch.Apply(m)
	m.UpdatedAt = time.Now().UTC()
	cp := *m
	return &cp, nil
}

func (s *memory) DeactivateMonastery(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.monasteries[id]
	if !exists {
		return ErrNotFound
	}
	m.Status = model.StatusInactive
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memory) ListMonasteries(ctx context.Context) ([]model.Monastery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Monastery, 0, len(s.monasteryOrder))
	for _, id := range s.monasteryOrder {
		if m, ok := s.monasteries[id]; ok && m.Status == model.StatusActive {
			out = append(out, *m)
		}
	}
	return out, nil
}

// monasteryDistance pairs a monastery with its distance for sorting.
type monasteryDistance struct {
	m model.Monastery
	d float64
}

func (s *memory) FindMonasteriesNear(ctx context.Context, pt model.GeoPoint, maxDistanceMeters float64) ([]model.Monastery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var within []monasteryDistance
	for _, m := range s.monasteries {
		if m.Status != model.StatusActive || m.Location == nil {
			continue
		}
		d := geo.DistanceMeters(pt.Latitude(), pt.Longitude(), m.Location.Latitude(), m.Location.Longitude())
		if d <= maxDistanceMeters {
			within = append(within, monasteryDistance{m: *m, d: d})
		}
	}
	sort.Slice(within, func(i, j int) bool { return within[i].d < within[j].d })

	out := make([]model.Monastery, len(within))
	for i, md := range within {
		out[i] = md.m
	}
	return out, nil
}

func (s *memory) matchedMonasteries(q model.TextQuery) []model.Monastery {
	type scored struct {
		m     model.Monastery
		score float64
	}
	var hits []scored
	for _, m := range s.monasteries {
		if m.Status != model.StatusActive {
			continue
		}
		if sc := textScore(m.SearchableText(), q.Text); sc > 0 {
			hits = append(hits, scored{m: *m, score: sc})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].m.CreatedAt.After(hits[j].m.CreatedAt)
	})
	out := make([]model.Monastery, len(hits))
	for i, h := range hits {
		out[i] = h.m
	}
	return out
}

func (s *memory) SearchMonasteries(ctx context.Context, q model.TextQuery) ([]model.Monastery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.matchedMonasteries(q), q.Skip, q.Limit), nil
}

func (s *memory) CountMonasteries(ctx context.Context, q model.TextQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchedMonasteries(q)), nil
}

func (s *memory) FilterMonasteries(ctx context.Context, f model.MonasteryFilter) ([]model.Monastery, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		m     model.Monastery
		score float64
	}
	var hits []scored
	for _, m := range s.monasteries {
		if m.Status != model.StatusActive {
			continue
		}
		if f.District != "" && m.District != f.District {
			continue
		}
		if f.Sect != "" && m.Sect != f.Sect {
			continue
		}
		if f.HasVirtualTour != nil && m.VirtualTourAvail != *f.HasVirtualTour {
			continue
		}
		if f.HasAudioGuide != nil && m.AudioGuideAvail != *f.HasAudioGuide {
			continue
		}
		if f.MinRating != nil && m.RatingAverage < *f.MinRating {
			continue
		}
		sc := 0.0
		if f.Text != "" {
			if sc = textScore(m.SearchableText(), f.Text); sc == 0 {
				continue
			}
		}
		hits = append(hits, scored{m: *m, score: sc})
	}
	if f.Text != "" {
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].score != hits[j].score {
				return hits[i].score > hits[j].score
			}
			return hits[i].m.CreatedAt.After(hits[j].m.CreatedAt)
		})
	} else {
		// Unfiltered sort follows name ascending.
		sort.Slice(hits, func(i, j int) bool { return hits[i].m.Name < hits[j].m.Name })
	}
	all := make([]model.Monastery, len(hits))
	for i, h := range hits {
		all[i] = h.m
	}
	return page(all, f.Skip, f.Limit), len(all), nil
}

func (s *memory) SuggestMonasteries(ctx context.Context, q string, limit int) ([]model.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(q)
	var out []model.Suggestion
	// Insertion order is this store's default order.
	for _, id := range s.monasteryOrder {
		m, ok := s.monasteries[id]
		if !ok || m.Status != model.StatusActive {
			continue
		}
		if strings.Contains(strings.ToLower(m.Name), needle) {
			out = append(out, model.Suggestion{Text: m.Name, Type: "monastery", ID: m.ID})
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memory) MonasteryStats(ctx context.Context) (*model.MonasteryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.MonasteryStats{}
	sum := 0.0
	for _, m := range s.monasteries {
		if m.Status != model.StatusActive {
			continue
		}
		stats.TotalMonasteries++
		sum += m.RatingAverage
		if m.VirtualTourAvail {
			stats.TotalWithVirtualTour++
		}
		if m.AudioGuideAvail {
			stats.TotalWithAudioGuide++
		}
	}
	if stats.TotalMonasteries > 0 {
		stats.AverageRating = math.Round(sum/float64(stats.TotalMonasteries)*10) / 10
	}
	return stats, nil
}

func (s *memory) CreateAudioGuide(ctx context.Context, g model.AudioGuide) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.guides[g.ID]; exists {
		return ErrConflict
	}
	cp := g
	s.guides[g.ID] = &cp
	return nil
}

func (s *memory) GetAudioGuide(ctx context.Context, id string) (*model.AudioGuide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, exists := s.guides[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *memory) DeactivateAudioGuide(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, exists := s.guides[id]
	if !exists {
		return ErrNotFound
	}
	g.IsActive = false
	g.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memory) FindGuidesByMonasteries(ctx context.Context, monasteryIDs []string, language string) ([]model.AudioGuide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rank := make(map[string]int, len(monasteryIDs))
	for i, id := range monasteryIDs {
		rank[id] = i
	}
	var out []model.AudioGuide
	for _, g := range s.guides {
		if !g.IsActive || g.Language != language {
			continue
		}
		if _, ok := rank[g.MonasteryID]; !ok {
			continue
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank[out[i].MonasteryID], rank[out[j].MonasteryID]
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memory) FindGuidesByMonastery(ctx context.Context, monasteryID, language string) ([]model.AudioGuide, error) {
	return s.FindGuidesByMonasteries(ctx, []string{monasteryID}, language)
}

// guideDistance pairs a guide with its distance for sorting.
type guideDistance struct {
	g model.AudioGuide
	d float64
}

func (s *memory) FindTriggeredGuidesNear(ctx context.Context, pt model.GeoPoint, maxDistanceMeters float64) ([]model.AudioGuide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var within []guideDistance
	for _, g := range s.guides {
		if !g.IsActive || g.Category != model.CategoryLocationBased || g.Location == nil {
			continue
		}
		d := geo.DistanceMeters(pt.Latitude(), pt.Longitude(), g.Location.Latitude(), g.Location.Longitude())
		if d <= maxDistanceMeters {
			within = append(within, guideDistance{g: *g, d: d})
		}
	}
	sort.Slice(within, func(i, j int) bool { return within[i].d < within[j].d })

	out := make([]model.AudioGuide, len(within))
	for i, gd := range within {
		out[i] = gd.g
	}
	return out, nil
}

func (s *memory) matchedGuides(q model.TextQuery) []model.AudioGuide {
	type scored struct {
		g     model.AudioGuide
		score float64
	}
	var hits []scored
	for _, g := range s.guides {
		if !g.IsActive {
			continue
		}
		if q.Language != "" && g.Language != q.Language {
			continue
		}
		if sc := textScore(g.SearchableText(), q.Text); sc > 0 {
			hits = append(hits, scored{g: *g, score: sc})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].g.CreatedAt.After(hits[j].g.CreatedAt)
	})
	out := make([]model.AudioGuide, len(hits))
	for i, h := range hits {
		out[i] = h.g
	}
	return out
}

func (s *memory) SearchAudioGuides(ctx context.Context, q model.TextQuery) ([]model.AudioGuide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.matchedGuides(q), q.Skip, q.Limit), nil
}

func (s *memory) CountAudioGuides(ctx context.Context, q model.TextQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchedGuides(q)), nil
}

func (s *memory) FilterAudioGuides(ctx context.Context, f model.GuideFilter) ([]model.AudioGuide, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		g     model.AudioGuide
		score float64
	}
	var hits []scored
	for _, g := range s.guides {
		if !g.IsActive {
			continue
		}
		if f.Language != "" && g.Language != f.Language {
			continue
		}
		if f.Category != "" && string(g.Category) != f.Category {
			continue
		}
		if f.MonasteryID != "" && g.MonasteryID != f.MonasteryID {
			continue
		}
		sc := 0.0
		if f.Text != "" {
			if sc = textScore(g.SearchableText(), f.Text); sc == 0 {
				continue
			}
		}
		hits = append(hits, scored{g: *g, score: sc})
	}
	if f.Text != "" {
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].score != hits[j].score {
				return hits[i].score > hits[j].score
			}
			return hits[i].g.CreatedAt.After(hits[j].g.CreatedAt)
		})
	} else {
		sort.Slice(hits, func(i, j int) bool { return hits[i].g.CreatedAt.After(hits[j].g.CreatedAt) })
	}
	all := make([]model.AudioGuide, len(hits))
	for i, h := range hits {
		all[i] = h.g
	}
	return page(all, f.Skip, f.Limit), len(all), nil
}

func (s *memory) IncrementPlayCount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, exists := s.guides[id]
	if !exists {
		return ErrNotFound
	}
	g.PlayCount++
	return nil
}

func (s *memory) UpdateGuideRating(ctx context.Context, id string, average float64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, exists := s.guides[id]
	if !exists {
		return ErrNotFound
	}
	g.RatingAverage = average
	g.RatingCount = count
	g.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memory) CreateVirtualTour(ctx context.Context, t model.VirtualTour) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tours[t.ID]; exists {
		return ErrConflict
	}
	cp := t
	s.tours[t.ID] = &cp
	return nil
}

func (s *memory) matchedTours(q model.TextQuery) []model.VirtualTour {
	type scored struct {
		t     model.VirtualTour
		score float64
	}
	var hits []scored
	for _, t := range s.tours {
		if !t.IsActive {
			continue
		}
		if sc := textScore(t.SearchableText(), q.Text); sc > 0 {
			hits = append(hits, scored{t: *t, score: sc})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].t.CreatedAt.After(hits[j].t.CreatedAt)
	})
	out := make([]model.VirtualTour, len(hits))
	for i, h := range hits {
		out[i] = h.t
	}
	return out
}

func (s *memory) SearchVirtualTours(ctx context.Context, q model.TextQuery) ([]model.VirtualTour, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.matchedTours(q), q.Skip, q.Limit), nil
}

func (s *memory) CountVirtualTours(ctx context.Context, q model.TextQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchedTours(q)), nil
}

func (s *memory) CreateManuscript(ctx context.Context, ms model.Manuscript) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.manuscripts[ms.ID]; exists {
		return ErrConflict
	}
	cp := ms
	s.manuscripts[ms.ID] = &cp
	return nil
}

func (s *memory) matchedManuscripts(q model.TextQuery) []model.Manuscript {
	type scored struct {
		ms    model.Manuscript
		score float64
	}
	var hits []scored
	for _, ms := range s.manuscripts {
		if !ms.IsPublic {
			continue
		}
		if sc := textScore(ms.SearchableText(), q.Text); sc > 0 {
			hits = append(hits, scored{ms: *ms, score: sc})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].ms.CreatedAt.After(hits[j].ms.CreatedAt)
	})
	out := make([]model.Manuscript, len(hits))
	for i, h := range hits {
		out[i] = h.ms
	}
	return out
}

func (s *memory) SearchManuscripts(ctx context.Context, q model.TextQuery) ([]model.Manuscript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(s.matchedManuscripts(q), q.Skip, q.Limit), nil
}

func (s *memory) CountManuscripts(ctx context.Context, q model.TextQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchedManuscripts(q)), nil
}

func (s *memory) CreateJob(ctx context.Context, job model.TranslationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrConflict
	}
	cp := job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memory) GetJob(ctx context.Context, id string) (*model.TranslationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memory) CompleteJob(ctx context.Context, id string, result map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = model.JobCompleted
	job.Result = result
	job.CompletedAt = &now
	return nil
}

// page applies skip/take to an already-ordered slice.
func page[T any](all []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return all[skip:end]
}
