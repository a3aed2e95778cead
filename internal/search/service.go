// internal/search/service.go
// Package search implements the unified multi-entity search, autocomplete
// suggestions, the curated popular list and the advanced filter search.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/monastery360/monastery360-go/internal/cache"
	apperrors "github.com/monastery360/monastery360-go/internal/errors"
	"github.com/monastery360/monastery360-go/internal/event"
	"github.com/monastery360/monastery360-go/internal/model"
	"github.com/monastery360/monastery360-go/internal/storage"
)

const (
	// minQueryLength is enforced before any store access.
	minQueryLength = 2

	// allTypeCap bounds each per-collection slice of a type=all search.
	allTypeCap = 5

	defaultLimit = 10
	maxLimit     = 50

	suggestionLimit = 5

	sideEffectGrace = 5 * time.Second
)

// popularSearches is the curated list served by the popular endpoint.
// It is editorial content, not derived from query logs.
var popularSearches = []string{
	"Rumtek Monastery",
	"Pemayangtse Monastery",
	"Enchey Monastery",
	"Tashiding Monastery",
	"virtual tour",
	"audio guide",
	"Nyingma",
	"Kagyu",
}

// Service runs search queries against the store.
type Service struct {
	store  storage.Store
	cache  cache.SuggestionCache
	events event.Publisher
	log    *slog.Logger
}

// NewService wires the search service.
func NewService(store storage.Store, suggestions cache.SuggestionCache, events event.Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if suggestions == nil {
		suggestions = cache.NewNoop()
	}
	return &Service{
		store:  store,
		cache:  suggestions,
		events: events,
		log:    log,
	}
}

// Search runs the unified query. For type "all" each collection contributes
// at most allTypeCap hits and TotalCount is the sum of the capped slices, an
// intentionally approximate figure with no pagination block. Single-type
// queries page through exact counts.
func (s *Service) Search(ctx context.Context, query string, entityType model.EntityType, language string, page, limit int) (*model.SearchResultSet, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQueryLength {
		return nil, apperrors.New(apperrors.M360_VALIDATION, "search query must be at least 2 characters", "")
	}
	if entityType == "" {
		entityType = model.TypeAll
	}
	if !model.ValidEntityType(entityType) {
		return nil, apperrors.New(apperrors.M360_VALIDATION, "unknown search type", "")
	}
	if language == "" {
		language = "en"
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var set *model.SearchResultSet
	var err error
	if entityType == model.TypeAll {
		set, err = s.searchAll(ctx, query, language)
	} else {
		set, err = s.searchOne(ctx, query, entityType, language, page, limit)
	}
	if err != nil {
		return nil, err
	}

	s.performedAsync(query, string(entityType), set.TotalCount)
	return set, nil
}

func (s *Service) searchAll(ctx context.Context, query, language string) (*model.SearchResultSet, error) {
	capped := model.TextQuery{Text: query, Limit: allTypeCap}

	monasteries, err := s.store.SearchMonasteries(ctx, capped)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "monastery search failed", "")
	}
	tours, err := s.store.SearchVirtualTours(ctx, capped)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "virtual tour search failed", "")
	}
	guideQuery := capped
	guideQuery.Language = language
	guides, err := s.store.SearchAudioGuides(ctx, guideQuery)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "audio guide search failed", "")
	}
	manuscripts, err := s.store.SearchManuscripts(ctx, capped)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "manuscript search failed", "")
	}

	return &model.SearchResultSet{
		Query: query,
		Type:  model.TypeAll,
		Results: model.SearchResults{
			Monasteries:  monasteries,
			VirtualTours: tours,
			AudioGuides:  guides,
			Manuscripts:  manuscripts,
		},
		TotalCount: len(monasteries) + len(tours) + len(guides) + len(manuscripts),
	}, nil
}

func (s *Service) searchOne(ctx context.Context, query string, entityType model.EntityType, language string, page, limit int) (*model.SearchResultSet, error) {
	q := model.TextQuery{Text: query, Skip: (page - 1) * limit, Limit: limit}

	set := &model.SearchResultSet{Query: query, Type: entityType}
	var total int
	var err error

	switch entityType {
	case model.TypeMonasteries:
		set.Results.Monasteries, err = s.store.SearchMonasteries(ctx, q)
		if err == nil {
			total, err = s.store.CountMonasteries(ctx, q)
		}
	case model.TypeVirtualTours:
		set.Results.VirtualTours, err = s.store.SearchVirtualTours(ctx, q)
		if err == nil {
			total, err = s.store.CountVirtualTours(ctx, q)
		}
	case model.TypeAudioGuides:
		q.Language = language
		set.Results.AudioGuides, err = s.store.SearchAudioGuides(ctx, q)
		if err == nil {
			total, err = s.store.CountAudioGuides(ctx, q)
		}
	case model.TypeManuscripts:
		set.Results.Manuscripts, err = s.store.SearchManuscripts(ctx, q)
		if err == nil {
			total, err = s.store.CountManuscripts(ctx, q)
		}
	}
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "search failed", "")
	}

	set.TotalCount = total
	set.Pagination = paginate(page, limit, total)
	return set, nil
}

// Suggest returns up to five name completions for the given prefix. Queries
// shorter than the minimum yield an empty list, not an error; autocomplete
// callers fire on every keystroke and expect a quiet no-op.
func (s *Service) Suggest(ctx context.Context, query string) ([]model.Suggestion, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQueryLength {
		return []model.Suggestion{}, nil
	}

	key := strings.ToLower(query)
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached, nil
	}

	suggestions, err := s.store.SuggestMonasteries(ctx, query, suggestionLimit)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "suggestion lookup failed", "")
	}
	if suggestions == nil {
		suggestions = []model.Suggestion{}
	}

	s.cacheAsync(key, suggestions)
	return suggestions, nil
}

// Popular returns the curated popular-search list.
func (s *Service) Popular() []string {
	out := make([]string, len(popularSearches))
	copy(out, popularSearches)
	return out
}

// AdvancedMonasteries runs the explicit filter-criteria search over
// monasteries. Pagination uses exact counts.
func (s *Service) AdvancedMonasteries(ctx context.Context, f model.MonasteryFilter, page, limit int) (*model.SearchResultSet, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	f.Skip = (page - 1) * limit
	f.Limit = limit

	items, total, err := s.store.FilterMonasteries(ctx, f)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "advanced monastery search failed", "")
	}
	return &model.SearchResultSet{
		Query:      f.Text,
		Type:       model.TypeMonasteries,
		Results:    model.SearchResults{Monasteries: items},
		TotalCount: total,
		Pagination: paginate(page, limit, total),
	}, nil
}

// AdvancedGuides runs the explicit filter-criteria search over audio guides.
func (s *Service) AdvancedGuides(ctx context.Context, f model.GuideFilter, page, limit int) (*model.SearchResultSet, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	f.Skip = (page - 1) * limit
	f.Limit = limit

	items, total, err := s.store.FilterAudioGuides(ctx, f)
	if err != nil {
		return nil, apperrors.New(apperrors.M360_UPSTREAM, "advanced guide search failed", "")
	}
	return &model.SearchResultSet{
		Query:      f.Text,
		Type:       model.TypeAudioGuides,
		Results:    model.SearchResults{AudioGuides: items},
		TotalCount: total,
		Pagination: paginate(page, limit, total),
	}, nil
}

// performedAsync publishes the search event detached from the request.
func (s *Service) performedAsync(query, entityType string, totalCount int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectGrace)
		defer cancel()
		if err := s.events.PublishSearchPerformed(ctx, query, entityType, totalCount); err != nil {
			s.log.Warn("search event failed", "query", query, "error", err)
		}
	}()
}

// cacheAsync writes suggestions to the cache detached from the request.
func (s *Service) cacheAsync(key string, suggestions []model.Suggestion) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectGrace)
		defer cancel()
		s.cache.Set(ctx, key, suggestions)
	}()
}

func paginate(page, limit, total int) *model.Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return &model.Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalItems:  total,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}
